package usecase

import (
	"encoding/json"
	"strings"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

const (
	malformedIntentQuestion   = "I couldn't understand your query. Could you please specify which drug you'd like to know about?"
	unavailableIntentQuestion = "I encountered an error. Could you please rephrase your question?"

	briefQuerySuggestion = "Your question seems quite brief. Could you provide more details?"
	vagueQuerySuggestion = "Your question contains vague terms. Could you be more specific?"
	minQueryWords        = 3
)

var vagueTerms = map[string]struct{}{"this": {}, "that": {}, "it": {}, "thing": {}, "stuff": {}}

// intentPayload accepts both the current key names and the legacy
// drug/agency ones some models still emit.
type intentPayload struct {
	Subjects              []string `json:"subjects"`
	DrugNames             []string `json:"drug_names"`
	Sources               []string `json:"sources"`
	Agencies              []string `json:"agencies"`
	NeedsDocuments        bool     `json:"needs_documents"`
	QueryType             string   `json:"query_type"`
	Topics                []string `json:"topics"`
	Ambiguous             *bool    `json:"ambiguous"`
	ClarificationNeeded   *bool    `json:"clarification_needed"`
	ClarifyingQuestion    string   `json:"clarifying_question"`
	ClarificationQuestion string   `json:"clarification_question"`
}

// ParseIntent turns raw model output into a tagged result. Anything that is
// not a JSON object yields a Malformed result.
func ParseIntent(raw string) domain.IntentResult {
	body := extractJSONObject(stripCodeFence(raw))
	if body == "" {
		return domain.MalformedIntent(raw)
	}
	var payload intentPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return domain.MalformedIntent(raw)
	}

	intent := domain.Intent{
		Subjects:           cleanList(firstNonEmpty(payload.Subjects, payload.DrugNames)),
		Sources:            cleanList(firstNonEmpty(payload.Sources, payload.Agencies)),
		NeedsDocuments:     payload.NeedsDocuments,
		QueryType:          strings.TrimSpace(payload.QueryType),
		Topics:             cleanList(payload.Topics),
		ClarifyingQuestion: strings.TrimSpace(payload.ClarifyingQuestion),
	}
	if intent.ClarifyingQuestion == "" {
		intent.ClarifyingQuestion = strings.TrimSpace(payload.ClarificationQuestion)
	}
	switch {
	case payload.Ambiguous != nil:
		intent.Ambiguous = *payload.Ambiguous
	case payload.ClarificationNeeded != nil:
		intent.Ambiguous = *payload.ClarificationNeeded
	}
	return domain.ParsedIntent(intent)
}

// clarificationFor returns the question to ask back for a result that
// cannot drive retrieval, and false when the intent is usable.
func clarificationFor(result domain.IntentResult) (string, bool) {
	if result.Status == domain.IntentMalformed {
		return malformedIntentQuestion, true
	}
	if !result.Intent.Ambiguous {
		return "", false
	}
	if result.Intent.ClarifyingQuestion != "" {
		return result.Intent.ClarifyingQuestion, true
	}
	return malformedIntentQuestion, true
}

// clarificationSuggestions flags brief or vague queries. The query is still
// answered; the suggestions travel alongside the answer.
func clarificationSuggestions(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var out []string
	if len(words) < minQueryWords {
		out = append(out, briefQuerySuggestion)
	}
	for _, word := range words {
		if _, ok := vagueTerms[strings.Trim(word, ".,;:!?\"'()")]; ok {
			out = append(out, vagueQuerySuggestion)
			break
		}
	}
	return out
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if end := strings.Index(text, "```"); end >= 0 {
		text = text[:end]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "json")
	return strings.TrimSpace(text)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}

func firstNonEmpty(lists ...[]string) []string {
	for _, list := range lists {
		if len(list) > 0 {
			return list
		}
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
