package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

const intentSystemPrompt = "You are a precise JSON extraction system. Return only valid JSON."

func buildIntentPrompt(query string, conversation domain.IntentContext) string {
	var contextInfo string
	if conversation.CurrentSubject != "" {
		contextInfo = fmt.Sprintf("\n\nCurrent conversation context:\n- Drug being discussed: %s\n- Topics covered: %s\n- Documents already indexed: %t",
			conversation.CurrentSubject,
			strings.Join(conversation.Topics, ", "),
			conversation.HasDocuments,
		)
	}

	return fmt.Sprintf(`You are an expert regulatory affairs analyst. Analyze the following user query and extract key information.

User Query: %q%s

Return a JSON object with keys:
subjects (array of drug names mentioned, brand or generic),
sources (array of regulatory agencies mentioned: FDA, EMA, Health Canada, TGA, Swissmedic, NHRA),
needs_documents (boolean, whether new documents need to be retrieved),
query_type (one of specific, vague, follow_up),
ambiguous (boolean, whether clarification is needed),
clarifying_question (string, question to ask the user when ambiguous),
topics (array from: safety, efficacy, dosage, approval, mechanism, indications, adverse_events, clinical_trials, comparative).

Rules:
1. If no drug name is mentioned and no context exists, set query_type to "vague" and ambiguous to true.
2. If a drug is in context but not in the query, use the context drug and set query_type to "follow_up".
3. If the query asks for a comparison between agencies, include those agencies in sources.
4. needs_documents is true only if a new drug is mentioned, or the user explicitly asks for deep research or additional documents.
5. If agencies are not mentioned, return an empty sources array.
6. Extract all relevant topics from the query.

No markdown, no extra keys.`, query, contextInfo)
}
