package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/infrastructure/resilience"
)

const (
	answerTemperature = 0.3
	answerMaxTokens   = 2000
	intentTemperature = 0.1
	intentMaxTokens   = 500
)

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	intentModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

// New builds a client. A nil executor means a single attempt per call.
func New(baseURL, genModel, embedModel, intentModel string, executor *resilience.Executor) *Client {
	if intentModel == "" {
		intentModel = genModel
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		intentModel: intentModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		executor:    executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": text,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "ollama embed", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

func (e *Embedder) Model() string {
	return e.client.embedModel
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate runs a chat completion. An empty model selects the configured one.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt, model string) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = g.client.genModel
	}
	text, err := g.client.chat(ctx, chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Options: chatOptions{Temperature: answerTemperature, NumPredict: answerMaxTokens},
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrGenerationUnavailable, "ollama generate", err)
	}
	return text, nil
}

func (g *Generator) DefaultModel() string {
	return g.client.genModel
}

type IntentExtractor struct {
	client *Client
}

func NewIntentExtractor(client *Client) *IntentExtractor {
	return &IntentExtractor{client: client}
}

// ExtractIntent returns the model's raw JSON reply; parsing is left to the caller.
func (x *IntentExtractor) ExtractIntent(ctx context.Context, query string, conversation domain.IntentContext) (string, error) {
	text, err := x.client.chat(ctx, chatRequest{
		Model: x.client.intentModel,
		Messages: []chatMessage{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: buildIntentPrompt(query, conversation)},
		},
		Format:  "json",
		Options: chatOptions{Temperature: intentTemperature, NumPredict: intentMaxTokens},
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrGenerationUnavailable, "ollama extract intent", err)
	}
	return text, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options"`
}

func (c *Client) chat(ctx context.Context, req chatRequest) (string, error) {
	var response struct {
		Message chatMessage `json:"message"`
	}
	if err := c.postJSON(ctx, "/api/chat", req, &response, "chat"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}
