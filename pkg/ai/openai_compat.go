package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// OpenAICompatGenerator calls a /chat/completions endpoint (vLLM, LiteLLM,
// LocalAI, OpenRouter and similar).
type OpenAICompatGenerator struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAICompatGenerator builds a generator. baseURL includes the version
// prefix, e.g. "http://localhost:8000/v1"; apiKey may be empty.
func NewOpenAICompatGenerator(baseURL, apiKey, model string) *OpenAICompatGenerator {
	return &OpenAICompatGenerator{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      strings.TrimSpace(model),
		httpClient: &http.Client{Timeout: defaultProviderTimeout},
	}
}

func (g *OpenAICompatGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.GenerateChat(ctx, systemPrompt, []Turn{{Role: RoleUser, Text: userPrompt}})
}

func (g *OpenAICompatGenerator) GenerateChat(ctx context.Context, systemPrompt string, turns []Turn) (string, error) {
	if g.model == "" {
		return "", errors.New("openai-compat generation model required")
	}
	var header http.Header
	if g.apiKey != "" {
		header = http.Header{"Authorization": {"Bearer " + g.apiKey}}
	}
	req := oaiChatRequest{Model: g.model, Messages: chatMessages(systemPrompt, turns)}
	var resp oaiChatResponse
	if err := postJSON(ctx, g.httpClient, "openai-compat", g.baseURL+"/chat/completions", header, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return firstText(resp.Choices[0].Message.Content)
}

type oaiChatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
