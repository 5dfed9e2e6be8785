package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultProviderTimeout = 120 * time.Second

// APIError is a non-2xx answer from a generative-text provider.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Message)
}

// postJSON sends payload to endpoint and decodes a 2xx body into out.
func postJSON(ctx context.Context, hc *http.Client, provider, endpoint string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providerErrorMessage(resp.Body)
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Provider: provider, Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", provider, err)
	}
	return nil
}

// providerErrorMessage understands both {"error":"..."} and
// {"error":{"message":"..."}} bodies.
func providerErrorMessage(r io.Reader) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var flat string
	if json.Unmarshal(envelope.Error, &flat) == nil {
		return strings.TrimSpace(flat)
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(envelope.Error, &nested) == nil {
		return strings.TrimSpace(nested.Message)
	}
	return ""
}

// chatMessage is the role/content pair shared by the chat-completions style
// APIs (Ollama and OpenAI-compatible servers).
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatMessages prepends the optional system prompt and renames the model role
// to "assistant".
func chatMessages(systemPrompt string, turns []Turn) []chatMessage {
	out := make([]chatMessage, 0, len(turns)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		out = append(out, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, turn := range turns {
		role := turn.Role
		if role == RoleModel {
			role = "assistant"
		}
		out = append(out, chatMessage{Role: role, Content: turn.Text})
	}
	return out
}

// firstText trims a provider reply and maps blank output to ErrEmptyResponse.
func firstText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
