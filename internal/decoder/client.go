// Package decoder talks to the decoder LM service and parses its tagged
// responses into typed results.
package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Params are per-profile decoding parameters.
type Params struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	TopP           float64 `json:"top_p"`
	TopK           int     `json:"top_k"`
	EnableThinking bool    `json:"enable_thinking"`
}

// Request is one generation call.
type Request struct {
	System string
	Prompt string
	Params Params
}

// Client generates text from a prompt. Implementations must be safe for
// concurrent use.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPClient calls a decoder inference service over HTTP.
type HTTPClient struct {
	url       string
	modelPath string
	client    *http.Client
	logger    *zap.Logger
}

// NewHTTPClient builds a client for the service at url.
func NewHTTPClient(url, modelPath string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		url:       url,
		modelPath: modelPath,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type generateRequest struct {
	ModelPath    string `json:"model_path"`
	SystemPrompt string `json:"system_prompt"`
	Prompt       string `json:"prompt"`
	Params
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate posts the request and returns the raw generated text, thinking
// blocks included.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(generateRequest{
		ModelPath:    c.modelPath,
		SystemPrompt: req.System,
		Prompt:       req.Prompt,
		Params:       req.Params,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call decoder service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("decoder service returned %d: %s", resp.StatusCode, payload)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return out.Text, nil
}

// FakeClient fabricates tagged responses from the prompt itself, so the
// pipeline and the reply agent run end to end without a decoder service.
// It is stateless and safe for concurrent use.
type FakeClient struct{}

// Generate returns a response carrying every tag the parsers look for,
// derived deterministically from the prompt.
func (FakeClient) Generate(_ context.Context, req Request) (string, error) {
	excerpt := promptExcerpt(req.Prompt, 200)
	return fmt.Sprintf(
		"<abstract>%s</abstract>\n<summary>%s</summary>\n<cleanedtext>%s</cleanedtext>\n"+
			"<message>%s</message>",
		promptExcerpt(req.Prompt, 60), excerpt, excerpt, excerpt,
	), nil
}

// promptExcerpt returns the prompt's trailing runes, where the chunk or
// question text sits, capped at max.
func promptExcerpt(prompt string, max int) string {
	runes := []rune(prompt)
	if len(runes) > max {
		runes = runes[len(runes)-max:]
	}
	return string(runes)
}

// ScriptedClient replays canned responses in order; tests use it in place
// of the service.
type ScriptedClient struct {
	Responses []string
	Err       error

	calls    int
	Requests []Request
}

// Generate returns the next scripted response, repeating the last one when
// the script runs out.
func (s *ScriptedClient) Generate(_ context.Context, req Request) (string, error) {
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.Responses) == 0 {
		return "", fmt.Errorf("scripted client has no responses")
	}
	i := s.calls
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	s.calls++
	return s.Responses[i], nil
}
