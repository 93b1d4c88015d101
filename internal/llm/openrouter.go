package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterURL  = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel   = "openai/gpt-5"
	defaultTimeout = 60 * time.Second
)

// OpenRouter is a chat-completions client for openrouter.ai. The zero value
// is not usable; construct with NewOpenRouter.
type OpenRouter struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

func NewOpenRouter(apiKey, model string) (*OpenRouter, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &OpenRouter{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    openRouterURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete submits a single-turn user prompt and returns the raw reply text.
func (c *OpenRouter) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("openrouter: prompt must be non-empty")
	}
	body, err := json.Marshal(chatRequest{
		Model:    c.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("openrouter: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openrouter: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
		return "", fmt.Errorf("openrouter: status %d: %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("openrouter: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openrouter: response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

var _ Completer = (*OpenRouter)(nil)
