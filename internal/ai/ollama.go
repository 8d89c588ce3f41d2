package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider talks to a local Ollama daemon through /api/chat.
// Temperature zero leaves the model default in place.
type OllamaProvider struct {
	BaseURL     string
	Model       string
	Temperature float64
	Client      *http.Client
}

func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaChatReq struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResp struct {
	Message Message `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func (p *OllamaProvider) Complete(ctx context.Context, in Request) (string, error) {
	body := ollamaChatReq{Model: p.Model, Messages: chatMessages(in)}
	if p.Temperature > 0 {
		body.Options = &ollamaOptions{Temperature: p.Temperature}
	}

	var out ollamaChatResp
	if err := postJSON(ctx, p.Client, "ollama", p.BaseURL+"/api/chat", nil, body, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Message.Content, nil
}
