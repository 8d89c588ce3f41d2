package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OpenRouterProvider speaks the OpenAI-compatible chat completions API.
// SiteURL and AppName are sent as the attribution headers OpenRouter
// shows on its dashboard.
type OpenRouterProvider struct {
	BaseURL   string
	APIKey    string
	Model     string
	SiteURL   string
	AppName   string
	MaxTokens int
	Client    *http.Client
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		Model:     model,
		SiteURL:   siteURL,
		AppName:   appName,
		MaxTokens: 800,
		Client:    &http.Client{Timeout: 90 * time.Second},
	}
}

type openRouterChatReq struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenRouterProvider) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		h.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		h.Set("X-Title", p.AppName)
	}
	return h
}

func (p *OpenRouterProvider) Complete(ctx context.Context, in Request) (string, error) {
	switch {
	case strings.TrimSpace(p.APIKey) == "":
		return "", errors.New("openrouter: api key is required")
	case strings.TrimSpace(p.Model) == "":
		return "", errors.New("openrouter: model is required")
	}

	body := openRouterChatReq{
		Model:     strings.TrimSpace(p.Model),
		Messages:  chatMessages(in),
		MaxTokens: p.MaxTokens,
	}
	var out openRouterChatResp
	if err := postJSON(ctx, p.Client, "openrouter", p.BaseURL+"/chat/completions", p.headers(), body, &out); err != nil {
		return "", err
	}
	if out.Error != nil && out.Error.Message != "" {
		return "", errors.New(out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openrouter: empty response")
	}
	return out.Choices[0].Message.Content, nil
}
