package ai

import (
	"context"
	"fmt"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role/content pair of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is what a provider needs to answer one chat message. History
// holds the prior turns only; the new message travels separately.
type Request struct {
	Message  string
	Language common.Language
	History  []Message
}

type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func systemPrompt(lang common.Language) string {
	return fmt.Sprintf("You are a friendly travel guide for Uttarakhand, India. "+
		"Answer questions about destinations, treks, temples, food, weather and local culture. "+
		"Keep answers concise and reply in %s.", lang)
}

// chatMessages lays out system prompt, history and the new message in the
// order chat-completion APIs expect.
func chatMessages(req Request) []Message {
	out := make([]Message, 0, len(req.History)+2)
	out = append(out, Message{Role: RoleSystem, Content: systemPrompt(req.Language)})
	out = append(out, req.History...)
	out = append(out, Message{Role: RoleUser, Content: req.Message})
	return out
}
