package chat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ExportOptions controls transcript export. Error replies are marked as
// such unless ExcludeSynthetic drops them.
type ExportOptions struct {
	SessionID        string
	ExcludeSynthetic bool
}

type exportDoc struct {
	SessionID string       `json:"session_id,omitempty"`
	Turns     []exportTurn `json:"turns"`
}

type exportTurn struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	Language  string          `json:"language"`
	Synthetic bool            `json:"synthetic,omitempty"`
	Feedback  *exportFeedback `json:"feedback,omitempty"`
}

type exportFeedback struct {
	Rating int       `json:"rating"`
	At     time.Time `json:"at"`
}

// Export writes turns as JSON or Markdown.
func Export(w io.Writer, turns []Turn, format Format, opts ExportOptions) error {
	kept := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.Synthetic && opts.ExcludeSynthetic {
			continue
		}
		kept = append(kept, t)
	}

	switch format {
	case FormatJSON:
		return exportJSON(w, kept, opts)
	case FormatMarkdown:
		return exportMarkdown(w, kept, opts)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func exportJSON(w io.Writer, turns []Turn, opts ExportOptions) error {
	doc := exportDoc{SessionID: opts.SessionID, Turns: make([]exportTurn, 0, len(turns))}
	for _, t := range turns {
		et := exportTurn{
			ID:        t.LocalID,
			Role:      t.Role,
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
			Language:  t.Language.String(),
			Synthetic: t.Synthetic,
		}
		if t.Feedback != nil {
			et.Feedback = &exportFeedback{Rating: int(t.Feedback.Rating), At: t.Feedback.At}
		}
		doc.Turns = append(doc.Turns, et)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func exportMarkdown(w io.Writer, turns []Turn, opts ExportOptions) error {
	var b strings.Builder
	b.WriteString("# Conversation")
	if opts.SessionID != "" {
		b.WriteString(" " + opts.SessionID)
	}
	b.WriteString("\n\n")

	for _, t := range turns {
		who := "You"
		if t.Role == RoleAssistant {
			who = "Guide"
		}
		fmt.Fprintf(&b, "**%s** · %s\n\n", who, t.CreatedAt.Format("2006-01-02 15:04"))
		if t.Synthetic {
			b.WriteString("_(error)_ ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n\n")
		if t.Feedback != nil {
			fmt.Fprintf(&b, "_Feedback: %s_\n\n", t.Feedback.Rating)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Export writes this session's transcript.
func (s *Session) Export(w io.Writer, format Format, excludeSynthetic bool) error {
	return Export(w, s.Turns(), format, ExportOptions{
		SessionID:        s.id,
		ExcludeSynthetic: excludeSynthetic,
	})
}
