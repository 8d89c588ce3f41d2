package chat

import (
	"fmt"
	"time"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
)

type Role string

const (
	RoleUser      Role = ai.RoleUser
	RoleAssistant Role = ai.RoleAssistant
)

// Rating values match what the history API accepts.
type Rating int

const (
	Like    Rating = 1
	Dislike Rating = -1
)

func (r Rating) Valid() bool { return r == Like || r == Dislike }

func (r Rating) String() string {
	switch r {
	case Like:
		return "like"
	case Dislike:
		return "dislike"
	default:
		return fmt.Sprintf("rating(%d)", int(r))
	}
}

type Feedback struct {
	Rating Rating
	At     time.Time
}

// Turn is one message in the conversation. LocalID is assigned when the
// turn is created and never changes. Synthetic marks the assistant turn
// that stands in for a failed completion; it is never persisted, spoken
// or rated.
type Turn struct {
	LocalID   string
	Role      Role
	Content   string
	CreatedAt time.Time
	Language  common.Language
	Synthetic bool
	Feedback  *Feedback
}

// HistoryEntry is the role/content projection sent as conversation context.
type HistoryEntry = ai.Message

func errorReply(reason string) string {
	return fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", reason)
}
