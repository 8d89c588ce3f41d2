package backend

import (
	"time"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
)

// MessageRecord is one chat turn to persist in the user's history.
type MessageRecord struct {
	SessionID    string
	Role         string
	Content      string
	Language     common.Language
	ResponseTime time.Duration
}

type saveMessageReq struct {
	SessionID string          `json:"session_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Metadata  messageMetadata `json:"metadata"`
}

type messageMetadata struct {
	Language     string  `json:"language"`
	ResponseTime float64 `json:"response_time"`
}

type completeReq struct {
	Message             string        `json:"message"`
	Language            string        `json:"language"`
	ConversationHistory []historyItem `json:"conversation_history"`
}

type historyItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type feedbackReq struct {
	MessageID string `json:"message_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

type credentialsReq struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Language string `json:"language,omitempty"`
}

type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type LoginResult struct {
	User    User
	Token   string
	Message string
}

// SavedMessage is a persisted turn as returned by the history endpoints.
// Timestamps are kept as the server formatted them.
type SavedMessage struct {
	ID        string `json:"_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Metadata  struct {
		Language     string  `json:"language"`
		ResponseTime float64 `json:"response_time"`
	} `json:"metadata"`
	Feedback struct {
		Rating  *int   `json:"rating"`
		Comment string `json:"comment"`
	} `json:"feedback"`
}

// SessionSummary is one row of the saved-session listing.
type SessionSummary struct {
	ID            string `json:"_id"`
	LastMessage   string `json:"last_message"`
	LastTimestamp string `json:"last_timestamp"`
	MessageCount  int    `json:"message_count"`
	FirstMessage  string `json:"first_message"`
}
