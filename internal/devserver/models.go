package devserver

import "time"

type User struct {
	ID           string    `gorm:"type:varchar(26);primaryKey" json:"_id"`
	Name         string    `gorm:"type:varchar(128);not null" json:"name"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(100);not null" json:"-"`
	Language     string    `gorm:"type:varchar(16);not null;default:english" json:"language"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

// Message is one saved chat turn. Seq orders rows inside a session;
// MessageID is the id handed to clients.
type Message struct {
	Seq             uint64     `gorm:"primaryKey;autoIncrement"`
	MessageID       string     `gorm:"type:varchar(26);uniqueIndex;not null"`
	UserID          string     `gorm:"type:varchar(26);not null;index:idx_history_user_session,priority:1"`
	SessionID       string     `gorm:"type:varchar(64);not null;index:idx_history_user_session,priority:2"`
	Role            string     `gorm:"type:varchar(16);not null"`
	Content         string     `gorm:"type:text;not null"`
	Language        string     `gorm:"type:varchar(16)"`
	ResponseTime    float64    `gorm:"not null;default:0"`
	FeedbackRating  *int       `gorm:"column:feedback_rating"`
	FeedbackComment string     `gorm:"type:text"`
	FeedbackAt      *time.Time `gorm:"column:feedback_at"`
	CreatedAt       time.Time
}

func (Message) TableName() string { return "chat_history" }

// SessionRow is one aggregated conversation of a user.
type SessionRow struct {
	SessionID    string
	MessageCount int
	FirstSeq     uint64
	LastSeq      uint64
}
