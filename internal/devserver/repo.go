package devserver

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrMessageNotFound = errors.New("message not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&User{}, &Message{})
}

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) UserByID(ctx context.Context, id string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// SessionMessages returns one conversation in insertion order.
func (r *Repo) SessionMessages(ctx context.Context, userID, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("seq ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Sessions groups the user's messages by session, most recently active first.
func (r *Repo) Sessions(ctx context.Context, userID string, limit int) ([]SessionRow, error) {
	var rows []SessionRow
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Select("session_id, COUNT(*) AS message_count, MIN(seq) AS first_seq, MAX(seq) AS last_seq").
		Where("user_id = ?", userID).
		Group("session_id").
		Order("last_seq DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MessagesBySeq loads the rows with the given sequence numbers, keyed by seq.
func (r *Repo) MessagesBySeq(ctx context.Context, seqs []uint64) (map[uint64]Message, error) {
	out := make(map[uint64]Message, len(seqs))
	if len(seqs) == 0 {
		return out, nil
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).Where("seq IN ?", seqs).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.Seq] = m
	}
	return out, nil
}

// SetFeedback rates an assistant message owned by userID. It returns
// ErrMessageNotFound when no such message exists.
func (r *Repo) SetFeedback(ctx context.Context, userID, messageID string, rating int, comment string) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("message_id = ? AND user_id = ? AND role = ?", messageID, userID, "assistant").
		Updates(map[string]any{
			"feedback_rating":  rating,
			"feedback_comment": comment,
			"feedback_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// DeleteSession removes every message of one conversation owned by userID
// and returns how many were deleted.
func (r *Repo) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Delete(&Message{})
	return res.RowsAffected, res.Error
}

// DeleteMessage removes one message owned by userID. It returns
// ErrMessageNotFound when no such message exists.
func (r *Repo) DeleteMessage(ctx context.Context, userID, messageID string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Delete(&Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}
