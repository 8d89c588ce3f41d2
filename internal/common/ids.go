package common

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a lexicographically sortable id (26 chars).
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewSessionID returns a conversation id of the form "session-<ulid>".
// The ulid carries the creation time in milliseconds plus 80 random bits.
func NewSessionID() (string, error) {
	id, err := NewULID()
	if err != nil {
		return "", err
	}
	return "session-" + id, nil
}

// NewLocalID returns a client-side turn id.
func NewLocalID() string {
	return uuid.NewString()
}
