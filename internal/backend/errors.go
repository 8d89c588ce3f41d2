package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is returned by calls that need a bearer token when
// none is stored. No request is made in that case.
var ErrUnauthenticated = errors.New("backend: not logged in")

// Error is a failure reported by the backend, either through a non-2xx
// status or a success:false envelope. Reason is the server's own message
// and is safe to show to the user.
type Error struct {
	Status int
	Reason string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "backend: " + e.Reason
	}
	return fmt.Sprintf("backend: %s (status %d)", e.Reason, e.Status)
}

// Reason extracts a user-facing reason from any error: the server's
// message for *Error and the error text otherwise.
func Reason(err error) string {
	var be *Error
	if errors.As(err, &be) && be.Reason != "" {
		return be.Reason
	}
	return err.Error()
}

func statusReason(status int) string {
	if s := http.StatusText(status); s != "" {
		return s
	}
	return fmt.Sprintf("status %d", status)
}
