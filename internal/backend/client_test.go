package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func newTestClient(t *testing.T, h http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api", 5*time.Second, staticToken(token))
}

func TestCompleteSendsContract(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat/message", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"success":true,"response":"Visit Auli","language":"english"}`))
	}, "")

	reply, err := c.Complete(context.Background(), ai.Request{
		Message:  "where to ski?",
		Language: common.English,
	})
	require.NoError(t, err)
	assert.Equal(t, "Visit Auli", reply)
	assert.Equal(t, "where to ski?", body["message"])
	assert.Equal(t, "english", body["language"])
	// empty history goes out as [] not null
	assert.Equal(t, []any{}, body["conversation_history"])
}

func TestCompleteFailureShapes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		reason string
	}{
		{"success false", http.StatusOK, `{"success":false,"message":"AI service is not configured"}`, "AI service is not configured"},
		{"server error envelope", http.StatusInternalServerError, `{"success":false,"message":"Internal server error"}`, "Internal server error"},
		{"error field", http.StatusBadRequest, `{"success":false,"error":"Message is required"}`, "Message is required"},
		{"non json", http.StatusBadGateway, `<html>bad gateway</html>`, "Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, "")
			_, err := c.Complete(context.Background(), ai.Request{Message: "hi"})
			var be *Error
			require.True(t, errors.As(err, &be), "got %v", err)
			assert.Equal(t, tc.status, be.Status)
			assert.Equal(t, tc.reason, be.Reason)
			assert.Equal(t, tc.reason, Reason(err))
		})
	}
}

func TestTransportErrorReason(t *testing.T) {
	c := New("http://127.0.0.1:1/api", time.Second, nil)
	_, err := c.Complete(context.Background(), ai.Request{Message: "hi"})
	require.Error(t, err)
	var be *Error
	assert.False(t, errors.As(err, &be))
	assert.NotEmpty(t, Reason(err))
}

func TestSaveMessage(t *testing.T) {
	var got saveMessageReq
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/message", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true,"message":"Message saved successfully","data":{"message":{"_id":"srv-1"},"session_id":"s"}}`))
	}, "tok")

	id, err := c.SaveMessage(context.Background(), MessageRecord{
		SessionID:    "session-1",
		Role:         "assistant",
		Content:      "hello",
		Language:     common.Hindi,
		ResponseTime: 1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", id)
	assert.Equal(t, "session-1", got.SessionID)
	assert.Equal(t, "hindi", got.Metadata.Language)
	assert.InDelta(t, 1.5, got.Metadata.ResponseTime, 0.001)
}

func TestAuthenticatedCallsNeedToken(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	_, err := c.SaveMessage(context.Background(), MessageRecord{Content: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, c.SubmitFeedback(context.Background(), "id", 1), ErrUnauthenticated)
	_, err = c.Sessions(context.Background(), 0)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = c.DeleteSession(context.Background(), "session-a")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.False(t, called)
}

func TestSubmitFeedback(t *testing.T) {
	var got feedbackReq
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history/feedback", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"message":"Feedback added successfully"}`))
	}, "tok")

	require.NoError(t, c.SubmitFeedback(context.Background(), "srv-9", -1))
	assert.Equal(t, feedbackReq{MessageID: "srv-9", Rating: -1}, got)
}

func TestSuggestions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hindi", r.URL.Query().Get("language"))
		_, _ = w.Write([]byte(`{"success":true,"suggestions":["a","b"],"language":"hindi"}`))
	}, "")
	s, err := c.Suggestions(context.Background(), common.Hindi)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req credentialsReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid email or password"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"message":"Welcome back, Asha!","data":{"user":{"_id":"u1","name":"Asha","email":"a@x"},"token":"jwt"}}`))
	}, "")

	res, err := c.Login(context.Background(), "a@x", "right")
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.Token)
	assert.Equal(t, "Asha", res.User.Name)
	assert.Equal(t, "Welcome back, Asha!", res.Message)

	_, err = c.Login(context.Background(), "a@x", "wrong")
	assert.Equal(t, "Invalid email or password", Reason(err))
}

func TestSessionsAndMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/history/sessions":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"success":true,"data":{"sessions":[{"_id":"session-a","last_message":"bye","message_count":4,"first_message":"hi"}],"count":1}}`))
		case "/api/history/session/session-a":
			_, _ = w.Write([]byte(`{"success":true,"data":{"session_id":"session-a","chats":[{"_id":"m1","role":"user","content":"hi"},{"_id":"m2","role":"assistant","content":"hello","feedback":{"rating":1}}],"count":2}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, "tok")

	sessions, err := c.Sessions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "session-a", sessions[0].ID)
	assert.Equal(t, 4, sessions[0].MessageCount)

	msgs, err := c.SessionMessages(context.Background(), "session-a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].Feedback.Rating)
	assert.Equal(t, 1, *msgs[1].Feedback.Rating)
	assert.Nil(t, msgs[0].Feedback.Rating)
}

func TestDeleteSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/history/session/session-a", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"message":"Session deleted successfully","data":{"deleted_count":4}}`))
	}, "tok")

	n, err := c.DeleteSession(context.Background(), "session-a")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
