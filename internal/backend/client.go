// Package backend is the HTTP client for the tourism chat backend. Every
// response is decoded once into a typed value or an *Error; callers never
// inspect raw JSON.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
)

// TokenSource yields the stored bearer token, or "" when logged out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
}

func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
		Tokens:  tokens,
	}
}

// envelope covers every response shape the backend produces.
type envelope struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Error       string          `json:"error"`
	Response    string          `json:"response"`
	Suggestions []string        `json:"suggestions"`
	Data        json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, auth bool) (*envelope, error) {
	if c.HTTP == nil {
		return nil, errors.New("backend: http client is nil")
	}

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := c.token(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	decErr := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&env)

	ok2xx := resp.StatusCode >= 200 && resp.StatusCode < 300
	switch {
	case decErr != nil && !ok2xx:
		return nil, &Error{Status: resp.StatusCode, Reason: statusReason(resp.StatusCode)}
	case decErr != nil:
		return nil, fmt.Errorf("backend: decode %s: %w", path, decErr)
	case !ok2xx || !env.Success:
		return nil, &Error{Status: resp.StatusCode, Reason: env.reason(resp.StatusCode)}
	}
	return &env, nil
}

func (e *envelope) reason(status int) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != "" {
		return e.Error
	}
	return statusReason(status)
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.Tokens == nil {
		return "", ErrUnauthenticated
	}
	t, err := c.Tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if t == "" {
		return "", ErrUnauthenticated
	}
	return t, nil
}

func decodeData(env *envelope, v any) error {
	if len(env.Data) == 0 {
		return errors.New("backend: response has no data")
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("backend: decode data: %w", err)
	}
	return nil
}

// Complete sends one chat message and returns the assistant reply. It
// makes Client usable as an ai.Provider.
func (c *Client) Complete(ctx context.Context, in ai.Request) (string, error) {
	hist := make([]historyItem, 0, len(in.History))
	for _, m := range in.History {
		hist = append(hist, historyItem{Role: m.Role, Content: m.Content})
	}
	env, err := c.do(ctx, http.MethodPost, "/chat/message", completeReq{
		Message:             in.Message,
		Language:            in.Language.String(),
		ConversationHistory: hist,
	}, false)
	if err != nil {
		return "", err
	}
	return env.Response, nil
}

func (c *Client) Suggestions(ctx context.Context, lang common.Language) ([]string, error) {
	q := url.Values{"language": {lang.String()}}
	env, err := c.do(ctx, http.MethodGet, "/chat/suggestions?"+q.Encode(), nil, false)
	if err != nil {
		return nil, err
	}
	return env.Suggestions, nil
}

// SaveMessage persists a turn and returns the server-assigned message id.
func (c *Client) SaveMessage(ctx context.Context, rec MessageRecord) (string, error) {
	env, err := c.do(ctx, http.MethodPost, "/history/message", saveMessageReq{
		SessionID: rec.SessionID,
		Role:      rec.Role,
		Content:   rec.Content,
		Metadata: messageMetadata{
			Language:     rec.Language.String(),
			ResponseTime: rec.ResponseTime.Seconds(),
		},
	}, true)
	if err != nil {
		return "", err
	}
	var data struct {
		Message struct {
			ID string `json:"_id"`
		} `json:"message"`
	}
	if err := decodeData(env, &data); err != nil {
		return "", err
	}
	if data.Message.ID == "" {
		return "", errors.New("backend: saved message has no id")
	}
	return data.Message.ID, nil
}

// SubmitFeedback rates a persisted assistant message: 1 like, -1 dislike.
func (c *Client) SubmitFeedback(ctx context.Context, serverID string, rating int) error {
	_, err := c.do(ctx, http.MethodPost, "/history/feedback", feedbackReq{
		MessageID: serverID,
		Rating:    rating,
	}, true)
	return err
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	return c.credentials(ctx, "/auth/login", credentialsReq{Email: email, Password: password})
}

func (c *Client) Signup(ctx context.Context, name, email, password string, lang common.Language) (LoginResult, error) {
	return c.credentials(ctx, "/auth/signup", credentialsReq{
		Name:     name,
		Email:    email,
		Password: password,
		Language: lang.String(),
	})
}

func (c *Client) credentials(ctx context.Context, path string, body credentialsReq) (LoginResult, error) {
	env, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return LoginResult{}, err
	}
	var data struct {
		User  User   `json:"user"`
		Token string `json:"token"`
	}
	if err := decodeData(env, &data); err != nil {
		return LoginResult{}, err
	}
	if data.Token == "" {
		return LoginResult{}, errors.New("backend: login response has no token")
	}
	return LoginResult{User: data.User, Token: data.Token, Message: env.Message}, nil
}

// Sessions lists the user's saved conversations, newest first.
func (c *Client) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	path := "/history/sessions"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	env, err := c.do(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	var data struct {
		Sessions []SessionSummary `json:"sessions"`
	}
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	return data.Sessions, nil
}

// SessionMessages returns every saved turn of one conversation in order.
func (c *Client) SessionMessages(ctx context.Context, sessionID string) ([]SavedMessage, error) {
	env, err := c.do(ctx, http.MethodGet, "/history/session/"+url.PathEscape(sessionID), nil, true)
	if err != nil {
		return nil, err
	}
	var data struct {
		Chats []SavedMessage `json:"chats"`
	}
	if err := decodeData(env, &data); err != nil {
		return nil, err
	}
	return data.Chats, nil
}

// DeleteSession removes a saved conversation and reports how many
// messages went with it. Unknown ids delete nothing.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	env, err := c.do(ctx, http.MethodDelete, "/history/session/"+url.PathEscape(sessionID), nil, true)
	if err != nil {
		return 0, err
	}
	var data struct {
		DeletedCount int `json:"deleted_count"`
	}
	if err := decodeData(env, &data); err != nil {
		return 0, err
	}
	return data.DeletedCount, nil
}
