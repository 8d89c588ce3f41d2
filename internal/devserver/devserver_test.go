package devserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/backend"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/catalogue"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/chat"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/config"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/devserver"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/state"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo1234"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := state.OpenDB("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	srv, err := devserver.New(db, config.DevServerConfig{JWTSecret: "test-secret"}, nil, catalogue.Default(), nil)
	require.NoError(t, err)
	require.NoError(t, srv.SeedUser(context.Background(), "Demo Traveller", demoEmail, demoPassword))

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func loggedInClient(t *testing.T, ts *httptest.Server) *backend.Client {
	t.Helper()
	anon := backend.New(ts.URL+"/api", 5*time.Second, nil)
	res, err := anon.Login(context.Background(), demoEmail, demoPassword)
	require.NoError(t, err)
	return backend.New(ts.URL+"/api", 5*time.Second, staticToken(res.Token))
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestChatMessageAnswersFromCatalogue(t *testing.T) {
	ts := newTestServer(t)
	c := backend.New(ts.URL+"/api", 5*time.Second, nil)

	reply, err := c.Complete(context.Background(), ai.Request{Message: "Tell me about Kedarnath", Language: common.English})
	require.NoError(t, err)
	assert.NotEmpty(t, reply)
}

func TestChatMessageRejectsEmptyMessage(t *testing.T) {
	ts := newTestServer(t)

	resp, body := postJSON(t, ts.URL+"/api/chat/message", "", map[string]any{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Message is required", body["message"])
}

func TestSuggestionsFollowLanguage(t *testing.T) {
	ts := newTestServer(t)
	c := backend.New(ts.URL+"/api", 5*time.Second, nil)

	got, err := c.Suggestions(context.Background(), common.Hindi)
	require.NoError(t, err)
	assert.Equal(t, catalogue.Default().Suggestions(common.Hindi), got)
}

func TestLoginWrongPassword(t *testing.T) {
	ts := newTestServer(t)
	c := backend.New(ts.URL+"/api", 5*time.Second, nil)

	_, err := c.Login(context.Background(), demoEmail, "nope")
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusUnauthorized, be.Status)
	assert.Equal(t, "Invalid email or password", be.Reason)
}

func TestSignupThenDuplicate(t *testing.T) {
	ts := newTestServer(t)
	c := backend.New(ts.URL+"/api", 5*time.Second, nil)
	ctx := context.Background()

	res, err := c.Signup(ctx, "Asha", "asha@example.com", "secret99", common.Hindi)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Asha", res.User.Name)
	assert.Contains(t, res.Message, "Asha")

	_, err = c.Signup(ctx, "Asha", "asha@example.com", "secret99", common.Hindi)
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusConflict, be.Status)

	_, err = c.Signup(ctx, "Bo", "bo@example.com", "123", common.English)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadRequest, be.Status)
}

func TestHistoryRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	c := backend.New(ts.URL+"/api", 5*time.Second, staticToken("garbage"))
	_, err := c.Sessions(context.Background(), 0)
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusUnauthorized, be.Status)

	anon := backend.New(ts.URL+"/api", 5*time.Second, nil)
	_, err = anon.Sessions(context.Background(), 0)
	assert.True(t, errors.Is(err, backend.ErrUnauthenticated))
}

func TestSaveMessageAndFeedback(t *testing.T) {
	ts := newTestServer(t)
	c := loggedInClient(t, ts)
	ctx := context.Background()

	userID, err := c.SaveMessage(ctx, backend.MessageRecord{
		SessionID: "session-a", Role: "user", Content: "Best time for Auli?", Language: common.English,
	})
	require.NoError(t, err)
	asstID, err := c.SaveMessage(ctx, backend.MessageRecord{
		SessionID: "session-a", Role: "assistant", Content: "December to March.",
		Language: common.English, ResponseTime: 1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.NotEqual(t, userID, asstID)
	assert.Len(t, asstID, 26)

	var be *backend.Error
	err = c.SubmitFeedback(ctx, userID, 1)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusNotFound, be.Status)

	err = c.SubmitFeedback(ctx, asstID, 2)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadRequest, be.Status)

	require.NoError(t, c.SubmitFeedback(ctx, asstID, -1))

	msgs, err := c.SessionMessages(ctx, "session-a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Nil(t, msgs[0].Feedback.Rating)
	assert.Equal(t, asstID, msgs[1].ID)
	require.NotNil(t, msgs[1].Feedback.Rating)
	assert.Equal(t, -1, *msgs[1].Feedback.Rating)
	assert.InDelta(t, 1.5, msgs[1].Metadata.ResponseTime, 0.001)
}

func TestSaveMessageValidation(t *testing.T) {
	ts := newTestServer(t)
	anon := backend.New(ts.URL+"/api", 5*time.Second, nil)
	res, err := anon.Login(context.Background(), demoEmail, demoPassword)
	require.NoError(t, err)

	resp, body := postJSON(t, ts.URL+"/api/history/message", res.Token, map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Message content is required", body["error"])

	resp, _ = postJSON(t, ts.URL+"/api/history/message", res.Token, map[string]any{"content": "hi", "role": "system"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = postJSON(t, ts.URL+"/api/history/message", res.Token, map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["session_id"])
}

func TestSessionsNewestFirst(t *testing.T) {
	ts := newTestServer(t)
	c := loggedInClient(t, ts)
	ctx := context.Background()

	save := func(session, role, content string) {
		_, err := c.SaveMessage(ctx, backend.MessageRecord{SessionID: session, Role: role, Content: content})
		require.NoError(t, err)
	}
	save("s1", "user", "first of s1")
	save("s1", "assistant", "reply s1")
	save("s2", "user", "only s2")
	save("s1", "user", "last of s1")

	got, err := c.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, 3, got[0].MessageCount)
	assert.Equal(t, "first of s1", got[0].FirstMessage)
	assert.Equal(t, "last of s1", got[0].LastMessage)
	assert.NotEmpty(t, got[0].LastTimestamp)
	assert.Equal(t, "s2", got[1].ID)

	got, err = c.Sessions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func deleteReq(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestDeleteSessionIsOwnerScoped(t *testing.T) {
	ts := newTestServer(t)
	owner := loggedInClient(t, ts)
	ctx := context.Background()

	for _, content := range []string{"hello", "namaste"} {
		_, err := owner.SaveMessage(ctx, backend.MessageRecord{SessionID: "trip", Role: "user", Content: content})
		require.NoError(t, err)
	}
	_, err := owner.SaveMessage(ctx, backend.MessageRecord{SessionID: "other", Role: "user", Content: "keep me"})
	require.NoError(t, err)

	anon := backend.New(ts.URL+"/api", 5*time.Second, nil)
	res, err := anon.Signup(ctx, "Asha", "asha@example.com", "secret99", common.English)
	require.NoError(t, err)
	stranger := backend.New(ts.URL+"/api", 5*time.Second, staticToken(res.Token))

	n, err := stranger.DeleteSession(ctx, "trip")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = owner.DeleteSession(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	msgs, err := owner.SessionMessages(ctx, "trip")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	sessions, err := owner.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "other", sessions[0].ID)

	_, err = backend.New(ts.URL+"/api", 5*time.Second, staticToken("garbage")).DeleteSession(ctx, "other")
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusUnauthorized, be.Status)
}

func TestDeleteMessage(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	anon := backend.New(ts.URL+"/api", 5*time.Second, nil)
	res, err := anon.Login(ctx, demoEmail, demoPassword)
	require.NoError(t, err)
	c := backend.New(ts.URL+"/api", 5*time.Second, staticToken(res.Token))

	id, err := c.SaveMessage(ctx, backend.MessageRecord{SessionID: "s1", Role: "user", Content: "hi"})
	require.NoError(t, err)

	resp, body := deleteReq(t, ts.URL+"/api/history/message/"+id, res.Token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	resp, body = deleteReq(t, ts.URL+"/api/history/message/"+id, res.Token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Message not found or already deleted", body["error"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/nowhere")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionRoundTripThroughDemoBackend(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	auth := state.NewAuth(state.NewMemoryStore(), nil)
	anon := backend.New(ts.URL+"/api", 5*time.Second, nil)
	res, err := anon.Login(ctx, demoEmail, demoPassword)
	require.NoError(t, err)
	require.NoError(t, auth.Login(ctx, state.User{ID: res.User.ID, Name: res.User.Name, Email: res.User.Email}, res.Token))

	client := backend.New(ts.URL+"/api", 5*time.Second, auth)
	sess, err := chat.NewSession(chat.Deps{
		Completer: client,
		Recorder:  client,
		Suggester: client,
		Tokens:    auth,
	}, chat.Options{Language: common.English})
	require.NoError(t, err)
	defer sess.Close()

	assert.NotEmpty(t, sess.LoadSuggestions(ctx))

	turn, ok := sess.Submit(ctx, "What is special about Nainital?")
	require.True(t, ok)
	require.False(t, turn.Synthetic)

	serverID, err := sess.AwaitPersisted(ctx, turn.LocalID)
	require.NoError(t, err)
	assert.Equal(t, chat.FeedbackSent, sess.SubmitFeedback(ctx, turn.LocalID, chat.Like))
	sess.Wait()

	msgs, err := client.SessionMessages(ctx, sess.ID())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	var rated *backend.SavedMessage
	for i := range msgs {
		if msgs[i].ID == serverID {
			rated = &msgs[i]
		}
	}
	require.NotNil(t, rated)
	assert.Equal(t, "assistant", rated.Role)
	require.NotNil(t, rated.Feedback.Rating)
	assert.Equal(t, 1, *rated.Feedback.Rating)
}
