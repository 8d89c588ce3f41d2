package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/backend"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
)

// scriptedCompleter answers with reply (or err) and records every request.
// When gate is set each call waits for a value on it first.
type scriptedCompleter struct {
	mu      sync.Mutex
	reqs    []ai.Request
	reply   func(req ai.Request) (string, error)
	gate    chan struct{}
	entered chan struct{}
}

func echoCompleter() *scriptedCompleter {
	return &scriptedCompleter{reply: func(req ai.Request) (string, error) {
		return "re: " + req.Message, nil
	}}
}

func (c *scriptedCompleter) Complete(ctx context.Context, req ai.Request) (string, error) {
	c.mu.Lock()
	req.History = append([]ai.Message(nil), req.History...)
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.reply(req)
}

func (c *scriptedCompleter) requests() []ai.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ai.Request(nil), c.reqs...)
}

type feedbackCall struct {
	serverID string
	rating   int
}

// fakeRecorder assigns srv-1, srv-2, ... unless failSave is set. With
// hold set, SaveMessage blocks until ctx is cancelled and then still
// reports success, imitating a response that arrives too late.
type fakeRecorder struct {
	mu           sync.Mutex
	saved        []backend.MessageRecord
	feedback     []feedbackCall
	failSave     error
	failFeedback error
	hold         bool
	n            int
}

func (r *fakeRecorder) SaveMessage(ctx context.Context, rec backend.MessageRecord) (string, error) {
	if r.hold {
		<-ctx.Done()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, rec)
	if r.failSave != nil {
		return "", r.failSave
	}
	r.n++
	return fmt.Sprintf("srv-%d", r.n), nil
}

func (r *fakeRecorder) SubmitFeedback(_ context.Context, serverID string, rating int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, feedbackCall{serverID, rating})
	return r.failFeedback
}

func (r *fakeRecorder) savedRecords() []backend.MessageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]backend.MessageRecord(nil), r.saved...)
}

func (r *fakeRecorder) feedbackCalls() []feedbackCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]feedbackCall(nil), r.feedback...)
}

type tokens string

func (t tokens) Token(context.Context) (string, error) { return string(t), nil }

type fakeSuggester struct {
	list  []string
	err   error
	langs []common.Language
}

func (f *fakeSuggester) Suggestions(_ context.Context, lang common.Language) ([]string, error) {
	f.langs = append(f.langs, lang)
	return f.list, f.err
}

var errNetwork = errors.New("dial tcp: connection refused")
