// Package chat is the conversation session manager: ordered turns, the
// history sent as context, background persistence of each turn and the
// feedback that depends on it.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/backend"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/logging"
)

var errEmptyReply = errors.New("the server returned an empty response")

// Recorder persists turns and rates them once persisted.
type Recorder interface {
	SaveMessage(ctx context.Context, rec backend.MessageRecord) (string, error)
	SubmitFeedback(ctx context.Context, serverID string, rating int) error
}

type Suggester interface {
	Suggestions(ctx context.Context, lang common.Language) ([]string, error)
}

// Speaker reads assistant replies aloud.
type Speaker interface {
	Speak(text string, lang common.Language) bool
	Stop()
}

// Deps are the collaborators of a Session. Only Completer is required.
// Without a token from Tokens nothing is persisted.
type Deps struct {
	Completer ai.Provider
	Recorder  Recorder
	Suggester Suggester
	Tokens    backend.TokenSource
	Speaker   Speaker
	Log       *zap.SugaredLogger
}

type Options struct {
	Language  common.Language
	AutoSpeak bool
}

type FeedbackOutcome int

const (
	// FeedbackSent means one feedback call was made and the turn was
	// marked, whether or not the call succeeded.
	FeedbackSent FeedbackOutcome = iota
	// FeedbackDropped means the turn has no server id yet; nothing was sent.
	FeedbackDropped
	FeedbackUnknownTurn
	FeedbackNotAssistant
	FeedbackSynthetic
	FeedbackInvalidRating
)

func (o FeedbackOutcome) String() string {
	switch o {
	case FeedbackSent:
		return "sent"
	case FeedbackDropped:
		return "dropped"
	case FeedbackUnknownTurn:
		return "unknown turn"
	case FeedbackNotAssistant:
		return "not an assistant turn"
	case FeedbackSynthetic:
		return "error reply"
	default:
		return "invalid rating"
	}
}

// Session is one conversation. It is safe for concurrent use: Submit
// blocks its caller for the completion call while other methods stay
// callable.
type Session struct {
	id   string
	deps Deps
	log  *zap.SugaredLogger
	corr *Correlator
	now  func() time.Time

	// background context for persistence; cancelled by Close
	bg       context.Context
	cancelBG context.CancelFunc
	wg       sync.WaitGroup

	mu          sync.Mutex
	turns       []Turn
	history     []HistoryEntry
	suggestions []string
	loading     bool
	lang        common.Language
	autoSpeak   bool
	closed      bool
}

func NewSession(d Deps, o Options) (*Session, error) {
	if d.Completer == nil {
		return nil, errors.New("chat: completer is required")
	}
	id, err := common.NewSessionID()
	if err != nil {
		return nil, err
	}
	lang := o.Language
	if !lang.Valid() {
		lang = common.English
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		deps:      d,
		log:       logging.OrNop(d.Log).With("session_id", id),
		corr:      NewCorrelator(),
		now:       time.Now,
		bg:        bg,
		cancelBG:  cancel,
		lang:      lang,
		autoSpeak: o.AutoSpeak,
	}, nil
}

func (s *Session) ID() string { return s.id }

// Submit sends text as the next user turn and waits for the reply. It is
// a no-op, reporting false, for blank text, while another submit is in
// flight, and after Close. A failed completion yields a synthetic
// assistant turn carrying the reason.
func (s *Session) Submit(ctx context.Context, text string) (Turn, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, false
	}

	s.mu.Lock()
	if s.loading || s.closed {
		s.mu.Unlock()
		return Turn{}, false
	}
	s.loading = true
	lang := s.lang
	prior := append([]HistoryEntry{}, s.history...)
	user := Turn{
		LocalID:   common.NewLocalID(),
		Role:      RoleUser,
		Content:   text,
		CreatedAt: s.now(),
		Language:  lang,
	}
	s.turns = append(s.turns, user)
	s.history = append(s.history, HistoryEntry{Role: string(RoleUser), Content: text})
	s.mu.Unlock()

	s.persist(user, 0)

	start := s.now()
	reply, err := s.deps.Completer.Complete(ctx, ai.Request{
		Message:  text,
		Language: lang,
		History:  prior,
	})
	elapsed := s.now().Sub(start)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errEmptyReply
	}

	asst := Turn{
		LocalID:   common.NewLocalID(),
		Role:      RoleAssistant,
		CreatedAt: s.now(),
		Language:  lang,
	}
	if err != nil {
		s.log.Errorw("completion failed", "err", err)
		asst.Content = errorReply(backend.Reason(err))
		asst.Synthetic = true
	} else {
		asst.Content = reply
	}

	s.mu.Lock()
	s.loading = false
	if s.closed {
		s.mu.Unlock()
		return Turn{}, false
	}
	s.turns = append(s.turns, asst)
	if !asst.Synthetic {
		s.history = append(s.history, HistoryEntry{Role: string(RoleAssistant), Content: reply})
	}
	speak := s.autoSpeak && !asst.Synthetic
	s.mu.Unlock()

	if !asst.Synthetic {
		s.persist(asst, elapsed)
	}
	if speak && s.deps.Speaker != nil {
		s.deps.Speaker.Speak(asst.Content, lang)
	}
	return asst, true
}

// persist saves t in the background when the user is logged in. The
// outcome lands in the correlator; failures are only logged.
func (s *Session) persist(t Turn, responseTime time.Duration) {
	if s.deps.Recorder == nil || !s.authenticated() {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.corr.Begin(t.LocalID)
	rec := backend.MessageRecord{
		SessionID:    s.id,
		Role:         string(t.Role),
		Content:      t.Content,
		Language:     t.Language,
		ResponseTime: responseTime,
	}
	go func() {
		defer s.wg.Done()
		serverID, err := s.deps.Recorder.SaveMessage(s.bg, rec)
		if s.bg.Err() != nil {
			s.corr.Fail(t.LocalID, ErrSessionClosed)
			return
		}
		if err != nil {
			s.log.Warnw("failed to persist turn", "local_id", t.LocalID, "role", t.Role, "err", err)
			s.corr.Fail(t.LocalID, err)
			return
		}
		s.corr.Resolve(t.LocalID, serverID)
	}()
}

func (s *Session) authenticated() bool {
	if s.deps.Tokens == nil {
		return false
	}
	tok, err := s.deps.Tokens.Token(s.bg)
	if err != nil {
		s.log.Warnw("reading auth token failed", "err", err)
		return false
	}
	return tok != ""
}

// SubmitFeedback rates an assistant turn. Feedback for a turn whose
// server id is not known yet is dropped with a warning; it is neither
// retried nor queued. Once a call is made the turn is marked with the
// rating even if the call fails.
func (s *Session) SubmitFeedback(ctx context.Context, localID string, rating Rating) FeedbackOutcome {
	if !rating.Valid() {
		return FeedbackInvalidRating
	}

	t, ok := s.turn(localID)
	switch {
	case !ok:
		return FeedbackUnknownTurn
	case t.Role != RoleAssistant:
		return FeedbackNotAssistant
	case t.Synthetic:
		return FeedbackSynthetic
	}

	serverID, ok := s.corr.Lookup(localID)
	if !ok || s.deps.Recorder == nil {
		s.log.Warnw("feedback dropped: turn not persisted yet", "local_id", localID)
		return FeedbackDropped
	}

	if err := s.deps.Recorder.SubmitFeedback(ctx, serverID, int(rating)); err != nil {
		s.log.Warnw("feedback call failed", "local_id", localID, "server_id", serverID, "err", err)
	}

	s.mu.Lock()
	for i := range s.turns {
		if s.turns[i].LocalID == localID {
			s.turns[i].Feedback = &Feedback{Rating: rating, At: s.now()}
			break
		}
	}
	s.mu.Unlock()
	return FeedbackSent
}

// AwaitPersisted blocks until the turn's persistence has an outcome.
func (s *Session) AwaitPersisted(ctx context.Context, localID string) (string, error) {
	return s.corr.Await(ctx, localID)
}

// LoadSuggestions fetches quick replies for the current language. On
// failure the previous suggestions are kept and the error is only logged.
func (s *Session) LoadSuggestions(ctx context.Context) []string {
	if s.deps.Suggester == nil {
		return s.Suggestions()
	}
	lang := s.Language()
	list, err := s.deps.Suggester.Suggestions(ctx, lang)
	if err != nil {
		s.log.Warnw("loading suggestions failed", "language", lang, "err", err)
		return s.Suggestions()
	}
	s.mu.Lock()
	s.suggestions = append([]string(nil), list...)
	s.mu.Unlock()
	return append([]string(nil), list...)
}

// SpeakTurn reads one turn aloud on demand. Error replies are skipped.
func (s *Session) SpeakTurn(localID string) bool {
	t, ok := s.turn(localID)
	if !ok || t.Synthetic || s.deps.Speaker == nil {
		return false
	}
	return s.deps.Speaker.Speak(t.Content, t.Language)
}

// Clear empties the conversation. The session id and the correlator are
// kept, so persistence still in flight lands normally.
func (s *Session) Clear() {
	s.mu.Lock()
	s.turns = nil
	s.history = nil
	s.mu.Unlock()
}

// Close cancels background persistence and waits for it to return.
// Results arriving afterwards are ignored. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelBG()
	s.wg.Wait()
	if s.deps.Speaker != nil {
		s.deps.Speaker.Stop()
	}
}

// Wait blocks until background persistence started so far has finished.
func (s *Session) Wait() { s.wg.Wait() }

func (s *Session) turn(localID string) (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns {
		if t.LocalID == localID {
			return t, true
		}
	}
	return Turn{}, false
}

// Turns returns a copy of the conversation.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		if t.Feedback != nil {
			fb := *t.Feedback
			t.Feedback = &fb
		}
		out[i] = t
	}
	return out
}

func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.history...)
}

func (s *Session) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.suggestions...)
}

func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) Language() common.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

func (s *Session) SetLanguage(lang common.Language) {
	if !lang.Valid() {
		lang = common.English
	}
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
}

func (s *Session) AutoSpeak() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSpeak
}

func (s *Session) SetAutoSpeak(on bool) {
	s.mu.Lock()
	s.autoSpeak = on
	s.mu.Unlock()
}
