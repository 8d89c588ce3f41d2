package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/catalogue"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/chat"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/speech"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/state"
)

type catalogueSuggester struct{ c *catalogue.Catalogue }

func (s catalogueSuggester) Suggestions(_ context.Context, lang common.Language) ([]string, error) {
	return s.c.Suggestions(lang), nil
}

// heldRecognizer keeps listening past cancellation until a transcript is
// released.
type heldRecognizer struct {
	release chan string
}

func (h heldRecognizer) Supported() bool { return true }

func (h heldRecognizer) Recognize(context.Context, string) (string, error) {
	return <-h.release, nil
}

func newTestREPL(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()
	sp := speech.NewSpeaker(speech.Silent{}, speech.DefaultRate, nil)
	sess, err := chat.NewSession(chat.Deps{
		Completer: ai.NewDemoProvider(catalogue.Default()),
		Suggester: catalogueSuggester{catalogue.Default()},
		Speaker:   sp,
	}, chat.Options{Language: common.English})
	require.NoError(t, err)
	t.Cleanup(sess.Close)

	var out bytes.Buffer
	r := &repl{
		sess:    sess,
		speaker: sp,
		prefs:   state.NewPreferences(state.NewMemoryStore()),
		log:     zap.NewNop().Sugar(),
		out:     &out,
	}
	r.voice = speech.NewVoiceInput(speech.Unsupported{}, r.submitVoice, nil)
	return r, &out
}

func TestREPLSubmitAndRate(t *testing.T) {
	r, out := newTestREPL(t)

	in := strings.NewReader("Best time to visit Nainital?\n/like 2\n/like 1\n/quit\nnever sent\n")
	require.NoError(t, r.run(context.Background(), in))

	turns := r.sess.Turns()
	require.Len(t, turns, 2)
	assert.Contains(t, out.String(), "[2] Guide: ")
	// not logged in, so the reply has no server id
	assert.Contains(t, out.String(), "not saved yet")
	assert.Contains(t, out.String(), "Cannot rate that message: not an assistant turn.")
	assert.NotContains(t, out.String(), "never sent")
}

func TestREPLLanguageSwitch(t *testing.T) {
	r, out := newTestREPL(t)
	ctx := context.Background()

	assert.False(t, r.command(ctx, "/lang klingon"))
	assert.Contains(t, out.String(), "Usage: /lang")

	assert.False(t, r.command(ctx, "/lang Hindi"))
	assert.Equal(t, common.Hindi, r.sess.Language())
	saved, err := r.prefs.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, common.Hindi, saved)
	assert.Equal(t, catalogue.Default().Suggestions(common.Hindi), r.sess.Suggestions())
}

func TestREPLExport(t *testing.T) {
	r, _ := newTestREPL(t)
	ctx := context.Background()
	r.submit(ctx, "Tell me about Auli")

	path := filepath.Join(t.TempDir(), "chat.json")
	r.command(ctx, "/export "+path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Tell me about Auli")
	assert.Contains(t, string(b), `"role": "assistant"`)
}

func TestREPLSpeakToggleAndVoiceUnavailable(t *testing.T) {
	r, out := newTestREPL(t)
	ctx := context.Background()

	r.command(ctx, "/speak on")
	assert.True(t, r.sess.AutoSpeak())
	r.command(ctx, "/speak off")
	assert.False(t, r.sess.AutoSpeak())

	r.command(ctx, "/voice")
	assert.Contains(t, out.String(), "Voice input is not available")
	assert.Equal(t, speech.Idle, r.voice.State())
}

func TestREPLUseSuggestion(t *testing.T) {
	r, out := newTestREPL(t)
	ctx := context.Background()
	list := r.sess.LoadSuggestions(ctx)
	require.NotEmpty(t, list)

	r.command(ctx, "/use 99")
	assert.Contains(t, out.String(), "Usage: /use N")
	assert.Empty(t, r.sess.Turns())

	r.command(ctx, "/use 1")
	turns := r.sess.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, list[0], turns[0].Content)
}

func TestREPLQuitWhileListeningDropsTranscript(t *testing.T) {
	r, out := newTestREPL(t)
	rec := heldRecognizer{release: make(chan string, 1)}
	r.voice = speech.NewVoiceInput(rec, r.submitVoice, nil)

	require.NoError(t, r.run(context.Background(), strings.NewReader("/voice\n/quit\n")))
	require.Equal(t, speech.Listening, r.voice.State())

	closed := make(chan struct{})
	go func() {
		r.close()
		close(closed)
	}()
	require.Eventually(t, func() bool { return r.voice.State() == speech.Idle }, time.Second, 5*time.Millisecond)

	rec.release <- "take me to Kedarnath"
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}

	assert.Empty(t, r.sess.Turns())
	assert.NotContains(t, out.String(), "(heard)")
}
