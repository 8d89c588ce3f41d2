package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/logging"
)

// Recognizer runs one single-shot recognition session and returns the
// final transcript. Interim results are never produced.
type Recognizer interface {
	Supported() bool
	Recognize(ctx context.Context, tag string) (string, error)
}

type VoiceState int

const (
	Idle VoiceState = iota
	Listening
)

func (s VoiceState) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// VoiceInput is the toggle around a Recognizer: idle -> listening, then
// back to idle on result, error or a second toggle. A non-empty transcript
// is handed to OnTranscript.
type VoiceInput struct {
	rec          Recognizer
	onTranscript func(ctx context.Context, text string)
	log          *zap.SugaredLogger

	mu       sync.Mutex
	state    VoiceState
	disabled bool
	gen      uint64
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewVoiceInput(rec Recognizer, onTranscript func(ctx context.Context, text string), log *zap.SugaredLogger) *VoiceInput {
	if rec == nil {
		rec = Unsupported{}
	}
	return &VoiceInput{rec: rec, onTranscript: onTranscript, log: logging.OrNop(log)}
}

// Available is false when the recognizer is unsupported; callers hide the
// control entirely in that case.
func (v *VoiceInput) Available() bool { return v.rec.Supported() }

func (v *VoiceInput) State() VoiceState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SetDisabled blocks toggling, e.g. while a message is being answered.
func (v *VoiceInput) SetDisabled(d bool) {
	v.mu.Lock()
	v.disabled = d
	v.mu.Unlock()
}

// Toggle starts a session when idle and stops it when listening. It is a
// no-op when unsupported or disabled and reports whether anything changed.
func (v *VoiceInput) Toggle(ctx context.Context, lang common.Language) bool {
	if !v.rec.Supported() {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disabled {
		return false
	}

	if v.state == Listening {
		v.gen++
		v.cancel()
		v.cancel = nil
		v.state = Idle
		return true
	}

	v.gen++
	gen := v.gen
	rctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	v.state = Listening

	v.wg.Add(1)
	go v.listen(ctx, rctx, gen, lang.SpeechTag())
	return true
}

func (v *VoiceInput) listen(parent, rctx context.Context, gen uint64, tag string) {
	defer v.wg.Done()

	text, err := v.rec.Recognize(rctx, tag)

	v.mu.Lock()
	if v.gen != gen {
		// stopped by a second toggle; the session is over
		v.mu.Unlock()
		return
	}
	v.cancel()
	v.cancel = nil
	v.state = Idle
	v.mu.Unlock()

	if err != nil {
		v.log.Warnw("speech recognition failed", "err", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" || v.onTranscript == nil {
		return
	}
	v.onTranscript(parent, text)
}

// Stop ends a running session without delivering its transcript. A late
// result from the recognizer is dropped.
func (v *VoiceInput) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Listening {
		return
	}
	v.gen++
	v.cancel()
	v.cancel = nil
	v.state = Idle
}

// Wait blocks until any running recognition has finished delivering.
func (v *VoiceInput) Wait() { v.wg.Wait() }

// Unsupported is the Recognizer used when no transcriber is configured.
type Unsupported struct{}

func (Unsupported) Supported() bool { return false }
func (Unsupported) Recognize(context.Context, string) (string, error) {
	return "", errors.New("speech recognition is not supported")
}

// CommandRecognizer runs an external transcriber that records one
// utterance and prints the transcript on stdout. The language tag is
// passed as the last argument.
type CommandRecognizer struct {
	Command string
	Args    []string
}

// NewCommandRecognizer splits a command line such as
// "whisper-listen --model base" into binary and arguments.
func NewCommandRecognizer(cmdline string) *CommandRecognizer {
	f := strings.Fields(cmdline)
	if len(f) == 0 {
		return &CommandRecognizer{}
	}
	return &CommandRecognizer{Command: f[0], Args: f[1:]}
}

func (c *CommandRecognizer) Supported() bool {
	if c.Command == "" {
		return false
	}
	_, err := exec.LookPath(c.Command)
	return err == nil
}

func (c *CommandRecognizer) Recognize(ctx context.Context, tag string) (string, error) {
	args := append(append([]string(nil), c.Args...), tag)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("recognizer: %s: %w", msg, err)
		}
		return "", fmt.Errorf("recognizer: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}
