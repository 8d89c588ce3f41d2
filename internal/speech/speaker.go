package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/logging"
)

const DefaultRate = 0.9

type Utterance struct {
	Text string
	Tag  string // BCP-47, e.g. en-IN
	Rate float64
}

// Synthesizer plays one utterance at a time. Speak blocks until playback
// ends or ctx is cancelled; Cancel stops whatever is playing.
type Synthesizer interface {
	Speak(ctx context.Context, u Utterance) error
	Cancel()
}

// Speaker reads replies aloud. Every Speak cancels the utterance in
// flight before starting the next, so audio never overlaps.
type Speaker struct {
	synth Synthesizer
	rate  float64
	log   *zap.SugaredLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSpeaker(synth Synthesizer, rate float64, log *zap.SugaredLogger) *Speaker {
	if rate <= 0 {
		rate = DefaultRate
	}
	return &Speaker{synth: synth, rate: rate, log: logging.OrNop(log)}
}

// Speak strips markdown from text and starts playback in the background.
// It reports false when nothing was left to say.
func (s *Speaker) Speak(text string, lang common.Language) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	cleaned := CleanMarkdown(text)
	if cleaned == "" {
		s.log.Warnw("no text to speak after cleaning")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	u := Utterance{Text: cleaned, Tag: lang.SpeechTag(), Rate: s.rate}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.synth.Speak(ctx, u); err != nil && ctx.Err() == nil {
			s.log.Warnw("speech synthesis failed", "err", err)
		}
	}()
	return true
}

// Stop cancels the current utterance, if any.
func (s *Speaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Speaker) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.synth.Cancel()
}

// Wait blocks until background playback has returned.
func (s *Speaker) Wait() { s.wg.Wait() }

// CommandSynthesizer shells out to an espeak-compatible binary:
// <cmd> -v <tag> -s <words per minute> <text>.
type CommandSynthesizer struct {
	Command string

	mu  sync.Mutex
	cur *exec.Cmd
}

// espeak's default speaking rate in words per minute.
const baseWPM = 175

func NewCommandSynthesizer(command string) *CommandSynthesizer {
	return &CommandSynthesizer{Command: command}
}

// Available reports whether the configured binary is on PATH.
func (c *CommandSynthesizer) Available() bool {
	if c.Command == "" {
		return false
	}
	_, err := exec.LookPath(c.Command)
	return err == nil
}

func (c *CommandSynthesizer) Speak(ctx context.Context, u Utterance) error {
	if c.Command == "" {
		return errors.New("speech: no synthesizer configured")
	}
	wpm := int(baseWPM * u.Rate)
	cmd := exec.CommandContext(ctx, c.Command, "-v", u.Tag, "-s", strconv.Itoa(wpm), u.Text)

	c.mu.Lock()
	c.cur = cmd
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.cur == cmd {
			c.cur = nil
		}
		c.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speech: %s: %w", c.Command, err)
	}
	return nil
}

func (c *CommandSynthesizer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil && c.cur.Process != nil {
		_ = c.cur.Process.Kill()
	}
}

// Silent is a Synthesizer that does nothing, used when speech output is
// unavailable.
type Silent struct{}

func (Silent) Speak(context.Context, Utterance) error { return nil }
func (Silent) Cancel()                                {}
