package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/chat"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/speech"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/state"
)

const replHelp = `Type a message and press enter. Commands:
  /like N, /dislike N     rate reply N
  /say N                  read reply N aloud
  /speak on|off           read every reply aloud
  /voice                  start or stop voice input
  /lang <language>        english, hindi, garhwali or kumaoni
  /suggest                show quick replies
  /use N                  send quick reply N
  /clear                  start a new conversation
  /export <file> [fmt]    save as json or markdown
  /quit`

func chatCommand(pa **app) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "start an interactive conversation",
		Flags: []cli.Flag{languageFlag},
		Action: func(c *cli.Context) error {
			a := *pa
			ctx := c.Context
			if err := a.openState(ctx); err != nil {
				return err
			}
			sp := a.speaker()
			sess, err := a.newSession(ctx, a.language(ctx, c.String("language")), sp)
			if err != nil {
				return err
			}

			r := &repl{
				sess:    sess,
				speaker: sp,
				prefs:   a.prefs,
				log:     a.log,
				out:     c.App.Writer,
			}
			r.voice = speech.NewVoiceInput(a.recognizer(), r.submitVoice, a.log)

			if _, ok, _ := a.auth.Current(ctx); !ok {
				r.printf("Not logged in: this conversation will not be saved.\n")
			}
			r.printf("Namaste! Ask me anything about Uttarakhand. /help lists commands.\n")
			r.showSuggestions(sess.LoadSuggestions(ctx))

			err = r.run(ctx, os.Stdin)
			r.close()
			return err
		},
	}
}

type repl struct {
	sess    *chat.Session
	speaker *speech.Speaker
	voice   *speech.VoiceInput
	prefs   *state.Preferences
	log     *zap.SugaredLogger

	mu  sync.Mutex
	out io.Writer
}

// close stops listening before waiting so a transcript that arrives after
// the user quit is never sent.
func (r *repl) close() {
	r.voice.Stop()
	r.voice.Wait()
	r.speaker.Stop()
	r.sess.Wait()
	r.sess.Close()
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		r.printf("> ")
		select {
		case <-ctx.Done():
			r.printf("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				if quit := r.command(ctx, line); quit {
					return nil
				}
				continue
			}
			r.submit(ctx, line)
		}
	}
}

func (r *repl) submit(ctx context.Context, text string) {
	r.voice.SetDisabled(true)
	defer r.voice.SetDisabled(false)

	if _, ok := r.sess.Submit(ctx, text); !ok {
		r.printf("(still answering the previous message)\n")
		return
	}
	turns := r.sess.Turns()
	r.printTurn(len(turns), turns[len(turns)-1])
}

func (r *repl) submitVoice(ctx context.Context, text string) {
	r.printf("\n(heard) %s\n", text)
	r.submit(ctx, text)
}

func (r *repl) printTurn(n int, t chat.Turn) {
	who := "You"
	if t.Role == chat.RoleAssistant {
		who = "Guide"
	}
	mark := ""
	if t.Feedback != nil {
		mark = "  [" + t.Feedback.Rating.String() + "]"
	}
	r.printf("[%d] %s: %s%s\n", n, who, t.Content, mark)
}

// command runs one slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf("%s\n", replHelp)
	case "/like", "/dislike":
		rating := chat.Like
		if name == "/dislike" {
			rating = chat.Dislike
		}
		t, ok := r.turnArg(args)
		if !ok {
			return false
		}
		switch out := r.sess.SubmitFeedback(ctx, t.LocalID, rating); out {
		case chat.FeedbackSent:
			r.printf("Thanks for the feedback.\n")
		case chat.FeedbackDropped:
			r.printf("That reply is not saved yet, so feedback was not sent.\n")
		default:
			r.printf("Cannot rate that message: %s.\n", out)
		}
	case "/say":
		t, ok := r.turnArg(args)
		if !ok {
			return false
		}
		if !r.sess.SpeakTurn(t.LocalID) {
			r.printf("Nothing to read aloud.\n")
		}
	case "/speak":
		switch strings.ToLower(strings.Join(args, "")) {
		case "on":
			r.sess.SetAutoSpeak(true)
		case "off":
			r.sess.SetAutoSpeak(false)
			r.speaker.Stop()
		default:
			r.printf("Usage: /speak on|off\n")
			return false
		}
		r.printf("Auto-speak %s.\n", onOff(r.sess.AutoSpeak()))
	case "/voice":
		if !r.voice.Available() {
			r.printf("Voice input is not available. Set speech.recognize_cmd to enable it.\n")
			return false
		}
		r.voice.Toggle(ctx, r.sess.Language())
		r.printf("Voice input: %s.\n", r.voice.State())
	case "/lang":
		if len(args) != 1 || !common.Language(strings.ToLower(args[0])).Valid() {
			r.printf("Usage: /lang english|hindi|garhwali|kumaoni\n")
			return false
		}
		lang := common.ParseLanguage(args[0])
		r.sess.SetLanguage(lang)
		if r.prefs != nil {
			if err := r.prefs.SetLanguage(ctx, lang); err != nil {
				r.log.Warnw("saving language preference", "err", err)
			}
		}
		r.printf("Language set to %s.\n", lang)
		r.showSuggestions(r.sess.LoadSuggestions(ctx))
	case "/suggest":
		r.showSuggestions(r.sess.Suggestions())
	case "/use":
		list := r.sess.Suggestions()
		n, err := strconv.Atoi(strings.Join(args, ""))
		if err != nil || n < 1 || n > len(list) {
			r.printf("Usage: /use N (1-%d)\n", len(list))
			return false
		}
		r.printf("[you] %s\n", list[n-1])
		r.submit(ctx, list[n-1])
	case "/clear":
		r.speaker.Stop()
		r.sess.Clear()
		r.printf("Conversation cleared.\n")
	case "/export":
		r.export(args)
	default:
		r.printf("Unknown command %s. /help lists commands.\n", name)
	}
	return false
}

func (r *repl) turnArg(args []string) (chat.Turn, bool) {
	turns := r.sess.Turns()
	if len(args) != 1 {
		r.printf("Give the message number shown in brackets.\n")
		return chat.Turn{}, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil || n < 1 || n > len(turns) {
		r.printf("No message %s.\n", args[0])
		return chat.Turn{}, false
	}
	return turns[n-1], true
}

func (r *repl) showSuggestions(list []string) {
	if len(list) == 0 {
		return
	}
	r.printf("Try asking:\n")
	for i, s := range list {
		r.printf("  %d. %s\n", i+1, s)
	}
}

func (r *repl) export(args []string) {
	if len(args) == 0 || len(args) > 2 {
		r.printf("Usage: /export <file> [json|markdown]\n")
		return
	}
	format := chat.FormatMarkdown
	if strings.HasSuffix(strings.ToLower(args[0]), ".json") {
		format = chat.FormatJSON
	}
	if len(args) == 2 {
		f, err := chat.ParseFormat(args[1])
		if err != nil {
			r.printf("%v\n", err)
			return
		}
		format = f
	}

	f, err := os.Create(args[0])
	if err != nil {
		r.printf("Cannot create %s: %v\n", args[0], err)
		return
	}
	if err := r.sess.Export(f, format, false); err != nil {
		_ = f.Close()
		r.printf("Export failed: %v\n", err)
		return
	}
	if err := f.Close(); err != nil {
		r.printf("Export failed: %v\n", err)
		return
	}
	r.printf("Saved %d messages to %s.\n", len(r.sess.Turns()), args[0])
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
