package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/backend"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/catalogue"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/chat"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/config"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/speech"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/state"
)

// app holds what every command shares. The state store is opened on
// first use so serve-demo never touches it.
type app struct {
	cfg config.Config
	log *zap.SugaredLogger
	cat *catalogue.Catalogue

	store  state.Store
	closer io.Closer
	auth   *state.Auth
	prefs  *state.Preferences
	client *backend.Client
}

func newApp(cfg config.Config, log *zap.SugaredLogger) (*app, error) {
	cat := catalogue.Default()
	if cfg.Catalogue.File != "" {
		c, err := catalogue.Load(cfg.Catalogue.File)
		if err != nil {
			return nil, err
		}
		cat = c
	}
	return &app{cfg: cfg, log: log, cat: cat}, nil
}

func (a *app) openState(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	store, closer, err := state.Open(ctx, a.cfg.State)
	if err != nil {
		return err
	}
	a.store = store
	a.closer = closer
	a.auth = state.NewAuth(store, a.log)
	a.prefs = state.NewPreferences(store)
	a.client = backend.New(a.cfg.Backend.BaseURL, a.cfg.Backend.Timeout, a.auth)
	return nil
}

func (a *app) Close() {
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			a.log.Warnw("closing state store", "err", err)
		}
	}
	_ = a.log.Sync()
}

func (a *app) registry() *ai.Registry {
	reg := ai.NewRegistry()
	reg.Register("backend", func(context.Context, string) (ai.Provider, error) {
		if a.client == nil {
			return nil, errors.New("backend client is not initialised")
		}
		return a.client, nil
	})
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		if strings.TrimSpace(model) == "" {
			model = a.cfg.Ollama.Model
		}
		return ai.NewOllamaProvider(a.cfg.Ollama.BaseURL, model), nil
	})
	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		o := a.cfg.OpenRouter
		if o.APIKey == "" {
			return nil, errors.New("openrouter.api_key is not set")
		}
		if strings.TrimSpace(model) == "" {
			model = o.Model
		}
		return ai.NewOpenRouterProvider(o.BaseURL, o.APIKey, model, o.SiteURL, o.AppName), nil
	})
	reg.Register("demo", func(context.Context, string) (ai.Provider, error) {
		return ai.NewDemoProvider(a.cat), nil
	})
	return reg
}

func (a *app) completer(ctx context.Context) (ai.Provider, error) {
	p, err := a.registry().Get(ctx, a.cfg.Completion.Provider, a.cfg.Completion.Model)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(a.registry().Names(), ", "))
	}
	return p, nil
}

// language resolves the conversation language: an explicit value wins,
// then the saved preference, then the configured default.
func (a *app) language(ctx context.Context, explicit string) common.Language {
	if explicit != "" {
		return common.ParseLanguage(explicit)
	}
	if a.store != nil {
		v, ok, err := a.store.Get(ctx, state.KeyPreferredLanguage)
		if err != nil {
			a.log.Warnw("reading language preference", "err", err)
		} else if ok && v != "" {
			return common.ParseLanguage(v)
		}
	}
	return common.ParseLanguage(a.cfg.Chat.Language)
}

func (a *app) speaker() *speech.Speaker {
	var synth speech.Synthesizer = speech.Silent{}
	cs := speech.NewCommandSynthesizer(a.cfg.Speech.SynthCmd)
	if cs.Available() {
		synth = cs
	} else {
		a.log.Debugw("speech synthesis unavailable", "command", a.cfg.Speech.SynthCmd)
	}
	return speech.NewSpeaker(synth, a.cfg.Speech.Rate, a.log)
}

func (a *app) recognizer() speech.Recognizer {
	if a.cfg.Speech.RecognizeCmd == "" {
		return speech.Unsupported{}
	}
	return speech.NewCommandRecognizer(a.cfg.Speech.RecognizeCmd)
}

// newSession wires a chat session to the backend for persistence and
// suggestions. sp may be nil.
func (a *app) newSession(ctx context.Context, lang common.Language, sp chat.Speaker) (*chat.Session, error) {
	if err := a.openState(ctx); err != nil {
		return nil, err
	}
	completer, err := a.completer(ctx)
	if err != nil {
		return nil, err
	}
	return chat.NewSession(chat.Deps{
		Completer: completer,
		Recorder:  a.client,
		Suggester: a.client,
		Tokens:    a.auth,
		Speaker:   sp,
		Log:       a.log,
	}, chat.Options{Language: lang, AutoSpeak: a.cfg.Chat.AutoSpeak})
}
