// Package devserver is a small stand-in for the tourism backend. It speaks
// the same JSON contract as the real service so the client can be run and
// tested offline.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/catalogue"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/config"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	repo      *Repo
	provider  ai.Provider
	catalogue *catalogue.Catalogue
	secret    string
	log       *zap.SugaredLogger
	now       func() time.Time
}

// New migrates the schema and returns a server answering chat messages
// with provider. A nil provider answers from the catalogue.
func New(db *gorm.DB, cfg config.DevServerConfig, provider ai.Provider, cat *catalogue.Catalogue, log *zap.SugaredLogger) (*Server, error) {
	if db == nil {
		return nil, errors.New("devserver: db is nil")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("devserver: jwt secret is empty")
	}
	if cat == nil {
		cat = catalogue.Default()
	}
	if provider == nil {
		provider = ai.NewDemoProvider(cat)
	}
	repo := NewRepo(db)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("devserver: migrate: %w", err)
	}
	return &Server{
		repo:      repo,
		provider:  provider,
		catalogue: cat,
		secret:    cfg.JWTSecret,
		log:       logging.OrNop(log),
		now:       time.Now,
	}, nil
}

// SeedUser creates the account if its email is not registered yet.
func (s *Server) SeedUser(ctx context.Context, name, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.repo.UserByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	_, err := s.createUser(ctx, name, email, password, common.English)
	if err == nil {
		s.log.Infow("seeded demo user", "email", email)
	}
	return err
}

func (s *Server) createUser(ctx context.Context, name, email, password string, lang common.Language) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Language:     lang.String(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("demo backend listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Infow("demo backend shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("devserver: shutdown: %w", err)
	}
	return nil
}
