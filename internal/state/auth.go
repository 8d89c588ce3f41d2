package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/logging"
)

// TokenTTL is how long a stored login is honoured after it was written.
const TokenTTL = 24 * time.Hour

type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Credentials struct {
	User     User
	Token    string
	IssuedAt time.Time
}

// Auth manages the stored login. All three keys must be present for the
// user to count as logged in.
type Auth struct {
	store Store
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewAuth(store Store, log *zap.SugaredLogger) *Auth {
	return &Auth{store: store, log: logging.OrNop(log), now: time.Now}
}

func (a *Auth) Login(ctx context.Context, u User, token string) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(a.now().UnixMilli(), 10)
	for _, kv := range [][2]string{
		{KeyUser, string(b)},
		{KeyAuthToken, token},
		{KeyTokenTimestamp, ts},
	} {
		if err := a.store.Set(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("store %s: %w", kv[0], err)
		}
	}
	return nil
}

func (a *Auth) Logout(ctx context.Context) error {
	return a.store.Delete(ctx, KeyUser, KeyAuthToken, KeyTokenTimestamp)
}

// Current returns the stored login. A login older than TokenTTL, or whose
// JWT exp claim has passed, is cleared and reported as absent.
func (a *Auth) Current(ctx context.Context) (Credentials, bool, error) {
	rawUser, okU, err := a.store.Get(ctx, KeyUser)
	if err != nil {
		return Credentials{}, false, err
	}
	token, okT, err := a.store.Get(ctx, KeyAuthToken)
	if err != nil {
		return Credentials{}, false, err
	}
	rawTS, okS, err := a.store.Get(ctx, KeyTokenTimestamp)
	if err != nil {
		return Credentials{}, false, err
	}
	if !okU || !okT || !okS || token == "" {
		return Credentials{}, false, nil
	}

	ms, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		a.log.Warnw("discarding login with bad timestamp", "value", rawTS)
		return Credentials{}, false, a.Logout(ctx)
	}
	issued := time.UnixMilli(ms)
	now := a.now()
	if now.Sub(issued) >= TokenTTL || tokenExpired(token, now) {
		a.log.Infow("stored login expired", "issued_at", issued)
		return Credentials{}, false, a.Logout(ctx)
	}

	var u User
	if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
		a.log.Warnw("discarding login with bad user record", "err", err)
		return Credentials{}, false, a.Logout(ctx)
	}
	return Credentials{User: u, Token: token, IssuedAt: issued}, true, nil
}

// Token returns the bearer token, or "" when logged out.
func (a *Auth) Token(ctx context.Context) (string, error) {
	c, ok, err := a.Current(ctx)
	if err != nil || !ok {
		return "", err
	}
	return c.Token, nil
}

// tokenExpired reads the exp claim without verifying the signature; the
// server remains the authority. Opaque tokens never expire here.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}

type Preferences struct {
	store Store
}

func NewPreferences(store Store) *Preferences {
	return &Preferences{store: store}
}

// Language returns the saved language, English when unset.
func (p *Preferences) Language(ctx context.Context) (common.Language, error) {
	v, ok, err := p.store.Get(ctx, KeyPreferredLanguage)
	if err != nil || !ok {
		return common.English, err
	}
	return common.ParseLanguage(v), nil
}

func (p *Preferences) SetLanguage(ctx context.Context, lang common.Language) error {
	return p.store.Set(ctx, KeyPreferredLanguage, lang.String())
}
