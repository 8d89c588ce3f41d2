package state

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/techyogeshchauhan/uttarakhand-companion/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the Store selected by cfg.Driver. The returned closer
// releases the underlying connection.
func Open(ctx context.Context, cfg config.StateConfig) (Store, io.Closer, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory":
		return NewMemoryStore(), nopCloser{}, nil
	case "", "sqlite", "mysql":
		db, err := OpenDB(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open state db: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		s, err := NewSQLStore(db, cfg.Profile)
		if err != nil {
			_ = sqlDB.Close()
			return nil, nil, err
		}
		return s, sqlDB, nil
	case "redis":
		rdb, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open state redis: %w", err)
		}
		return NewRedisStore(rdb, cfg.Profile), rdb, nil
	default:
		return nil, nil, fmt.Errorf("unsupported state driver %q", cfg.Driver)
	}
}
