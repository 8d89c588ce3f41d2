package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type entry struct {
	Profile   string    `gorm:"type:varchar(64);primaryKey"`
	Key       string    `gorm:"type:varchar(64);primaryKey"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "client_state" }

// SQLStore keeps state rows in one table, partitioned by profile so
// several logins can share a database file.
type SQLStore struct {
	db      *gorm.DB
	profile string
}

// OpenDB opens a gorm connection for driver "sqlite" or "mysql". For
// sqlite file paths the parent directory is created and the pool is
// limited to one connection.
func OpenDB(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(driver) {
	case "", "sqlite":
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
				return nil, err
			}
		}
		db, err := gorm.Open(gormsqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		// shared-cache sqlite reports "table is locked" instead of waiting
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func NewSQLStore(db *gorm.DB, profile string) (*SQLStore, error) {
	if profile == "" {
		profile = "default"
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrate client_state: %w", err)
	}
	return &SQLStore{db: db, profile: profile}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var e entry
	err := s.db.WithContext(ctx).
		Where("profile = ? AND `key` = ?", s.profile, key).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry{Profile: s.profile, Key: key, Value: value}).Error
}

func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("profile = ? AND `key` IN ?", s.profile, keys).
		Delete(&entry{}).Error
}
