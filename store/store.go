// Package store persists plant records, chat logs, entitlement state, users
// and identification jobs through GORM.
package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/adityadaniel/flora-friend/app/config"
	"github.com/adityadaniel/flora-friend/app/models"
)

var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *gorm.DB
}

// New wraps an already opened connection.
func New(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) DB() *gorm.DB { return s.db }

// Open connects using cfg.Driver and migrates the schema.
func Open(cfg config.DBConfig) (*Store, error) {
	switch cfg.Driver {
	case "", "postgres":
		return OpenPostgres(cfg)
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("open: unknown driver %q", cfg.Driver)
	}
}

// PostgresDSN builds a lib/pq connection URL.
func PostgresDSN(cfg config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   cfg.URL + ":" + cfg.Port,
		Path:   "/" + cfg.Name,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(cfg.SSLMode)
	}
	return u.String()
}

func OpenPostgres(cfg config.DBConfig) (*Store, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DriverName: "postgres",
		DSN:        PostgresDSN(cfg),
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn), TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open: postgres: %w", err)
	}
	return finishOpen(db)
}

// OpenSQLite opens (or creates) a SQLite database at path with foreign keys on.
func OpenSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open: create db dir: %w", err)
	}

	// Immediate transactions take the write lock up front and wait on
	// busy_timeout instead of failing on lock upgrade.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open: sqlite: %w", err)
	}
	return finishOpen(db)
}

func finishOpen(db *gorm.DB) (*Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open: ping: %w", err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open: migrate: %w", err)
	}
	return s, nil
}

// Migrate creates or updates every table. It is safe to run repeatedly.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&models.User{},
		&models.KeyValue{},
		&models.PlantRecord{},
		&models.ChatMessage{},
		&models.IdentificationJob{},
	)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
