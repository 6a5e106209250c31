// Package bootstrap assembles the stores and the discovery pipeline from
// configuration for the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"affiliatescout/internal/adapter/repo"
	"affiliatescout/internal/adapter/sqlitestore"
	"affiliatescout/internal/domain"
	"affiliatescout/internal/infra"
	"affiliatescout/internal/infra/credentials"
)

// TokenStore reads and writes provider tokens.
type TokenStore interface {
	Token(ctx context.Context, provider string) (string, error)
	SetToken(ctx context.Context, provider, token string, props map[string]any) error
}

// Store groups the repositories of one backing database.
type Store struct {
	Driver     string
	Jobs       domain.JobRepository
	Affiliates domain.AffiliateRepository
	Settings   domain.SettingsRepository
	Credits    domain.CreditLedger
	Schedules  domain.ScheduleRepository
	Tokens     TokenStore

	ping  func(ctx context.Context) error
	close func()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the database handle.
func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

// OpenStore opens the store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Store, error) {
	switch cfg.StoreDriver {
	case infra.DriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		sql := infra.NewSQLRunner(pool, logger)
		sql.SlowQuery = cfg.SlowQuery
		logger.Info().Str("driver", cfg.StoreDriver).Msg("store: connected")
		return &Store{
			Driver:     cfg.StoreDriver,
			Jobs:       repo.NewJobRepository(sql),
			Affiliates: repo.NewAffiliateRepository(sql),
			Settings:   repo.NewSettingsRepository(sql),
			Credits:    repo.NewCreditLedger(sql),
			Schedules:  repo.NewScheduleRepository(sql),
			Tokens:     credentials.NewStore(sql),
			ping:       pool.Ping,
			close:      pool.Close,
		}, nil
	case infra.DriverSQLite:
		db, err := sqlitestore.Open(sqlitestore.DSN(cfg.SQLitePath))
		if err != nil {
			return nil, err
		}
		logger.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.SQLitePath).Msg("store: opened")
		return NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

// NewSQLiteStore wraps an open SQLite database.
func NewSQLiteStore(db *sqlitestore.DB) *Store {
	return &Store{
		Driver:     infra.DriverSQLite,
		Jobs:       db.Jobs(),
		Affiliates: db.Affiliates(),
		Settings:   db.Settings(),
		Credits:    db.Credits(),
		Schedules:  db.Schedules(),
		Tokens:     db.Tokens(),
		ping:       db.Ping,
		close:      func() { _ = db.Close() },
	}
}
