package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"focusline/internal/calendar"
	"focusline/internal/clock"
	"focusline/internal/config"
	"focusline/internal/db"
	"focusline/internal/docstore"
	"focusline/internal/domain"
	"focusline/internal/events"
	"focusline/internal/migrate"
	"focusline/internal/timer"
)

// Overrides are flag and environment values applied over focusline.yml.
// Empty fields keep the file value.
type Overrides struct {
	UserID     string
	Backend    string
	StoreURL   string
	StoreToken string
}

// ResolveConfig loads the workspace config, or the defaults when none
// exists, applies overrides and validates the result.
func ResolveConfig(workspace string, o Overrides) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(o.UserID); v != "" {
		cfg.User.ID = v
	}
	if v := strings.TrimSpace(o.Backend); v != "" {
		cfg.Store.Backend = v
	}
	if v := strings.TrimSpace(o.StoreURL); v != "" {
		cfg.Store.URL = v
	}
	if v := strings.TrimSpace(o.StoreToken); v != "" {
		cfg.Store.Token = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Session is an opened document backend plus the config it came from.
type Session struct {
	Config *config.Config
	Docs   docstore.Store
	// Journal and DB are nil for the http backend.
	Journal *events.Journal
	DB      *sql.DB
	Logger  *slog.Logger
}

// Open connects the configured backend. The sqlite backend lives in the
// workspace and is migrated on open.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Session{Config: cfg, Logger: logger}
	switch cfg.Store.Backend {
	case config.BackendHTTP:
		s.Docs = docstore.NewHTTPStore(cfg.Store.URL, cfg.Store.Token)
		logger.Debug("using document server", "url", cfg.Store.URL)
	case config.BackendSQLite:
		conn, err := db.Open(db.Config{Workspace: workspace})
		if err != nil {
			return nil, err
		}
		applied, err := migrate.Migrate(ctx, conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if applied > 0 {
			logger.Info("applied migrations", "count", applied, "db", db.Path(workspace))
		}
		store := docstore.NewSQLiteStore(conn)
		s.DB = conn
		s.Docs = store
		s.Journal = &store.Journal
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return s, nil
}

func (s *Session) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// NewCalendar builds a calendar store over the session backend.
func (s *Session) NewCalendar(clk clock.Clock, onPersistError func(domain.Day, error)) *calendar.Store {
	return calendar.New(calendar.Options{
		Docs:   s.Docs,
		UserID: s.Config.User.ID,
		Clock:  clk,
		Logger: s.Logger,
		Goals: calendar.Goals{
			DoneTasks: s.Config.Goals.DoneTasks,
			Minutes:   s.Config.Goals.Minutes,
		},
		OnPersistError: onPersistError,
	})
}

// NewTimer builds an interval timer that reports to reporter.
func (s *Session) NewTimer(clk clock.Clock, reporter timer.Reporter) *timer.Timer {
	return timer.New(TimerConfig(s.Config), timer.Options{
		Clock:    clk,
		Reporter: reporter,
		Logger:   s.Logger,
	})
}

func TimerConfig(cfg *config.Config) timer.Config {
	return timer.Config{
		Work:         cfg.WorkDuration(),
		Break:        cfg.BreakDuration(),
		SettleDelay:  cfg.SettleDelay(),
		TickInterval: cfg.TickInterval(),
	}
}
