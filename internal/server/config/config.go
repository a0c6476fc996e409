package config

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/internal/currency"
	"holdem-engine/internal/db"
	"holdem-engine/internal/idempotency"
	"holdem-engine/internal/locks"
	"holdem-engine/internal/logger"
	"holdem-engine/internal/recovery"
	"holdem-engine/internal/redis"
	"holdem-engine/internal/server/history"
)

// Options selects the backing services. A nil Redis keeps idempotency and
// locking in process.
type Options struct {
	Database  db.Config
	Redis     *redis.Config
	JWTSecret string
	LedgerTTL time.Duration
	Clock     quartz.Clock
}

// AppConfig holds all the service dependencies
type AppConfig struct {
	Database        *db.DB
	AuthService     *auth.Service
	CurrencyService *currency.Service
	HandRecorder    *history.Recorder
	Redis           *redis.Client
	Locks           *locks.LockManager
	Ledger          engine.IdempotencyLedger
	Clock           quartz.Clock

	log    zerolog.Logger
	closer []func() error
}

// InitializeServices creates and initializes all services
func InitializeServices(opts Options) (*AppConfig, error) {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.LedgerTTL <= 0 {
		opts.LedgerTTL = engine.DefaultLedgerTTL
	}

	database, err := db.New(opts.Database, currency.Records()...)
	if err != nil {
		return nil, err
	}

	app := &AppConfig{
		Database:        database,
		AuthService:     auth.NewService(opts.JWTSecret),
		CurrencyService: currency.NewService(database.DB),
		HandRecorder:    history.NewRecorder(database),
		Clock:           opts.Clock,
		log:             logger.With("config"),
	}
	app.closer = append(app.closer, func() error {
		sqlDB, err := database.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if opts.Redis != nil {
		client, err := redis.New(*opts.Redis)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Redis = client
		app.Locks = locks.NewLockManager(client.Client)
		app.Ledger = idempotency.NewRedisLedger(client.Client, opts.LedgerTTL)
		app.closer = append(app.closer, client.Close)
	} else {
		ledger := engine.NewMemoryLedger(opts.Clock, opts.LedgerTTL)
		app.Ledger = ledger
		app.closer = append(app.closer, func() error { ledger.Stop(); return nil })
	}

	app.log.Info().
		Str("db_driver", opts.Database.Driver).
		Bool("redis", app.Redis != nil).
		Msg("services initialized")
	return app, nil
}

// ManagerOptions wires the wallet, hand recorder and idempotency ledger
// into a table manager configuration.
func (a *AppConfig) ManagerOptions(publisher engine.Publisher, onDestroy func(tableID string)) engine.ManagerOptions {
	return engine.ManagerOptions{
		Clock:     a.Clock,
		Logger:    logger.With("engine"),
		Ledger:    a.Ledger,
		Publisher: publisher,
		Wallet:    a.CurrencyService,
		Sink:      a.HandRecorder,
		OnDestroy: onDestroy,
	}
}

// Recovery returns the checkpointer for a manager built from ManagerOptions.
func (a *AppConfig) Recovery(manager *engine.TableManager) *recovery.TableRecovery {
	return recovery.NewTableRecovery(a.Database.DB, manager, a.Locks, a.Clock)
}

// RecoverTablesOnStartup clears stale locks and restores the tables that
// were open at the last checkpoint.
func (a *AppConfig) RecoverTablesOnStartup(ctx context.Context, tr *recovery.TableRecovery) (int, error) {
	if a.Locks != nil {
		if cleaned, err := a.Locks.CleanupOrphanedLocks(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to clean up orphaned locks")
		} else if cleaned > 0 {
			a.log.Info().Int("cleaned", cleaned).Msg("orphaned locks removed")
		}
	}
	return tr.RecoverActiveTables(ctx)
}

// Close releases connections in reverse order of creation.
func (a *AppConfig) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		errs = append(errs, a.closer[i]())
	}
	a.closer = nil
	return errors.Join(errs...)
}
