package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"holdem-engine/engine"
	"holdem-engine/internal/locks"
	"holdem-engine/internal/logger"
	backendModels "holdem-engine/internal/models"
	pokerModels "holdem-engine/models"
)

const lockKey = "table-recovery"

// TableRecovery checkpoints running tables to the database and restores them
// after a restart. A hand interrupted by the restart is void: every seat is
// restored with its stack from before that hand's contributions.
type TableRecovery struct {
	db      *gorm.DB
	manager *engine.TableManager
	locks   *locks.LockManager
	clock   quartz.Clock
	log     zerolog.Logger
}

// NewTableRecovery creates a recovery instance. lockManager may be nil when
// only one server instance runs.
func NewTableRecovery(db *gorm.DB, manager *engine.TableManager, lockManager *locks.LockManager, clock quartz.Clock) *TableRecovery {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &TableRecovery{
		db:      db,
		manager: manager,
		locks:   lockManager,
		clock:   clock,
		log:     logger.With("recovery"),
	}
}

// Start checkpoints every table each interval until ctx is done.
func (tr *TableRecovery) Start(ctx context.Context, interval time.Duration) {
	tr.clock.TickerFunc(ctx, interval, func() error {
		if _, err := tr.CheckpointAll(ctx); err != nil {
			tr.log.Warn().Err(err).Msg("checkpoint failed")
		}
		return nil
	}, "recovery", "checkpoint")
}

// CheckpointAll writes every running table and returns how many were saved.
func (tr *TableRecovery) CheckpointAll(ctx context.Context) (int, error) {
	saved := 0
	var errs []error
	for _, summary := range tr.manager.ListTables(ctx) {
		if err := tr.Checkpoint(ctx, summary.TableID); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Checkpoint writes one table and its seats.
func (tr *TableRecovery) Checkpoint(ctx context.Context, tableID string) error {
	table, err := tr.manager.GetTable(tableID)
	if err != nil {
		return err
	}
	view, err := table.Snapshot(ctx, -1)
	if err != nil {
		return fmt.Errorf("snapshot table %s: %w", tableID, err)
	}

	cfg, err := json.Marshal(view.Config)
	if err != nil {
		return fmt.Errorf("encode table config: %w", err)
	}
	record := backendModels.Table{
		ID:           view.TableID,
		Name:         view.Name,
		Status:       string(view.Status),
		Config:       string(cfg),
		SmallBlind:   view.Config.SmallBlind,
		BigBlind:     view.Config.BigBlind,
		MaxPlayers:   view.Config.MaxSeats,
		Button:       view.Button,
		HandNumber:   view.HandNumber,
		StateVersion: view.StateVersion,
		FreezeReason: view.FreezeReason,
	}

	handRunning := view.Phase.Betting() || view.Phase == pokerModels.PhaseShowdown
	var seats []backendModels.TableSeat
	for _, s := range view.Seats {
		if s.PlayerID == "" {
			continue
		}
		chips := s.Stack
		if handRunning {
			chips += s.HandContribution
		}
		seats = append(seats, backendModels.TableSeat{
			TableID:    view.TableID,
			SeatNumber: s.Index,
			UserID:     s.PlayerID,
			PlayerName: s.PlayerName,
			Chips:      chips,
			Status:     string(s.Status),
		})
	}

	return tr.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "status", "config", "small_blind", "big_blind", "max_players", "button", "hand_number", "state_version", "freeze_reason", "updated_at"}),
		}).Create(&record).Error
		if err != nil {
			return fmt.Errorf("save table %s: %w", tableID, err)
		}
		if err := tx.Where("table_id = ?", tableID).Delete(&backendModels.TableSeat{}).Error; err != nil {
			return fmt.Errorf("clear seats of %s: %w", tableID, err)
		}
		if len(seats) > 0 {
			if err := tx.Create(&seats).Error; err != nil {
				return fmt.Errorf("save seats of %s: %w", tableID, err)
			}
		}
		return nil
	})
}

// Forget marks a destroyed table closed so it is not restored.
func (tr *TableRecovery) Forget(ctx context.Context, tableID string) error {
	now := tr.clock.Now()
	return tr.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("table_id = ?", tableID).Delete(&backendModels.TableSeat{}).Error; err != nil {
			return err
		}
		return tx.Model(&backendModels.Table{}).Where("id = ?", tableID).Update("closed_at", &now).Error
	})
}

// RecoverActiveTables recreates every table that was open at the last
// checkpoint and seats its players. A recreated table resumes past the
// checkpointed state version, hand number and button. Only one instance
// restores at a time.
func (tr *TableRecovery) RecoverActiveTables(ctx context.Context) (int, error) {
	if tr.locks != nil {
		lock, err := tr.locks.AcquireLock(ctx, lockKey, time.Minute)
		if err != nil {
			return 0, fmt.Errorf("acquire recovery lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				tr.log.Warn().Err(err).Msg("failed to release recovery lock")
			}
		}()
	}

	var records []backendModels.Table
	if err := tr.db.WithContext(ctx).Where("closed_at IS NULL").Order("created_at ASC").Find(&records).Error; err != nil {
		return 0, fmt.Errorf("failed to query active tables: %w", err)
	}
	if len(records) == 0 {
		tr.log.Info().Msg("no tables to recover")
		return 0, nil
	}

	recovered := 0
	for _, record := range records {
		log := tr.log.With().Str("table_id", record.ID).Logger()
		if _, err := tr.manager.GetTable(record.ID); err == nil {
			log.Debug().Msg("table already running")
			continue
		}

		var cfg pokerModels.TableConfig
		if err := json.Unmarshal([]byte(record.Config), &cfg); err != nil {
			log.Error().Err(err).Msg("unreadable table config, skipping")
			continue
		}
		table, err := tr.manager.CreateTableWithID(record.ID, record.Name, cfg)
		if err != nil {
			log.Error().Err(err).Msg("failed to recreate table")
			continue
		}

		if err := table.RestoreProgress(ctx, record.StateVersion, record.HandNumber, record.Button); err != nil {
			log.Error().Err(err).Msg("failed to restore table progress")
			continue
		}

		var seats []backendModels.TableSeat
		if err := tr.db.WithContext(ctx).Where("table_id = ?", record.ID).Order("seat_number ASC").Find(&seats).Error; err != nil {
			log.Error().Err(err).Msg("failed to load seats")
			continue
		}
		seated := 0
		for _, seat := range seats {
			if seat.Chips <= 0 {
				continue
			}
			if err := table.RestoreSeat(ctx, seat.UserID, seat.PlayerName, seat.SeatNumber, seat.Chips); err != nil {
				log.Error().Err(err).Str("player_id", seat.UserID).Int("seat", seat.SeatNumber).Msg("failed to restore seat")
				continue
			}
			seated++
		}

		recovered++
		log.Info().Int("seats", seated).Msg("table recovered")
	}

	tr.log.Info().Int("recovered", recovered).Int("checkpointed", len(records)).Msg("table recovery complete")
	return recovered, nil
}
