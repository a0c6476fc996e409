package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"holdem-engine/engine"
	"holdem-engine/internal/db"
	"holdem-engine/internal/logger"
	"holdem-engine/internal/models"
	engmodels "holdem-engine/models"
)

// Recorder persists settled hands and their event logs. It runs on the table
// manager's settlement worker, never inside a table serializer.
type Recorder struct {
	db  *db.DB
	log zerolog.Logger
}

var _ engine.HandSink = (*Recorder)(nil)

func NewRecorder(database *db.DB) *Recorder {
	return &Recorder{db: database, log: logger.With("history")}
}

// eventMetadata holds the event fields that have no column of their own.
type eventMetadata struct {
	Cards   []engmodels.Card   `json:"cards,omitempty"`
	Pots    []engmodels.Pot    `json:"pots,omitempty"`
	Payouts []engmodels.Payout `json:"payouts,omitempty"`
}

// RecordHand writes the hand row and one row per event in a single
// transaction. A hand that was already recorded is skipped.
func (r *Recorder) RecordHand(ctx context.Context, settled engmodels.HandSettled) error {
	hand, err := handRecord(settled)
	if err != nil {
		return err
	}

	events := make([]models.GameEvent, 0, len(settled.Events))
	for _, ev := range settled.Events {
		row, err := eventRecord(settled, ev)
		if err != nil {
			return err
		}
		events = append(events, row)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Hand{}).Where("id = ?", hand.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errAlreadyRecorded
		}
		if err := tx.Create(&hand).Error; err != nil {
			return err
		}
		if len(events) > 0 {
			if err := tx.CreateInBatches(&events, 100).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyRecorded) {
		r.log.Debug().Str("hand_id", hand.ID).Msg("hand already recorded")
		return nil
	}
	if err != nil {
		r.log.Error().Err(err).Str("table_id", settled.TableID).Str("hand_id", hand.ID).Msg("failed to record hand")
		return fmt.Errorf("record hand %s: %w", hand.ID, err)
	}

	r.log.Debug().Str("table_id", settled.TableID).Str("hand_id", hand.ID).
		Int("hand_number", settled.HandNumber).Int("events", len(events)).Msg("hand recorded")
	return nil
}

var errAlreadyRecorded = errors.New("hand already recorded")

func handRecord(settled engmodels.HandSettled) (models.Hand, error) {
	community, err := json.Marshal(cardStrings(settled.Community))
	if err != nil {
		return models.Hand{}, err
	}
	pots, err := json.Marshal(settled.Pots)
	if err != nil {
		return models.Hand{}, err
	}
	winners, err := json.Marshal(settled.Winners)
	if err != nil {
		return models.Hand{}, err
	}
	payouts, err := json.Marshal(settled.Payouts)
	if err != nil {
		return models.Hand{}, err
	}

	potAmount := 0
	for _, p := range settled.Pots {
		potAmount += p.Amount
	}

	return models.Hand{
		ID:             settled.HandID,
		TableID:        settled.TableID,
		HandNumber:     settled.HandNumber,
		DealerPosition: settled.Button,
		CommunityCards: string(community),
		Pots:           string(pots),
		PotAmount:      potAmount,
		NumPlayers:     len(settled.Deltas),
		Winners:        string(winners),
		Payouts:        string(payouts),
		StartedAt:      settled.StartedAt,
		CompletedAt:    settled.SettledAt,
	}, nil
}

func eventRecord(settled engmodels.HandSettled, ev engmodels.HandEvent) (models.GameEvent, error) {
	row := models.GameEvent{
		HandID:         settled.HandID,
		TableID:        settled.TableID,
		EventType:      string(ev.Type),
		Amount:         ev.Amount,
		System:         ev.System,
		SequenceNumber: ev.Seq,
		CreatedAt:      ev.At,
		Metadata:       "{}",
	}
	if ev.Seat >= 0 {
		seat := ev.Seat
		row.Seat = &seat
	}
	if ev.PlayerID != "" {
		player := ev.PlayerID
		row.UserID = &player
	}
	if ev.Phase != "" {
		phase := string(ev.Phase)
		row.BettingRound = &phase
	}
	if ev.Action != "" {
		action := string(ev.Action)
		row.ActionType = &action
	}

	meta := eventMetadata{Cards: ev.Cards, Pots: ev.Pots, Payouts: ev.Payouts}
	if len(meta.Cards) > 0 || len(meta.Pots) > 0 || len(meta.Payouts) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return models.GameEvent{}, err
		}
		row.Metadata = string(raw)
	}
	return row, nil
}

func cardStrings(cards []engmodels.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
