package currency

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"holdem-engine/engine"
	"holdem-engine/models"
)

var _ engine.Wallet = (*Service)(nil)

// txTypeFor maps the table manager's reference prefix to a transaction type.
func txTypeFor(reference string, debit bool) TransactionType {
	kind, _, _ := strings.Cut(reference, ":")
	switch kind {
	case "buy-in":
		return TxTypeCashGameBuyIn
	case "top-up":
		return TxTypeCashGameTopUp
	case "refund":
		return TxTypeCashGameRefund
	case "cash-out":
		return TxTypeCashGameCashOut
	}
	if debit {
		return TxTypeCashGameBuyIn
	}
	return TxTypeAdminAdjustment
}

// Debit moves chips from the player's balance onto a table.
func (s *Service) Debit(ctx context.Context, playerID string, amount int, reference string) error {
	return s.DeductChips(ctx, playerID, amount, txTypeFor(reference, true), reference, "")
}

// Credit returns chips from a table to the player's balance.
func (s *Service) Credit(ctx context.Context, playerID string, amount int, reference string) error {
	return s.AddChips(ctx, playerID, amount, txTypeFor(reference, false), reference, "")
}

// Settle records the per-seat result of a hand. Replays of the same hand are
// ignored. Deltas that do not sum to zero are refused.
func (s *Service) Settle(ctx context.Context, settled models.HandSettled) error {
	sum := 0
	rows := make([]HandSettlement, 0, len(settled.Deltas))
	for _, d := range settled.Deltas {
		sum += d.Delta
		rows = append(rows, HandSettlement{
			HandID:        settled.HandID,
			Seat:          d.Seat,
			TableID:       settled.TableID,
			UserID:        d.PlayerID,
			HandNumber:    settled.HandNumber,
			StartingStack: d.StartingStack,
			EndingStack:   d.EndingStack,
			Delta:         d.Delta,
			SettledAt:     settled.SettledAt,
		})
	}
	if sum != 0 {
		s.log.Error().Str("table_id", settled.TableID).Str("hand_id", settled.HandID).Int("sum", sum).
			Msg("hand deltas do not balance")
		return fmt.Errorf("hand %s deltas sum to %d: %w", settled.HandID, sum, ErrBalanceMismatch)
	}
	if len(rows) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to record settlement: %w", err)
		}
		return nil
	})
}

// Settlements returns the recorded per-seat results of a hand.
func (s *Service) Settlements(ctx context.Context, handID string) ([]HandSettlement, error) {
	var rows []HandSettlement
	if err := s.db.WithContext(ctx).Where("hand_id = ?", handID).Order("seat ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get settlements: %w", err)
	}
	return rows, nil
}
