package currency

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"holdem-engine/internal/logger"
	"holdem-engine/internal/models"
)

// Service handles all currency operations
type Service struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewService creates a new currency service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, log: logger.With("currency")}
}

// GetBalance retrieves the current chip balance for a user
func (s *Service) GetBalance(ctx context.Context, userID string) (int, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("chips").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Chips, nil
}

// EnsureUser creates the account with the default starting balance if it
// does not exist yet.
func (s *Service) EnsureUser(ctx context.Context, userID, username string) error {
	user := models.User{ID: userID, Username: username, Chips: DefaultStartingChips}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// ValidateAmount checks if a transaction amount is valid
func (s *Service) ValidateAmount(amount int) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount < MinimumTransaction {
		return ErrInvalidAmount
	}
	if amount > MaximumTransaction {
		return ErrExceedsMaximum
	}
	return nil
}

// applyInTx changes a user's balance by delta under a row lock and writes the
// audit record. It must run inside a transaction.
func (s *Service) applyInTx(tx *gorm.DB, userID string, delta int, txType TransactionType, refID string, description string) error {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to lock user record: %w", err)
	}

	balanceBefore := user.Chips
	balanceAfter := balanceBefore + delta
	if balanceAfter < MinimumBalance {
		return ErrInsufficientChips
	}

	if err := tx.Model(&user).Update("chips", balanceAfter).Error; err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	transaction := Transaction{
		ID:              uuid.New().String(),
		UserID:          userID,
		Amount:          delta,
		BalanceBefore:   balanceBefore,
		BalanceAfter:    balanceAfter,
		TransactionType: txType,
		Description:     description,
	}
	if refID != "" {
		transaction.ReferenceID = &refID
	}
	if err := tx.Create(&transaction).Error; err != nil {
		return fmt.Errorf("failed to create transaction record: %w", err)
	}
	return nil
}

// DeductChips removes chips from a user's balance with validation and audit trail
func (s *Service) DeductChips(ctx context.Context, userID string, amount int, txType TransactionType, refID string, description string) error {
	if err := s.ValidateAmount(amount); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.applyInTx(tx, userID, -amount, txType, refID, description)
	})
}

// AddChips adds chips to a user's balance with audit trail
func (s *Service) AddChips(ctx context.Context, userID string, amount int, txType TransactionType, refID string, description string) error {
	if err := s.ValidateAmount(amount); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.applyInTx(tx, userID, amount, txType, refID, description)
	})
}

// GetTransactionHistory retrieves transaction history for a user
func (s *Service) GetTransactionHistory(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	var transactions []Transaction
	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&transactions).Error; err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}

	return transactions, nil
}
