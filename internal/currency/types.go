package currency

import (
	"errors"
	"time"
)

// Constants for currency system
const (
	MinimumBalance       = 0
	DefaultStartingChips = 10000
	MinimumTransaction   = 1
	MaximumTransaction   = 1000000000
)

// TransactionType represents the type of chip transaction
type TransactionType string

const (
	TxTypeCashGameBuyIn   TransactionType = "cash_game_buy_in"
	TxTypeCashGameTopUp   TransactionType = "cash_game_top_up"
	TxTypeCashGameCashOut TransactionType = "cash_game_cash_out"
	TxTypeCashGameRefund  TransactionType = "cash_game_refund"
	TxTypeAdminAdjustment TransactionType = "admin_adjustment"
)

// Transaction represents a chip transaction record
type Transaction struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Amount          int             `gorm:"not null" json:"amount"`
	BalanceBefore   int             `gorm:"not null" json:"balance_before"`
	BalanceAfter    int             `gorm:"not null" json:"balance_after"`
	TransactionType TransactionType `gorm:"type:varchar(50);not null;index" json:"transaction_type"`
	ReferenceID     *string         `gorm:"type:varchar(80);index" json:"reference_id,omitempty"`
	Description     string          `gorm:"type:text" json:"description,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (Transaction) TableName() string {
	return "chip_transactions"
}

// HandSettlement is the net result of one seat over one hand. Table stacks
// are not wallet money, so settlements are an audit trail only.
type HandSettlement struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	HandID        string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_hand_seat" json:"hand_id"`
	Seat          int       `gorm:"not null;uniqueIndex:idx_hand_seat" json:"seat"`
	TableID       string    `gorm:"type:varchar(36);not null;index" json:"table_id"`
	UserID        string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	HandNumber    int       `gorm:"not null" json:"hand_number"`
	StartingStack int       `gorm:"not null" json:"starting_stack"`
	EndingStack   int       `gorm:"not null" json:"ending_stack"`
	Delta         int       `gorm:"not null" json:"delta"`
	SettledAt     time.Time `json:"settled_at"`
}

func (HandSettlement) TableName() string {
	return "hand_settlements"
}

// Records lists the record types this package owns, for migration.
func Records() []interface{} {
	return []interface{}{&Transaction{}, &HandSettlement{}}
}

// Errors
var (
	ErrInsufficientChips = errors.New("insufficient chips")
	ErrInvalidAmount     = errors.New("invalid transaction amount")
	ErrNegativeAmount    = errors.New("amount cannot be negative")
	ErrExceedsMaximum    = errors.New("amount exceeds maximum transaction limit")
	ErrUserNotFound      = errors.New("user not found")
	ErrBalanceMismatch   = errors.New("balance mismatch detected")
)
