package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a player account holding the off-table chip balance.
type User struct {
	ID        string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Username  string    `gorm:"column:username;type:varchar(50);uniqueIndex;not null" json:"username"`
	Chips     int       `gorm:"column:chips;default:10000" json:"chips"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}

// Table is the persisted checkpoint of a running table.
type Table struct {
	ID           string         `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Name         string         `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Status       string         `gorm:"column:status;type:varchar(20);default:waiting;index" json:"status"`
	Config       string         `gorm:"column:config;type:text" json:"config"`
	SmallBlind   int            `gorm:"column:small_blind;not null" json:"small_blind"`
	BigBlind     int            `gorm:"column:big_blind;not null" json:"big_blind"`
	MaxPlayers   int            `gorm:"column:max_players;not null" json:"max_players"`
	Button       int            `gorm:"column:button;not null" json:"button"`
	HandNumber   int            `gorm:"column:hand_number;default:0" json:"hand_number"`
	StateVersion uint64         `gorm:"column:state_version;default:0" json:"state_version"`
	FreezeReason string         `gorm:"column:freeze_reason;type:varchar(255)" json:"freeze_reason,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	ClosedAt     *time.Time     `gorm:"column:closed_at" json:"closed_at,omitempty"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

// TableName specifies the table name for Table model
func (Table) TableName() string {
	return "tables"
}

// TableSeat is a player's seat and stack at the last checkpoint.
type TableSeat struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TableID    string    `gorm:"column:table_id;type:varchar(36);not null;uniqueIndex:idx_table_seat" json:"table_id"`
	SeatNumber int       `gorm:"column:seat_number;not null;uniqueIndex:idx_table_seat" json:"seat_number"`
	UserID     string    `gorm:"column:user_id;type:varchar(36);not null;index" json:"user_id"`
	PlayerName string    `gorm:"column:player_name;type:varchar(50)" json:"player_name"`
	Chips      int       `gorm:"column:chips;not null" json:"chips"`
	Status     string    `gorm:"column:status;type:varchar(20);default:active" json:"status"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for TableSeat model
func (TableSeat) TableName() string {
	return "table_seats"
}

// Hand is one settled hand.
type Hand struct {
	ID             string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	TableID        string    `gorm:"column:table_id;type:varchar(36);not null;index:idx_table_hand" json:"table_id"`
	HandNumber     int       `gorm:"column:hand_number;not null;index:idx_table_hand" json:"hand_number"`
	DealerPosition int       `gorm:"column:dealer_position;not null" json:"dealer_position"`
	CommunityCards string    `gorm:"column:community_cards;type:text" json:"community_cards"`
	Pots           string    `gorm:"column:pots;type:text" json:"pots"`
	PotAmount      int       `gorm:"column:pot_amount;not null" json:"pot_amount"`
	NumPlayers     int       `gorm:"column:num_players;not null" json:"num_players"`
	Winners        string    `gorm:"column:winners;type:text" json:"winners"`
	Payouts        string    `gorm:"column:payouts;type:text" json:"payouts"`
	StartedAt      time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt    time.Time `gorm:"column:completed_at" json:"completed_at"`
}

// TableName specifies the table name for Hand model
func (Hand) TableName() string {
	return "hands"
}

// GameEvent is one entry of a hand's event log.
type GameEvent struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	HandID         string    `gorm:"column:hand_id;type:varchar(36);not null;index:idx_hand_seq" json:"hand_id"`
	TableID        string    `gorm:"column:table_id;type:varchar(36);not null" json:"table_id"`
	EventType      string    `gorm:"column:event_type;type:varchar(40);not null" json:"event_type"`
	Seat           *int      `gorm:"column:seat" json:"seat,omitempty"`
	UserID         *string   `gorm:"column:user_id;type:varchar(36)" json:"user_id,omitempty"`
	BettingRound   *string   `gorm:"column:betting_round;type:varchar(20)" json:"betting_round,omitempty"`
	ActionType     *string   `gorm:"column:action_type;type:varchar(20)" json:"action_type,omitempty"`
	Amount         int       `gorm:"column:amount;default:0" json:"amount"`
	System         bool      `gorm:"column:system;default:false" json:"system"`
	Metadata       string    `gorm:"column:metadata;type:text" json:"metadata"`
	SequenceNumber int       `gorm:"column:sequence_number;not null;index:idx_hand_seq" json:"sequence_number"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for GameEvent model
func (GameEvent) TableName() string {
	return "game_events"
}

// All lists every record type for auto-migration.
func All() []interface{} {
	return []interface{}{&User{}, &Table{}, &TableSeat{}, &Hand{}, &GameEvent{}}
}
