package websocket

import (
	"encoding/json"
	"time"

	"holdem-engine/models"
)

// Inbound message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeRecover     = "recover"
	TypeAction      = "action"
	TypeTimeBank    = "time_bank"
	TypeChat        = "chat"
	TypePing        = "ping"
)

// Outbound message types.
const (
	TypeRecovery     = "recovery"
	TypeUpToDate     = "up_to_date"
	TypeDelta        = "delta"
	TypeActionResult = "action_result"
	TypeTimeBankUsed = "time_bank_granted"
	TypeUnsubscribed = "unsubscribed"
	TypeTableClosed  = "table_closed"
	TypeError        = "error"
	TypePong         = "pong"
)

// Role decides whether a subscription receives its seat's private payload.
type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Envelope is an inbound frame. RequestID doubles as the idempotency key of
// actions.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WSMessage is an outbound frame.
type WSMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

type SubscribePayload struct {
	TableID     string `json:"table_id"`
	Role        Role   `json:"role"`
	LastVersion uint64 `json:"last_version"`
}

type TablePayload struct {
	TableID string `json:"table_id"`
}

type ActionPayload struct {
	TableID string            `json:"table_id"`
	Type    models.ActionType `json:"type"`
	Amount  int               `json:"amount,omitempty"`
}

type TimeBankPayload struct {
	TableID string `json:"table_id"`
	Seconds int    `json:"seconds,omitempty"`
}

type TimeBankGranted struct {
	TableID   string `json:"table_id"`
	GrantedMS int64  `json:"granted_ms"`
}

type ChatPayload struct {
	TableID string `json:"table_id"`
	Text    string `json:"text"`
}

// ChatMessage is fanned out to every subscriber of a table. It carries no
// state version.
type ChatMessage struct {
	TableID  string    `json:"table_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

type ErrorPayload struct {
	TableID string        `json:"table_id,omitempty"`
	Reason  models.Reason `json:"reason,omitempty"`
	Message string        `json:"message"`
}

// RecoveryPayload answers subscribe and recover requests.
type RecoveryPayload struct {
	TableID string `json:"table_id"`
	models.RecoverySnapshot
}
