package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/models"
)

// Session is the identity bound to one line-protocol connection.
type Session struct {
	Identity auth.Identity
}

func (s *Session) authenticated() bool {
	return s != nil && s.Identity.UserID != ""
}

type CommandHandler struct {
	tableManager *engine.TableManager
	auth         *auth.Service
}

func NewCommandHandler(tableManager *engine.TableManager, authService *auth.Service) *CommandHandler {
	return &CommandHandler{tableManager: tableManager, auth: authService}
}

type authData struct {
	Token string `json:"token"`
}

type tableData struct {
	TableID          string `json:"tableId"`
	Seat             *int   `json:"seat,omitempty"`
	BuyIn            int    `json:"buyIn,omitempty"`
	Amount           int    `json:"amount,omitempty"`
	LastKnownVersion uint64 `json:"lastKnownVersion,omitempty"`
}

type actionData struct {
	TableID string            `json:"tableId"`
	Type    models.ActionType `json:"type"`
	Amount  int               `json:"amount,omitempty"`
}

type timeBankData struct {
	TableID string `json:"tableId"`
	Seconds int    `json:"seconds"`
}

// Handle runs one command for the session and builds the reply. Every
// command except auth and table.list needs an authenticated session.
func (h *CommandHandler) Handle(ctx context.Context, sess *Session, cmd models.Command) models.Response {
	resp := h.dispatch(ctx, sess, cmd)
	resp.RequestID = cmd.RequestID
	return resp
}

func (h *CommandHandler) dispatch(ctx context.Context, sess *Session, cmd models.Command) models.Response {
	switch cmd.Command {
	case "auth":
		return h.handleAuth(sess, cmd.Data)
	case "table.list":
		return ok(map[string]interface{}{"tables": h.tableManager.ListTables(ctx)})
	}

	if !sess.authenticated() {
		return models.Response{Error: "authenticate first"}
	}

	switch cmd.Command {
	case "table.get":
		return h.handleGetTable(ctx, sess, cmd.Data)
	case "table.recover":
		return h.handleRecover(ctx, sess, cmd.Data)
	case "player.join":
		return h.handlePlayerJoin(ctx, sess, cmd.Data)
	case "player.leave":
		return h.handlePlayerLeave(ctx, sess, cmd.Data)
	case "player.sitOut":
		return h.withTable(ctx, cmd.Data, func(t *engine.Table, _ tableData) (interface{}, error) {
			return nil, t.SitOut(ctx, sess.Identity.UserID)
		})
	case "player.sitIn":
		return h.withTable(ctx, cmd.Data, func(t *engine.Table, _ tableData) (interface{}, error) {
			return nil, t.SitIn(ctx, sess.Identity.UserID)
		})
	case "player.addChips":
		return h.withTable(ctx, cmd.Data, func(t *engine.Table, d tableData) (interface{}, error) {
			return nil, h.tableManager.AddChips(ctx, t.ID(), sess.Identity.UserID, d.Amount)
		})
	case "game.start":
		return h.handleGameStart(ctx, sess, cmd.Data)
	case "game.action":
		return h.handleGameAction(ctx, sess, cmd)
	case "game.timeBank":
		return h.handleTimeBank(ctx, sess, cmd.Data)
	default:
		return models.Response{Error: fmt.Sprintf("unknown command: %s", cmd.Command)}
	}
}

func ok(data interface{}) models.Response {
	return models.Response{Success: true, Data: data}
}

func failed(err error) models.Response {
	resp := models.Response{Error: err.Error()}
	if reason, found := engine.ReasonOf(err); found {
		resp.Reason = reason
	}
	return resp
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}

func (h *CommandHandler) handleAuth(sess *Session, raw json.RawMessage) models.Response {
	var d authData
	if err := decode(raw, &d); err != nil {
		return failed(err)
	}
	id, err := h.auth.ValidateToken(d.Token)
	if err != nil {
		return failed(err)
	}
	sess.Identity = id
	return ok(map[string]string{"userId": id.UserID, "username": id.Username})
}

func (h *CommandHandler) withTable(ctx context.Context, raw json.RawMessage, fn func(*engine.Table, tableData) (interface{}, error)) models.Response {
	var d tableData
	if err := decode(raw, &d); err != nil {
		return failed(err)
	}
	table, err := h.tableManager.GetTable(d.TableID)
	if err != nil {
		return failed(err)
	}
	data, err := fn(table, d)
	if err != nil {
		return failed(err)
	}
	return ok(data)
}

func (h *CommandHandler) handleGetTable(ctx context.Context, sess *Session, raw json.RawMessage) models.Response {
	return h.withTable(ctx, raw, func(t *engine.Table, _ tableData) (interface{}, error) {
		return t.SnapshotFor(ctx, sess.Identity.UserID)
	})
}

// handleRecover is how bots catch up: an unchanged version answers with
// upToDate only, anything else with the full state as the bot may see it.
func (h *CommandHandler) handleRecover(ctx context.Context, sess *Session, raw json.RawMessage) models.Response {
	return h.withTable(ctx, raw, func(t *engine.Table, d tableData) (interface{}, error) {
		snap, err := t.RecoverFor(ctx, sess.Identity.UserID, d.LastKnownVersion)
		if err != nil {
			return nil, err
		}
		if snap.UpToDate {
			return models.RecoverySnapshot{StateVersion: snap.StateVersion, UpToDate: true}, nil
		}
		return snap, nil
	})
}

func (h *CommandHandler) handlePlayerJoin(ctx context.Context, sess *Session, raw json.RawMessage) models.Response {
	return h.withTable(ctx, raw, func(t *engine.Table, d tableData) (interface{}, error) {
		seat := -1
		if d.Seat != nil {
			seat = *d.Seat
		}
		seat, err := h.tableManager.JoinTable(ctx, t.ID(), sess.Identity.UserID, sess.Identity.Username, seat, d.BuyIn)
		if err != nil {
			return nil, err
		}
		return map[string]int{"seat": seat}, nil
	})
}

func (h *CommandHandler) handlePlayerLeave(ctx context.Context, sess *Session, raw json.RawMessage) models.Response {
	return h.withTable(ctx, raw, func(t *engine.Table, _ tableData) (interface{}, error) {
		return t.Leave(ctx, sess.Identity.UserID)
	})
}

func (h *CommandHandler) handleGameStart(ctx context.Context, sess *Session, raw json.RawMessage) models.Response {
	return h.withTable(ctx, raw, func(t *engine.Table, _ tableData) (interface{}, error) {
		return nil, t.StartHandBy(ctx, sess.Identity.UserID)
	})
}

// handleGameAction goes through the same processor as every other client;
// the command's requestId is the idempotency key.
func (h *CommandHandler) handleGameAction(ctx context.Context, sess *Session, cmd models.Command) models.Response {
	var d actionData
	if err := decode(cmd.Data, &d); err != nil {
		return failed(err)
	}
	if cmd.RequestID == "" {
		return models.Response{Error: "requestId is required for actions"}
	}
	res, err := h.tableManager.Submit(ctx, d.TableID, sess.Identity.UserID, models.Action{Type: d.Type, Amount: d.Amount}, cmd.RequestID)
	if err != nil {
		return failed(err)
	}
	return models.Response{Success: res.Accepted, Reason: res.Reason, Data: res}
}

func (h *CommandHandler) handleTimeBank(ctx context.Context, sess *Session, raw json.RawMessage) models.Response {
	var d timeBankData
	if err := decode(raw, &d); err != nil {
		return failed(err)
	}
	table, err := h.tableManager.GetTable(d.TableID)
	if err != nil {
		return failed(err)
	}
	granted, err := table.UseTimeBank(ctx, sess.Identity.UserID, time.Duration(d.Seconds)*time.Second)
	if err != nil {
		return failed(err)
	}
	return ok(map[string]int64{"grantedMs": granted.Milliseconds()})
}
