package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/internal/logger"
	"holdem-engine/internal/middleware"
	"holdem-engine/internal/validation"
	"holdem-engine/models"
)

const ReasonRateLimited models.Reason = "rate-limited"

// Tables is the part of the table directory the hub drives.
type Tables interface {
	GetTable(tableID string) (*engine.Table, error)
	Submit(ctx context.Context, tableID, playerID string, action models.Action, requestID string) (models.ActionResult, error)
}

type HubOptions struct {
	Auth    *auth.Service
	Limiter *middleware.RateLimiter
	Clock   quartz.Clock
	Logger  *zerolog.Logger

	// SendBuffer is the number of frames queued per connection before it is
	// dropped as a slow consumer.
	SendBuffer     int
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// Hub fans table deltas out to websocket subscribers and turns client frames
// into table commands. It implements engine.Publisher.
type Hub struct {
	opts     HubOptions
	tables   Tables
	clock    quartz.Clock
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	subs    map[string]map[*Client]struct{}
}

var _ engine.Publisher = (*Hub)(nil)

func NewHub(opts HubOptions) *Hub {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	log := logger.With("websocket")
	if opts.Logger != nil {
		log = *opts.Logger
	}

	h := &Hub{
		opts:    opts,
		clock:   opts.Clock,
		log:     log,
		clients: make(map[*Client]struct{}),
		subs:    make(map[string]map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Attach sets the table directory. The directory is built with the hub as
// its publisher, so it is supplied after construction.
func (h *Hub) Attach(tables Tables) {
	h.tables = tables
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.opts.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeWS authenticates the request and upgrades it to a websocket.
func (h *Hub) ServeWS(c *gin.Context) {
	id, err := h.opts.Auth.ValidateToken(auth.TokenFromRequest(c.Request))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h, conn, id.UserID, id.Username, h.opts.SendBuffer)
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("user_id", id.UserID).Msg("client connected")

	go client.writePump()
	go client.readPump()
}

// PublishDelta is called from table serializers. It only queues frames.
func (h *Hub) PublishDelta(delta models.TableDelta) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.subs[delta.TableID]
	if len(clients) == 0 {
		return
	}

	var public []byte
	for c := range clients {
		c.mu.Lock()
		sub := c.subs[delta.TableID]
		if sub == nil {
			c.mu.Unlock()
			continue
		}
		if sub.role == RolePlayer {
			trackSeat(sub, c.userID, delta.Public.Events)
		}

		var data []byte
		if private, ok := delta.Private[sub.seat]; ok && sub.role == RolePlayer && sub.seat >= 0 {
			own := delta
			own.Private = map[int]models.PrivatePayload{sub.seat: private}
			data = h.encode(WSMessage{Type: TypeDelta, Payload: own})
		} else {
			if public == nil {
				stripped := delta
				stripped.Private = nil
				public = h.encode(WSMessage{Type: TypeDelta, Payload: stripped})
			}
			data = public
		}
		if data != nil {
			c.deliverLocked(sub, data)
		}
		c.mu.Unlock()
	}
}

// trackSeat follows the player's seat through the delta stream so private
// payloads reach the right subscriber.
func trackSeat(sub *subscription, userID string, events []models.HandEvent) {
	for _, ev := range events {
		if ev.PlayerID != userID {
			continue
		}
		switch ev.Type {
		case models.EventPlayerSeated:
			sub.seat = ev.Seat
		case models.EventPlayerLeft, models.EventPlayerBusted:
			if sub.seat == ev.Seat {
				sub.seat = -1
			}
		}
	}
}

func (h *Hub) encode(msg WSMessage) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode message")
		return nil
	}
	return data
}

// TableClosed notifies and drops every subscriber of a destroyed table.
func (h *Hub) TableClosed(tableID string) {
	data := h.encode(WSMessage{Type: TypeTableClosed, Payload: TablePayload{TableID: tableID}})

	h.mu.Lock()
	clients := h.subs[tableID]
	delete(h.subs, tableID)
	h.mu.Unlock()

	for c := range clients {
		c.mu.Lock()
		delete(c.subs, tableID)
		c.mu.Unlock()
		if data != nil {
			c.enqueue(data)
		}
	}
}

// Subscribers returns the number of connections subscribed to a table.
func (h *Hub) Subscribers(tableID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tableID])
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close()
	}
}

// unregister forgets a closed client and marks its seats disconnected
// unless the player still has another connection on the table.
func (h *Hub) unregister(c *Client) {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()

	var seated []string
	h.mu.Lock()
	delete(h.clients, c)
	for tableID, sub := range subs {
		delete(h.subs[tableID], c)
		if len(h.subs[tableID]) == 0 {
			delete(h.subs, tableID)
		}
		if sub.role == RolePlayer && !h.connectedLocked(tableID, c.userID) {
			seated = append(seated, tableID)
		}
	}
	h.mu.Unlock()

	for _, tableID := range seated {
		h.setConnected(tableID, c.userID, false)
	}
	h.log.Debug().Str("user_id", c.userID).Msg("client disconnected")
}

func (h *Hub) connectedLocked(tableID, userID string) bool {
	for other := range h.subs[tableID] {
		if other.userID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) setConnected(tableID, userID string, connected bool) {
	if h.tables == nil {
		return
	}
	table, err := h.tables.GetTable(tableID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
	defer cancel()
	err = table.SetConnected(ctx, userID, connected)
	if reason, ok := engine.ReasonOf(err); err != nil && !(ok && reason == models.ReasonNotSeated) {
		h.log.Warn().Err(err).Str("table_id", tableID).Str("user_id", userID).Msg("failed to update connection state")
	}
}

func (h *Hub) handle(c *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
	defer cancel()

	switch env.Type {
	case TypePing:
		c.sendMessage(WSMessage{Type: TypePong, RequestID: env.RequestID})
	case TypeSubscribe:
		var p SubscribePayload
		if h.decode(c, env, &p) {
			h.subscribe(ctx, c, env.RequestID, p)
		}
	case TypeUnsubscribe:
		var p TablePayload
		if h.decode(c, env, &p) {
			h.unsubscribe(c, p.TableID)
			c.sendMessage(WSMessage{Type: TypeUnsubscribed, RequestID: env.RequestID, Payload: p})
		}
	case TypeRecover:
		var p models.RecoveryRequest
		if h.decode(c, env, &p) {
			h.recover(ctx, c, env.RequestID, p.TableID, p.LastKnownVersion)
		}
	case TypeAction:
		var p ActionPayload
		if h.decode(c, env, &p) && h.allow(c, env) {
			h.action(ctx, c, env.RequestID, p)
		}
	case TypeTimeBank:
		var p TimeBankPayload
		if h.decode(c, env, &p) && h.allow(c, env) {
			h.timeBank(ctx, c, env.RequestID, p)
		}
	case TypeChat:
		var p ChatPayload
		if h.decode(c, env, &p) && h.allow(c, env) {
			h.chat(c, env.RequestID, p)
		}
	default:
		h.sendError(c, env.RequestID, "", "", "unknown message type")
	}
}

func (h *Hub) decode(c *Client, env Envelope, dst interface{}) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		h.sendError(c, env.RequestID, "", "", "malformed payload")
		return false
	}
	return true
}

func (h *Hub) allow(c *Client, env Envelope) bool {
	if h.opts.Limiter == nil || h.opts.Limiter.Allow(c.userID) {
		return true
	}
	h.sendError(c, env.RequestID, "", ReasonRateLimited, "too many messages")
	return false
}

func (h *Hub) sendError(c *Client, requestID, tableID string, reason models.Reason, message string) {
	c.sendMessage(WSMessage{Type: TypeError, RequestID: requestID, Payload: ErrorPayload{TableID: tableID, Reason: reason, Message: message}})
}

func (h *Hub) table(c *Client, requestID, tableID string) *engine.Table {
	if h.tables == nil {
		h.sendError(c, requestID, tableID, models.ReasonTableNotFound, "table not found")
		return nil
	}
	table, err := h.tables.GetTable(tableID)
	if err != nil {
		h.sendError(c, requestID, tableID, models.ReasonTableNotFound, "table not found")
		return nil
	}
	return table
}

// subscribe registers the client inside the table serializer while the
// recovery answer is built, so the first delta queued after it follows the
// answered version.
func (h *Hub) subscribe(ctx context.Context, c *Client, requestID string, p SubscribePayload) {
	table := h.table(c, requestID, p.TableID)
	if table == nil {
		return
	}
	if p.Role != RolePlayer {
		p.Role = RoleSpectator
	}

	sub := &subscription{tableID: p.TableID, role: p.Role, seat: -1}
	register := func(seat int) {
		sub.seat = seat
		h.mu.Lock()
		if h.subs[p.TableID] == nil {
			h.subs[p.TableID] = make(map[*Client]struct{})
		}
		h.subs[p.TableID][c] = struct{}{}
		h.mu.Unlock()

		c.mu.Lock()
		c.subs[p.TableID] = sub
		c.mu.Unlock()
	}
	var (
		snap models.RecoverySnapshot
		err  error
	)
	if p.Role == RolePlayer {
		snap, err = table.SubscribeFor(ctx, c.userID, p.LastVersion, register)
	} else {
		snap, err = table.Subscribe(ctx, -1, p.LastVersion, register)
	}
	if err != nil {
		h.unsubscribe(c, p.TableID)
		h.tableError(c, requestID, p.TableID, err)
		return
	}

	c.mu.Lock()
	c.sendMessage(recoveryMessage(requestID, p.TableID, snap))
	for _, data := range sub.pending {
		c.enqueue(data)
	}
	sub.pending = nil
	sub.ready = true
	seat := sub.seat
	c.mu.Unlock()

	if p.Role == RolePlayer && seat >= 0 {
		h.setConnected(p.TableID, c.userID, true)
	}
}

func recoveryMessage(requestID, tableID string, snap models.RecoverySnapshot) WSMessage {
	msgType := TypeRecovery
	if snap.UpToDate {
		msgType = TypeUpToDate
	}
	return WSMessage{Type: msgType, RequestID: requestID, Payload: RecoveryPayload{TableID: tableID, RecoverySnapshot: snap}}
}

func (h *Hub) unsubscribe(c *Client, tableID string) {
	h.mu.Lock()
	delete(h.subs[tableID], c)
	if len(h.subs[tableID]) == 0 {
		delete(h.subs, tableID)
	}
	h.mu.Unlock()

	c.mu.Lock()
	delete(c.subs, tableID)
	c.mu.Unlock()
}

func (h *Hub) viewerSeat(c *Client, tableID string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.subs[tableID]
	if sub == nil {
		return -1, false
	}
	if sub.role != RolePlayer {
		return -1, true
	}
	return sub.seat, true
}

func (h *Hub) playing(c *Client, tableID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := c.subs[tableID]
	return sub != nil && sub.role == RolePlayer
}

// recover answers with the full state unless the client is current. The
// answer is queued behind any deltas already delivered.
func (h *Hub) recover(ctx context.Context, c *Client, requestID, tableID string, lastKnown uint64) {
	table := h.table(c, requestID, tableID)
	if table == nil {
		h.unsubscribe(c, tableID)
		return
	}
	var (
		snap models.RecoverySnapshot
		err  error
	)
	if h.playing(c, tableID) {
		snap, err = table.RecoverFor(ctx, c.userID, lastKnown)
	} else {
		snap, err = table.Recover(ctx, -1, lastKnown)
	}
	if err != nil {
		h.tableError(c, requestID, tableID, err)
		return
	}
	c.sendMessage(recoveryMessage(requestID, tableID, snap))
}

func (h *Hub) action(ctx context.Context, c *Client, requestID string, p ActionPayload) {
	if h.tables == nil {
		h.sendError(c, requestID, p.TableID, models.ReasonTableNotFound, "table not found")
		return
	}
	result, err := h.tables.Submit(ctx, p.TableID, c.userID, models.Action{Type: p.Type, Amount: p.Amount}, requestID)
	if err != nil {
		h.log.Error().Err(err).Str("table_id", p.TableID).Str("user_id", c.userID).Msg("action failed")
		h.sendError(c, requestID, p.TableID, "", "action failed")
		return
	}
	c.sendMessage(WSMessage{Type: TypeActionResult, RequestID: requestID, Payload: result})

	if !result.Accepted && result.Reason.Resource() {
		h.recover(ctx, c, requestID, p.TableID, 0)
	}
}

func (h *Hub) timeBank(ctx context.Context, c *Client, requestID string, p TimeBankPayload) {
	table := h.table(c, requestID, p.TableID)
	if table == nil {
		return
	}
	granted, err := table.UseTimeBank(ctx, c.userID, time.Duration(p.Seconds)*time.Second)
	if err != nil {
		h.tableError(c, requestID, p.TableID, err)
		return
	}
	c.sendMessage(WSMessage{Type: TypeTimeBankUsed, RequestID: requestID, Payload: TimeBankGranted{TableID: p.TableID, GrantedMS: granted.Milliseconds()}})
}

func (h *Hub) chat(c *Client, requestID string, p ChatPayload) {
	if _, subscribed := h.viewerSeat(c, p.TableID); !subscribed {
		h.sendError(c, requestID, p.TableID, "", "not subscribed to table")
		return
	}
	text, err := validation.ChatMessage(p.Text)
	if err != nil {
		h.sendError(c, requestID, p.TableID, "", err.Error())
		return
	}

	data := h.encode(WSMessage{Type: TypeChat, Payload: ChatMessage{
		TableID:  p.TableID,
		UserID:   c.userID,
		Username: c.username,
		Text:     text,
		At:       h.clock.Now().UTC(),
	}})
	if data == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for other := range h.subs[p.TableID] {
		other.mu.Lock()
		if sub := other.subs[p.TableID]; sub != nil {
			other.deliverLocked(sub, data)
		}
		other.mu.Unlock()
	}
}

func (h *Hub) tableError(c *Client, requestID, tableID string, err error) {
	if reason, ok := engine.ReasonOf(err); ok {
		h.sendError(c, requestID, tableID, reason, err.Error())
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		h.sendError(c, requestID, tableID, "", "table busy")
		return
	}
	h.log.Error().Err(err).Str("table_id", tableID).Msg("table request failed")
	h.sendError(c, requestID, tableID, "", "internal error")
}
