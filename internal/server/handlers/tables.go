package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/internal/currency"
	"holdem-engine/internal/server/config"
	"holdem-engine/internal/validation"
	"holdem-engine/models"
)

// respondError maps engine rejections and wallet errors onto HTTP statuses
// while keeping the stable reason code in the body.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, currency.ErrInsufficientChips):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient chips", "reason": models.ReasonInsufficientFunds})
		return
	case errors.Is(err, currency.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	case errors.Is(err, engine.ErrTableOccupied):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Table busy"})
		return
	}

	reason, ok := engine.ReasonOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	status := http.StatusConflict
	switch reason {
	case models.ReasonTableNotFound, models.ReasonNotSeated:
		status = http.StatusNotFound
	case models.ReasonInvalidBuyIn, models.ReasonInvalidSeat, models.ReasonInvalidAmount, models.ReasonInvalidActionType:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error(), "reason": reason})
}

func tableFor(c *gin.Context, tm *engine.TableManager) (*engine.Table, bool) {
	tableID := c.Param("tableId")
	if err := validation.ValidateTableID(tableID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid table id"})
		return nil, false
	}
	table, err := tm.GetTable(tableID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return table, true
}

// HandleListTables returns the lobby listing of running tables
func HandleListTables(c *gin.Context, tm *engine.TableManager) {
	c.JSON(http.StatusOK, gin.H{"tables": tm.ListTables(c.Request.Context())})
}

func HandleListPresets(c *gin.Context, presets *config.Presets) {
	type presetResult struct {
		Name   string             `json:"name"`
		Config models.TableConfig `json:"config"`
	}
	results := make([]presetResult, 0, len(presets.Tables))
	for _, p := range presets.Tables {
		cfg, err := p.TableConfig()
		if err != nil {
			continue
		}
		results = append(results, presetResult{Name: p.Name, Config: cfg})
	}
	c.JSON(http.StatusOK, gin.H{"presets": results})
}

type CreateTableRequest struct {
	Name   string `json:"name" binding:"required"`
	Preset string `json:"preset" binding:"required"`
}

// HandleCreateTable opens a table with the stakes of a named preset
func HandleCreateTable(c *gin.Context, tm *engine.TableManager, presets *config.Presets) {
	var req CreateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	preset, ok := presets.Find(req.Preset)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown preset"})
		return
	}
	cfg, err := preset.TableConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if cfg, err = validation.ValidateTableConfig(req.Name, cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	table, err := tm.CreateTable(req.Name, cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := table.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sum)
}

// HandleGetTable returns the table as the caller sees it: their own hole
// cards when seated, the spectator view otherwise.
func HandleGetTable(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	view, err := table.SnapshotFor(c.Request.Context(), c.GetString(auth.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type JoinTableRequest struct {
	Seat  *int `json:"seat"`
	BuyIn int  `json:"buy_in" binding:"required"`
}

// HandleJoinTable debits the buy-in from the caller's wallet and seats them.
// A missing seat picks the first free one.
func HandleJoinTable(c *gin.Context, tm *engine.TableManager, currencyService *currency.Service) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	var req JoinTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	seat := -1
	if req.Seat != nil {
		seat = *req.Seat
	}

	ctx := c.Request.Context()
	userID := c.GetString(auth.UserIDKey)
	username := c.GetString(auth.UsernameKey)
	if err := currencyService.EnsureUser(ctx, userID, username); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	seat, err := tm.JoinTable(ctx, table.ID(), userID, username, seat, req.BuyIn)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table_id": table.ID(), "seat": seat, "stack": req.BuyIn})
}

// HandleLeaveTable stands the caller up. During a hand the seat folds now
// and is vacated when the hand ends.
func HandleLeaveTable(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	res, err := tm.LeaveTable(c.Request.Context(), table.ID(), c.GetString(auth.UserIDKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seat": res.Seat, "cash_out": res.CashOut, "deferred": res.Deferred})
}

type AddChipsRequest struct {
	Amount int `json:"amount" binding:"required"`
}

func HandleAddChips(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	var req AddChipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := validation.ValidatePositiveInt(req.Amount, "amount"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := tm.AddChips(c.Request.Context(), table.ID(), c.GetString(auth.UserIDKey), req.Amount); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": req.Amount})
}

func HandleSitOut(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	if err := table.SitOut(c.Request.Context(), c.GetString(auth.UserIDKey)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SeatSittingOut})
}

func HandleSitIn(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	if err := table.SitIn(c.Request.Context(), c.GetString(auth.UserIDKey)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SeatActive})
}

// HandleStartHand deals at tables that do not start hands on their own.
func HandleStartHand(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	err := table.StartHandBy(c.Request.Context(), c.GetString(auth.UserIDKey))
	if reason, _ := engine.ReasonOf(err); reason == models.ReasonNotSeated {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only seated players can start a hand", "reason": reason})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": true})
}

type MoveSeatRequest struct {
	ToTableID string `json:"to_table_id" binding:"required"`
	Seat      *int   `json:"seat"`
}

// HandleMoveSeat cashes out at one table and buys in at another. The two
// steps are separate; a failed join leaves the chips in the wallet.
func HandleMoveSeat(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	var req MoveSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := validation.ValidateTableID(req.ToTableID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid table id"})
		return
	}
	seat := -1
	if req.Seat != nil {
		seat = *req.Seat
	}
	seat, err := tm.MoveSeat(c.Request.Context(), c.GetString(auth.UserIDKey), c.GetString(auth.UsernameKey), table.ID(), req.ToTableID, seat)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table_id": req.ToTableID, "seat": seat})
}

// RequireAdmin lets only the configured operator accounts through.
func RequireAdmin(admins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(admins))
	for _, id := range admins {
		allowed[id] = true
	}
	return func(c *gin.Context) {
		if !allowed[c.GetString(auth.UserIDKey)] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// HandleTableAdmin runs one of the operator commands on a table.
func HandleTableAdmin(c *gin.Context, tm *engine.TableManager, command string) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	var err error
	switch command {
	case "pause":
		err = table.Pause(ctx)
	case "resume":
		err = table.Resume(ctx)
	case "unfreeze":
		err = table.Unfreeze(ctx)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown command"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	sum, err := table.Summary(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func HandleDestroyTable(c *gin.Context, tm *engine.TableManager) {
	table, ok := tableFor(c, tm)
	if !ok {
		return
	}
	if err := tm.DestroyTable(c.Request.Context(), table.ID()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
