package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/internal/currency"
	"holdem-engine/internal/server/config"
	"holdem-engine/models"
)

type QuickSeatRequest struct {
	Preset string `json:"preset" binding:"required"`
	BuyIn  int    `json:"buy_in"`
}

// HandleQuickSeat seats the caller at the fullest running table with the
// preset's stakes that still has a free seat, opening a new table when none
// has room. A zero buy-in takes the preset maximum.
func HandleQuickSeat(c *gin.Context, tm *engine.TableManager, presets *config.Presets, currencyService *currency.Service) {
	var req QuickSeatRequest
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
	buyIn := req.BuyIn
	if buyIn == 0 {
		buyIn = cfg.MaxBuyIn
	}

	ctx := c.Request.Context()
	userID := c.GetString(auth.UserIDKey)
	username := c.GetString(auth.UsernameKey)
	if err := currencyService.EnsureUser(ctx, userID, username); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	for _, sum := range openTables(tm.ListTables(ctx), cfg) {
		seat, err := tm.JoinTable(ctx, sum.TableID, userID, username, -1, buyIn)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"table_id": sum.TableID, "seat": seat, "stack": buyIn})
			return
		}
		// The table filled up or closed since it was listed.
		if reason, ok := engine.ReasonOf(err); ok && (reason == models.ReasonTableFull || reason == models.ReasonTableClosed || reason == models.ReasonTableNotFound) {
			continue
		}
		respondError(c, err)
		return
	}

	table, err := tm.CreateTable(preset.Name, cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	seat, err := tm.JoinTable(ctx, table.ID(), userID, username, -1, buyIn)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table_id": table.ID(), "seat": seat, "stack": buyIn})
}

// openTables filters the listing to unpaused, unfrozen tables with cfg's
// stakes and a free seat, fullest first so short tables fill up.
func openTables(listing []models.TableSummary, cfg models.TableConfig) []models.TableSummary {
	var open []models.TableSummary
	for _, sum := range listing {
		c := sum.Config
		if c.SmallBlind != cfg.SmallBlind || c.BigBlind != cfg.BigBlind || c.Ante != cfg.Ante || c.MaxSeats != cfg.MaxSeats {
			continue
		}
		if sum.Frozen || sum.Status == models.StatusPaused || sum.Seated >= c.MaxSeats {
			continue
		}
		open = append(open, sum)
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Seated > open[j].Seated })
	return open
}
