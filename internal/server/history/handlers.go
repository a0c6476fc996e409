package history

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"holdem-engine/internal/db"
	"holdem-engine/internal/models"
	engmodels "holdem-engine/models"
)

// UserIDKey is the gin context key the auth middleware stores the caller under.
const UserIDKey = "user_id"

// GetHandHistory returns the full event log of a settled hand. Dealt hole
// cards are only shown to the player they were dealt to; cards shown down
// at showdown are public.
func GetHandHistory(c *gin.Context, database *db.DB) {
	handID := c.Param("handId")
	viewer := c.GetString(UserIDKey)

	var hand models.Hand
	if err := database.Where("id = ?", handID).First(&hand).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Hand not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch hand"})
		return
	}

	var events []models.GameEvent
	err := database.Where("hand_id = ?", handID).
		Order("sequence_number ASC").
		Find(&events).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch hand history"})
		return
	}

	enriched := make([]gin.H, len(events))
	for i, event := range events {
		var metadata map[string]interface{}
		if event.Metadata != "" && event.Metadata != "{}" {
			_ = json.Unmarshal([]byte(event.Metadata), &metadata)
		}
		if event.EventType == string(engmodels.EventHoleDealt) && (event.UserID == nil || *event.UserID != viewer) {
			metadata = nil
		}

		enriched[i] = gin.H{
			"id":              event.ID,
			"event_type":      event.EventType,
			"seat":            event.Seat,
			"user_id":         event.UserID,
			"betting_round":   event.BettingRound,
			"action_type":     event.ActionType,
			"amount":          event.Amount,
			"system":          event.System,
			"metadata":        metadata,
			"sequence_number": event.SequenceNumber,
			"created_at":      event.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"hand_id": handID,
		"hand":    handSummary(hand),
		"events":  enriched,
		"count":   len(enriched),
	})
}

// GetTableHands returns a page of a table's settled hands, newest first.
func GetTableHands(c *gin.Context, database *db.DB) {
	tableID := c.Param("tableId")

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	var hands []models.Hand
	err = database.Where("table_id = ?", tableID).
		Order("hand_number DESC").
		Limit(limit).
		Offset(offset).
		Find(&hands).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch table hands"})
		return
	}

	var totalCount int64
	database.Model(&models.Hand{}).Where("table_id = ?", tableID).Count(&totalCount)

	list := make([]gin.H, len(hands))
	for i, hand := range hands {
		list[i] = handSummary(hand)
	}

	c.JSON(http.StatusOK, gin.H{
		"table_id":    tableID,
		"hands":       list,
		"count":       len(list),
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

func handSummary(hand models.Hand) gin.H {
	var community []string
	var winners []int
	var payouts []engmodels.Payout
	_ = json.Unmarshal([]byte(hand.CommunityCards), &community)
	_ = json.Unmarshal([]byte(hand.Winners), &winners)
	_ = json.Unmarshal([]byte(hand.Payouts), &payouts)

	return gin.H{
		"id":              hand.ID,
		"hand_number":     hand.HandNumber,
		"dealer_position": hand.DealerPosition,
		"community_cards": community,
		"pot_amount":      hand.PotAmount,
		"num_players":     hand.NumPlayers,
		"winners":         winners,
		"payouts":         payouts,
		"started_at":      hand.StartedAt,
		"completed_at":    hand.CompletedAt,
	}
}
