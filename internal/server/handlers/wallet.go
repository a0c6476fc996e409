package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"holdem-engine/internal/auth"
	"holdem-engine/internal/currency"
)

// HandleGetMe returns the caller's identity and wallet balance. First
// contact creates the wallet with the starting chips.
func HandleGetMe(c *gin.Context, currencyService *currency.Service) {
	ctx := c.Request.Context()
	userID := c.GetString(auth.UserIDKey)
	username := c.GetString(auth.UsernameKey)
	if err := currencyService.EnsureUser(ctx, userID, username); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	balance, err := currencyService.GetBalance(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "username": username, "chips": balance})
}

func HandleGetTransactions(c *gin.Context, currencyService *currency.Service) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	txs, err := currencyService.GetTransactionHistory(c.Request.Context(), c.GetString(auth.UserIDKey), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

type DevTokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Username string `json:"username" binding:"required"`
}

// HandleDevToken issues a token for any identity. Accounts live outside
// this server; the route is only mounted in development.
func HandleDevToken(c *gin.Context, authService *auth.Service) {
	var req DevTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	token, err := authService.GenerateToken(auth.Identity{UserID: req.UserID, Username: req.Username})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
