package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/internal/currency"
	"holdem-engine/internal/db"
	"holdem-engine/internal/server/config"
	"holdem-engine/models"
)

type testServer struct {
	router   *gin.Engine
	tm       *engine.TableManager
	currency *currency.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.NewMemory(strings.ReplaceAll(t.Name(), "/", "_"), currency.Records()...)
	require.NoError(t, err)
	cs := currency.NewService(database.DB)

	tm := engine.NewTableManager(engine.ManagerOptions{
		Clock:         quartz.NewMock(t),
		Logger:        zerolog.Nop(),
		Wallet:        cs,
		EmptyTableTTL: -1,
	})
	t.Cleanup(tm.Stop)

	presets := config.DefaultPresets()
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(auth.UserIDKey, c.GetHeader("X-User"))
		c.Set(auth.UsernameKey, c.GetHeader("X-User"))
	})
	api.GET("/me", func(c *gin.Context) { HandleGetMe(c, cs) })
	api.GET("/tables", func(c *gin.Context) { HandleListTables(c, tm) })
	api.GET("/tables/presets", func(c *gin.Context) { HandleListPresets(c, presets) })
	api.POST("/tables", func(c *gin.Context) { HandleCreateTable(c, tm, presets) })
	api.POST("/tables/quick-seat", func(c *gin.Context) { HandleQuickSeat(c, tm, presets, cs) })
	api.GET("/tables/:tableId", func(c *gin.Context) { HandleGetTable(c, tm) })
	api.POST("/tables/:tableId/join", func(c *gin.Context) { HandleJoinTable(c, tm, cs) })
	api.POST("/tables/:tableId/leave", func(c *gin.Context) { HandleLeaveTable(c, tm) })
	api.POST("/tables/:tableId/chips", func(c *gin.Context) { HandleAddChips(c, tm) })
	api.POST("/tables/:tableId/start", func(c *gin.Context) { HandleStartHand(c, tm) })
	admin := api.Group("/admin", RequireAdmin([]string{"op"}))
	admin.POST("/tables/:tableId/pause", func(c *gin.Context) { HandleTableAdmin(c, tm, "pause") })
	admin.DELETE("/tables/:tableId", func(c *gin.Context) { HandleDestroyTable(c, tm) })

	return &testServer{router: r, tm: tm, currency: cs}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User", user)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createTable(t *testing.T) models.TableSummary {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/tables", "alice", CreateTableRequest{Name: "Main", Preset: "nl10"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sum models.TableSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	return sum
}

func (s *testServer) balance(t *testing.T, user string) int {
	t.Helper()
	require.NoError(t, s.tm.Flush(context.Background()))
	balance, err := s.currency.GetBalance(context.Background(), user)
	require.NoError(t, err)
	return balance
}

func TestCreateTable(t *testing.T) {
	s := newTestServer(t)
	sum := s.createTable(t)
	assert.Equal(t, "Main", sum.Name)
	assert.Equal(t, 10, sum.Config.BigBlind)

	rec := s.do(t, http.MethodPost, "/api/tables", "alice", CreateTableRequest{Name: "Main", Preset: "missing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/tables", "alice", CreateTableRequest{Name: "<script>x", Preset: "nl10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tables", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Tables []models.TableSummary `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Tables, 1)
	assert.Equal(t, sum.TableID, list.Tables[0].TableID)
}

func TestJoinAndLeaveMoveWalletChips(t *testing.T) {
	s := newTestServer(t)
	sum := s.createTable(t)
	path := "/api/tables/" + sum.TableID

	rec := s.do(t, http.MethodPost, path+"/join", "alice", map[string]int{"buy_in": 1000, "seat": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, currency.DefaultStartingChips-1000, s.balance(t, "alice"))

	rec = s.do(t, http.MethodGet, path, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view models.TableView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, 2, view.Viewer)
	assert.Equal(t, 1000, view.Seats[2].Stack)

	rec = s.do(t, http.MethodPost, path+"/chips", "alice", AddChipsRequest{Amount: 500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, currency.DefaultStartingChips-1500, s.balance(t, "alice"))

	rec = s.do(t, http.MethodPost, path+"/leave", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, currency.DefaultStartingChips, s.balance(t, "alice"))
}

func TestJoinRejections(t *testing.T) {
	s := newTestServer(t)
	sum := s.createTable(t)
	path := "/api/tables/" + sum.TableID

	rec := s.do(t, http.MethodPost, path+"/join", "alice", map[string]int{"buy_in": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.ReasonInvalidBuyIn))

	rec = s.do(t, http.MethodPost, path+"/join", "alice", map[string]int{"buy_in": 1000, "seat": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, path+"/join", "bob", map[string]int{"buy_in": 1000, "seat": 0})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.ReasonSeatTaken))
	assert.Equal(t, currency.DefaultStartingChips, s.balance(t, "bob"), "refused buy-in is refunded")

	rec = s.do(t, http.MethodGet, "/api/me", "carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	err := s.currency.DeductChips(context.Background(), "carol", currency.DefaultStartingChips-100, currency.TxTypeAdminAdjustment, "", "drain")
	require.NoError(t, err)

	rec = s.do(t, http.MethodPost, path+"/join", "carol", map[string]int{"buy_in": 1000})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.ReasonInsufficientFunds))

	rec = s.do(t, http.MethodPost, "/api/tables/nope/join", "alice", map[string]int{"buy_in": 1000})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.ReasonTableNotFound))
}

func TestStartHandRequiresSeat(t *testing.T) {
	s := newTestServer(t)
	sum := s.createTable(t)
	path := "/api/tables/" + sum.TableID

	rec := s.do(t, http.MethodPost, path+"/start", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.do(t, http.MethodPost, path+"/join", "alice", map[string]int{"buy_in": 1000})
	rec = s.do(t, http.MethodPost, path+"/start", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), string(models.ReasonNotEnoughPlayers))

	s.do(t, http.MethodPost, path+"/join", "bob", map[string]int{"buy_in": 1000})
	rec = s.do(t, http.MethodPost, path+"/start", "alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	sum := s.createTable(t)

	rec := s.do(t, http.MethodPost, "/api/admin/tables/"+sum.TableID+"/pause", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/tables/"+sum.TableID+"/pause", "op", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var paused models.TableSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paused))
	assert.Equal(t, models.StatusPaused, paused.Status)

	s.do(t, http.MethodPost, "/api/tables/"+sum.TableID+"/join", "alice", map[string]int{"buy_in": 1000})
	rec = s.do(t, http.MethodDelete, "/api/admin/tables/"+sum.TableID, "op", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.do(t, http.MethodPost, "/api/tables/"+sum.TableID+"/leave", "alice", nil)
	rec = s.do(t, http.MethodDelete, "/api/admin/tables/"+sum.TableID, "op", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := s.tm.GetTable(sum.TableID)
	assert.ErrorIs(t, err, engine.ErrTableNotFound)
}

func TestQuickSeatFillsTablesBeforeOpeningNew(t *testing.T) {
	s := newTestServer(t)

	type seated struct {
		TableID string `json:"table_id"`
		Seat    int    `json:"seat"`
		Stack   int    `json:"stack"`
	}
	join := func(user string) seated {
		rec := s.do(t, http.MethodPost, "/api/tables/quick-seat", user, QuickSeatRequest{Preset: "nl10"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res seated
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		return res
	}

	first := join("p0")
	assert.Equal(t, 2000, first.Stack, "zero buy-in takes the preset maximum")
	table, err := s.tm.GetTable(first.TableID)
	require.NoError(t, err)
	maxSeats := table.Config().MaxSeats

	for i := 1; i < maxSeats; i++ {
		res := join(fmt.Sprintf("p%d", i))
		assert.Equal(t, first.TableID, res.TableID)
	}
	overflow := join("late")
	assert.NotEqual(t, first.TableID, overflow.TableID)
	assert.Len(t, s.tm.ListTables(context.Background()), 2)

	rec := s.do(t, http.MethodPost, "/api/tables/quick-seat", "x", QuickSeatRequest{Preset: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenTablesOrdering(t *testing.T) {
	cfg := models.TableConfig{SmallBlind: 5, BigBlind: 10, MaxSeats: 6}
	listing := []models.TableSummary{
		{TableID: "a", Config: cfg, Seated: 2},
		{TableID: "b", Config: cfg, Seated: 5},
		{TableID: "full", Config: cfg, Seated: 6},
		{TableID: "paused", Config: cfg, Seated: 1, Status: models.StatusPaused},
		{TableID: "frozen", Config: cfg, Seated: 1, Frozen: true},
		{TableID: "other", Config: models.TableConfig{SmallBlind: 1, BigBlind: 2, MaxSeats: 6}},
	}
	open := openTables(listing, cfg)
	require.Len(t, open, 2)
	assert.Equal(t, "b", open[0].TableID)
	assert.Equal(t, "a", open[1].TableID)
}
