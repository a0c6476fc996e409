package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"holdem-engine/engine"
	"holdem-engine/internal/auth"
	"holdem-engine/internal/logger"
	"holdem-engine/internal/middleware"
	"holdem-engine/internal/recovery"
	"holdem-engine/internal/server/config"
	"holdem-engine/internal/server/handlers"
	"holdem-engine/internal/server/history"
	"holdem-engine/internal/server/websocket"
	"holdem-engine/server"
)

// Server holds all dependencies of the running process.
type Server struct {
	cli     *CLI
	app     *config.AppConfig
	presets *config.Presets
	log     zerolog.Logger

	hub      *websocket.Hub
	tables   *engine.TableManager
	recovery *recovery.TableRecovery
	limiter  *middleware.RateLimiter
	httpRate *middleware.RateLimiter
	http     *http.Server
	tcp      *server.TCPServer
}

// NewServer builds the services, the table directory and both listeners.
// Tables checkpointed by a previous run are restored before it returns.
func NewServer(ctx context.Context, cli *CLI) (*Server, error) {
	presets, err := config.LoadPresets(cli.Presets)
	if err != nil {
		return nil, err
	}
	app, err := config.InitializeServices(cli.services())
	if err != nil {
		return nil, err
	}

	s := &Server{
		cli:     cli,
		app:     app,
		presets: presets,
		log:     logger.With("server"),
	}
	s.limiter = middleware.NewRateLimiter(middleware.DefaultSocketLimiterConfig, app.Clock)
	s.httpRate = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig, app.Clock)
	s.hub = websocket.NewHub(websocket.HubOptions{
		Auth:           app.AuthService,
		Limiter:        s.limiter,
		Clock:          app.Clock,
		AllowedOrigins: cli.AllowedOrigins,
	})
	s.tables = engine.NewTableManager(app.ManagerOptions(s.hub, s.onTableDestroyed))
	s.hub.Attach(s.tables)
	s.recovery = app.Recovery(s.tables)

	restored, err := app.RecoverTablesOnStartup(ctx, s.recovery)
	if err != nil {
		s.log.Error().Err(err).Msg("table recovery failed")
	} else if restored > 0 {
		s.log.Info().Int("tables", restored).Msg("tables restored")
	}
	if err := s.openPresetTables(); err != nil {
		s.Close()
		return nil, err
	}

	s.http = &http.Server{
		Addr:              cli.HTTPAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cli.TCPAddr != "" {
		s.tcp = server.NewTCPServer(cli.TCPAddr, s.tables, app.AuthService, logger.With("tcp"))
	}
	return s, nil
}

func (s *Server) onTableDestroyed(tableID string) {
	s.hub.TableClosed(tableID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recovery.Forget(ctx, tableID); err != nil {
		s.log.Warn().Err(err).Str("table_id", tableID).Msg("failed to drop checkpoint")
	}
}

// openPresetTables opens one table per preset marked open_at_start. A table
// restored from a checkpoint keeps its state.
func (s *Server) openPresetTables() error {
	for _, preset := range s.presets.Tables {
		if !preset.OpenAtStart {
			continue
		}
		if _, err := s.tables.GetTable(preset.Name); err == nil {
			continue
		}
		cfg, err := preset.TableConfig()
		if err != nil {
			return fmt.Errorf("preset %s: %w", preset.Name, err)
		}
		if _, err := s.tables.CreateTableWithID(preset.Name, preset.Name, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	if s.cli.production() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware())

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           86400 * time.Second,
	}
	if len(s.cli.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.cli.AllowedOrigins
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	r.Use(cors.New(corsConfig))

	r.GET("/healthz", s.handleHealth)
	if !s.cli.production() {
		r.POST("/api/dev/token", func(c *gin.Context) { handlers.HandleDevToken(c, s.app.AuthService) })
	}

	// WebSocket endpoint (handles auth internally)
	r.GET("/ws", s.hub.ServeWS)

	authorized := r.Group("/api")
	authorized.Use(s.app.AuthService.Middleware(), s.httpRate.Gin(auth.UserIDKey))
	{
		tm, cs, db := s.tables, s.app.CurrencyService, s.app.Database

		authorized.GET("/me", func(c *gin.Context) { handlers.HandleGetMe(c, cs) })
		authorized.GET("/wallet/transactions", func(c *gin.Context) { handlers.HandleGetTransactions(c, cs) })

		authorized.GET("/tables", func(c *gin.Context) { handlers.HandleListTables(c, tm) })
		authorized.GET("/tables/presets", func(c *gin.Context) { handlers.HandleListPresets(c, s.presets) })
		authorized.POST("/tables", func(c *gin.Context) { handlers.HandleCreateTable(c, tm, s.presets) })
		authorized.POST("/tables/quick-seat", func(c *gin.Context) { handlers.HandleQuickSeat(c, tm, s.presets, cs) })
		authorized.GET("/tables/:tableId", func(c *gin.Context) { handlers.HandleGetTable(c, tm) })
		authorized.POST("/tables/:tableId/join", func(c *gin.Context) { handlers.HandleJoinTable(c, tm, cs) })
		authorized.POST("/tables/:tableId/leave", func(c *gin.Context) { handlers.HandleLeaveTable(c, tm) })
		authorized.POST("/tables/:tableId/chips", func(c *gin.Context) { handlers.HandleAddChips(c, tm) })
		authorized.POST("/tables/:tableId/sit-out", func(c *gin.Context) { handlers.HandleSitOut(c, tm) })
		authorized.POST("/tables/:tableId/sit-in", func(c *gin.Context) { handlers.HandleSitIn(c, tm) })
		authorized.POST("/tables/:tableId/start", func(c *gin.Context) { handlers.HandleStartHand(c, tm) })
		authorized.POST("/tables/:tableId/move", func(c *gin.Context) { handlers.HandleMoveSeat(c, tm) })
		authorized.GET("/tables/:tableId/hands", func(c *gin.Context) { history.GetTableHands(c, db) })
		authorized.GET("/hands/:handId", func(c *gin.Context) { history.GetHandHistory(c, db) })

		admin := authorized.Group("/admin", handlers.RequireAdmin(s.cli.Admins))
		admin.POST("/tables/:tableId/pause", func(c *gin.Context) { handlers.HandleTableAdmin(c, tm, "pause") })
		admin.POST("/tables/:tableId/resume", func(c *gin.Context) { handlers.HandleTableAdmin(c, tm, "resume") })
		admin.POST("/tables/:tableId/unfreeze", func(c *gin.Context) { handlers.HandleTableAdmin(c, tm, "unfreeze") })
		admin.DELETE("/tables/:tableId", func(c *gin.Context) { handlers.HandleDestroyTable(c, tm) })
	}
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{"status": "ok", "tables": len(s.tables.ListTables(c.Request.Context()))}
	if s.app.Redis != nil {
		if err := s.app.Redis.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

// Run starts background work and serves until ctx is cancelled or a
// listener fails, then shuts down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.recovery.Start(ctx, s.cli.CheckpointInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", s.cli.HTTPAddr).Msg("http listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if s.tcp != nil {
		g.Go(func() error {
			if err := s.tcp.Start(); err != nil {
				return fmt.Errorf("tcp: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting work, checkpoints every table and releases the
// backing services.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.tcp != nil {
		s.tcp.Stop()
	}
	s.hub.Close()

	if saved, err := s.recovery.CheckpointAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
	} else {
		s.log.Info().Int("tables", saved).Msg("tables checkpointed")
	}
	if err := s.tables.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush settlements: %w", err))
	}
	s.Close()
	return errors.Join(errs...)
}

// Close stops the table directory and closes the backing services.
func (s *Server) Close() {
	s.tables.Stop()
	s.limiter.Stop()
	s.httpRate.Stop()
	if err := s.app.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close services")
	}
}
