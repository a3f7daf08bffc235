// Package api exposes the monitoring REST surface: health, runtime status,
// shard and connection snapshots, and prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/patchwork-project/patchwork/internal/config"
	"github.com/patchwork-project/patchwork/internal/messenger"
	intnet "github.com/patchwork-project/patchwork/internal/network"
	"github.com/patchwork-project/patchwork/internal/patchwork"
)

// MessengerSource serves point-in-time connection views.
type MessengerSource interface {
	Snapshot() []messenger.ConnectionInfo
}

// PatchworkSource serves point-in-time shard and anchor views.
type PatchworkSource interface {
	Snapshot() patchwork.Snapshot
}

// Server is the REST API server.
type Server struct {
	cfg       *config.Config
	msgr      MessengerSource
	router    PatchworkSource
	startedAt time.Time

	httpServer *http.Server
	engine     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, msgr MessengerSource, router PatchworkSource) *Server {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		msgr:      msgr,
		router:    router,
		startedAt: time.Now(),
	}
}

// Start initializes and starts the API server, blocking until the context is
// cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	s.engine = s.buildRouter()

	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	engine.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/shards", s.handleShards)
		api.GET("/connections", s.handleConnections)
	}

	return engine
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
