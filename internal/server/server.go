// Package server exposes the read-only status surface of a processing run.
// Processing itself happens in the CLI; the server only reports what the
// chunk store and the completion ledger contain.
package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/dhlab/gallicanav/internal/config"
	"github.com/dhlab/gallicanav/internal/ledger"
	"github.com/dhlab/gallicanav/internal/response"
	"github.com/dhlab/gallicanav/internal/storage"
)

// Server holds the Echo app and its dependencies.
type Server struct {
	Echo   *echo.Echo
	cfg    *config.Config
	store  storage.ChunkStore
	ledger ledger.Ledger
	log    zerolog.Logger
}

// New builds the Echo server and registers routes.
func New(cfg *config.Config, store storage.ChunkStore, ld ledger.Ledger, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover(), middleware.Logger())

	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	s := &Server{Echo: e, cfg: cfg, store: store, ledger: ld, log: log}

	e.GET("/health", s.health)
	e.GET("/status", s.status)

	return s
}

func (s *Server) health(c echo.Context) error {
	return response.OK(c, map[string]any{"status": "ok"}, "")
}

// status reports the chunk inventory per stage, completion as the ledger
// sees it, and the thresholds the run is configured with.
func (s *Server) status(c echo.Context) error {
	ctx := c.Request().Context()

	inventory := make(map[string][]int, 3)
	for name, prefix := range map[string]string{
		"raw":       storage.RawPrefix,
		"processed": storage.ProcessedPrefix,
		"sessions":  storage.SessionsPrefix,
	} {
		keys, err := s.store.List(ctx, prefix)
		if err != nil {
			return response.InternalError(c, "chunk store listing failed", err.Error())
		}
		inventory[name] = storage.ChunkNumbers(keys)
	}

	completed := make(map[string][]int, 2)
	for _, stage := range []ledger.Stage{ledger.StageClassify, ledger.StageSessions} {
		chunks, err := s.ledger.Completed(ctx, stage)
		if err != nil {
			return response.InternalError(c, "ledger lookup failed", err.Error())
		}
		completed[string(stage)] = chunks
	}

	return response.OK(c, map[string]any{
		"chunks":    inventory,
		"completed": completed,
		"thresholds": map[string]any{
			"inactivity_minutes":    s.cfg.Pipeline.InactivityMinutes,
			"request_threshold":     s.cfg.Pipeline.RequestThreshold,
			"min_requests_per_user": s.cfg.Pipeline.MinRequestsPerUser,
		},
	}, "")
}

// Start blocks until the context is cancelled or the server fails.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Echo.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("server shutdown")
		}
	}()
	s.log.Info().Str("port", s.cfg.Server.Port).Msg("status server listening")
	return s.Echo.Start(":" + s.cfg.Server.Port)
}
