/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server assembles the process: catalog, play history, the playback
// controller, the room publisher, the event bridge, and the HTTP surfaces.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/bragi_dj/internal/api"
	"github.com/friendsincode/bragi_dj/internal/config"
	"github.com/friendsincode/bragi_dj/internal/db"
	"github.com/friendsincode/bragi_dj/internal/eventbus"
	"github.com/friendsincode/bragi_dj/internal/events"
	"github.com/friendsincode/bragi_dj/internal/player"
	"github.com/friendsincode/bragi_dj/internal/playlog"
	"github.com/friendsincode/bragi_dj/internal/room"
	"github.com/friendsincode/bragi_dj/internal/station"
	"github.com/friendsincode/bragi_dj/internal/telemetry"
	"github.com/friendsincode/bragi_dj/internal/version"
)

// Server holds every long-lived component.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	bus       *events.Bus
	database  *gorm.DB
	history   *playlog.Service
	catalog   *station.Catalog
	publisher *room.Publisher
	player    *player.Controller
	bridge    eventbus.Bridge

	httpServer    *http.Server
	metricsServer *http.Server
}

// New builds the full component graph. Nothing starts playing or serving
// until Run.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	bus := events.NewBus()

	catalog, err := station.Load(cfg.StationsFile, cfg.DefaultStationID)
	if err != nil {
		return nil, fmt.Errorf("load station catalog: %w", err)
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	history, err := playlog.NewService(database, bus, logger)
	if err != nil {
		_ = db.Close(database)
		return nil, err
	}

	publisher, err := room.NewPublisher(room.Config{
		ServerURL: cfg.RoomServerURL,
		TokenURL:  cfg.RoomTokenURL,
		APISecret: cfg.RoomAPISecret,
		RoomName:  cfg.RoomName,
		Identity:  cfg.RoomIdentity,
		Secret:    cfg.RoomSecret,
		E2EE:      cfg.RoomE2EE,
	}, bus, logger)
	if err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("room publisher: %w", err)
	}

	ctrl := player.New(catalog, publisher, history, bus, logger, player.Options{
		FFmpegBin: cfg.FFmpegBin,
		Volume:    cfg.DefaultVolume,
	})

	var bridge eventbus.Bridge
	switch cfg.Bridge {
	case config.BridgeRedis:
		bridge, err = eventbus.NewRedisBridge(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.BridgePrefix, bus, logger)
	case config.BridgeNATS:
		bridge, err = eventbus.NewNATSBridge(cfg.NATSURL, cfg.BridgePrefix, bus, logger)
	}
	if err != nil {
		_ = db.Close(database)
		return nil, fmt.Errorf("event bridge: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger.With().Str("component", "server").Logger(),
		bus:       bus,
		database:  database,
		history:   history,
		catalog:   catalog,
		publisher: publisher,
		player:    ctrl,
		bridge:    bridge,
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler: s.router(),
	}
	s.metricsServer = &http.Server{
		Addr:    cfg.MetricsBind,
		Handler: telemetry.Handler(),
	}

	return s, nil
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.MetricsMiddleware)

	r.Mount("/", api.New(s.player, s.catalog, s.history, s.bus, s.logger, s.cfg.MaxQueueLength).Routes())
	return r
}

// Run starts the room publisher, the player, and both HTTP listeners, then
// blocks until the context is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().
		Str("version", version.Version).
		Str("addr", s.httpServer.Addr).
		Str("room", s.cfg.RoomName).
		Msg("starting")

	s.publisher.Start()
	s.player.Start()

	errs := make(chan error, 2)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errs:
		_ = s.shutdown()
		return err
	}
}

// shutdown stops components in dependency order: listeners first so no new
// commands arrive, then the player, then the room session, then the bridge
// and database.
func (s *Server) shutdown() error {
	s.logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	_ = s.httpServer.Shutdown(ctx)
	_ = s.metricsServer.Shutdown(ctx)

	s.player.Close()
	s.publisher.Close()

	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			s.logger.Debug().Bool("ignored", true).Err(err).Msg("bridge close failed")
		}
	}

	if err := db.Close(s.database); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	s.logger.Info().Msg("shutdown complete")
	return nil
}
