// Package server assembles the HTTP server: storage, pointer tracking,
// broadcast, the chat service and the assistant.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/parleychat/parley/internal/profile"
	"github.com/parleychat/parley/plugin/ai"
	"github.com/parleychat/parley/plugin/ai/websearch"
	"github.com/parleychat/parley/server/broker"
	apiv1 "github.com/parleychat/parley/server/router/api/v1"
	"github.com/parleychat/parley/server/service/chat"
	"github.com/parleychat/parley/store"
	"github.com/parleychat/parley/store/kv"
)

// Server is the assembled application.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	kvStore    kv.Store
	broker     broker.Broker
	apiV1      *apiv1.APIV1Service
}

// NewServer builds the server from the profile and an initialized store.
func NewServer(ctx context.Context, p *profile.Profile, st *store.Store) (*Server, error) {
	kvStore, err := kv.NewStore(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kv store")
	}

	brokerInstance, err := broker.New(p)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create broker")
	}

	tracker := chat.NewTracker(kvStore, st)
	catchup := chat.NewCatchup(tracker, st, p.CatchupWindow)
	chatService := chat.NewService(st, tracker, catchup, brokerInstance)

	var orchestrator *ai.Orchestrator
	if p.IsAIEnabled() {
		cfg := ai.NewConfig(p)
		orchestrator = ai.NewOrchestrator(cfg, ai.NewProvider(cfg), websearch.NewClient(p), websearch.NewCooldown(nil))
		slog.Info("assistant enabled", "mode", cfg.Mode, "model", cfg.Model)
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.Recover())
	echoServer.Use(echomiddleware.CORS())

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	apiV1 := apiv1.NewAPIV1Service(p, st, chatService, orchestrator)
	apiV1.Register(echoServer)

	return &Server{
		Profile:    p,
		Store:      st,
		echoServer: echoServer,
		kvStore:    kvStore,
		broker:     brokerInstance,
		apiV1:      apiV1,
	}, nil
}

// Start runs the HTTP listener until it fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", "address", address, "mode", s.Profile.Mode)
	if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases all resources.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}
	if err := s.broker.Close(); err != nil {
		slog.Error("failed to close broker", "error", err)
	}
	if err := s.kvStore.Close(); err != nil {
		slog.Error("failed to close kv store", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shutdown complete")
}
