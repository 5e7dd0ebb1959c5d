package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"studyhall/internal/api"
	"studyhall/internal/config"
	"studyhall/internal/database"
	"studyhall/internal/engine"
	"studyhall/internal/hub"
	"studyhall/internal/registry"
	"studyhall/internal/stats"
	"studyhall/internal/websocket"
	dbconfig "studyhall/pkg/database"
	"studyhall/pkg/interfaces"
)

// Application owns every component and wires them in dependency order:
// archive database, stats store, session registry, lifecycle engine,
// connection registry, notification hub, HTTP server.
type Application struct {
	config *config.Config

	db         *database.Manager
	registry   *registry.Registry
	stats      *stats.Store
	engine     *engine.Engine
	wsRegistry *websocket.Registry
	hub        *hub.Hub
	httpServer *http.Server

	janitorCancel context.CancelFunc
	janitorDone   chan struct{}
}

// New builds the application from configuration. Nothing starts running
// until Start.
func New(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbCfg := dbconfig.DefaultConfig()
	dbCfg.DatabasePath = cfg.Database.Path

	db, err := database.NewManager(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	clock := interfaces.SystemClock{}
	store := stats.NewStore(int(cfg.Session.CompletionThreshold.Seconds()), clock, nil, db)
	sessionRegistry := registry.New()

	wsRegistry := websocket.NewRegistry()
	notificationHub := hub.NewHub(wsRegistry)

	eng := engine.New(sessionRegistry, store, notificationHub, db, clock, engine.Config{
		SessionDuration: cfg.Session.Duration,
		TickInterval:    cfg.Session.TickInterval,
		Quorum:          cfg.Session.Quorum,
	})

	wsHandler := websocket.NewHandler(wsRegistry, eng)
	server := api.NewServer(eng, sessionRegistry, store, db, wsHandler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		db:         db,
		registry:   sessionRegistry,
		stats:      store,
		engine:     eng,
		wsRegistry: wsRegistry,
		hub:        notificationHub,
		httpServer: httpServer,
	}, nil
}

// Start brings the application up: notification hub, retention janitor,
// then the HTTP listener. Blocks until the listener exits.
func (a *Application) Start(ctx context.Context) error {
	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start notification hub: %w", err)
	}

	janitorCtx, cancel := context.WithCancel(ctx)
	a.janitorCancel = cancel
	a.janitorDone = make(chan struct{})
	go a.runJanitor(janitorCtx)

	log.Printf("Listening on %s", a.httpServer.Addr)
	if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// runJanitor periodically evicts ended sessions past the retention window.
// Evicted sessions remain resolvable through the archive.
func (a *Application) runJanitor(ctx context.Context) {
	defer close(a.janitorDone)

	ticker := time.NewTicker(a.config.Session.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := a.registry.Sweep(time.Now(), a.config.Session.RetentionWindow); removed > 0 {
				log.Printf("Janitor evicted %d ended sessions", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts the application down in reverse dependency order. Live
// countdowns are cancelled, not terminated; sessions are left as-is.
func (a *Application) Stop(ctx context.Context) error {
	log.Println("Shutting down...")

	var firstErr error

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		firstErr = err
	}

	if a.janitorCancel != nil {
		a.janitorCancel()
		select {
		case <-a.janitorDone:
		case <-ctx.Done():
		}
	}

	if err := a.hub.Stop(); err != nil && err != hub.ErrHubNotRunning {
		log.Printf("Hub shutdown error: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	a.engine.Stop()

	if err := a.db.Close(); err != nil {
		log.Printf("Database close error: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	log.Println("Shutdown complete")
	return firstErr
}
