package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Aeglx/WeDrawOS-sub009/internal/api"
	"github.com/Aeglx/WeDrawOS-sub009/internal/config"
	"github.com/Aeglx/WeDrawOS-sub009/internal/dispatch"
	"github.com/Aeglx/WeDrawOS-sub009/internal/hub"
	"github.com/Aeglx/WeDrawOS-sub009/internal/lifecycle"
	"github.com/Aeglx/WeDrawOS-sub009/internal/notify"
	"github.com/Aeglx/WeDrawOS-sub009/internal/presence"
	"github.com/Aeglx/WeDrawOS-sub009/internal/storage"
	"github.com/Aeglx/WeDrawOS-sub009/internal/websocket"
	pkgdatabase "github.com/Aeglx/WeDrawOS-sub009/pkg/database"
)

// Application coordinates all system components.
type Application struct {
	config     *config.Config
	store      *storage.Store
	registry   *websocket.Registry
	index      *hub.Hub
	presence   *presence.Tracker
	dispatcher *dispatch.Dispatcher
	lifecycle  *lifecycle.Controller
	handler    *websocket.Handler
	monitor    *websocket.Monitor
	echo       *echo.Echo
	cancelBg   context.CancelFunc
}

// NewApplication wires the components in dependency order:
// store → presence → registry → index → dispatcher → lifecycle → handler → monitor → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.NewStore(&pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	tracker := presence.NewTracker()
	registry := websocket.NewRegistry()
	index := hub.NewHub(registry)

	dispatcher := dispatch.NewDispatcher(index, registry, tracker, store, notify.NewLogNotifier(),
		cfg.Chat.AutoReplyDelayMin, cfg.Chat.AutoReplyDelayMax)

	controller := lifecycle.NewController(store, index, registry, tracker, dispatcher, cfg.Chat.HistoryPageSize)

	handler := websocket.NewHandler(
		websocket.NewQueryAuthenticator(),
		registry, index, tracker, dispatcher, controller, store,
		cfg.WebSocket.BufferSize, cfg.WebSocket.WriteTimeout,
	)

	monitor := websocket.NewMonitor(registry, cfg.Chat.IdleTimeout, cfg.Chat.CheckInterval, handler.Disconnect)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/ws", handler.HandleWebSocket)
	api.NewServer(registry, index, tracker, controller, store).RegisterRoutes(e)

	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout

	return &Application{
		config:     cfg,
		store:      store,
		registry:   registry,
		index:      index,
		presence:   tracker,
		dispatcher: dispatcher,
		lifecycle:  controller,
		handler:    handler,
		monitor:    monitor,
		echo:       e,
	}, nil
}

// Start launches the liveness monitor and the HTTP server.
func (app *Application) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port)
	log.Printf("Starting chat server on %s", addr)

	bgCtx, cancel := context.WithCancel(ctx)
	app.cancelBg = cancel

	app.monitor.Start(bgCtx)
	go app.limiterCleanupLoop(bgCtx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.monitor.Stop()
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Chat server started")
		return nil
	case <-ctx.Done():
		app.monitor.Stop()
		cancel()
		return ctx.Err()
	}
}

// limiterCleanupLoop prunes idle rate-limit windows.
func (app *Application) limiterCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.dispatcher.CleanupLimiter()
		case <-ctx.Done():
			return
		}
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP → monitor → connections → store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down chat server")

	if err := app.echo.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.monitor.Stop()
	if app.cancelBg != nil {
		app.cancelBg()
	}

	for _, conn := range app.registry.Connections() {
		app.handler.Disconnect(conn)
	}

	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("Chat server shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return fmt.Sprintf("%s:%d", app.config.HTTP.Host, app.config.HTTP.Port)
}
