package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/frontend/handlers"
	"github.com/cory-johannsen/arena/internal/frontend/linenet"
	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/game/rng"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/settings"
	"github.com/cory-johannsen/arena/internal/gameserver"
	"github.com/cory-johannsen/arena/internal/gameserver/httpapi"
	"github.com/cory-johannsen/arena/internal/protocol"
)

// messageLogCapacity bounds the in-memory message log. Every entry is also
// written to the zap logger, so dropped entries remain in the process log.
const messageLogCapacity = 10000

// App is the assembled arena server.
type App struct {
	Settings *settings.Settings
	Log      *messages.Log
	Loop     *gameserver.Loop
	Clients  *session.Manager
	Acceptor *linenet.Acceptor
	// Admin is nil when the admin API is disabled.
	Admin *http.Server

	logger *zap.Logger
}

// NewApp builds every component from cfg and spawns bots. Nothing is
// started; use Lifecycle to run the app.
//
// Precondition: cfg.Validate() == nil.
func NewApp(cfg config.Config, bots []string, logger *zap.Logger) (*App, error) {
	st := settings.New(settings.FromConfig(cfg))
	log := messages.NewLog(logger, messageLogCapacity)

	sim := arena.New(arena.Options{
		Settings: st,
		Source:   rng.New(cfg.Arena.Seed),
		TickRate: cfg.Arena.TickRate,
		Logger:   logger,
		Messages: log,
	})
	for _, name := range bots {
		if _, err := sim.AddBot(name); err != nil {
			return nil, fmt.Errorf("spawning bot %q: %w", name, err)
		}
	}
	loop := gameserver.NewLoop(sim, cfg.Arena.TickRate, 0, logger)

	clients := session.NewManager()
	dispatcher := protocol.NewDispatcher(protocol.Deps{
		Game:                loop,
		Clients:             clients,
		Settings:            st,
		Log:                 log,
		Logger:              logger,
		AllowRemoteSettings: cfg.Listener.AllowRemoteSettings,
	}, nil)
	sessions := handlers.NewSessionHandler(dispatcher, loop, clients, st, log,
		handlers.LimitsFromConfig(cfg.Listener), logger)

	app := &App{
		Settings: st,
		Log:      log,
		Loop:     loop,
		Clients:  clients,
		Acceptor: linenet.NewAcceptor(cfg.Listener, sessions, logger),
		logger:   logger,
	}
	if cfg.Admin.Enabled {
		app.Admin = &http.Server{
			Addr:              cfg.Admin.Addr(),
			Handler:           httpapi.NewRouter(httpapi.RouterConfig{Game: loop, Log: log, Logger: logger}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return app, nil
}

// Lifecycle registers the simulation loop, the line acceptor and the admin
// API (when enabled). The loop starts first and stops last.
func (a *App) Lifecycle() *Lifecycle {
	lc := NewLifecycle(a.logger)
	lc.Add("simulation", &ContextService{RunFn: a.Loop.Run})
	lc.Add("lines", &FuncService{
		StartFn: a.Acceptor.ListenAndServe,
		StopFn:  a.Acceptor.Stop,
	})
	if a.Admin != nil {
		admin := a.Admin
		lc.Add("admin", &FuncService{
			StartFn: func() error {
				a.logger.Info("admin api listening", zap.String("addr", admin.Addr))
				if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			},
			StopFn: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := admin.Shutdown(ctx); err != nil {
					a.logger.Warn("admin api shutdown", zap.Error(err))
				}
			},
		})
	}
	return lc
}
