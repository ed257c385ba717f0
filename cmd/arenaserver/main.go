// Package main runs the arena server: the simulation loop, the line
// protocol listener and the admin HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/observability"
	"github.com/cory-johannsen/arena/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	rosterPath := flag.String("bots", "content/bots.yaml", "path to the bot roster YAML file (empty for none)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	var bots []string
	if *rosterPath != "" {
		bots, err = arena.LoadBotRoster(*rosterPath)
		if err != nil {
			logger.Fatal("loading bot roster", zap.Error(err))
		}
	}

	app, err := server.NewApp(cfg, bots, logger)
	if err != nil {
		logger.Fatal("building server", zap.Error(err))
	}

	logger.Info("arena server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("listen_addr", cfg.Listener.Addr()),
		zap.Bool("admin_enabled", cfg.Admin.Enabled),
		zap.Int("bots", len(bots)),
		zap.Float64("width", cfg.Arena.Width),
		zap.Float64("height", cfg.Arena.Height),
	)

	if err := app.Lifecycle().Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
