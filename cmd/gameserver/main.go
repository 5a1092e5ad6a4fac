// Package main provides the game server binary: the WebSocket room server,
// the admin gRPC server, and optional match history persistence.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wizwac/internal/admin"
	"github.com/cory-johannsen/wizwac/internal/config"
	"github.com/cory-johannsen/wizwac/internal/frontend/ws"
	"github.com/cory-johannsen/wizwac/internal/gateway"
	"github.com/cory-johannsen/wizwac/internal/game/room"
	"github.com/cory-johannsen/wizwac/internal/game/roomcode"
	"github.com/cory-johannsen/wizwac/internal/history"
	"github.com/cory-johannsen/wizwac/internal/observability"
	"github.com/cory-johannsen/wizwac/internal/server"
	"github.com/cory-johannsen/wizwac/internal/session"
	"github.com/cory-johannsen/wizwac/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty = defaults and environment only")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration; missing is ignored")
	migrateOnStart := flag.Bool("migrate", true, "apply pending migrations when the database is enabled")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "gameserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = observability.Sync(logger) }()

	logger.Info("starting game server",
		zap.String("ws_addr", cfg.WebSocket.Addr()),
		zap.String("ws_path", cfg.WebSocket.Path),
		zap.Bool("admin", cfg.Admin.Enabled),
		zap.Bool("database", cfg.Database.Enabled),
	)

	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger, cfg.WebSocket.ShutdownTimeout+5*time.Second)

	var (
		recorder gateway.MatchRecorder = history.Nop{}
		matches  admin.MatchReader
	)
	if cfg.Database.Enabled {
		if *migrateOnStart {
			if err := postgres.MigrateUp(cfg.Database.DSN()); err != nil {
				logger.Fatal("applying migrations", zap.Error(err))
			}
		}

		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)

		rec := history.NewRecorder(postgres.NewMatchRepository(pool.DB()), history.Options{
			QueueSize:    cfg.History.QueueSize,
			WriteTimeout: cfg.History.WriteTimeout,
		}, logger)
		recorder, matches = rec, rec

		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
		lifecycle.Add("history", rec)
	}

	rooms := room.NewRegistry(roomcode.NewCryptoSource(), cfg.Rooms.CodeAttempts, logger)
	sessions := session.NewManager(cfg.WebSocket.OutboxSize, logger)
	gw := gateway.New(rooms, sessions, recorder, logger)

	if cfg.Admin.Enabled {
		svc := admin.NewService(gw, matches, cfg.History.RecentLimit, logger)
		lifecycle.Add("admin", admin.NewServer(cfg.Admin, svc, logger))
	}
	lifecycle.Add("websocket", ws.NewAcceptor(cfg.WebSocket, gw, logger))

	logger.Info("game server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
