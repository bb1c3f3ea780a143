package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/config"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/badgerstore"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/directory"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/identity"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/postgres"
	serverhttp "github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/server/http"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/service"
	grpcx "github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/transport/grpc"
	httpx "github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/transport/http"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/transport/ws"
	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lcfg := logger.Config{
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Level:     logger.ParseLevel(cfg.Logging.Level),
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	}
	if cfg.Logging.Env != "" {
		lcfg.Env = logger.ParseEnv(cfg.Logging.Env)
	}
	logger.Init(lcfg)
	slog.Info("starting chat-service",
		slog.String("version", cfg.Logging.Version),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("auth", cfg.Auth.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("chat-service stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// --- storage + directory ---
	store, dir, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	cached, err := directory.NewCached(dir, cfg.Directory.CacheSize, cfg.Directory.CacheTTL)
	if err != nil {
		return fmt.Errorf("directory cache: %w", err)
	}
	defer cached.Close()

	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	// --- registry, router, service ---
	registry := ws.NewRegistry()
	router := ws.NewRouter(registry)
	chatSvc := service.NewChatService(store, cached, router, cfg.Chat.MaxContentLength)

	wsServer := ws.NewServer(registry, router, chatSvc, verifier, ws.Options{
		PingInterval:   cfg.WS.PingInterval,
		WriteTimeout:   cfg.WS.WriteTimeout,
		SendBuffer:     cfg.WS.SendBuffer,
		InboxBuffer:    cfg.WS.InboxBuffer,
		ReadLimit:      cfg.WS.ReadLimit,
		AllowedOrigins: cfg.WS.AllowedOrigins,
	})

	// --- gRPC ---
	if cfg.GRPC.Addr != "" {
		grpcSrv := grpcx.New(cfg.GRPC.Addr, chatSvc, verifier)
		if err := grpcSrv.Start(ctx); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			grpcSrv.Stop(stopCtx)
		}()
	}

	// --- HTTP (REST + WS) ---
	handler := httpx.NewRouter(httpx.Deps{
		Chat:           chatSvc,
		Verifier:       verifier,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := serverhttp.New(serverhttp.Config{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, handler)
	httpSrv.OnShutdown(wsServer.Shutdown)

	return httpSrv.Run(ctx)
}

func openStorage(ctx context.Context, cfg *config.Config) (service.ChatStore, directory.Source, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		return postgres.NewChatStore(pool), postgres.NewDirectory(pool), pool.Close, nil

	case "badger":
		db, err := badgerstore.Open(badgerstore.Config{Path: cfg.Badger.Path, InMemory: cfg.Badger.InMemory})
		if err != nil {
			return nil, nil, nil, err
		}
		dir, err := directory.LoadStatic(cfg.Directory.SeedFile)
		if err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		closeDB := func() {
			if err := db.Close(); err != nil {
				slog.Error("badger close failed", slog.Any("err", err))
			}
		}
		return badgerstore.New(db), dir, closeDB, nil

	default:
		return nil, nil, nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
	}
}

func newVerifier(cfg config.Auth) (identity.Verifier, error) {
	if cfg.Mode != "jwt" {
		return identity.Trusted{}, nil
	}
	v, err := identity.NewJWTVerifier(cfg.JWTSecret, cfg.Issuer, cfg.Audience, cfg.ClockSkew)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	return v, nil
}
