package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pos-register/internal/ai"
	"go-pos-register/internal/auth"
	"go-pos-register/internal/cache"
	"go-pos-register/internal/catalog"
	"go-pos-register/internal/checkout"
	"go-pos-register/internal/config"
	"go-pos-register/internal/database"
	"go-pos-register/internal/handlers"
	"go-pos-register/internal/heldorder"
	"go-pos-register/internal/inventory"
	"go-pos-register/internal/logging"
	"go-pos-register/internal/metrics"
	"go-pos-register/internal/server"
	"go-pos-register/internal/shift"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop); err != nil {
		stop()
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("server stopped")
	}
}

// run wires the register and serves until ctx is cancelled. Startup
// failures are returned; stop is called if the listener dies.
func run(ctx context.Context, stop context.CancelFunc) error {
	cfg, foundEnv, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.LogFormat, cfg.LogLevel)
	if !foundEnv {
		log.Warn().Msg("no .env file found, using process environment")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(database.Options{
		DSN:     cfg.DBDSN,
		Retries: cfg.DBConnectRetries,
		LogSQL:  cfg.DBLogSQL,
	}, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	scope, err := shift.ParseScope(cfg.CashSalesScope)
	if err != nil {
		return err
	}

	m := metrics.New()
	if sqlDB, err := db.DB(); err == nil {
		if err := m.RegisterDBStats(sqlDB, "pos"); err != nil {
			log.Warn().Err(err).Msg("db pool metrics disabled")
		}
	}
	ledger := inventory.NewLedger(db, log, cfg.LockTimeout)
	catalogSvc := catalog.NewService(db, log, cfg.LockTimeout)
	shifts := shift.NewManager(db, log, shift.Policy{CashSalesScope: scope, LockTimeout: cfg.LockTimeout}, shift.WithRecorder(m))

	engineOpts := []checkout.Option{checkout.WithRecorder(m)}
	if cfg.RedisAddr != "" {
		rdb, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, checkout idempotency disabled")
		} else {
			defer func() {
				if err := rdb.Close(); err != nil {
					log.Warn().Err(err).Msg("redis close")
				}
			}()
			engineOpts = append(engineOpts, checkout.WithIdempotency(cache.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)))
			log.Info().Str("addr", cfg.RedisAddr).Msg("checkout idempotency enabled")
		}
	}
	engine := checkout.NewEngine(db, ledger, log, checkout.Config{LockTimeout: cfg.LockTimeout}, engineOpts...)

	var assistant handlers.Assistant
	if cfg.GeminiAPIKey != "" {
		agent, err := ai.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, ai.Deps{
			DB:        db,
			Inventory: ledger,
			Catalog:   catalogSvc,
			Shifts:    shifts,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("assistant disabled")
		} else {
			defer agent.Close()
			assistant = agent
		}
	}

	const uploadDir = "./uploads"
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	h := handlers.New(handlers.Deps{
		DB:        db,
		Users:     auth.NewUsers(db, log),
		Tokens:    tokens,
		Catalog:   catalogSvc,
		Inventory: ledger,
		Checkout:  engine,
		Shifts:    shifts,
		Held:      heldorder.NewStore(db, log, cfg.LockTimeout),
		Assistant: assistant,
		UploadDir: uploadDir,
		BaseURL:   cfg.BaseURL,
		Log:       log,
	})

	router := server.NewRouter(h, tokens, m, log, server.Options{
		CORSOrigins:       cfg.CORSOrigins,
		AllowRegistration: cfg.AllowRegistration,
		UploadDir:         uploadDir,
		WebDir:            "./web",
	})

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.AppAddr).Str("base_url", cfg.BaseURL).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
