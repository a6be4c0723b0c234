// Command vivoor-api serves wallet login and on-chain payment verification.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vivoor/vivoor-api/internal/cache"
	"github.com/vivoor/vivoor-api/internal/chain"
	"github.com/vivoor/vivoor-api/internal/config"
	"github.com/vivoor/vivoor-api/internal/events"
	"github.com/vivoor/vivoor-api/internal/handlers"
	"github.com/vivoor/vivoor-api/internal/logging"
	"github.com/vivoor/vivoor-api/internal/migrate"
	"github.com/vivoor/vivoor-api/internal/services"
	"github.com/vivoor/vivoor-api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := store.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate.Up(ctx, db.GetDB().DB); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	// Redis is optional; without it caches and events stay in process.
	authOpts := []services.AuthOption{services.WithAuthLogger(logger)}
	var revocations services.RevocationCache = cache.NewMemoryCache()
	var nonces services.NonceCache = cache.NewMemoryCache()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		rc := cache.NewRedisCache(redisClient)
		revocations, nonces = rc, rc
		logger.Info("redis enabled")
	}
	authOpts = append(authOpts, services.WithRevocationCache(revocations))
	if cfg.Auth.NonceReplayProtection {
		authOpts = append(authOpts, services.WithNonceCache(nonces))
	}

	ps, err := events.NewPubSub(redisClient, events.NewZapLogger(logger))
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	defer ps.Close()
	publisher := events.NewWatermillPublisher(ps.Publisher)
	authOpts = append(authOpts, services.WithAuthEvents(publisher))

	// Repositories
	users := store.NewUserRepository(db)
	sessions := store.NewSessionRepository(db)
	payments := store.NewPaymentRepository(db)
	tips := store.NewTipRepository(db)

	// Services
	key, err := hex.DecodeString(cfg.Auth.UserIDKey)
	if err != nil {
		return fmt.Errorf("auth.user_id_key: %w", err)
	}
	cipher, err := services.NewUserIDCipher(key)
	if err != nil {
		return err
	}
	wallet := services.NewWalletService()
	indexer := chain.NewClientFromConfig(cfg.Chain, logger)
	verifier := services.NewTxVerifier(indexer, payments, cfg.Chain.TrustWalletDestination, logger)

	authService := services.NewAuthService(users, sessions, wallet, cipher, cfg.Auth, authOpts...)
	paymentService := services.NewPaymentService(verifier, payments, publisher, cfg.Chain.TreasuryAddress, logger)
	tipService := services.NewTipService(verifier, tips, wallet, publisher, cfg.Chain.MinTipSompi, logger)
	chatService := services.NewChatService(verifier, payments, wallet, cfg.Chain.ChatFeeSompi, logger)
	addressService := services.NewAddressService(indexer, wallet)

	// Live tip alerts
	hub := handlers.NewHub(cfg.Server.AllowedOrigins, logger)
	go hub.Run(ctx)
	if err := events.SubscribeTips(ctx, ps.Subscriber, logger, hub.BroadcastTip); err != nil {
		return err
	}

	router := handlers.NewRouter(handlers.Deps{
		Auth:           authService,
		Payments:       paymentService,
		Tips:           tipService,
		Chat:           chatService,
		Addresses:      addressService,
		Hub:            hub,
		DB:             db,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	logger.Info("shutting down", zap.Duration("timeout", timeout))
	return srv.Shutdown(shutdownCtx)
}
