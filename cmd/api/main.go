package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/lootview/wallet-portfolio/internal/adapter"
	"github.com/lootview/wallet-portfolio/internal/api/middleware"
	"github.com/lootview/wallet-portfolio/internal/api/server"
	"github.com/lootview/wallet-portfolio/internal/cache"
	"github.com/lootview/wallet-portfolio/internal/config"
	"github.com/lootview/wallet-portfolio/internal/logger"
	"github.com/lootview/wallet-portfolio/internal/providers/ethereum"
	"github.com/lootview/wallet-portfolio/internal/providers/vendors/gamemarket"
	"github.com/lootview/wallet-portfolio/internal/providers/vendors/listings"
	"github.com/lootview/wallet-portfolio/internal/providers/vendors/pricefeed"
	"github.com/lootview/wallet-portfolio/internal/ratelimit"
	"github.com/lootview/wallet-portfolio/internal/reconcile"
	"github.com/lootview/wallet-portfolio/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "portfolio-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting wallet portfolio API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, 0); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	journal := store.NewPGStore(db)

	// Connect to Redis
	redisClient := adapter.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx); err != nil {
		logger.FatalCtx(ctx, "Failed to connect to Redis", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Shared adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()
	httpClient := adapter.NewHTTPClient(30*time.Second, jsonAdapter)

	// Vendor API rate limiter
	rateLimitProxy, err := ratelimit.NewProxy(cfg.RateLimiter, redisClient, clock)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create rate limiter", zap.Error(err))
	}
	defer rateLimitProxy.Close()

	// Ethereum chain client
	ethClient, err := adapter.NewEthClientDialer().Dial(ctx, cfg.Ethereum.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial Ethereum RPC", zap.Error(err))
	}
	chainClient := ethereum.NewClient(cfg.Ethereum, ethClient, clock)
	defer chainClient.Close()
	logger.InfoCtx(ctx, "Connected to Ethereum RPC", zap.String("chain_id", string(cfg.Ethereum.ChainID)))

	// Vendor clients
	marketClient := gamemarket.NewClient(httpClient, rateLimitProxy, cfg.Marketplace, jsonAdapter)
	listingFailures := listings.NewFailureCache(cfg.Listings.FailureCacheTTL, clock)
	listingsClient := listings.NewClient(httpClient, rateLimitProxy, cfg.Listings, listingFailures, clock, jsonAdapter)
	priceFeedClient := pricefeed.NewClient(httpClient, rateLimitProxy, cfg.PriceFeed, jsonAdapter)

	// Reconciliation pipeline
	resultCache := cache.New(redisClient, clock)
	pipeline := reconcile.NewPipeline(
		reconcile.NewResolver(chainClient),
		reconcile.NewRetriever(marketClient, cfg.Marketplace),
		chainClient,
		listingsClient,
		priceFeedClient,
		resultCache,
		journal,
		clock,
		cfg.Cache,
		cfg.Worker,
	)

	serverConfig := server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
	authConfig := middleware.AuthConfig{
		JWTPublicKey: cfg.Auth.JWTPublicKey,
		APIKeys:      cfg.Auth.APIKeys,
	}

	srv := server.New(serverConfig, pipeline, journal, authConfig)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.FatalCtx(ctx, "Server error", zap.Error(err))
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(ctx, err)
	}

	logger.InfoCtx(ctx, "Server stopped")
}
