package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/stacklume/fetchguard/internal/common/config"
	"github.com/stacklume/fetchguard/internal/common/logger"
	"github.com/stacklume/fetchguard/internal/common/metricsserver"
	"github.com/stacklume/fetchguard/internal/common/redis"
	"github.com/stacklume/fetchguard/internal/guard/dnscache"
	"github.com/stacklume/fetchguard/internal/guard/metrics"
	"github.com/stacklume/fetchguard/internal/guard/resolver"
	"github.com/stacklume/fetchguard/internal/guard/server"
	"github.com/stacklume/fetchguard/internal/guard/validator"
)

func main() {
	configPath := flag.String("c", "configs/guard-gateway.yaml", "path to configuration file")
	testMode := flag.Bool("t", false, "test configuration and exit")
	flag.Parse()

	if *testMode {
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "configuration test failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("configuration ok")
		os.Exit(0)
	}

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	initialLogger.Info("Starting guard-gateway", zap.String("config_path", *configPath))

	cfg, err := config.Load(*configPath)
	if err != nil {
		initialLogger.Fatal("Failed to load config", zap.Error(err))
	}

	appLogger, err := logger.NewLogger(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer appLogger.Sync()

	// Resolver chain: system resolver, optionally fronted by the Redis cache
	res := resolver.NewNetResolver()
	var redisClient *redis.Client
	if cfg.DNSCache.Enabled {
		redisClient, err = redis.NewClient(&cfg.DNSCache.Redis, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis for DNS cache", zap.Error(err))
		}
		defer redisClient.Close()

		res = dnscache.New(res, redisClient, cfg.DNSCache.TTL.ToDuration(), appLogger)
		appLogger.Info("DNS cache enabled",
			zap.String("redis_addr", cfg.DNSCache.Redis.Addr),
			zap.Duration("ttl", cfg.DNSCache.TTL.ToDuration()))
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace, appLogger)

	v, err := validator.New(cfg.Validator, res, collector.ObserveDNSLookup, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to build validator", zap.Error(err))
	}

	metricsServer, err := metricsserver.Start(
		cfg.Metrics.Enabled,
		cfg.Metrics.Listen,
		cfg.Metrics.Path,
		collector,
		appLogger,
	)
	if err != nil {
		appLogger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	srv := server.NewServer(cfg, v, collector, redisClient, appLogger)

	httpServer := &fasthttp.Server{
		Handler:      srv.HandleRequest,
		Name:         "fetchguard-gateway",
		ReadTimeout:  cfg.Server.Timeout.ToDuration(),
		WriteTimeout: cfg.Server.Timeout.ToDuration(),
	}

	go func() {
		appLogger.Info("Guard gateway listening", zap.String("listen", cfg.Server.Listen))
		if err := httpServer.ListenAndServe(cfg.Server.Listen); err != nil {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	appLogger.Info("Shutting down", zap.String("signal", sig.String()))

	if err := httpServer.Shutdown(); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(); err != nil {
			appLogger.Error("Metrics server shutdown failed", zap.Error(err))
		}
	}

	appLogger.Info("Shutdown complete")
}
