package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/optcalc/internal/metrics"
	"github.com/betbot/optcalc/internal/server"
	"github.com/betbot/optcalc/pkg/cache"
	"github.com/betbot/optcalc/pkg/config"
	"github.com/betbot/optcalc/pkg/logger"
	"github.com/betbot/optcalc/pkg/marketdata"
	"github.com/betbot/optcalc/pkg/optionsmath"
	"github.com/betbot/optcalc/pkg/ratelimit"
	"github.com/betbot/optcalc/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("OPTCALC_CONFIG"), "YAML config file path (optional)")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides config/env)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}

	logCfg := logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		LogByDay:   cfg.Log.ByDay,
		JSON:       cfg.Log.JSON,
	}
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	logger.StartLogRotationChecker(bgCtx, logCfg)

	store, err := newStore(bgCtx, cfg.Cache)
	if err != nil {
		logger.Errorf("init cache failed: %v", err)
		os.Exit(1)
	}

	if cfg.MarketData.Token == "" {
		logger.Warnf("market data token is empty, upstream calls will likely be rejected (set OPTCALC_MARKET_DATA_TOKEN)")
	}
	var provider marketdata.Provider = marketdata.NewTradierClient(marketdata.TradierConfig{
		BaseURL:    cfg.MarketData.BaseURL,
		Token:      cfg.MarketData.Token,
		Timeout:    cfg.MarketData.Timeout,
		RetryCount: cfg.MarketData.RetryCount,
	})
	provider = marketdata.NewLimitedProvider(provider, ratelimit.NewTokenBucket(cfg.MarketData.Burst, cfg.MarketData.RateLimit))
	provider = marketdata.NewCachedProvider(provider, store, cfg.Cache.QuoteTTL, cfg.Cache.ChainTTL)

	srv, err := server.New(server.Config{
		Provider: provider,
		Limits: optionsmath.Limits{
			MaxOptions:    cfg.Server.MaxOptions,
			MaxIncrements: cfg.Server.MaxIncrements,
		},
		RequestTimeout: cfg.Server.RequestTimeout,
		IndexSymbols:   cfg.Server.IndexSymbols,
		Mode:           cfg.Server.Mode,
	})
	if err != nil {
		logger.Errorf("init server failed: %v", err)
		os.Exit(1)
	}

	if cfg.Server.DebugListen != "" {
		if _, err := metrics.StartAsync(bgCtx, cfg.Server.DebugListen); err != nil {
			logger.Warnf("debug server not started: %v", err)
		} else {
			logger.Infof("debug server (expvar/pprof) listening on %s", cfg.Server.DebugListen)
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	shutdownMgr := shutdown.NewManager()
	shutdownMgr.OnShutdown("http", httpSrv.Shutdown)
	shutdownMgr.OnShutdown("cache", func(context.Context) error { return store.Close() })

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("optcalc listening on %s (market data: %s, cache: %s)",
			cfg.Server.Listen, cfg.MarketData.BaseURL, cfg.Cache.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-stopCh:
		logger.Infof("received signal %s, shutting down", sig)
	case err := <-errCh:
		logger.Errorf("http server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if !shutdownMgr.Shutdown(ctx) {
		logger.Warnf("shutdown did not complete within %s", cfg.Server.ShutdownTimeout)
	}
	logger.Info("server stopped")
}

func newStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	if cfg.Backend != "redis" {
		return cache.NewMemoryStore(cfg.QuoteTTL), nil
	}
	rs, err := cache.NewRedisStore(cfg.RedisURL, "optcalc:")
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		// 缓存不可用时仍可回源，仅告警
		logger.Warnf("redis ping failed, continuing without warm cache: %v", err)
	}
	return rs, nil
}
