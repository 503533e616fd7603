package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/common/config"
	logutil "github.com/edgecomet/pdfbatch/internal/common/logger"
	"github.com/edgecomet/pdfbatch/internal/common/metricsserver"
	"github.com/edgecomet/pdfbatch/internal/common/redis"
	"github.com/edgecomet/pdfbatch/internal/common/urlutil"
	"github.com/edgecomet/pdfbatch/internal/merge"
	"github.com/edgecomet/pdfbatch/internal/render/chrome"
	"github.com/edgecomet/pdfbatch/internal/render/metrics"
	"github.com/edgecomet/pdfbatch/internal/render/service"
)

func main() {
	configPath := flag.String("c", "configs/pdf-service.yaml", "Path to configuration file")
	flag.Parse()

	// Initialize logger (will be reconfigured from config)
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		panic(err)
	}

	initialLogger.Info("Loading configuration", zap.String("path", *configPath))

	absPath, err := config.GetConfigPath(*configPath)
	if err != nil {
		initialLogger.Fatal("Invalid config path", zap.Error(err))
	}

	cfg, err := config.Load(absPath)
	if err != nil {
		initialLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Uses INFO during startup if the configured level is higher
	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	logger := dynamicLogger.Logger

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("Failed to set GOMAXPROCS", zap.Error(err))
	}

	chromeConfig := cfg.ChromeConfig()
	if err := chromeConfig.Validate(); err != nil {
		logger.Fatal("Invalid Chrome configuration", zap.Error(err))
	}
	jobSlots := chromeConfig.BrowserSlots()

	logger.Info("PDF service starting",
		zap.String("id", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen),
		zap.Int("job_slots", jobSlots),
		zap.Int("sites", len(cfg.Sites)))

	var (
		reports *redis.ReportStore
		locks   *redis.SiteLock
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		reports = redis.NewReportStore(redisClient, cfg.Redis.ReportTTL.ToDuration(), cfg.Redis.Compression, logger)
		locks = redis.NewSiteLock(redisClient, logger)
		logger.Info("Report store and site locks enabled",
			zap.String("addr", cfg.Redis.Addr),
			zap.Duration("report_ttl", cfg.Redis.ReportTTL.ToDuration()))
	}

	renderer, err := chrome.NewRenderer(chromeConfig, logger)
	if err != nil {
		logger.Fatal("Failed to create renderer", zap.Error(err))
	}

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	metricsServer, err := metricsserver.Start(cfg.Metrics, metricsCollector, logger)
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}

	var resolver urlutil.Resolver
	if !cfg.Server.AllowPrivateTargets {
		resolver = net.DefaultResolver
	}

	handlers := service.NewHandlers(service.Options{
		Config:    cfg,
		Renderer:  renderer,
		Primitive: merge.NewPDFPrimitive(),
		Metrics:   metricsCollector,
		Limiter:   service.NewJobLimiter(jobSlots),
		Reports:   reports,
		Locks:     locks,
		Resolver:  resolver,
		Logger:    logger,
	})
	server := service.NewHTTPServer(cfg, service.CreateHTTPHandler(handlers))

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("listen", cfg.Server.Listen))
		if err := server.ListenAndServe(cfg.Server.Listen); err != nil {
			serverErrCh <- err
		}
	}()

	// Wait briefly for HTTP server to start listening
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-serverErrCh:
		logger.Fatal("HTTP server failed to start", zap.Error(err))
	default:
	}

	logger.Info("PDF service ready",
		zap.String("id", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen))

	dynamicLogger.SwitchToConfiguredLevel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErrCh:
		logger.Error("Server error", zap.Error(err))
	}

	dynamicLogger.EnsureInfoLevelForShutdown()
	logger.Info("Shutting down gracefully...")

	if metricsServer != nil {
		metricsShutdownCtx, metricsShutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.ShutdownWithContext(metricsShutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		metricsShutdownCancel()
	}

	// In-flight jobs may run up to their deadline
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ServerTimeout())
	defer shutdownCancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("PDF service stopped", zap.Int64("browsers_live", renderer.Live()))
}
