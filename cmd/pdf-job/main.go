package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfbatch/internal/common/config"
	logutil "github.com/edgecomet/pdfbatch/internal/common/logger"
	"github.com/edgecomet/pdfbatch/internal/merge"
	"github.com/edgecomet/pdfbatch/internal/render/chrome"
)

func main() {
	os.Exit(realMain(os.Args))
}

func realMain(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	logger, err := logutil.NewConsoleLogger(opts.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	_, _ = maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf))

	absPath, err := config.GetConfigPath(opts.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	cfg, err := config.Load(absPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	renderer, err := chrome.NewRenderer(cfg.ChromeConfig(), logger.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = execute(ctx, cfg, opts, renderer, merge.NewPDFPrimitive(), os.Stdout, logger.Logger)
	if err != nil {
		logger.Debug("Job finished with error", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
	}
	return exitCodeFor(err)
}
