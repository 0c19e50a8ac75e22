package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibd"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/export"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
)

func main() {
	var grpcAddr string
	var httpAddr string
	var logLevel string
	var sqlitePath string
	var callbackRetries int
	var callbackDelay time.Duration
	var callbackBackoff string

	flag.StringVar(&grpcAddr, "grpc-addr", ":50051", "gRPC listen address")
	flag.StringVar(&httpAddr, "http-addr", ":8080", "HTTP listen address")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&sqlitePath, "sqlite", "", "sqlite database runs are mirrored into (empty disables)")
	flag.IntVar(&callbackRetries, "callback-retries", 3, "retries of a failed completion callback")
	flag.DurationVar(&callbackDelay, "callback-retry-delay", time.Second, "delay before the first callback retry")
	flag.StringVar(&callbackBackoff, "callback-backoff", "exponential", "callback retry backoff (exponential or constant)")
	flag.Parse()

	logger.SetDefault(logger.New(logLevel, os.Stdout))

	backoff, err := calibd.CallbackBackoff(callbackBackoff, callbackDelay)
	if err != nil {
		logger.Error("invalid callback settings", "error", err)
		os.Exit(2)
	}
	if callbackRetries < 0 {
		logger.Error("invalid callback settings", "error", "callback-retries cannot be negative")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	notifier := calibd.NewNotifier(calibd.WithRetries(callbackRetries), calibd.WithBackoff(backoff))
	opts := []calibd.ExecutorOption{calibd.WithNotifier(notifier)}
	if sqlitePath != "" {
		db, err := export.OpenSQLite(sqlitePath)
		if err != nil {
			logger.Error("failed to open sqlite", "path", sqlitePath, "error", err)
			stop()
			os.Exit(1)
		}
		defer db.Close()
		opts = append(opts, calibd.WithPersistence(db))
		logger.Info("persisting runs", "sqlite", sqlitePath)
	}

	store := calibd.NewRunStore()
	executor := calibd.NewRunExecutor(store, opts...)

	// TODO: add TLS and authentication before exposing the daemon outside a trusted network.
	grpcServer := grpc.NewServer()
	calibd.RegisterCalibrationServiceServer(grpcServer, calibd.NewCalibrationGRPCServer(store, executor))

	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", grpcAddr, "error", err)
		stop()
		os.Exit(1)
	}

	// No WriteTimeout: progress streams stay open for the whole run.
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           calibd.NewHTTPServer(store, executor).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", grpcAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Error("run shutdown error", "error", err)
	}
}
