package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/patrion/internal/adapter/handler"
	"github.com/rl1809/patrion/internal/adapter/storage"
)

func runServer(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.db != nil && cfg.MySQL.AutoMigrate {
		if err := storage.Migrate(ctx, a.db, logger); err != nil {
			return err
		}
	}

	inventoryService := a.inventoryService()
	sectorService := a.sectorService()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := handler.NewMetrics(registry)

	var wg sync.WaitGroup
	grpcHandler := startHealthMonitor(ctx, &wg, inventoryService, cfg.GetHealthInterval(), logger, metrics)

	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = grpc.NewServer()
		grpcHandler.Register(grpcServer)

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	httpHandler := handler.NewHTTPHandler(inventoryService, sectorService, logger, metrics, cfg.Media.MaxUploadBytes)
	httpServer := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: handler.Router(httpHandler, handler.RouterOptions{
			AllowedOrigins:     cfg.HTTP.AllowedOrigins,
			RequestTimeout:     cfg.GetRequestTimeout(),
			RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
			UploadsDir:         a.uploadsDir,
			Gatherer:           registry,
			Metrics:            metrics,
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case listenErr = <-serveErr:
		if listenErr != nil {
			logger.Error("HTTP server error", zap.Error(listenErr))
		}
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	if grpcServer != nil {
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}

	wg.Wait()
	logger.Info("servers stopped")
	return listenErr
}

// startHealthMonitor keeps the store_up gauge and the gRPC health status current
// until ctx is cancelled. It runs even when no gRPC listener is configured.
func startHealthMonitor(ctx context.Context, wg *sync.WaitGroup, store handler.Pinger, interval time.Duration, log *zap.Logger, metrics *handler.Metrics) *handler.GRPCHandler {
	h := handler.NewGRPCHandler(store, interval, log, metrics)
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()
	return h
}
