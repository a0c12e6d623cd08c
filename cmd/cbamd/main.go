package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/cbam-tracker/internal/app"
	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		common.NewLogger(common.LogConfig{}, os.Stderr).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, app.Options{Extractor: true, Users: true, History: true}, logger)
	if err != nil {
		logger.Error("failed to build app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// warm the reference table so the first request does not pay for the fetch
	logger.Info("reference table ready", "categories", a.Tables.Table(ctx).Len())

	srv := server.New(server.Deps{
		Accounts:    a.Users,
		Sessions:    a.Sessions,
		Analyzer:    a.Analyzer,
		Tables:      a.Tables,
		Reports:     a.Reports,
		History:     a.History,
		MaxUploadMB: cfg.Server.MaxUploadMB,
	}, logger)
	go srv.SweepSessions(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, healthServer := server.NewGRPCServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("cbamd listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("stopped.")
}
