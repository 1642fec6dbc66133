package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/di"
	"mentorchat/backend/pkg/health"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/router"
	"mentorchat/backend/shared/observability"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env, "store", cfg.Store.Driver)

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		var err error
		shutdownTracing, err = observability.SetupTracing(observability.ServiceName, os.Stdout)
		if err != nil {
			log.LogError(err, "Failed to set up tracing")
			os.Exit(1)
		}
	}

	db, err := config.NewDB(cfg, log.Logger)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	container, err := di.New(cfg, db, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	container.Health.Start()

	r := router.New(container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}
	grpcServer := health.NewGRPCServer(container.Health)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
		if err != nil {
			return err
		}
		log.Info("gRPC health server starting", "port", cfg.GRPC.Port)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		grpcServer.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.LogError(err, "Server forced to shutdown")
		}
		r.Close()
		container.Close(shutdownCtx)
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.LogError(err, "Failed to flush traces")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.LogError(err, "Server stopped with error")
		os.Exit(1)
	}

	log.Info("Server exited gracefully")
}
