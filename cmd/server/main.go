package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pulseapp/pulse-backend/internal/config"
	"github.com/pulseapp/pulse-backend/internal/db"
	routes "github.com/pulseapp/pulse-backend/internal/http"
	"github.com/pulseapp/pulse-backend/internal/models"
	"github.com/pulseapp/pulse-backend/internal/profile"
	"github.com/pulseapp/pulse-backend/internal/pulse"
	"github.com/pulseapp/pulse-backend/internal/ws"
)

func main() {
	// Allows running in production without a .env file.
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalw("failed to load configuration", "err", err)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "err", err)
	}

	sugar.Info("running database migrations")
	if err := database.AutoMigrate(models.All()...); err != nil {
		sugar.Fatalw("failed to run migrations", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(sugar)
	go hub.Run(ctx)

	profiles := profile.NewClient(cfg.ProfileBaseURL)
	defer profiles.Close()
	sessions := profile.NewClient(cfg.AuthBaseURL)
	defer sessions.Close()

	opts := pulse.Options{
		PostLifetime: cfg.PostLifetime,
		RevealGrace:  cfg.RevealGrace,
		Retention:    cfg.Retention,
	}
	svc := pulse.NewService(database, sugar, profiles, hub, opts)

	sweeper := pulse.NewSweeper(database, sugar, cfg.SweepInterval, opts)
	go sweeper.Run(ctx)

	router := gin.New()
	env := &routes.Env{Svc: svc, Hub: hub, Log: sugar}
	routes.SetupRoutes(router, env, sessions, cfg.CORSOrigin)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infow("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("listen failed", "err", err)
		}
	}()

	<-quit
	sugar.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalw("forced shutdown", "err", err)
	}

	sugar.Info("server exiting")
}
