package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"tariff-sync/internal/api"
	"tariff-sync/internal/app"
	"tariff-sync/internal/config"
	"tariff-sync/internal/logging"
	"tariff-sync/internal/scheduler"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Debug().Msg("No .env file found")
	}

	if cfg.FastMode {
		log.Warn().Str("fetch", cfg.FetchCron).Str("sync", cfg.SyncCron).Msg("TEST_FAST enabled, publishing is preview only")
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}

	hub := api.NewEventHub()
	a.Sheets.SetNotifier(hub)

	sched, err := scheduler.New(a.Tariffs, a.Sheets, cfg.FetchCron, cfg.SyncCron)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	sched.Start()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok", "fast_mode": cfg.FastMode}
		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "database unavailable"
		}
		c.JSON(status, body)
	})
	r.GET("/ws", hub.ServeWS)

	api.SetupRoutes(r.Group("/api/v1"), a.Store, a.Tariffs, a.Sheets)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down")

	// let in-flight cycles finish before the database goes away
	done := sched.Stop()
	select {
	case <-done.Done():
	case <-time.After(time.Minute):
		log.Warn().Msg("Scheduled jobs still running after 1m, closing anyway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if strings.HasPrefix(c.Request.URL.Path, "/health") {
			return
		}
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
