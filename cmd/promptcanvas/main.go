package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"promptcanvas/internal/analytics"
	"promptcanvas/internal/api"
	"promptcanvas/internal/blob"
	"promptcanvas/internal/config"
	"promptcanvas/internal/inference"
	"promptcanvas/internal/logger"
	"promptcanvas/internal/metrics"
	"promptcanvas/internal/mirror"
	"promptcanvas/internal/quota"
	"promptcanvas/internal/scheduler"
	"promptcanvas/internal/store"
)

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// corsConfig builds the browser cross-origin policy: the configured origins
// in production, any origin in debug mode.
func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Content-Type", "Authorization"}
	if cfg.Debug {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	return corsCfg
}

func main() {
	// Load a local .env if present; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg, warning, err := config.LoadConfig("config.yaml")
	if err != nil {
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Logger initialized", "level", cfg.LogLevel, "debug_mode", cfg.Debug)
	if warning != "" {
		log.Warn(warning)
	}

	st, err := store.New(cfg.Storage.DataDir, log)
	if err != nil {
		log.Error("Error initializing store", "error", err)
		os.Exit(1)
	}

	quotaOpts := []quota.Option{quota.WithPolicy(quota.Policy{
		Authenticated: cfg.Limits.Authenticated,
		Anonymous:     cfg.Limits.Anonymous,
	})}
	if cfg.Storage.FailClosed {
		quotaOpts = append(quotaOpts, quota.WithFailClosed())
	}
	tracker, err := quota.NewTracker(cfg.Storage.DataDir, log, quotaOpts...)
	if err != nil {
		log.Error("Error initializing usage tracker", "error", err)
		os.Exit(1)
	}

	an, err := analytics.NewTracker(cfg.Storage.DataDir, log)
	if err != nil {
		log.Error("Error initializing analytics", "error", err)
		os.Exit(1)
	}

	uploader, err := blob.NewS3Uploader(context.Background(), cfg.S3, log)
	if err != nil {
		log.Error("Error initializing object storage", "error", err)
		os.Exit(1)
	}
	if !uploader.Enabled() {
		log.Warn("Object storage not configured, images will be served inline")
	}

	// The relational mirror is optional; without a database the JSON store
	// carries everything.
	var mir mirror.Service
	if cfg.Database.Type != "" {
		mir, err = mirror.NewService(cfg.Database)
		if err != nil {
			log.Error("Error initializing database mirror", "error", err)
			os.Exit(1)
		}
		log.Info("Database mirror initialized", "type", cfg.Database.Type)
	}

	generator := inference.NewClient(cfg.Together, log)

	sched := scheduler.NewScheduler(st, log)
	if err := sched.Start(); err != nil {
		log.Error("Error starting scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()
	log.Info("Scheduler started")

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(customRecovery(log))
	router.Use(metrics.Middleware())
	router.Use(cors.New(corsConfig(cfg)))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	handler := api.NewHandler(cfg, st, tracker, generator, uploader, mir, an, log)
	api.SetupRoutes(router, handler, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// The context gives the server 5 seconds to finish in-flight requests.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Write a final snapshot before exiting.
	st.Snapshot()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exiting")
}
