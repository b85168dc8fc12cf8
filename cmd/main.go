package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/handlers"
	"github.com/tesseract-hub/platform-health-monitor/internal/publisher"
	"github.com/tesseract-hub/platform-health-monitor/internal/services"
	ws "github.com/tesseract-hub/platform-health-monitor/internal/websocket"
)

func main() {
	// Initialize logger
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := log.ParseLevel(cfg.EffectiveLogLevel())
	if err != nil {
		log.WithError(err).WithField("level", cfg.LogLevel).Warn("Invalid LOG_LEVEL, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sinks, closers := buildSinks(cfg)
	notifier := services.NewNotifier(sinks...)

	// Initialize health monitor (in-memory)
	monitor := services.NewHealthMonitor(cfg, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitor.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start health monitoring")
	}

	hub := ws.NewHub(monitor, cfg.WebSocket)
	go hub.Run(notifier.Subscribe("websocket-hub"))

	handler := handlers.NewHandler(monitor, hub, cfg.WebSocket)
	router := handlers.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE and websocket connections are long lived
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"address":   cfg.ServerAddress,
			"platforms": len(cfg.Targets),
		}).Info("Starting platform health monitor")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	monitor.Stop()
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	notifier.Close()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("Failed to close event sink")
		}
	}

	log.Info("Server exited")
}

// buildSinks connects the optional NATS and Redis sinks. A sink that cannot
// connect is logged and skipped.
func buildSinks(cfg *config.Config) ([]services.EventSink, []io.Closer) {
	var (
		sinks   []services.EventSink
		closers []io.Closer
	)

	if cfg.NATS.Enabled {
		sink, err := publisher.NewNATSSink(cfg.NATS)
		if err != nil {
			log.WithError(err).Warn("NATS sink disabled")
		} else {
			sinks = append(sinks, publisher.NewBreakerSink(sink, time.Minute))
			closers = append(closers, sink)
		}
	}

	if cfg.Redis.Enabled {
		sink, err := publisher.NewRedisSink(cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("Redis sink disabled")
		} else {
			sinks = append(sinks, publisher.NewBreakerSink(sink, time.Minute))
			closers = append(closers, sink)
		}
	}

	return sinks, closers
}
