// Package main is the agent execution engine's process entrypoint: it
// loads configuration, wires the Engine, and serves the Internal
// Coordination API and the websocket gateway until asked to stop
// (SPEC_FULL.md §8).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kandev/agentexec/internal/config"
	"github.com/kandev/agentexec/internal/engine"
	"github.com/kandev/agentexec/internal/obslog"
	"github.com/kandev/agentexec/internal/tracing"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv("AGENTEXEC_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := obslog.New(obslog.Config(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("starting agent execution engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Error("failed to build engine", zap.Error(err))
		os.Exit(1)
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Internal.Host, cfg.Internal.Port)
		log.Info("internal coordination api listening", zap.String("addr", addr))
		if err := eng.Coordinator().Start(ctx, addr); err != nil {
			log.Error("internal coordination api stopped", zap.Error(err))
		}
	}()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	wsHandler := eng.WebsocketHandler()
	router.GET("/ws/task/:id", wsHandler.HandleTaskStream)
	router.GET("/ws/console/:id", wsHandler.HandleConsoleStream)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "agentexec"})
	})

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("websocket gateway listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("websocket gateway stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("websocket gateway shutdown error", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}
}
