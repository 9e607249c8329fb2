package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/regulatory-assistant/internal/adapters/mcp"
	"github.com/kirillkom/regulatory-assistant/internal/bootstrap"
	"github.com/kirillkom/regulatory-assistant/internal/config"
	"github.com/kirillkom/regulatory-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the MCP stream.
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "mcp", logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.RetrievalUC, app.QueryUC, app.StatusUC, logger)
	s := tools.NewServer("regulatory-assistant", version)

	logger.Info("mcp_serving_stdio", "version", version)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
