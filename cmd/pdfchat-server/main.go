// Package main provides the HTTP server entry point for PDF question answering.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bull/pdfchat-server/internal/app"
	"github.com/bull/pdfchat-server/internal/config"
	"github.com/bull/pdfchat-server/internal/httpapi"
	"github.com/bull/pdfchat-server/internal/logging"
	mcpserver "github.com/bull/pdfchat-server/internal/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pdfchat-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	httpCfg := httpapi.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		DataDirs:       app.DataDirs(cfg),
	}

	// MCP over streamable HTTP for remote clients, mounted next to the JSON API
	if cfg.MCPEnabled {
		mcp := mcpserver.NewServer(&mcpserver.Config{
			Service: a.Service,
			Version: httpapi.Version,
		})
		httpCfg.MCP = mcpserver.NewHTTPHandler(mcp, nil)
	}

	server := httpapi.NewServer(httpCfg, a.Service, logger)
	return server.Run(ctx)
}
