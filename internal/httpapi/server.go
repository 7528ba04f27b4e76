// Package httpapi serves the document operations as a JSON HTTP API.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bull/pdfchat-server/internal/service"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// DocumentService is what the handlers need from service.Service.
type DocumentService interface {
	Upload(ctx context.Context, filename string, data []byte) (*service.UploadResult, error)
	Ask(ctx context.Context, id, question string) (*service.AskResult, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) (string, error)
	ClearAll(ctx context.Context) (*service.ClearResult, error)
	Health(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	MaxUploadBytes int64
	// DataDirs are replaced with their base names in error messages sent to clients.
	DataDirs []string
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8000,
		MaxUploadBytes: 50 << 20,
	}
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	svc        DocumentService
	logger     *slog.Logger
	maxUpload  int64
	scrubber   *scrubber
}

// NewServer creates a server with all routes registered.
func NewServer(cfg Config, svc DocumentService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}

	s := &Server{
		router:    http.NewServeMux(),
		svc:       svc,
		logger:    logger,
		maxUpload: cfg.MaxUploadBytes,
		scrubber:  newScrubber(cfg.DataDirs),
	}
	s.setupRoutes(cfg.MCP)

	handler := recovery(logger, requestLogging(logger, s.router))
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads and model calls can be slow; no write timeout.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(mcpHandler http.Handler) {
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("POST /upload", s.handleUpload)
	s.router.HandleFunc("POST /chat", s.handleChat)
	s.router.HandleFunc("GET /documents", s.handleListDocuments)
	s.router.HandleFunc("DELETE /documents/{document_id}", s.handleDeleteDocument)
	s.router.HandleFunc("DELETE /clear-all", s.handleClearAll)

	if mcpHandler != nil {
		s.router.Handle("/mcp", mcpHandler)
	}
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}
