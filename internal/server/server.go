// Package server wires the Odoo connection, access controller and handlers
// into an MCP server and runs it over stdio or streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/access"
	"github.com/ilcreatore32/godoo-mcp/internal/config"
	"github.com/ilcreatore32/godoo-mcp/internal/format"
	"github.com/ilcreatore32/godoo-mcp/internal/handlers"
	"github.com/ilcreatore32/godoo-mcp/internal/odoo"
)

// Name and Version identify the server to MCP clients.
const (
	Name    = "godoo-mcp"
	Version = "1.0.0"
)

// Server owns the session with the ERP and the MCP surface on top of it.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	conn      *odoo.Connection
	access    *access.Controller
	tools     *handlers.Tools
	workflows *handlers.Workflows
	resource  *handlers.Resource

	mcp *server.MCPServer
}

// New assembles a Server from configuration. No network traffic happens
// until Run.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	conn := odoo.NewConnection(cfg, logger)
	controller := access.NewController(cfg, conn.Database, logger)

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		conn:      conn,
		access:    controller,
		tools:     handlers.NewTools(conn, controller, cfg, logger),
		workflows: handlers.NewWorkflows(conn, controller, logger),
		resource:  handlers.NewResource(conn, controller, format.New(), cfg.DefaultLimit, cfg.MaxLimit, logger),
	}

	s.mcp = server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, true),
		server.WithLogging(),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// Run connects to the ERP, serves MCP traffic until ctx is cancelled or the
// transport closes, and disconnects on every exit path.
func (s *Server) Run(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}
	defer s.conn.Disconnect()

	if err := s.conn.Authenticate(ctx); err != nil {
		return err
	}
	s.logger.Info("session established",
		zap.String("op", "server.Run"),
		zap.String("database", s.conn.Database()),
		zap.String("server_version", s.conn.ServerVersion()),
		zap.String("transport", string(s.cfg.Transport)))

	switch s.cfg.Transport {
	case config.TransportStreamableHTTP:
		return s.serveHTTP(ctx)
	default:
		return s.serveStdio(ctx)
	}
}

func (s *Server) serveStdio(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	streamable := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithEndpointPath("/mcp"),
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamable)
	mux.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("op", "server.serveHTTP"), zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleHealth reports process liveness and ERP session state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	connection := map[string]interface{}{"connected": s.conn.Authenticated()}
	status := "healthy"
	if !s.conn.Authenticated() {
		status = "unhealthy"
	}
	if db := s.conn.Database(); db != "" {
		connection["database"] = db
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"version":    Version,
		"connection": connection,
	}); err != nil {
		s.logger.Debug("health encode failed", zap.Error(err))
	}
}
