package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/paramsweep/internal/storage"
)

// Server wraps the MCP SDK server and exposes read-only sweep inspection
// tools over a persistent store.
type Server struct {
	server *sdk.Server
	store  storage.Service
}

// Config holds server configuration.
type Config struct {
	Name      string // Server name (e.g., "paramsweep")
	Version   string // Server version
	StorePath string // SQLite store file
}

// NewServer creates a new MCP server with paramsweep tools.
func NewServer(cfg *Config) (*Server, error) {
	store, err := storage.NewSQLiteService(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server: mcpServer,
		store:  store,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.store.Close()

	return err
}

// Close closes the server and releases resources.
func (s *Server) Close() error {
	return s.store.Close()
}
