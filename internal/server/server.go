// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ksr-verse/MCP/internal/agent"
	"github.com/ksr-verse/MCP/internal/config"
	"github.com/ksr-verse/MCP/internal/errors"
	"github.com/ksr-verse/MCP/internal/logging"
	"github.com/ksr-verse/MCP/internal/model"
	"github.com/ksr-verse/MCP/internal/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// defaultWebDir is where the static chat front end lives relative to the
// working directory.
const defaultWebDir = "./web"

// Server exposes the support bot over HTTP: the chat endpoint, health and
// status endpoints, the static front end, and the MCP SSE transport.
type Server struct {
	orchestrator   *agent.Orchestrator
	registry       *tools.Registry
	mcpServer      *mcp.Server
	httpServer     *http.Server
	config         *config.Config
	logger         *logging.Logger
	webDir         string
	stopCh         chan struct{}
	wg             sync.WaitGroup
	shutdownMutex  sync.Mutex
	isShuttingDown bool

	// conversations holds per-user chat history for the process lifetime
	conversationsMu sync.Mutex
	conversations   map[string][]model.ChatMessage
}

// NewServer creates the HTTP + MCP server.
func NewServer(cfg *config.Config, orchestrator *agent.Orchestrator, registry *tools.Registry, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}

	// Create MCP server; the same tool registry backs both the LLM
	// orchestration and the MCP surface.
	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)

	return &Server{
		orchestrator:  orchestrator,
		registry:      registry,
		mcpServer:     mcpSrv,
		config:        cfg,
		logger:        logger,
		webDir:        defaultWebDir,
		stopCh:        make(chan struct{}),
		conversations: make(map[string][]model.ChatMessage),
	}, nil
}

// Start registers the MCP tools, builds the router, and begins serving.
func (s *Server) Start(ctx context.Context) error {
	s.registerToolsDeclarative()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router()}

	s.logger.Infof("Starting %s on %s", s.config.Server.Name, addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Error running HTTP server: %v", err)
		}
	}()

	// Listen for context cancellation
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping server: %v", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()

	// Return early if the server is already being shut down
	if s.isShuttingDown {
		s.logger.Debugf("Stop called but server is already shutting down, ignoring")
		return nil
	}

	s.isShuttingDown = true

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return errors.Internal(fmt.Errorf("error shutting down HTTP server: %w", err))
		}
	}

	// Only close stopCh if it hasn't been closed yet
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.wg.Wait()
	return nil
}

// Done returns a channel closed when the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.stopCh
}

// history returns a copy of the conversation for userID.
func (s *Server) history(userID string) []model.ChatMessage {
	s.conversationsMu.Lock()
	defer s.conversationsMu.Unlock()
	stored := s.conversations[userID]
	out := make([]model.ChatMessage, len(stored))
	copy(out, stored)
	return out
}

// storeHistory replaces the conversation for userID.
func (s *Server) storeHistory(userID string, msgs []model.ChatMessage) {
	s.conversationsMu.Lock()
	defer s.conversationsMu.Unlock()
	s.conversations[userID] = msgs
}
