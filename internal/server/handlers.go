// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/ksr-verse/MCP/internal/errors"
	"github.com/ksr-verse/MCP/internal/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// defaultUserID keys conversations for chat requests that omit user_id.
const defaultUserID = "default"

// router builds the gin engine with all routes mounted.
func (s *Server) router() *gin.Engine {
	if !s.config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.POST("/chat", s.handleChat)
	router.GET("/mcp/status", s.handleMCPStatus)

	// MCP SSE transport. The handler serves both the event stream and the
	// per-session message endpoint on the same path.
	sseHandler := mcp.NewSSEHandler(func(_ *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
	router.GET("/mcp/sse", gin.WrapH(sseHandler))
	router.POST("/mcp/sse", gin.WrapH(sseHandler))

	// Static chat front end, when present.
	if _, err := os.Stat(s.webDir); err == nil {
		router.Static("/web", s.webDir)
		router.StaticFile("/chat-ui", filepath.Join(s.webDir, "index.html"))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return router
}

// handleRoot reports service identity.
func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "running",
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
	})
}

// handleHealth reports liveness plus subsystem readiness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"service":        s.config.Server.Name,
		"llm_configured": s.config.LLMAPIKey() != "",
		"mcp_active":     true,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// handleChat runs one chat turn through the orchestrator.
func (s *Server) handleChat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be empty"})
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}

	s.logger.Infof("Chat request from %s: %s", userID, req.Message)

	result, err := s.orchestrator.Handle(c.Request.Context(), req.Message, s.history(userID))
	if err != nil {
		if errors.IsKind(err, errors.KindValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Errorf("Chat turn failed for %s: %v", userID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": upstreamMessage(err)})
		return
	}

	s.storeHistory(userID, result.Messages)

	c.JSON(http.StatusOK, model.ChatResponse{
		Response:    result.Reply,
		ActionTaken: result.ActionTaken,
	})
}

// handleMCPStatus reports the tool-calling subsystem status.
func (s *Server) handleMCPStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active":      true,
		"server_name": s.config.Server.Name,
		"tools":       s.registry.Names(),
	})
}

// upstreamMessage maps an orchestration failure to a user-facing message
// without leaking provider internals.
func upstreamMessage(err error) string {
	if errors.IsKind(err, errors.KindConfiguration) {
		return "The assistant is not fully configured. Please contact your administrator."
	}
	return "The assistant is temporarily unavailable. Please try again."
}
