// Package server is the HTTP and WebSocket shell over the debate engine.
// Handlers translate transport concerns only; all debate semantics live in
// the engine.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neo/arbiter_backend/internal/engine"
	"github.com/neo/arbiter_backend/internal/events"
	"github.com/neo/arbiter_backend/internal/logging"
)

type Server struct {
	router      *gin.Engine
	manager     *engine.DebateManager
	broadcaster *events.Broadcaster
	httpServer  *http.Server
}

// NewServer wires the routes over the shared manager and broadcaster
func NewServer(manager *engine.DebateManager, broadcaster *events.Broadcaster) *Server {
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, HEAD")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	server := &Server{
		router:      router,
		manager:     manager,
		broadcaster: broadcaster,
	}

	api := router.Group("/api")
	{
		api.POST("/debates", server.createDebate)
		api.GET("/debates", server.listDebates)
		api.GET("/debates/:id", server.getDebate)
		api.GET("/debates/:id/status", server.getDebateStatus)
		api.POST("/debates/:id/start", server.startDebate)
		api.GET("/debates/:id/export", server.exportDebate)
		api.DELETE("/debates/:id", server.deleteDebate)
		api.GET("/providers", server.listProviders)
		api.GET("/personas", server.listPersonas)
		api.GET("/ws/:id", server.handleDebateWebSocket)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return server
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until it stops
func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	logging.Info("HTTP server listening", map[string]interface{}{"addr": addr})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.Shutdown()
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
