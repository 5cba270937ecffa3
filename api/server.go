// Package api provides the HTTP layer: routing, middleware, and lifecycle
// for the chatbot backend.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/modelrelay/mcpchat/api/handlers"
	"github.com/modelrelay/mcpchat/api/middleware"
	"github.com/modelrelay/mcpchat/pkg/chat"
	"github.com/modelrelay/mcpchat/pkg/config"
	"github.com/modelrelay/mcpchat/pkg/log"
	"github.com/modelrelay/mcpchat/pkg/mcp"
)

// Server is the HTTP API server.
type Server struct {
	config  *config.Config
	chat    *chat.Service
	manager *mcp.Manager
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates the API server around the orchestration service.
func NewServer(cfg *config.Config, chatService *chat.Service, manager *mcp.Manager) *Server {
	s := &Server{
		config:  cfg,
		chat:    chatService,
		manager: manager,
	}
	s.setupRouter()

	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRouter() {
	if !log.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := log.WithComponent("api")

	s.router = gin.New()
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(logger))
	s.router.Use(middleware.Recovery(logger))

	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.setupRoutes()
}

func (s *Server) setupRoutes() {
	chatHandler := handlers.NewChatHandler(s.chat)
	mcpHandler := handlers.NewMCPHandler(s.chat, s.manager)

	api := s.router.Group("/api")
	{
		api.GET("/health", chatHandler.Health)
		api.POST("/chat", chatHandler.Chat)

		mcpGroup := api.Group("/mcp")
		{
			mcpGroup.GET("/status", mcpHandler.Status)
			mcpGroup.GET("/tools", mcpHandler.ListTools)
			mcpGroup.POST("/tools/call", mcpHandler.CallTool)

			mcpGroup.GET("/servers", mcpHandler.ListServers)
			mcpGroup.POST("/servers", mcpHandler.AddServer)
			mcpGroup.PUT("/servers/:name", mcpHandler.UpdateServer)
			mcpGroup.DELETE("/servers/:name", mcpHandler.RemoveServer)
			mcpGroup.POST("/servers/:name/enable", mcpHandler.EnableServer)
			mcpGroup.POST("/servers/:name/disable", mcpHandler.DisableServer)
			mcpGroup.POST("/servers/:name/reconnect", mcpHandler.ReconnectServer)

			mcpGroup.GET("/config/export", mcpHandler.ExportConfig)
			mcpGroup.POST("/config/import", mcpHandler.ImportConfig)
		}
	}
}

// Router exposes the configured engine, mainly for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Start runs the server until an interrupt or a listen error.
func (s *Server) Start() error {
	go s.handleShutdown()

	log.Infof("starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and disconnects tool servers.
func (s *Server) Stop() error {
	log.Info("shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.manager != nil {
		s.manager.Shutdown()
	}

	log.Info("API server stopped")
	return nil
}

func (s *Server) handleShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := s.Stop(); err != nil {
		log.Errf("error during shutdown: %v", err)
	}
}
