// Package http provides the HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application
// service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qanoonhq/lexflow/internal/application/service"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config      ServerConfig
	httpServer  *http.Server
	router      *gin.Engine
	definitions service.DefinitionService
	templates   service.CaseTemplateService
	instances   service.InstanceService
	progress    service.ProgressService
	logger      *zap.Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	definitions service.DefinitionService,
	templates service.CaseTemplateService,
	instances service.InstanceService,
	progress service.ProgressService,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:      config,
		router:      router,
		definitions: definitions,
		templates:   templates,
		instances:   instances,
		progress:    progress,
		logger:      logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("latency", latency.String()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.definitions, s.templates, s.instances, s.progress, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	// API routes. Every endpoint below requires the tenant header.
	api := s.router.Group("/api")
	api.Use(tenantMiddleware())
	{
		// Generic workflow definitions
		api.POST("/definitions", handlers.CreateDefinition)
		api.GET("/definitions", handlers.ListDefinitions)
		api.GET("/definitions/:id", handlers.GetDefinition)
		api.PATCH("/definitions/:id", handlers.UpdateDefinition)
		api.DELETE("/definitions/:id", handlers.DeleteDefinition)

		// Case workflow templates
		api.POST("/case-templates", handlers.CreateCaseTemplate)
		api.GET("/case-templates", handlers.ListCaseTemplates)
		api.GET("/case-templates/:id", handlers.GetCaseTemplate)
		api.PATCH("/case-templates/:id", handlers.UpdateCaseTemplate)
		api.DELETE("/case-templates/:id", handlers.DeleteCaseTemplate)

		// Generic workflow instances
		api.POST("/instances", handlers.StartInstance)
		api.GET("/instances", handlers.ListInstances)
		api.GET("/instances/:id", handlers.GetInstance)
		api.POST("/instances/:id/activate", handlers.ActivateInstance)
		api.POST("/instances/:id/advance", handlers.AdvanceInstance)
		api.POST("/instances/:id/pause", handlers.PauseInstance)
		api.POST("/instances/:id/resume", handlers.ResumeInstance)
		api.POST("/instances/:id/cancel", handlers.CancelInstance)
		api.POST("/instances/:id/fail", handlers.FailInstance)

		// Case stage progress
		api.POST("/cases/:caseId/progress", handlers.InitializeCase)
		api.GET("/cases/:caseId/progress", handlers.GetCaseProgress)
		api.POST("/cases/:caseId/progress/move", handlers.MoveToStage)
		api.POST("/cases/:caseId/progress/requirements", handlers.CompleteRequirement)
	}
}

// tenantMiddleware rejects requests missing the tenant header. The actor
// header is optional; mutations record it when present.
func tenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "missing X-Tenant-ID header",
			})
			return
		}
		c.Set(ctxTenantID, tenantID)
		c.Set(ctxActor, c.GetHeader("X-Actor-ID"))
		c.Next()
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
