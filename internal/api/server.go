// Package api exposes the PA evaluation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pa-evaluation-engine/internal/domain"
	"github.com/pa-evaluation-engine/internal/service"
)

// Server is the HTTP front end. All clinical logic lives in the service
// layer; handlers translate between HTTP and the evaluation pipeline.
type Server struct {
	logger     *logrus.Logger
	cfg        domain.ServerConfig
	evaluation *service.EvaluationService
	audit      domain.AuditStore
	router     *gin.Engine
	server     *http.Server
}

// NewServer creates the HTTP server. audit may be nil, in which case the
// evaluation-history endpoint reports the feature as unavailable.
func NewServer(logger *logrus.Logger, cfg *domain.Config, evaluation *service.EvaluationService, audit domain.AuditStore) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(rateLimitMiddleware(cfg.Server.RateLimit, cfg.Server.RateBurst))

	s := &Server{
		logger:     logger,
		cfg:        cfg.Server,
		evaluation: evaluation,
		audit:      audit,
		router:     router,
	}
	s.setupRoutes()
	return s
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/evaluations", s.handleEvaluate)
		v1.GET("/evaluations/patient/:id", s.handlePatientHistory)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// handleEvaluate runs a PA evaluation for the posted request.
func (s *Server) handleEvaluate(c *gin.Context) {
	var req domain.EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(domain.ErrCodeInvalidInput, "malformed request body", err.Error(), c))
		return
	}

	result, err := s.evaluation.Evaluate(c.Request.Context(), &req)
	if err != nil {
		var evalErr *domain.EvaluationError
		if errors.As(err, &evalErr) {
			status := http.StatusInternalServerError
			if evalErr.Code == domain.ErrCodeInvalidInput {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": evalErr})
			return
		}
		s.logger.WithError(err).Error("Evaluation failed")
		c.JSON(http.StatusInternalServerError, errorBody(domain.ErrCodeInternalServer, "evaluation failed", "", c))
		return
	}

	c.JSON(http.StatusOK, result)
}

// handlePatientHistory returns a patient's recent evaluations from the audit
// store.
func (s *Server) handlePatientHistory(c *gin.Context) {
	if s.audit == nil {
		c.JSON(http.StatusNotImplemented, errorBody(domain.ErrCodeDatabaseError, "evaluation history is not enabled", "", c))
		return
	}

	results, err := s.audit.GetByPatient(c.Request.Context(), c.Param("id"), 20)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load evaluation history")
		c.JSON(http.StatusInternalServerError, errorBody(domain.ErrCodeDatabaseError, "failed to load evaluation history", "", c))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"patient_id":  c.Param("id"),
		"evaluations": results,
		"count":       len(results),
	})
}

func errorBody(code, message, details string, c *gin.Context) gin.H {
	requestID, _ := c.Get("request_id")
	id, _ := requestID.(string)
	return gin.H{"error": domain.NewEvaluationError(code, message, details, id)}
}
