// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/solpayhub/payhub/internal/pay"
	"github.com/solpayhub/payhub/internal/settle"
	"github.com/solpayhub/payhub/internal/storage"
)

// Server exposes the payment and settlement boundary over HTTP. All
// retry cadence lives with the caller: every handler performs one
// bounded attempt and returns.
type Server struct {
	payments   *pay.Service
	settlement *settle.Engine
	positions  *PositionIntake
	engine     *gin.Engine
	httpServer *http.Server
	logger     *zap.Logger
}

func New(payments *pay.Service, settlement *settle.Engine, positions *PositionIntake, addr string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		payments:   payments,
		settlement: settlement,
		positions:  positions,
		engine:     engine,
		logger:     logger.Named("server"),
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.POST("/agent/insight", s.createPayment)
		api.POST("/agent/callback", s.confirmPayment)
		api.GET("/agent/revenue", s.revenue)
		api.POST("/positions", s.savePosition)
		api.GET("/cron/auto-sell", s.autoSell)
		api.GET("/health", s.health)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type createPaymentRequest struct {
	SubjectID string `json:"agentId"`
}

// createPayment answers 402 Payment Required with the offer: the
// content exists but is unpaid.
func (s *Server) createPayment(c *gin.Context) {
	var req createPaymentRequest
	_ = c.ShouldBindJSON(&req) // missing body means anonymous

	result, err := s.payments.CreateRequest(c.Request.Context(), req.SubjectID)
	if err != nil {
		s.logger.Error("Failed to create payment request", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment service unavailable"})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusPaymentRequired, result)
}

type confirmPaymentRequest struct {
	Reference string `json:"reference"`
}

// confirmPayment runs one resolve+verify attempt. "Pending" is a
// retry-later signal, not an error; a violation is a definitive
// rejection of this attempt but the request remains payable.
func (s *Server) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing reference"})
		return
	}

	result, err := s.payments.Confirm(c.Request.Context(), req.Reference)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		if violation, ok := pay.AsViolation(err); ok {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  "payment details mismatch",
				"reason": violation.Reason,
			})
			return
		}
		s.logger.Error("Payment confirmation failed",
			zap.String("reference", req.Reference),
			zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed"})
		return
	}

	if result.Status == pay.StatusPending {
		c.JSON(http.StatusPaymentRequired, gin.H{"status": pay.StatusPending})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) revenue(c *gin.Context) {
	report, err := s.payments.Revenue(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to build revenue report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revenue unavailable"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) savePosition(c *gin.Context) {
	var req PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	pos, err := s.positions.Save(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, errInvalidPosition) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("Failed to save position", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save position"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "position": pos})
}

// autoSell runs one settlement pass. The external scheduler owns the
// cadence.
func (s *Server) autoSell(c *gin.Context) {
	result, err := s.settlement.Run(c.Request.Context())
	if err != nil {
		s.logger.Error("Settlement pass failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settlement pass failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
