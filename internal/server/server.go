// Package server exposes the scanner as a small JSON API
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commjoen/domainposture/internal/target"
	"github.com/commjoen/domainposture/pkg/models"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 30 * time.Second
)

// Scanner scans one domain
type Scanner interface {
	Scan(ctx context.Context, domain string) (models.ScanReport, error)
}

// Config configures the API server
type Config struct {
	Addr string
	// RateLimit is the requests per second allowed per client (0 = disabled)
	RateLimit float64
	RateBurst int
	// WriteTimeout must leave room for a full scan
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Server serves the scan API
type Server struct {
	cfg      Config
	scanner  Scanner
	engine   *gin.Engine
	limiters *rateLimiterMap
	logger   *zap.Logger
}

type scanRequest struct {
	Domain string `json:"domain" binding:"required"`
}

// New builds the router. The limiter cleanup loop runs only while Run is active.
func New(cfg Config, scanner Scanner) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = time.Minute
	}

	s := &Server{
		cfg:      cfg,
		scanner:  scanner,
		engine:   gin.New(),
		limiters: newRateLimiterMap(),
		logger:   cfg.Logger,
	}

	// Client IPs come from the connection, not from forwarding headers
	_ = s.engine.SetTrustedProxies(nil)

	s.engine.Use(requestID(), s.withLogging(), gin.Recovery(), s.withRateLimit())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/scan", s.handleScan)
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go s.limiters.cleanupLoop(loopCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server shutdown gracefully")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "App is running")
}

func (s *Server) handleScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a domain field"})
		return
	}

	report, err := s.scanner.Scan(c.Request.Context(), req.Domain)
	if err != nil {
		if errors.Is(err, target.ErrInvalidDomain) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.requestLogger(c).Error("scan failed", zap.String("domain", req.Domain), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) withLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.requestLogger(c).Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *Server) withRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip rate limiting if disabled
		if s.cfg.RateLimit <= 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		limiter := s.limiters.getLimiter(clientIP, s.cfg.RateLimit, s.cfg.RateBurst)
		if !limiter.Allow() {
			s.requestLogger(c).Warn("rate_limit_exceeded", zap.String("client_ip", clientIP))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

func (s *Server) requestLogger(c *gin.Context) *zap.Logger {
	if id := RequestIDFrom(c); id != "" {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}
