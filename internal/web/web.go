// Package web exposes the calendar, task and home workflows over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderlyflow/internal/calendar"
	"orderlyflow/internal/config"
	appLog "orderlyflow/internal/log"
	"orderlyflow/internal/metrics"
)

// OwnerHeader selects the calendar owner for a request.
const OwnerHeader = "X-Owner-ID"

// Server provides the HTTP API.
type Server struct {
	cfg    *config.Config
	svc    *calendar.Service
	engine *gin.Engine
}

// NewServer constructs a Server and registers its routes.
func NewServer(cfg *config.Config, svc *calendar.Service) *Server {
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		engine: gin.New(),
	}
	s.engine.Use(recovery(), requestLogger(), metrics.Middleware())
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+cfg.Listen)
		s.engine.Use(s.basicAuth())
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")

	api.GET("/homes", s.handleListHomes)
	api.POST("/homes", s.handleCreateHome)

	api.GET("/tasks", s.handleListTasks)
	api.POST("/tasks", s.handleCreateTask)
	api.POST("/tasks/:id/complete", s.handleCompleteTask)

	api.GET("/events", s.handleListEvents)
	api.POST("/events", s.handleCreateEvent)
	api.POST("/events/preview", s.handlePreview)
	api.POST("/events/import", s.handleImport)
	api.GET("/events/:id", s.handleGetEvent)
	api.DELETE("/events/:id", s.handleDeleteEvent)

	api.GET("/series/:id", s.handleGetSeries)
	api.DELETE("/series/:id", s.handleDeleteSeries)

	api.GET("/calendar.ics", s.handleExport)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok\n")
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. Empty
// credentials disable it.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuth guards every route except /health.
func (s *Server) basicAuth() gin.HandlerFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="OrderlyFlow", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errResp{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// owner resolves the calendar owner. With basic auth enabled it is always
// the authenticated user and X-Owner-ID is ignored. Otherwise X-Owner-ID
// is used, then the configured default.
func (s *Server) owner(c *gin.Context) string {
	if s.basicAuthEnabled() {
		u, _, _ := c.Request.BasicAuth()
		return u
	}
	if id := c.GetHeader(OwnerHeader); id != "" {
		return id
	}
	return s.cfg.DefaultOwner
}

func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				metrics.TrackError("panic")
				appLog.Error("panic in handler", errors.New("panic"), "path", c.Request.URL.Path, "recovered", rec)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errResp{Error: "internal error"})
			}
		}()
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

type errResp struct {
	Error string `json:"error"`
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calendar.ErrValidation):
		c.JSON(http.StatusBadRequest, errResp{Error: err.Error()})
	case errors.Is(err, calendar.ErrNotFound):
		c.JSON(http.StatusNotFound, errResp{Error: "not found"})
	default:
		appLog.Error("request failed", err, "method", c.Request.Method, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, errResp{Error: "internal error"})
	}
}
