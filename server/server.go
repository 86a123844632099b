// Package server exposes the research service over an OpenAI-compatible
// streaming API plus a small set of inspection endpoints. It only translates
// requests and maps error kinds to status codes; all behavior lives in the
// service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sgrlab/deepresearch"
	"github.com/sgrlab/deepresearch/agent"
	"github.com/sgrlab/deepresearch/logging"
	"github.com/sgrlab/deepresearch/registry"
)

// Options configures the HTTP server.
type Options struct {
	// ModelAlias is the name advertised on /v1/models. Requests naming it
	// (or any unknown model string) create a fresh agent.
	ModelAlias string
}

// Server is the echo front for a research service.
type Server struct {
	svc    *deepresearch.Service
	logger *logging.ResearchLogger
	echo   *echo.Echo
	opts   Options
}

// New builds the server and registers all routes.
func New(svc *deepresearch.Service, logger *logging.ResearchLogger, optFns ...func(o *Options)) *Server {
	opts := Options{ModelAlias: "deepresearch"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		svc:    svc,
		logger: logger.WithComponent("server"),
		echo:   echo.New(),
		opts:   opts,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.HTTPErrorHandler = s.errorHandler

	s.echo.POST("/v1/chat/completions", s.chatCompletions)
	s.echo.GET("/v1/models", s.listModels)
	s.echo.GET("/agents", s.listAgents)
	s.echo.GET("/agents/:id/state", s.agentState)
	s.echo.POST("/agents/:id/clarification", s.clarification)
	s.echo.GET("/health", s.health)
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.logger.Info("HTTP server listening", "addr", addr)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, errorBody(msg, code))
	}
}

// httpError maps service error kinds onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, registry.ErrUnknownAgent):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrAgentBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, agent.ErrNotWaiting), errors.Is(err, agent.ErrTerminal):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func errorBody(msg string, code int) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "invalid_request_error",
			"code":    code,
		},
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}
