// Package server exposes the research engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deepscribe/config"
	"deepscribe/internal/engine"
	"deepscribe/internal/store"
)

// Server wires the engine and store behind an echo instance.
type Server struct {
	engine *engine.Engine
	store  store.ReportStore // nil when no backend is configured
	cfg    *config.Config
	logger *log.Logger
}

// New builds a server. st may be nil; report endpoints then return 503.
func New(eng *engine.Engine, st store.ReportStore, cfg *config.Config) *Server {
	return &Server{
		engine: eng,
		store:  st,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	}
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/research", s.research)
	api.GET("/reports", s.listReports)
	api.GET("/reports/:id", s.getReport)

	s.logger.Printf("listening on %s", s.cfg.Server.Address)
	return e.Start(s.cfg.Server.Address)
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
	if !c.Response().Committed {
		_ = c.JSON(code, map[string]interface{}{"error": msg})
	}
}

func (s *Server) health(c echo.Context) error {
	if s.store != nil {
		if err := s.store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		}
	}
	return c.String(http.StatusOK, "ok")
}

type researchRequest struct {
	Query         string `json:"query"`
	Detail        string `json:"detail"`
	Breadth       int    `json:"breadth"`
	MaxExpansions *int   `json:"max_expansions"`
	MaxWorkers    int    `json:"max_workers"`
	Legend        bool   `json:"legend"`
}

// research runs a full research pass synchronously. Long queries are
// expected; callers control the deadline through the request context.
func (s *Server) research(c echo.Context) error {
	var req researchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	opts := s.defaultOptions()
	opts.Query = req.Query
	if req.Detail != "" {
		opts.Detail = engine.DetailLevel(req.Detail)
	}
	if req.Breadth > 0 {
		opts.Breadth = req.Breadth
	}
	if req.MaxExpansions != nil {
		opts.MaxExpansions = *req.MaxExpansions
	}
	if req.MaxWorkers > 0 {
		opts.MaxWorkers = req.MaxWorkers
	}
	if req.Legend {
		opts.Legend = true
	}
	if err := opts.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := s.engine.Run(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if s.store != nil {
		if err := s.store.SaveReport(context.WithoutCancel(c.Request().Context()), res); err != nil {
			s.logger.Printf("saving report %s: %v", res.RunID, err)
		}
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) listReports(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no report store configured")
	}
	recs, err := s.store.ListReports(c.Request().Context(), 50)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []store.ReportRecord{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (s *Server) getReport(c echo.Context) error {
	if s.store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no report store configured")
	}
	rec, err := s.store.GetReport(c.Request().Context(), c.Param("id"))
	if err == store.ErrNotFound {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) defaultOptions() engine.RunOptions {
	return engine.RunOptions{
		Detail:        engine.DetailLevel(s.cfg.Research.Detail),
		Breadth:       s.cfg.Research.Breadth,
		MaxExpansions: s.cfg.Research.MaxExpansions,
		MaxWorkers:    s.cfg.Research.MaxWorkers,
		Legend:        s.cfg.Research.Legend,
	}
}
