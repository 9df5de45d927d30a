// Package server exposes the thin HTTP surface in front of the job store: the
// event export endpoint that feeds the pipeline, the access-token check and a
// stored-content summary. All heavy lifting stays in the stage watchers.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otherstuff/craigd/config"
	"github.com/otherstuff/craigd/internal/cvm"
	"github.com/otherstuff/craigd/internal/store"
)

type Server struct {
	Cfg    *config.Config
	Store  *store.Store
	Runner cvm.Runner
	Log    *log.Logger

	echo *echo.Echo
}

func New(cfg *config.Config, st *store.Store, runner cvm.Runner, logger *log.Logger) *Server {
	s := &Server{Cfg: cfg, Store: st, Runner: runner, Log: logger}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.Log.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/export-events", s.exportEvents)
	api.POST("/access-check", s.accessCheck)
	api.POST("/summary", s.summary)

	s.echo = e
	return s
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *Server) Start() error {
	addr := s.Cfg.Server.Address
	s.Log.Printf("listening on %s", addr)
	return s.echo.Start(addr)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler { return s.echo }
