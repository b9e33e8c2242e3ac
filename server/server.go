// Package server exposes read-only HTTP views over the collector for the
// web/report layer. The collector itself is in-process; there is no
// ingest endpoint.
package server

import (
	"context"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"perflog/aggregate"
	"perflog/collector"
	"perflog/event"
)

var (
	respHealthOK   = map[string]string{"status": "ok"}
	errUnknownKind = map[string]string{"error": "unknown event kind"}
	errExportFail  = map[string]string{"error": "failed to export metric store"}
)

// Server wraps an echo instance serving the performance endpoints.
type Server struct {
	col  *collector.Collector
	log  *zap.Logger
	echo *echo.Echo
}

// summaryEntry is one bucket snapshot with its key flattened in, so the
// JSON body is a plain list the report layer can render directly.
type summaryEntry struct {
	Kind    event.Kind `json:"kind"`
	Subject string     `json:"subject"`
	aggregate.Snapshot
}

// New registers all routes and returns the server, ready to Start.
func New(col *collector.Collector, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{col: col, log: log, echo: e}

	api := e.Group("/api/v1")
	api.GET("/health", s.health)
	api.GET("/performance/summary", s.summaryAll)
	api.GET("/performance/summary/:kind", s.summaryKind)
	api.GET("/performance/export", s.export)
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("performance API listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, respHealthOK)
}

func (s *Server) summaryAll(c echo.Context) error {
	all := s.col.SummaryAll()
	entries := make([]summaryEntry, 0, len(all))
	for k, snap := range all {
		entries = append(entries, summaryEntry{Kind: k.Kind, Subject: k.Subject, Snapshot: snap})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Subject < entries[j].Subject
	})
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) summaryKind(c echo.Context) error {
	kind, err := event.ParseKind(c.Param("kind"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errUnknownKind)
	}
	// ?subject= narrows the merge down to one exact bucket.
	if subject := c.QueryParam("subject"); subject != "" {
		return c.JSON(http.StatusOK, s.col.Summary(kind, subject))
	}
	return c.JSON(http.StatusOK, s.col.SummaryKind(kind))
}

func (s *Server) export(c echo.Context) error {
	events, err := s.col.Export(c.Request().Context())
	if err != nil {
		s.log.Error("export failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errExportFail)
	}
	if events == nil {
		events = []event.Event{}
	}
	return c.JSON(http.StatusOK, events)
}
