package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/bimcheck/internal/engine"
	"github.com/danielpatrickdp/bimcheck/internal/history"
	"github.com/danielpatrickdp/bimcheck/internal/report"
	"github.com/danielpatrickdp/bimcheck/internal/source"
)

// #region types
// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse reports liveness and the state of the current or latest run.
type HealthResponse struct {
	Status   string `json:"status"`
	RunState string `json:"runState"`
}

// StatsResponse pairs the aggregate statistics with the status icons used by the dashboard.
type StatsResponse struct {
	history.Stats
	LatestStatus string `json:"latestStatus,omitempty"`
	LatestIcon   string `json:"latestIcon,omitempty"`
}

// #endregion types

// #region server
// Server exposes the engine's reports and history over HTTP.
type Server struct {
	engine   *engine.Engine
	gatherer prometheus.Gatherer
	maxBody  int64
	logger   *zap.SugaredLogger
}

// NewServer wires handlers around eng. gatherer may be nil, in which case
// /metrics is not served. maxBody bounds POST /api/validate payloads.
func NewServer(eng *engine.Engine, gatherer prometheus.Gatherer, maxBody int64, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if maxBody <= 0 {
		maxBody = source.DefaultMaxFileBytes
	}
	return &Server{engine: eng, gatherer: gatherer, maxBody: maxBody, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the API on r.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", s.HandleHealth)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	g := r.Group("/api")
	g.GET("/dashboard", s.HandleDashboard)
	g.GET("/stats", s.HandleStats)
	g.GET("/reports/latest", s.HandleLatest)
	g.GET("/reports/latest/export.csv", s.HandleLatestCSV)
	g.POST("/validate", s.HandleValidate)
	g.DELETE("/history", s.HandleClearHistory)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugw("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// #endregion server

// #region handlers
// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", RunState: s.engine.State()})
}

// HandleDashboard handles GET /api/dashboard.
func (s *Server) HandleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Dashboard())
}

// HandleStats handles GET /api/stats.
func (s *Server) HandleStats(c *gin.Context) {
	resp := StatsResponse{Stats: s.engine.Stats()}
	if st := s.engine.Dashboard(); len(st.RecentRuns) > 0 {
		resp.LatestStatus = string(st.RecentRuns[0].Status)
		resp.LatestIcon = st.RecentRuns[0].Status.Icon()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleLatest handles GET /api/reports/latest.
func (s *Server) HandleLatest(c *gin.Context) {
	rep, ok := s.engine.Last()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no validation has run yet", Code: "NO_REPORT"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// HandleLatestCSV handles GET /api/reports/latest/export.csv.
func (s *Server) HandleLatestCSV(c *gin.Context) {
	rep, ok := s.engine.Last()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no validation has run yet", Code: "NO_REPORT"})
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="bimcheck-%s.csv"`, rep.RunID))
	c.Status(http.StatusOK)
	if err := report.WriteCSV(c.Writer, rep); err != nil {
		s.logger.Errorw("CSV export failed", "run_id", rep.RunID, "error", err)
	}
}

// HandleValidate handles POST /api/validate. The body is an element document,
// either {"label": ..., "elements": [...]} or a bare array. The optional
// label query parameter overrides the document label.
func (s *Server) HandleValidate(c *gin.Context) {
	if c.Request.Body == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body is empty", Code: "BAD_DOCUMENT"})
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Code: "TOO_LARGE"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "READ_FAILED"})
		return
	}

	doc, err := source.DecodeDocument(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "BAD_DOCUMENT"})
		return
	}
	label := c.Query("label")
	if label == "" {
		label = doc.Label
	}

	rep, err := s.engine.Validate(c.Request.Context(), label, doc.Elements)
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "RUN_IN_PROGRESS"})
	case err != nil:
		c.JSON(http.StatusBadGateway, rep)
	default:
		c.JSON(http.StatusOK, rep)
	}
}

// HandleClearHistory handles DELETE /api/history.
func (s *Server) HandleClearHistory(c *gin.Context) {
	st, err := s.engine.ClearHistory(c.Request.Context())
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "RUN_IN_PROGRESS"})
	case err != nil:
		s.logger.Warnw("History clear not persisted", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "PERSISTENCE_WRITE"})
	default:
		c.JSON(http.StatusOK, st)
	}
}

// #endregion handlers
