// Package api exposes a scan.Controller over HTTP for a host process.
//
// Routes (all JSON):
//
//	GET  /api/scan           current snapshot
//	POST /api/scan/start     202, 409 when a scan is in flight, 400 on a bad body
//	POST /api/scan/pause     200, 409 when rejected
//	POST /api/scan/resume    200, 409 when rejected
//	POST /api/scan/cancel    200, 409 when rejected
//	GET  /api/scan/events    WebSocket; one JSON snapshot per state change
//	GET  /api/system         host CPU and memory load
//
// Control rejections are not errors: the controller answers false and the
// handler reports 409 with the phase that caused it.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/ivoronin/dupevid/internal/pathfilter"
	"github.com/ivoronin/dupevid/internal/scan"
	"github.com/ivoronin/dupevid/internal/throttle"
)

const writeTimeout = 10 * time.Second

var logger = logging.Get("api")

// Defaults fill fields a start request leaves empty.
type Defaults struct {
	Roots      []string // Only existing entries are used
	Extensions []string
	CPUCeiling float64
	BatchSize  int
	Workers    int
	Filter     *pathfilter.Filter
}

// StartRequest is the body of POST /api/scan/start. Every field is optional.
type StartRequest struct {
	Roots      []string `json:"roots"`
	Extensions []string `json:"extensions"`
	CPUCeiling float64  `json:"cpu_ceiling" binding:"omitempty,gt=0,lte=100"`
	BatchSize  int      `json:"batch_size" binding:"omitempty,gt=0"`
	Workers    int      `json:"workers" binding:"omitempty,gt=0"`
}

// Status is a snapshot with derived fields for clients.
type Status struct {
	scan.State
	ProgressPercent float64 `json:"progress"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
}

// NewStatus derives a Status from s.
func NewStatus(s scan.State) Status {
	return Status{
		State:           s,
		ProgressPercent: s.Progress(),
		ElapsedSeconds:  s.Elapsed(time.Now()).Seconds(),
	}
}

// Server serves the control surface of one Controller.
type Server struct {
	ctrl     *scan.Controller
	sampler  throttle.Sampler
	defaults Defaults
	upgrader websocket.Upgrader
	router   *gin.Engine
}

// New creates a Server. A nil sampler reads the host through gopsutil.
func New(ctrl *scan.Controller, sampler throttle.Sampler, defaults Defaults) *Server {
	if sampler == nil {
		sampler = throttle.Host{}
	}
	s := &Server{
		ctrl:     ctrl,
		sampler:  sampler,
		defaults: defaults,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool {
				return true // The host UI is served from a different origin
			},
		},
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLogger())
	s.RegisterRoutes(s.router.Group("/api"))
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// RegisterRoutes registers scan and system routes under router.
func (s *Server) RegisterRoutes(router *gin.RouterGroup) {
	scanGroup := router.Group("/scan")
	{
		scanGroup.GET("", s.getScan)
		scanGroup.POST("/start", s.startScan)
		scanGroup.POST("/pause", s.control("pause", s.ctrl.Pause))
		scanGroup.POST("/resume", s.control("resume", s.ctrl.Resume))
		scanGroup.POST("/cancel", s.control("cancel", s.ctrl.Cancel))
		scanGroup.GET("/events", s.events)
	}
	router.GET("/system", s.getSystem)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getScan(c *gin.Context) {
	c.JSON(http.StatusOK, NewStatus(s.ctrl.Snapshot()))
}

func (s *Server) startScan(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := s.options(req)
	if !s.ctrl.Start(opts) {
		c.JSON(http.StatusConflict, gin.H{
			"error": "scan already in progress",
			"phase": s.ctrl.Snapshot().Phase,
		})
		return
	}
	c.JSON(http.StatusAccepted, NewStatus(s.ctrl.Snapshot()))
}

// options merges req over the server defaults.
func (s *Server) options(req StartRequest) scan.Options {
	opts := scan.Options{
		Roots:             req.Roots,
		Extensions:        req.Extensions,
		CPUCeilingPercent: req.CPUCeiling,
		BatchSize:         req.BatchSize,
		Workers:           req.Workers,
		Filter:            s.defaults.Filter,
	}
	if len(opts.Roots) == 0 {
		opts.Roots = scan.ExistingRoots(s.defaults.Roots)
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = s.defaults.Extensions
	}
	if opts.CPUCeilingPercent == 0 {
		opts.CPUCeilingPercent = s.defaults.CPUCeiling
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = s.defaults.BatchSize
	}
	if opts.Workers == 0 {
		opts.Workers = s.defaults.Workers
	}
	return opts
}

// control adapts a boolean controller operation to a handler.
func (s *Server) control(name string, op func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !op() {
			phase := s.ctrl.Snapshot().Phase
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("cannot %s while %s", name, phase),
				"phase": phase,
			})
			return
		}
		c.JSON(http.StatusOK, NewStatus(s.ctrl.Snapshot()))
	}
}

func (s *Server) getSystem(c *gin.Context) {
	c.JSON(http.StatusOK, throttle.Sample(c.Request.Context(), s.sampler))
}

// events streams snapshots over a WebSocket until either side goes away.
func (s *Server) events(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.ctrl.Subscribe()
	if sub == nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeTimeout))
		return
	}
	defer s.ctrl.Unsubscribe(sub.ID)
	logger.Debug("event stream opened", "subscriber", sub.ID, "remote", c.Request.RemoteAddr)

	// Reads only detect the peer closing; clients send nothing meaningful
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			logger.Debug("event stream closed by peer", "subscriber", sub.ID)
			return
		case state, ok := <-sub.Events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(NewStatus(state)); err != nil {
				logger.Debug("event stream write failed", "subscriber", sub.ID, "err", err)
				return
			}
		}
	}
}

// requestLogger logs each request through the api component logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
