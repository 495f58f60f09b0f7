// Package server exposes the local control API: status and readiness
// queries, operator restart/stop, an event stream, and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/sidekick/internal/manager"
	"github.com/loykin/sidekick/internal/metrics"
)

// Router provides embeddable HTTP handlers over a Manager.
// Endpoints:
//
//	GET  {basePath}/status    composite status of both services
//	GET  {basePath}/ready     200 when the primary is ready, 503 otherwise
//	GET  {basePath}/events    long-poll for the next lifecycle event
//	POST {basePath}/restart   query: name=... (default: primary)
//	POST {basePath}/stop      ordered shutdown of both services
//	GET  /metrics             Prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *manager.Manager
	basePath string

	// onStop, when set, is invoked after a successful POST /stop so the
	// daemon can exit its run loop.
	onStop func()
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(mgr *manager.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// OnStop registers a callback fired after the stop endpoint completes.
func (r *Router) OnStop(fn func()) { r.onStop = fn }

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/ready", r.handleReady)
	group.GET("/events", r.handleEvents)
	group.POST("/restart", r.handleRestart)
	group.POST("/stop", r.handleStop)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *manager.Manager) *http.Server {
	r := NewRouter(mgr, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.mgr.Status())
}

func (r *Router) handleReady(c *gin.Context) {
	if !r.mgr.IsReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// handleEvents delivers the next lifecycle event, or times out with 204
// after the wait window. Clients poll in a loop; dropped intermediate
// events are recovered by re-reading /status.
func (r *Router) handleEvents(c *gin.Context) {
	wait := 30 * time.Second
	if s := c.Query("wait"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid wait: " + err.Error()})
			return
		}
		wait = d
	}

	events, cancel := r.mgr.Events()
	defer cancel()

	ctx, cancelWait := context.WithTimeout(c.Request.Context(), wait)
	defer cancelWait()

	select {
	case ev, ok := <-events:
		if !ok {
			c.JSON(http.StatusGone, errorResp{Error: "supervisor stopped"})
			return
		}
		c.JSON(http.StatusOK, ev)
	case <-ctx.Done():
		c.Status(http.StatusNoContent)
	}
}

func (r *Router) handleRestart(c *gin.Context) {
	name := c.Query("name")
	if err := r.mgr.Restart(c.Request.Context(), name); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, manager.ErrUnknownService) {
			code = http.StatusNotFound
		}
		c.JSON(code, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	r.mgr.Stop(c.Request.Context())
	c.JSON(http.StatusOK, okResp{OK: true})
	if r.onStop != nil {
		r.onStop()
	}
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
