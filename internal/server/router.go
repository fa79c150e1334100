package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/emuctl/internal/catalog"
	"github.com/loykin/emuctl/internal/lifecycle"
	"github.com/loykin/emuctl/internal/status"
)

// Lifecycle runs start and stop sequences by profile id.
type Lifecycle interface {
	Start(ctx context.Context, id string) ([]lifecycle.Outcome, error)
	Stop(ctx context.Context, id string) ([]lifecycle.Outcome, error)
}

// Reporter produces status snapshots by profile id ("" for all).
type Reporter interface {
	Snapshot(ctx context.Context, id string) (status.Snapshot, error)
}

// Router exposes the emulator control API.
// Endpoints (paths are matched case-insensitively):
//
//	GET  /                  service description
//	POST /start[/{id|all}]  start sequence
//	POST /stop[/{id|all}]   stop sequence
//	GET  /status[/{id}]     status snapshot
type Router struct {
	catalog  *catalog.Catalog
	lc       Lifecycle
	reporter Reporter
	logger   *slog.Logger
	port     int
}

// NewRouter wires the API to a catalog and its controller and reporter.
// port is only used to render the help document.
func NewRouter(cat *catalog.Catalog, lc Lifecycle, reporter Reporter, port int, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{catalog: cat, lc: lc, reporter: reporter, port: port, logger: logger}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.RedirectTrailingSlash = false
	g.HandleMethodNotAllowed = true
	g.Use(r.requestLog(), gin.CustomRecoveryWithWriter(nil, r.recovered), cors())

	g.GET("/", r.handleHelp)
	g.POST("/start", r.handleStart)
	g.POST("/start/:id", r.handleStart)
	g.POST("/stop", r.handleStop)
	g.POST("/stop/:id", r.handleStop)
	g.GET("/status", r.handleStatus)
	g.GET("/status/:id", r.handleStatus)

	g.NoRoute(func(c *gin.Context) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "endpoint not found"})
	})
	g.NoMethod(func(c *gin.Context) {
		writeJSON(c, http.StatusMethodNotAllowed, errorResp{Error: "method not allowed"})
	})
	return lowerPath(g)
}

// NewServer builds an HTTP server for the router. A non-nil tlsConfig
// makes ListenAndServe serve HTTPS.
func NewServer(addr string, r *Router, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: a start sequence waits out every emulator delay
		IdleTimeout: 60 * time.Second,
	}
}

// ListenAndServe serves until the server is shut down, returning nil on a
// clean shutdown.
func ListenAndServe(srv *http.Server) error {
	var err error
	if srv.TLSConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type failResp struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SequenceResp is the body of start and stop responses.
type SequenceResp struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Results []lifecycle.Outcome `json:"results"`
}

// SingleStatusResp is the status body of a single-server deployment.
type SingleStatusResp struct {
	Timestamp time.Time         `json:"timestamp"`
	Emulators []status.Emulator `json:"emulators"`
}

func (r *Router) handleStart(c *gin.Context) {
	id := c.Param("id")
	r.logger.Info("start requested", "server", targetName(id))
	// a sequence runs to completion even if the caller goes away
	outs, err := r.lc.Start(context.WithoutCancel(c.Request.Context()), id)
	if err != nil {
		r.writeResolveError(c, err)
		return
	}
	r.logCounts("start sequence completed", outs)
	writeJSON(c, http.StatusOK, SequenceResp{Success: true, Message: "start sequence completed", Results: nonNil(outs)})
}

func (r *Router) handleStop(c *gin.Context) {
	id := c.Param("id")
	r.logger.Info("stop requested", "server", targetName(id))
	outs, err := r.lc.Stop(context.WithoutCancel(c.Request.Context()), id)
	if err != nil {
		r.writeResolveError(c, err)
		return
	}
	r.logCounts("stop sequence completed", outs)
	writeJSON(c, http.StatusOK, SequenceResp{Success: true, Message: "stop sequence completed", Results: nonNil(outs)})
}

func (r *Router) handleStatus(c *gin.Context) {
	snap, err := r.reporter.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if r.catalog.Single() {
		resp := SingleStatusResp{Timestamp: snap.Timestamp, Emulators: []status.Emulator{}}
		if len(snap.Servers) > 0 {
			resp.Emulators = snap.Servers[0].Emulators
		}
		writeJSON(c, http.StatusOK, resp)
		return
	}
	if snap.Servers == nil {
		snap.Servers = []status.Server{}
	}
	writeJSON(c, http.StatusOK, snap)
}

func (r *Router) writeResolveError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrDisabled):
		code = http.StatusConflict
	}
	r.logger.Warn("request rejected", "path", c.Request.URL.Path, "error", err)
	writeJSON(c, code, failResp{Success: false, Error: err.Error()})
}

func (r *Router) logCounts(msg string, outs []lifecycle.Outcome) {
	attrs := []any{"results", len(outs)}
	for st, n := range lifecycle.Count(outs) {
		attrs = append(attrs, string(st), n)
	}
	r.logger.Info(msg, attrs...)
}

func (r *Router) recovered(c *gin.Context, rec any) {
	r.logger.Error("request panicked", "path", c.Request.URL.Path, "panic", rec)
	c.Abort()
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: panicMessage(rec)})
}

func targetName(id string) string {
	if id == "" {
		return catalog.AllProfiles
	}
	return id
}

func nonNil(outs []lifecycle.Outcome) []lifecycle.Outcome {
	if outs == nil {
		return []lifecycle.Outcome{}
	}
	return outs
}
