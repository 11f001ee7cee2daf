// Package server is the koisite development server. It serves the output
// directory, pushes live-reload messages over a websocket and replaces the
// page with an error overlay while the last build failed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/koisite/internal/build"
	"github.com/conneroisu/koisite/internal/config"
	"github.com/conneroisu/koisite/internal/logging"
	"github.com/conneroisu/koisite/internal/version"
)

const (
	wsPath     = "/__koisite/ws"
	healthPath = "/__koisite/health"
	statusPath = "/__koisite/status"
)

// Message types sent to the browser.
const (
	MessageReload     = "reload"
	MessageCSS        = "css"
	MessageBuildError = "build_error"
)

// Status is the build state the server reports. *build.Pipeline implements it.
type Status interface {
	Failures() []build.Result
	Last() map[string]build.Result
	Metrics() build.MetricsSnapshot
}

// Message is sent to every connected browser after a rebuild.
type Message struct {
	Type      string    `json:"type"`
	Task      string    `json:"task,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Server serves the built site with live reload.
type Server struct {
	config *config.Config
	status Status
	logger logging.Logger
	hub    *Hub

	httpServer  *http.Server
	serverMutex sync.RWMutex

	// failing is true while the previous notification reported failures,
	// so the next success forces a full reload to clear the overlay.
	failing   bool
	failMutex sync.Mutex

	shutdownOnce sync.Once
}

// New creates a server for cfg reporting on status.
func New(cfg *config.Config, status Status, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")
	return &Server{
		config: cfg,
		status: status,
		logger: logger,
		hub:    NewHub(logger),
	}
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *Hub { return s.hub }

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.config.Server.LiveReload {
		mux.HandleFunc(wsPath, s.handleWebSocket)
	}
	mux.HandleFunc(healthPath, s.handleHealth)
	mux.HandleFunc(statusPath, s.handleStatus)
	mux.HandleFunc("/", s.handleStatic)

	return s.addMiddleware(mux)
}

// Start runs the hub and serves HTTP until Shutdown is called or ctx is
// done.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := s.Addr()

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(context.Background(), err, "Shutdown failed")
		}
	}()

	if s.config.Server.Open {
		go s.openBrowser(ctx, "http://"+addr)
	}

	s.logger.Info(ctx, "Serving", "addr", "http://"+addr, "dir", s.config.OutputPath(),
		"live_reload", s.config.Server.LiveReload)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server. It is safe to call more than
// once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.hub.stop()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})
	return shutdownErr
}

// Notify tells connected browsers that the rule named task finished with
// err. A successful css rebuild swaps stylesheets in place unless the page
// is currently showing the overlay.
func (s *Server) Notify(task string, err error) {
	msg := Message{Task: task, Timestamp: time.Now().UTC()}

	s.failMutex.Lock()
	failures := s.currentFailures()
	switch {
	case err != nil || len(failures) > 0:
		msg.Type = MessageBuildError
		for _, f := range failures {
			msg.Errors = append(msg.Errors, f.Task+": "+f.Err.Error())
		}
		if len(msg.Errors) == 0 && err != nil {
			msg.Errors = []string{err.Error()}
		}
		s.failing = true
	case task == build.TaskCSS && !s.failing:
		msg.Type = MessageCSS
	default:
		msg.Type = MessageReload
		s.failing = false
	}
	s.failMutex.Unlock()

	data, merr := json.Marshal(msg)
	if merr != nil {
		s.logger.Error(context.Background(), merr, "Failed to encode reload message")
		return
	}
	s.hub.Broadcast(data)
}

func (s *Server) currentFailures() []build.Result {
	if s.status == nil {
		return nil
	}
	return s.status.Failures()
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	default:
		s.logger.Warn(ctx, fmt.Errorf("unsupported platform %s", runtime.GOOS), "Failed to open browser")
		return
	}

	if err := cmd.Start(); err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websockets.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")

		if r.URL.Path == wsPath {
			handler.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(rec, r)
		s.logger.Debug(r.Context(), "Request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}

type taskStatus struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Duration string    `json:"duration"`
	Started  time.Time `json:"started"`
	Outputs  []string  `json:"outputs,omitempty"`
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.Get().Short(),
		"clients":   s.hub.Count(),
		"failing":   len(s.currentFailures()),
	}
	s.writeJSON(w, r, health)
}

// handleStatus reports the last run of every task and the pipeline metrics.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tasks := map[string]taskStatus{}
	var metrics build.MetricsSnapshot
	if s.status != nil {
		for name, res := range s.status.Last() {
			ts := taskStatus{
				OK:       !res.Failed(),
				Duration: res.Duration.String(),
				Started:  res.Started,
				Outputs:  res.Outputs,
			}
			if res.Err != nil {
				ts.Error = res.Err.Error()
			}
			tasks[name] = ts
		}
		metrics = s.status.Metrics()
	}

	s.writeJSON(w, r, map[string]interface{}{
		"version": version.Get(),
		"tasks":   tasks,
		"metrics": map[string]interface{}{
			"total_runs":       metrics.TotalRuns,
			"successful_runs":  metrics.SuccessfulRuns,
			"failed_runs":      metrics.FailedRuns,
			"average_duration": metrics.AverageDuration.String(),
			"total_duration":   metrics.TotalDuration.String(),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}
