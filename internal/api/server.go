// Package api serves the live previews, camera status and metrics over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/logging"
)

// CameraStatus is one entry of GET /api/cameras.
type CameraStatus struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Frames uint64 `json:"frames"`
	Stream string `json:"stream,omitempty"`
}

// StatusFunc reports the current state of every camera.
type StatusFunc func() []CameraStatus

// StreamFunc returns the preview handler for a camera, or nil if it has none.
type StreamFunc func(cameraID string) http.Handler

// Options selects what the server exposes. Nil fields disable their routes.
type Options struct {
	Addr        string
	Status      StatusFunc
	Streams     StreamFunc
	Metrics     http.Handler
	MetricsPath string
}

// Server is the preview and metrics HTTP server
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger
}

func NewServer(opts Options, logger *zap.Logger) *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		logger: logging.Component(logger, "api"),
	}

	// Health check endpoint
	s.mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.Status != nil {
		s.mux.HandleFunc("GET /api/cameras", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, opts.Status())
		})
	}

	if opts.Streams != nil {
		s.mux.HandleFunc("GET /cameras/{id}", func(w http.ResponseWriter, r *http.Request) {
			h := opts.Streams(r.PathValue("id"))
			if h == nil {
				http.NotFound(w, r)
				return
			}
			h.ServeHTTP(w, r)
		})
	}

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, opts.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           corsMiddleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: MJPEG responses stay open for as long as the viewer.
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// corsMiddleware lets a dashboard served from localhost read the status API.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:8080": true,
		"http://localhost:3000": true,
		"http://127.0.0.1:8080": true,
		"http://127.0.0.1:3000": true,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StartInBackground serves until Shutdown. Listener errors are logged.
func (s *Server) StartInBackground() {
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
