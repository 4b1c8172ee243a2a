// Package api serves the live state of the call monitor over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"crypto-call-bot-go/internal/config"
	"crypto-call-bot-go/internal/monitor"

	"go.uber.org/zap"
)

// CallSource is the part of the monitor the server reads from.
type CallSource interface {
	GetOpenCalls() []*monitor.Call
	Exchanges() []string
}

// Server provides an HTTP interface for the running monitor.
type Server struct {
	server    *http.Server
	calls     CallSource
	startTime time.Time
	logger    *zap.Logger
}

// NewServer creates a Server listening on the configured port.
func NewServer(cfg config.API, calls CallSource, logger *zap.Logger) *Server {
	s := &Server{
		calls:     calls,
		startTime: time.Now(),
		logger:    logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /calls", s.callsHandler)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// Status is the body of GET /status.
type Status struct {
	StartTime string   `json:"start_time"`
	Uptime    string   `json:"uptime"`
	OpenCalls int      `json:"open_calls"`
	Exchanges []string `json:"exchanges"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, Status{
		StartTime: s.startTime.Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		OpenCalls: len(s.calls.GetOpenCalls()),
		Exchanges: s.calls.Exchanges(),
	})
}

func (s *Server) callsHandler(w http.ResponseWriter, r *http.Request) {
	calls := s.calls.GetOpenCalls()
	snapshots := make([]monitor.Snapshot, 0, len(calls))
	for _, c := range calls {
		snapshots = append(snapshots, c.Snapshot())
	}
	s.writeJSON(w, snapshots)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
