// Package diagnostics exposes the sink's runtime state over HTTP: the
// WFD session's handshake state, dispatcher occupancy, and decoder
// health — generalized from the teacher's pkg/api/server.go (which
// served a camera-discovery/viewer API) into a read-only status
// endpoint for this sink's session/controller/dispatcher trio. The
// teacher's `//go:embed web/*` viewer asset directive has no
// counterpart here; this package serves JSON only.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/session"
	"github.com/ethan/wfd-sink/pkg/wfdlog"
)

// StatusProvider is implemented by pkg/session.Session, giving the
// diagnostics server a read of the handshake state machine without an
// import cycle back into the session package's internals.
type StatusProvider interface {
	State() session.State
}

// DispatcherStatsProvider is implemented by pkg/media.Dispatcher.
type DispatcherStatsProvider interface {
	Stats() media.DispatcherStats
}

// StatusResponse is the /api/status JSON body.
type StatusResponse struct {
	SessionState string                 `json:"sessionState"`
	Dispatcher   *media.DispatcherStats `json:"dispatcher,omitempty"`
	Uptime       string                 `json:"uptime"`
}

// Server is a minimal read-only HTTP status endpoint.
type Server struct {
	session    StatusProvider
	dispatcher DispatcherStatsProvider
	logger     *wfdlog.Logger
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer builds a Server. dispatcher may be nil before a session
// has negotiated tracks.
func NewServer(session StatusProvider, dispatcher DispatcherStatsProvider, logger *wfdlog.Logger) *Server {
	return &Server{
		session:    session,
		dispatcher: dispatcher,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start serves the status API on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.withLogging(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Uptime: time.Since(s.startedAt).String()}
	if s.session != nil {
		resp.SessionState = s.session.State().String()
	}
	if s.dispatcher != nil {
		stats := s.dispatcher.Stats()
		resp.Dispatcher = &stats
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		if s.logger != nil {
			s.logger.Warn("diagnostics: failed to encode status response", "error", err)
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "ok")
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if s.logger != nil {
			s.logger.DebugSession("diagnostics request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}
