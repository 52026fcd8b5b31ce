// Package monitor serves the live scan view and the operator controls over
// HTTP.
package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/lockin.scan/internal/fsutil"
	"github.com/banshee-data/lockin.scan/internal/monitoring"
	"github.com/banshee-data/lockin.scan/internal/scan"
	"github.com/banshee-data/lockin.scan/internal/spectrum"
)

// Archive is the read side of the spectrum archive.
type Archive interface {
	Windows(runID string) ([]spectrum.WindowRecord, error)
	Points(windowID int64) (scan.Spectrum, error)
}

// trace is the latest acquisition data seen on the event stream.
type trace struct {
	Window  int       `json:"window"`
	Index   int       `json:"index"`
	Passes  int       `json:"passes"`
	Axis    []float64 `json:"axis"`
	Current []float64 `json:"current"`
	Sum     []float64 `json:"sum"`
}

// Server exposes a Controller running on a Loop. Every controller call is
// made on the loop goroutine through Loop.Do.
type Server struct {
	loop    *scan.Loop
	ctl     *scan.Controller
	archive Archive
	plotFS  fsutil.FileSystem
	plotDir string

	mu    sync.RWMutex
	state scan.BatchState
	trace trace
}

// NewServer creates a monitor for ctl. archive may be nil.
func NewServer(loop *scan.Loop, ctl *scan.Controller, archive Archive) *Server {
	return &Server{loop: loop, ctl: ctl, archive: archive}
}

// Observe is a scan.Listener. It runs on the loop goroutine and caches the
// latest state so the monitor keeps answering after the loop stops.
func (s *Server) Observe(ev scan.Event) {
	state := s.ctl.State()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	switch ev.Kind {
	case scan.EventWindowStarted:
		s.trace = trace{Window: ev.Window}
	case scan.EventTrace:
		s.trace.Window, s.trace.Index, s.trace.Passes = ev.Window, ev.Index, ev.Passes
		s.trace.Axis, s.trace.Current = ev.Axis, ev.Current
	case scan.EventSum:
		s.trace.Window, s.trace.Passes = ev.Window, ev.Passes
		s.trace.Axis, s.trace.Sum = ev.Axis, ev.Sum
	}
}

// ServeMux returns a new mux with the monitor routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Register adds the monitor routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/trace", s.showTrace)
	mux.HandleFunc("/api/pause", s.control(func() error { s.ctl.Pause(); return nil }))
	mux.HandleFunc("/api/resume", s.control(func() error { s.ctl.Resume(); return nil }))
	mux.HandleFunc("/api/abort", s.control(func() error { s.ctl.AbortCurrent(); return nil }))
	mux.HandleFunc("/api/abort-all", s.control(func() error { s.ctl.AbortAll(); return nil }))
	mux.HandleFunc("/api/retry", s.control(func() error { return s.ctl.Retry() }))
	mux.HandleFunc("/api/redo", s.control(func() error { return s.ctl.RedoCurrent() }))
	mux.HandleFunc("/api/windows", s.listWindows)
	mux.HandleFunc("/api/windows/{id}/points", s.showPoints)
	mux.HandleFunc("/plots/{name}", s.showPlot)
	mux.HandleFunc("/chart", s.showChart)
	mux.Handle("/{$}", http.RedirectHandler("/chart", http.StatusFound))
}

// currentState reads the controller on the loop, falling back to the cached
// copy once the loop has stopped.
func (s *Server) currentState() scan.BatchState {
	var st scan.BatchState
	if s.loop.Do(func() { st = s.ctl.State() }) {
		return st
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) showTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.mu.RLock()
	t := s.trace
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, t)
}

// control runs action on the loop and replies with the resulting state.
// Action errors are operator mistakes, such as retrying a batch that is not
// halted, and map to 409.
func (s *Server) control(action func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var (
			err error
			st  scan.BatchState
		)
		if !s.loop.Do(func() {
			err = action()
			st = s.ctl.State()
		}) {
			serviceUnavailable(w)
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusConflict, err.Error())
			return
		}
		monitoring.Logf("monitor: %s -> %s", r.URL.Path, st.Status)
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) listWindows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.archive == nil {
		writeJSONError(w, http.StatusNotFound, "no archive configured")
		return
	}
	windows, err := s.archive.Windows(r.URL.Query().Get("run_id"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if windows == nil {
		windows = []spectrum.WindowRecord{}
	}
	writeJSON(w, http.StatusOK, windows)
}

func (s *Server) showPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.archive == nil {
		writeJSONError(w, http.StatusNotFound, "no archive configured")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid window id")
		return
	}
	sp, err := s.archive.Points(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(sp.Frequencies) == 0 {
		writeJSONError(w, http.StatusNotFound, "window not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]float64{
		"frequencies": sp.Frequencies,
		"values":      sp.Values,
	})
}

// ListenAndServe serves handler on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("monitor: shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("monitor: HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
