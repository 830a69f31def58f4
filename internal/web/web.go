package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"crewcal/internal/config"
	"crewcal/internal/feed"
	"crewcal/internal/ics"
	appLog "crewcal/internal/log"
)

// Generator produces a feed for one person.
type Generator interface {
	Generate(ctx context.Context, personID string, format ics.Format) (feed.Result, error)
}

// Server exposes the calendar feed endpoint and a health check.
type Server struct {
	cfg *config.Config
	gen Generator
	mux *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, gen Generator) *Server {
	s := &Server{
		cfg: cfg,
		gen: gen,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return accessLog(s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /calendar/{personID}", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves GET /calendar/{personID}. The format comes from
// ?format=, then the Accept header, defaulting to ics. A trailing ".ics"
// on the id is ignored so subscription URLs can end in a file name.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	personID := strings.TrimSuffix(r.PathValue("personID"), ".ics")

	format, err := negotiateFormat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_format")
		return
	}

	res, err := s.gen.Generate(r.Context(), personID, format)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			appLog.Error("feed generation failed", err, "person", personID, "format", string(format))
		} else {
			appLog.Info("feed request rejected", "person", personID, "reason", string(feed.CodeOf(err)))
		}
		writeFeedError(w, status, err)
		return
	}

	w.Header().Set("Content-Type", res.Format.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	if res.Format == ics.FormatICS {
		w.Header().Set("Content-Disposition", `inline; filename="`+res.PersonID+`.ics"`)
	}
	if res.Empty {
		w.Header().Set("X-Feed-Reason", string(feed.CodeNoEvents))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

func negotiateFormat(r *http.Request) (ics.Format, error) {
	if q := r.URL.Query().Get("format"); q != "" {
		return ics.ParseFormat(q)
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	switch {
	case strings.Contains(accept, "text/calendar"):
		return ics.FormatICS, nil
	case strings.Contains(accept, "application/json"):
		return ics.FormatJSON, nil
	default:
		return ics.FormatICS, nil
	}
}

func statusFor(err error) int {
	switch feed.CodeOf(err) {
	case feed.CodeNotFound:
		return http.StatusNotFound
	case feed.CodeMalformed, feed.CodeUpstream:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeFeedError(w http.ResponseWriter, status int, err error) {
	var fe *feed.Error
	if errors.As(err, &fe) {
		writeError(w, status, fe.Message, string(fe.Code))
		return
	}
	writeError(w, status, http.StatusText(status), "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	type errResp struct {
		Error  string `json:"error"`
		Reason string `json:"reason,omitempty"`
	}
	writeJSON(w, status, errResp{Error: msg, Reason: reason})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// accessLog logs one line per request at debug level.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start).String(),
		)
	})
}

// StartServer runs an HTTP server on cfg.Listen until ctx is cancelled,
// then shuts it down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, gen Generator) error {
	s := NewServer(cfg, gen)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
