// Package api exposes the coordinator to a browser extension over a local
// HTTP bridge: tagged JSON messages in, responses and tab events out.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/ppiankov/supaspectre/internal/coordinator"
	"github.com/ppiankov/supaspectre/internal/credential"
	"github.com/ppiankov/supaspectre/internal/detection"
	"github.com/ppiankov/supaspectre/internal/leakscan"
	"github.com/ppiankov/supaspectre/internal/models"
	"github.com/ppiankov/supaspectre/internal/reporter"
)

// DefaultAddr is the loopback address the bridge listens on
const DefaultAddr = "127.0.0.1:8787"

const (
	eventBuffer       = 32
	keepAliveInterval = 25 * time.Second
)

// Server serves the bridge endpoints
type Server struct {
	coord     *coordinator.Coordinator
	logger    logr.Logger
	version   string
	bodyLimit int64
	rateLimit int
	now       func() time.Time
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l logr.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /v1/health and SARIF exports
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithBodyLimit overrides DefaultRequestBodyLimitBytes
func WithBodyLimit(n int64) Option {
	return func(s *Server) { s.bodyLimit = n }
}

// WithRateLimit overrides DefaultRateLimitRequests per minute
func WithRateLimit(n int) Option {
	return func(s *Server) { s.rateLimit = n }
}

// NewServer creates a bridge server over a coordinator
func NewServer(coord *coordinator.Coordinator, opts ...Option) *Server {
	s := &Server{
		coord:     coord,
		logger:    logr.Discard(),
		version:   "dev",
		bodyLimit: DefaultRequestBodyLimitBytes,
		rateLimit: DefaultRateLimitRequests,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/messages", s.handleMessage)
	mux.HandleFunc("GET /v1/connection", s.handleConnection)
	mux.HandleFunc("GET /v1/reports", s.handleListReports)
	mux.HandleFunc("GET /v1/reports/{id}", s.handleGetReport)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	var h http.Handler = mux
	h = BodySizeLimit(s.bodyLimit)(h)
	h = RateLimitPerIP(s.rateLimit, DefaultRateLimitWindow)(h)
	h = ExtensionOrigins(h)
	h = SecurityHeaders(h)
	return RequestLogger(s.logger)(h)
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("bridge listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown bridge: %w", err)
	}
	s.logger.Info("bridge stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"version":   s.version,
		"consented": s.coord.Consented(),
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.Response{Reason: "message too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, models.Response{Reason: "failed to read message"})
		return
	}

	msg, err := DecodeMessage(body)
	if err != nil {
		s.logger.V(1).Info("message rejected", "error", err.Error())
		writeJSON(w, http.StatusBadRequest, models.Response{Reason: err.Error()})
		return
	}

	resp := s.coord.Handle(r.Context(), msg)
	status := http.StatusOK
	if !resp.OK && resp.Reason == coordinator.ConsentReason {
		status = http.StatusForbidden
	}
	writeJSON(w, status, resp)
}

// connectionView is the stored connection without its secrets
type connectionView struct {
	ProjectID     string                 `json:"projectId"`
	Schema        string                 `json:"schema"`
	BaseURL       string                 `json:"baseUrl"`
	APIKeySnippet string                 `json:"apiKeySnippet"`
	InspectedHost string                 `json:"inspectedHost,omitempty"`
	Meta          *models.ConnectionMeta `json:"meta,omitempty"`
	AutoConnect   bool                   `json:"autoConnect"`
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	if !s.coord.Consented() {
		writeJSON(w, http.StatusForbidden, models.Response{Reason: coordinator.ConsentReason})
		return
	}
	conn, meta := s.coord.Store().Connection(r.Context())
	if conn == nil {
		writeJSON(w, http.StatusOK, models.Response{OK: true, Data: map[string]any{"meta": meta}})
		return
	}
	view := connectionView{
		ProjectID:     conn.ProjectID,
		Schema:        conn.SchemaOrDefault(),
		BaseURL:       credential.BaseURL(conn.ProjectID),
		APIKeySnippet: leakscan.SummarizeLeakMatch(conn.APIKey),
		InspectedHost: conn.InspectedHost,
		Meta:          meta,
		AutoConnect:   detection.ShouldAutoConnect(conn, meta, s.now()),
	}
	writeJSON(w, http.StatusOK, models.Response{OK: true, Data: view})
}

// reportListItem is one row of the report index
type reportListItem struct {
	ID         string           `json:"id"`
	CreatedAt  time.Time        `json:"createdAt"`
	ProjectID  string           `json:"projectId"`
	Domain     string           `json:"domain,omitempty"`
	RiskLevel  models.RiskLevel `json:"riskLevel"`
	LeakOnly   bool             `json:"leakOnly,omitempty"`
	Accessible int              `json:"accessibleCount"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if !s.coord.Consented() {
		writeJSON(w, http.StatusForbidden, models.Response{Reason: coordinator.ConsentReason})
		return
	}
	reports := s.coord.Store().Reports(r.Context())
	items := make([]reportListItem, 0, len(reports))
	for _, rep := range reports {
		items = append(items, reportListItem{
			ID:         rep.ID,
			CreatedAt:  rep.CreatedAt,
			ProjectID:  rep.ProjectID,
			Domain:     rep.Domain,
			RiskLevel:  rep.Summary.RiskLevel,
			LeakOnly:   rep.LeakOnly,
			Accessible: rep.Summary.AccessibleCount,
		})
	}
	writeJSON(w, http.StatusOK, models.Response{OK: true, Data: items})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if !s.coord.Consented() {
		writeJSON(w, http.StatusForbidden, models.Response{Reason: coordinator.ConsentReason})
		return
	}
	rep, ok := s.coord.Store().Report(r.Context(), r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, models.Response{Reason: "report not found"})
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = reporter.FormatJSON
	}
	switch format {
	case reporter.FormatJSON, reporter.FormatText, reporter.FormatSARIF:
	default:
		writeJSON(w, http.StatusBadRequest, models.Response{Reason: fmt.Sprintf("unsupported format %q", format)})
		return
	}
	w.Header().Set("Content-Type", reporter.ContentType(format))
	if err := reporter.Render(w, rep, format, s.version); err != nil {
		s.logger.Error(err, "failed to render report", "id", rep.ID)
	}
}

// handleEvents streams tab events as server-sent events until the client
// goes away
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, stop := s.coord.Hub().Subscribe(eventBuffer)
	defer stop()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			flusher.Flush()
		case e, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
