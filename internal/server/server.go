// Package server exposes the daemon's HTTP API: network-event ingest
// from the extension, tracked-asset listing, download commands, and job
// status polling.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mediasieve/mediasieve/internal/assembler"
	"github.com/mediasieve/mediasieve/internal/classifier"
	"github.com/mediasieve/mediasieve/internal/job"
	"github.com/mediasieve/mediasieve/internal/media"
	"github.com/mediasieve/mediasieve/internal/stats"
	"github.com/mediasieve/mediasieve/internal/tracker"
	"github.com/mediasieve/mediasieve/pkg/api"
)

// Server wires the pipeline behind an HTTP listener.
type Server struct {
	classifier *classifier.Classifier
	tracker    *tracker.Tracker
	assembler  *assembler.Assembler
	jobs       *job.Manager
	addr       string
	logger     hclog.Logger
	httpServer *http.Server
}

// New creates the API server.
func New(c *classifier.Classifier, t *tracker.Tracker, a *assembler.Assembler, jobs *job.Manager, addr string, logger hclog.Logger) *Server {
	return &Server{
		classifier: c,
		tracker:    t,
		assembler:  a,
		jobs:       jobs,
		addr:       addr,
		logger:     logger,
	}
}

// Start runs the HTTP server until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler builds the route table. Exposed separately so tests can drive
// the API through httptest without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/assets", s.handleAssets)
	mux.HandleFunc("/api/download", s.handleDownload)
	mux.HandleFunc("/api/download-all", s.handleDownloadAll)
	mux.HandleFunc("/api/clear", s.handleClear)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/health", s.handleHealth)

	return s.loggingMiddleware(mux)
}

// handleEvents ingests one observed network request. Non-media requests
// are dropped silently; media requests are folded into the tracker.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event api.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "invalid event payload", http.StatusBadRequest)
		return
	}

	req := media.ObservedRequest{
		URL:               event.URL,
		Method:            event.Method,
		ResourceType:      media.ResourceType(event.ResourceType),
		TabID:             event.TabID,
		Timestamp:         event.Timestamp(),
		OriginDomain:      event.OriginDomain,
		ParentDocumentURL: event.ParentDocumentURL,
		TabTitle:          event.TabTitle,
	}

	if !s.classifier.IsMedia(req) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	asset := media.NewAsset(req, s.classifier.Indicators())
	s.tracker.Upsert(asset)
	s.logger.Debug("tracked media request", "key", asset.Key, "kind", asset.Kind)
	w.WriteHeader(http.StatusAccepted)
}

// handleAssets lists the tracked assets for one tab, newest first.
func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tabID, err := intQuery(r, "tab")
	if err != nil {
		http.Error(w, "invalid tab parameter", http.StatusBadRequest)
		return
	}

	assets := s.tracker.List(tabID)
	out := make([]api.Asset, 0, len(assets))
	for _, a := range assets {
		out = append(out, api.Asset{
			Key:            a.Key,
			URL:            a.CanonicalURL,
			TabID:          a.TabID,
			Title:          a.Title,
			DeliveryKind:   string(a.Kind),
			IndicatorToken: a.IndicatorToken,
			LastUpdatedAt:  a.LastUpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDownload starts assembly of one tracked asset.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid download payload", http.StatusBadRequest)
		return
	}

	asset, ok := s.tracker.Get(req.TabID, req.AssetKey)
	if !ok {
		http.Error(w, "asset not tracked", http.StatusNotFound)
		return
	}

	jobID := s.assembler.Assemble(context.Background(), asset, overrides(req.Overrides))
	writeJSON(w, http.StatusAccepted, api.DownloadResponse{JobIDs: []string{jobID}})
}

// handleDownloadAll starts one job per tracked asset of a tab.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.TabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	var jobIDs []string
	for _, asset := range s.tracker.List(req.TabID) {
		jobIDs = append(jobIDs, s.assembler.Assemble(context.Background(), asset, assembler.Overrides{}))
	}
	writeJSON(w, http.StatusAccepted, api.DownloadResponse{JobIDs: jobIDs})
}

// handleClear drops all tracked assets of a tab.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.TabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	removed := s.tracker.Clear(req.TabID)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleJobs returns snapshots of all jobs for polling consumers.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.jobs.Snapshot())
}

// handleHealth serves liveness plus the operational numbers: tracked
// asset count, job counts, memory.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active, finished := s.jobs.Counts()

	health := map[string]interface{}{
		"status":        "ok",
		"trackedAssets": s.tracker.Len(),
		"activeJobs":    active,
		"finishedJobs":  finished,
		"memory":        stats.ReadMemory(),
		"rulesVersion":  s.classifier.Rules().Version,
	}
	writeJSON(w, http.StatusOK, health)
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func overrides(o api.DownloadOverrides) assembler.Overrides {
	return assembler.Overrides{
		Filename:        o.Filename,
		Folder:          o.Folder,
		SegmentsPerPart: o.SegmentsPerPart,
		Template:        o.Template,
		Start:           o.Start,
		End:             o.End,
		Pad:             o.Pad,
	}
}

func intQuery(r *http.Request, name string) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, fmt.Errorf("missing %s", name)
	}
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
