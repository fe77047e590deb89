package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trackmirror/internal/config"
	"trackmirror/internal/domain"
	"trackmirror/internal/metrics"
	"trackmirror/internal/models"
	"trackmirror/internal/syncer"

	"github.com/rs/zerolog"
)

// Exporter produces an XLSX snapshot of the replica and returns the path of
// the generated file.
type Exporter interface {
	ExportBacklog(ctx context.Context) (string, error)
}

// HTTPServer exposes the read API over the replica plus the manual sync
// trigger.
type HTTPServer struct {
	cfg      config.APIConfig
	sync     domain.SyncTrigger
	items    domain.ItemStore
	exporter Exporter
	logger   zerolog.Logger
	auth     *HTTPAuth
	server   *http.Server
}

func NewHTTPServer(cfg config.APIConfig, syncService domain.SyncTrigger, items domain.ItemStore, exporter Exporter, logger zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		sync:     syncService,
		items:    items,
		exporter: exporter,
		logger:   logger.With().Str("component", "http-api").Logger(),
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sync/status", srv.handleSyncStatus)
	mux.HandleFunc("/api/v1/sync/history", srv.handleSyncHistory)
	mux.HandleFunc("/api/v1/sync", srv.handleSyncTrigger)
	mux.HandleFunc("/api/v1/items", srv.handleItems)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the configured handler chain, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_status")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status, err := s.sync.GetStatus(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read sync status")
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	if status == nil {
		status = models.IdleStatus()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *HTTPServer) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_trigger")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	triggeredBy := s.auth.ClientName(r)
	err := s.sync.RunSync(r.Context(), models.TriggerManual, triggeredBy)
	if errors.Is(err, syncer.ErrSyncInProgress) {
		writeError(w, http.StatusConflict, "sync already in progress")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to trigger sync")
		writeError(w, http.StatusInternalServerError, "failed to trigger sync")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *HTTPServer) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_history")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	history, err := s.sync.ListHistory(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read sync history")
		writeError(w, http.StatusInternalServerError, "failed to read sync history")
		return
	}
	if history == nil {
		history = []models.SyncHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (s *HTTPServer) handleItems(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("items")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, err := s.items.ListItems(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list backlog items")
		writeError(w, http.StatusInternalServerError, "failed to list backlog items")
		return
	}
	if items == nil {
		items = []models.BacklogItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "export is not configured")
		return
	}

	path, err := s.exporter.ExportBacklog(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate export")
		writeError(w, http.StatusInternalServerError, "failed to generate export")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
