package calibd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/dataio"
	"github.com/GoSim-25-26J-441/contact-calibration/internal/export"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

const maxConfigBytes = 1 << 20

type HTTPServer struct {
	mux      *http.ServeMux
	store    *RunStore
	Executor *RunExecutor
}

func NewHTTPServer(store *RunStore, executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/calibrations", s.handleCalibrations)
	s.mux.HandleFunc("/v1/calibrations/", s.handleCalibrationByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"runs":      s.store.Len(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCalibrations handles /v1/calibrations
func (s *HTTPServer) handleCalibrations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateCalibration(w, r)
	case http.MethodGet:
		s.handleListCalibrations(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCalibrationByID handles /v1/calibrations/{id} and its sub-resources
func (s *HTTPServer) handleCalibrationByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/calibrations/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	routes := []struct {
		suffix  string
		method  string
		handler func(http.ResponseWriter, *http.Request, string)
	}{
		{":stop", http.MethodPost, s.handleStopCalibration},
		{"/progress/stream", http.MethodGet, s.handleProgressStream},
		{"/progress", http.MethodGet, s.handleProgress},
		{"/comparison", http.MethodGet, s.handleComparison},
		{"/metrics", http.MethodGet, s.handleMetrics},
	}
	for _, route := range routes {
		if !strings.HasSuffix(path, route.suffix) {
			continue
		}
		if r.Method != route.method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		route.handler(w, r, strings.TrimSuffix(path, route.suffix))
		return
	}

	if strings.Contains(path, "/") {
		s.writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleGetCalibration(w, r, path)
}

// createRequest is the JSON form of POST /v1/calibrations. A YAML body carries the
// config alone, with run_id and the callback in the query string.
type createRequest struct {
	RunID      string `json:"run_id,omitempty"`
	ConfigYAML string `json:"config_yaml"`
	Callback
	// Start defaults to true
	Start *bool `json:"start,omitempty"`
}

func (s *HTTPServer) decodeCreate(w http.ResponseWriter, r *http.Request) (createRequest, error) {
	var req createRequest
	body := http.MaxBytesReader(w, r.Body, maxConfigBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid request body: %w", err)
		}
		return req, nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return req, fmt.Errorf("failed to read request body: %w", err)
	}
	q := r.URL.Query()
	req.RunID = q.Get("run_id")
	req.ConfigYAML = string(data)
	req.URL = q.Get("callback_url")
	req.Secret = r.Header.Get(CallbackSecretHeader)
	if v := q.Get("start"); v != "" {
		start, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid start flag %q", v)
		}
		req.Start = &start
	}
	return req, nil
}

// handleCreateCalibration handles POST /v1/calibrations
func (s *HTTPServer) handleCreateCalibration(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeCreate(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ConfigYAML) == "" {
		s.writeError(w, http.StatusBadRequest, "config is required")
		return
	}
	cfg, err := config.ParseConfigYAMLString(req.ConfigYAML)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL != "" {
		if err := validateCallbackURL(req.URL); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rec, err := s.store.Create(req.RunID, cfg, req.ConfigYAML, req.Callback)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunExists):
			s.writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ErrInvalidRunID):
			s.writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	logger.Info("calibration created (HTTP)", "run_id", rec.Run.ID, "model", cfg.Model.Kind)

	if req.Start == nil || *req.Start {
		started, err := s.Executor.Start(rec.Run.ID)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		rec = started
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"run": rec.Run})
}

// handleListCalibrations handles GET /v1/calibrations with pagination and filtering
func (s *HTTPServer) handleListCalibrations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if parsed, err := strconv.Atoi(q.Get("limit")); err == nil && parsed > 0 {
		limit = min(parsed, 1000)
	}
	offset := 0
	if parsed, err := strconv.Atoi(q.Get("offset")); err == nil && parsed >= 0 {
		offset = parsed
	}
	var status models.RunStatus
	if raw := q.Get("status"); raw != "" {
		if status = ParseRunStatus(raw); status == "" {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(raw))
			return
		}
	}

	recs := s.store.List(limit, offset, status)
	runs := make([]*models.Run, len(recs))
	for i, rec := range recs {
		runs[i] = rec.Run
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"count":  len(runs),
		"limit":  limit,
		"offset": offset,
	})
}

// handleGetCalibration handles GET /v1/calibrations/{id}
func (s *HTTPServer) handleGetCalibration(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	resp := map[string]any{"run": rec.Run}
	if latest, ok := rec.Progress.Latest(); ok {
		resp["latest_progress"] = latest
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleStopCalibration handles POST /v1/calibrations/{id}:stop
func (s *HTTPServer) handleStopCalibration(w http.ResponseWriter, _ *http.Request, runID string) {
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrRunIDMissing):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrRunTerminal):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	logger.Info("calibration cancelled (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{"run": updated.Run})
}

// handleProgress handles GET /v1/calibrations/{id}/progress?after=N
func (s *HTTPServer) handleProgress(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid after parameter")
			return
		}
		after = parsed
	}
	points := rec.Progress.Since(after)
	if points == nil {
		points = []models.ProgressPoint{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"status": rec.Run.Status,
		"points": points,
	})
}

// handleComparison handles GET /v1/calibrations/{id}/comparison. format=csv returns the
// table as CSV instead of JSON.
func (s *HTTPServer) handleComparison(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if len(rec.Comparison) == 0 {
		s.writeError(w, http.StatusPreconditionFailed, "comparison not available")
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		rows := make([]calibration.ComparisonRow, len(rec.Comparison))
		for i, p := range rec.Comparison {
			rows[i] = calibration.ComparisonRow{Time: p.Time, Simulated: p.Simulation, Reference: p.Experiment}
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", runID+"_comparison.csv"))
		if err := dataio.WriteCSV(w, export.ComparisonTable(rows)); err != nil {
			logger.Error("failed to write comparison csv", "run_id", runID, "error", err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"rows":   rec.Comparison,
	})
}

// handleMetrics handles GET /v1/calibrations/{id}/metrics
func (s *HTTPServer) handleMetrics(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Progress.Len() == 0 {
		s.writeError(w, http.StatusPreconditionFailed, "metrics not available")
		return
	}
	resp := map[string]any{
		"run_id":      runID,
		"summary":     rec.Collector.GetSummary(),
		"improvement": rec.Collector.Improvement(),
	}
	if a := rec.Collector.StepTimeAsymmetry(); a != nil {
		resp["step_time_asymmetry"] = a
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleProgressStream handles GET /v1/calibrations/{id}/progress/stream (SSE)
func (s *HTTPServer) handleProgressStream(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	interval := time.Second
	if raw := r.URL.Query().Get("interval_ms"); raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			interval = time.Duration(ms) * time.Millisecond
		}
	}

	flush := func() {
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}

	previousStatus := rec.Run.Status
	lastIteration := 0
	s.sendSSEEvent(w, "status_change", map[string]any{"status": previousStatus})
	flush()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := r.Context()

	for {
		// progress first so a finished run streams its tail before "complete"
		current, ok := s.store.Get(runID)
		if !ok {
			s.sendSSEEvent(w, "error", map[string]any{"error": "run not found"})
			flush()
			return
		}
		for _, p := range current.Progress.Since(lastIteration) {
			s.sendSSEEvent(w, "progress", map[string]any{"point": p})
			lastIteration = p.Iteration
		}
		if current.Run.Status != previousStatus {
			previousStatus = current.Run.Status
			s.sendSSEEvent(w, "status_change", map[string]any{"status": previousStatus})
		}
		if previousStatus.IsTerminal() {
			s.sendSSEEvent(w, "complete", map[string]any{
				"status": previousStatus,
				"result": current.Run.Result,
			})
			flush()
			return
		}
		flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sendSSEEvent writes one Server-Sent Event. Streams are best-effort; write errors are
// logged only.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data map[string]any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		logger.Error("failed to write SSE event", "error", err)
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
