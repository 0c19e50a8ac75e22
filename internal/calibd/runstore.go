// Package calibd runs calibrations in the background and serves them over HTTP and gRPC.
package calibd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/metrics"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// RunRecord is everything the daemon keeps about one calibration
type RunRecord struct {
	Run        *models.Run
	Config     *config.Config
	Progress   *models.ProgressLog
	Collector  *metrics.Collector
	Comparison []models.ComparisonPoint
	Callback   Callback
}

// Callback is an optional completion webhook
type Callback struct {
	URL    string `json:"callback_url,omitempty"`
	Secret string `json:"callback_secret,omitempty"`
}

// RunStore holds runs in memory. Records returned by Get and List are snapshots; the
// Progress log and Collector are shared and safe for concurrent use.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]*RunRecord
	order []string
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
	}
}

// Create registers a pending run. An empty runID is replaced by a generated one.
func (s *RunStore) Create(runID string, cfg *config.Config, configYAML string, cb Callback) (*RunRecord, error) {
	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if err := utils.ValidateRunID(runID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	rec := &RunRecord{
		Run: &models.Run{
			ID:         runID,
			Status:     models.RunStatusPending,
			ConfigYAML: configYAML,
			Metadata:   map[string]string{"model": cfg.Model.Kind},
		},
		Config:    cfg,
		Progress:  &models.ProgressLog{},
		Collector: metrics.NewCollector(),
		Callback:  cb,
	}
	s.runs[runID] = rec
	s.order = append(s.order, runID)
	return rec.snapshot(), nil
}

// Get returns a snapshot of a run
func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return rec.snapshot(), true
}

// List returns up to limit runs in creation order, skipping offset matches. An empty
// status matches every run.
func (s *RunStore) List(limit, offset int, status models.RunStatus) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]*RunRecord, 0, min(limit, len(s.order)))
	skipped := 0
	for _, id := range s.order {
		rec := s.runs[id]
		if status != "" && rec.Run.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, rec.snapshot())
		if len(out) >= limit {
			break
		}
	}
	return out
}

// SetStatus moves a run to status. A terminal run keeps its status; ErrRunTerminal is
// returned in that case.
func (s *RunStore) SetStatus(runID string, status models.RunStatus, errMsg string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.IsTerminal() {
		return rec.snapshot(), fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Run.Status)
	}

	rec.Run.Status = status
	if errMsg != "" {
		rec.Run.Error = errMsg
	}
	now := time.Now().UTC()
	switch {
	case status == models.RunStatusRunning:
		if rec.Run.StartTime.IsZero() {
			rec.Run.StartTime = now
		}
	case status.IsTerminal():
		rec.Run.EndTime = now
		if !rec.Run.StartTime.IsZero() {
			rec.Run.Duration = now.Sub(rec.Run.StartTime)
		}
		rec.Collector.Stop()
	}
	return rec.snapshot(), nil
}

// SetResult stores the final result of a run
func (s *RunStore) SetResult(runID string, result *models.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.Run.Result = result
	return nil
}

// SetComparison stores the simulated versus measured force of the best parameters
func (s *RunStore) SetComparison(runID string, points []models.ComparisonPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	rec.Comparison = append([]models.ComparisonPoint(nil), points...)
	return nil
}

// Len returns the number of stored runs
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

func (r *RunRecord) snapshot() *RunRecord {
	run := *r.Run
	if r.Run.Result != nil {
		res := *r.Run.Result
		run.Result = &res
	}
	if r.Run.Metadata != nil {
		run.Metadata = make(map[string]string, len(r.Run.Metadata))
		for k, v := range r.Run.Metadata {
			run.Metadata[k] = v
		}
	}
	out := *r
	out.Run = &run
	out.Comparison = append([]models.ComparisonPoint(nil), r.Comparison...)
	return &out
}

// ParseRunStatus parses a status filter. Unknown values yield "".
func ParseRunStatus(s string) models.RunStatus {
	status := models.RunStatus(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case models.RunStatusPending, models.RunStatusRunning, models.RunStatusConverged,
		models.RunStatusMaxIterations, models.RunStatusFailed, models.RunStatusCancelled:
		return status
	default:
		return ""
	}
}
