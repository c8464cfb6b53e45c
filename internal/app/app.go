// Package app wires collection and AI ranking into runs and exposes the
// operations the HTTP API, the CLI and the Lambda handler share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/shorts-hunter/internal/keywords"
	"github.com/deusflow/shorts-hunter/internal/metrics"
	"github.com/deusflow/shorts-hunter/internal/pipeline"
	"github.com/deusflow/shorts-hunter/internal/ranker"
	"github.com/deusflow/shorts-hunter/internal/seed"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

const (
	// LatestRun selects the most recent run in ListCandidates.
	LatestRun = "latest"

	runListLimit       = 50
	candidateListLimit = 300
	maxWindowHours     = 24 * 30
)

var ErrInvalidRequest = errors.New("invalid run request")

// RunError is returned by Trigger once a run record exists, so callers can
// still point at the failed run.
type RunError struct {
	RunID string
	Err   error
}

func (e *RunError) Error() string { return fmt.Sprintf("run %s: %v", e.RunID, e.Err) }

func (e *RunError) Unwrap() error { return e.Err }

type RunRequest struct {
	Mode        string `json:"mode"`
	WindowHours int    `json:"windowHours"`
	PresetID    string `json:"presetId,omitempty"`
}

// Defaults fill in what a RunRequest leaves out.
type Defaults struct {
	WindowHours       int
	MaxItemsPerSource int
	FetchConcurrency  int
}

type Service struct {
	store     *storage.Store
	collector *pipeline.Collector
	ranker    *ranker.Ranker
	presets   *keywords.Loader
	defaults  Defaults
	metrics   *metrics.Metrics
	log       *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(store *storage.Store, collector *pipeline.Collector, rk *ranker.Ranker, presets *keywords.Loader, d Defaults, opts ...Option) *Service {
	if d.WindowHours <= 0 {
		d.WindowHours = 24
	}
	if d.MaxItemsPerSource <= 0 {
		d.MaxItemsPerSource = 50
	}
	if d.FetchConcurrency <= 0 {
		d.FetchConcurrency = 3
	}
	s := &Service{
		store:     store,
		collector: collector,
		ranker:    rk,
		presets:   presets,
		defaults:  d,
		metrics:   metrics.Global,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger runs the pipeline once. Every error after the run record is
// created comes back as a *RunError and leaves the run failed.
func (s *Service) Trigger(ctx context.Context, req RunRequest) (*storage.Run, error) {
	if req.Mode == "" {
		req.Mode = storage.ModeCollectOnly
	}
	if req.Mode != storage.ModeCollectOnly && req.Mode != storage.ModeAIRank {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.WindowHours == 0 {
		req.WindowHours = s.defaults.WindowHours
	}
	if req.WindowHours < 1 || req.WindowHours > maxWindowHours {
		return nil, fmt.Errorf("%w: windowHours must be between 1 and %d", ErrInvalidRequest, maxWindowHours)
	}

	// The preset is recorded once collection has resolved it.
	run := &storage.Run{Mode: req.Mode, WindowHours: req.WindowHours}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	start := time.Now()
	s.metrics.IncrementRunsStarted()
	log := s.log.With("run_id", run.ID, "mode", run.Mode)
	log.Info("run started", "window_hours", run.WindowHours)

	presetID := req.PresetID
	if presetID == "" {
		active, err := s.store.ActivePresetID(ctx)
		if err != nil {
			return nil, s.fail(ctx, run, nil, err)
		}
		presetID = active
	}

	summary, err := s.collector.Collect(ctx, pipeline.CollectParams{
		RunID:             run.ID,
		WindowHours:       run.WindowHours,
		MaxItemsPerSource: s.defaults.MaxItemsPerSource,
		FetchConcurrency:  s.defaults.FetchConcurrency,
		PresetID:          presetID,
		LeaveOpen:         run.Mode == storage.ModeAIRank,
	})
	if err != nil {
		return nil, s.fail(ctx, run, nil, err)
	}

	if run.Mode == storage.ModeAIRank {
		if _, err := s.rerank(ctx, run.ID, summary.Preset); err != nil {
			return nil, s.fail(ctx, run, summary, err)
		}
		if err := s.store.FinishRun(ctx, run.ID, storage.StatusSuccess, nil); err != nil {
			return nil, s.fail(ctx, run, summary, err)
		}
	}

	s.metrics.RecordProcessingTime(time.Since(start))
	s.metrics.SetRunSucceeded(run.ID)
	log.Info("run finished", "duration", time.Since(start).Round(time.Millisecond))
	return s.store.GetRun(ctx, run.ID)
}

// Rerank asks the model again for an existing run. Ranks are overwritten
// and the run status is left alone.
func (s *Service) Rerank(ctx context.Context, runID string) (*ranker.Result, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	var ref *storage.PresetRef
	if run.Summary != nil {
		ref = run.Summary.Preset
	}
	if ref == nil && run.PresetID != "" {
		ref = &storage.PresetRef{ID: run.PresetID}
	}
	return s.rerank(ctx, run.ID, ref)
}

func (s *Service) rerank(ctx context.Context, runID string, ref *storage.PresetRef) (*ranker.Result, error) {
	if s.ranker == nil {
		return nil, ranker.ErrNotConfigured
	}
	params := ranker.RerankParams{RunID: runID}
	if ref != nil {
		preset, _, err := s.presets.Load(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		if preset != nil {
			params.PresetName = preset.Name
			params.PresetDescription = preset.Description
		}
	}
	return s.ranker.Rerank(ctx, params)
}

// fail moves the run to failed, keeping whatever summary was already built.
func (s *Service) fail(ctx context.Context, run *storage.Run, summary *storage.RunSummary, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if summary == nil {
		if stored, err := s.store.GetRun(ctx, run.ID); err == nil && stored.Summary != nil {
			summary = stored.Summary
		} else {
			summary = &storage.RunSummary{WindowHours: run.WindowHours}
		}
	}
	summary.Error = cause.Error()

	if err := s.store.FinishRun(ctx, run.ID, storage.StatusFailed, summary); err != nil {
		s.log.Error("could not mark run failed", "run_id", run.ID, "error", err)
	}
	s.metrics.SetRunFailed(run.ID, cause.Error())
	s.log.Error("run failed", "run_id", run.ID, "error", cause)
	return &RunError{RunID: run.ID, Err: cause}
}

func (s *Service) ListRuns(ctx context.Context) ([]storage.Run, error) {
	return s.store.ListRuns(ctx, runListLimit)
}

// ListCandidates resolves LatestRun and returns the run id it listed. With
// no runs at all it returns an empty id and no candidates.
func (s *Service) ListCandidates(ctx context.Context, runID string) (string, []storage.CandidateView, error) {
	if runID == "" || runID == LatestRun {
		latest, err := s.store.LatestRunID(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return "", []storage.CandidateView{}, nil
		}
		if err != nil {
			return "", nil, err
		}
		runID = latest
	}
	views, err := s.store.ListCandidates(ctx, runID, candidateListLimit)
	if err != nil {
		return runID, nil, err
	}
	return runID, views, nil
}

func (s *Service) ListSources(ctx context.Context) ([]storage.Source, error) {
	return s.store.ListSources(ctx)
}

func (s *Service) CreateSource(ctx context.Context, src *storage.Source) error {
	return s.store.CreateSource(ctx, src)
}

func (s *Service) UpdateSource(ctx context.Context, id string, p storage.SourcePatch) (*storage.Source, error) {
	return s.store.UpdateSource(ctx, id, p)
}

func (s *Service) DeleteSource(ctx context.Context, id string) error {
	return s.store.DeleteSource(ctx, id)
}

func (s *Service) ListPresets(ctx context.Context) ([]storage.Preset, error) {
	return s.store.ListPresets(ctx, true)
}

// ActivePreset returns the selected preset, or nil when none is.
func (s *Service) ActivePreset(ctx context.Context) (*storage.Preset, error) {
	id, err := s.store.ActivePresetID(ctx)
	if err != nil || id == "" {
		return nil, err
	}
	p, err := s.store.GetPreset(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (s *Service) SetActivePreset(ctx context.Context, presetID string) (*storage.Preset, error) {
	if err := s.store.SetActivePresetID(ctx, presetID); err != nil {
		return nil, err
	}
	return s.ActivePreset(ctx)
}

func (s *Service) SetJudgment(ctx context.Context, j storage.Judgment) (*storage.Judgment, error) {
	return s.store.SetJudgment(ctx, j)
}

// ApplySeed upserts the seed file and drops cached dictionaries of the
// presets it touched.
func (s *Service) ApplySeed(ctx context.Context, f *seed.File) (*seed.Result, error) {
	res, err := seed.Apply(ctx, s.store, f)
	if res != nil {
		for _, id := range res.PresetIDs {
			s.presets.Invalidate(id)
		}
	}
	return res, err
}

// AIConfigured reports whether ai_rank runs can reach a model.
func (s *Service) AIConfigured() bool {
	return s.ranker != nil && s.ranker.Configured()
}
