package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var runColumns = []string{
	"id", "mode", "window_hours", "preset_id", "status", "started_at", "ended_at", "summary",
	"ai_requested", "ai_used", "ai_calls", "ai_tokens_est", "ai_cost_est_krw", "ai_model",
}

func scanRun(r rowScanner) (Run, error) {
	var (
		run      Run
		presetID sql.NullString
		ended    sql.NullTime
		summary  sql.NullString
		model    sql.NullString
	)
	err := r.Scan(&run.ID, &run.Mode, &run.WindowHours, &presetID, &run.Status, &run.StartedAt, &ended, &summary,
		&run.AIRequested, &run.AIUsed, &run.AICalls, &run.AITokensEst, &run.AICostEstKRW, &model)
	if err != nil {
		return Run{}, err
	}
	run.PresetID = presetID.String
	run.EndedAt = timePtr(ended)
	run.AIModel = model.String
	if run.Summary, err = decodeSummary(summary.String); err != nil {
		return Run{}, err
	}
	return run, nil
}

// CreateRun records a new run in the running state.
func (s *Store) CreateRun(ctx context.Context, run *Run) error {
	if run.Mode != ModeCollectOnly && run.Mode != ModeAIRank {
		return fmt.Errorf("%w: run mode %q", ErrInvalid, run.Mode)
	}
	run.ID = uuid.NewString()
	run.Status = StatusRunning
	run.StartedAt = s.now()
	run.EndedAt = nil
	run.AIRequested = run.Mode == ModeAIRank

	_, err := execBuilt(ctx, s.db, s.sb.Insert("runs").
		Columns("id", "mode", "window_hours", "preset_id", "status", "started_at", "ai_requested").
		Values(run.ID, run.Mode, run.WindowHours, nullString(run.PresetID), run.Status, run.StartedAt, run.AIRequested))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// LatestRunID returns the id of the most recently started run.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	row, err := queryRowBuilt(ctx, s.db, s.sb.Select("id").From("runs").OrderBy("started_at DESC").Limit(1))
	if err != nil {
		return "", err
	}
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("latest run: %w", ErrNotFound)
		}
		return "", fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	b := s.sb.Select(runColumns...).From("runs").OrderBy("started_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	rows, err := queryBuilt(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// SaveRunSummary stores the summary and resolved preset of a run that is
// still running, without ending it.
func (s *Store) SaveRunSummary(ctx context.Context, id string, summary *RunSummary, presetID string) error {
	encoded, err := encodeSummary(summary)
	if err != nil {
		return err
	}
	res, err := execBuilt(ctx, s.db, s.sb.Update("runs").
		Set("summary", encoded).
		Set("preset_id", nullString(presetID)).
		Where(sq.Eq{"id": id, "status": StatusRunning}))
	if err != nil {
		return fmt.Errorf("save summary of run %s: %w", id, err)
	}
	return s.checkRunTransition(ctx, res, id)
}

// FinishRun moves a running run to success or failed and sets its end time.
// A nil summary keeps the stored one. Runs that already ended return
// ErrRunFinalized.
func (s *Store) FinishRun(ctx context.Context, id, status string, summary *RunSummary) error {
	if status != StatusSuccess && status != StatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	b := s.sb.Update("runs").
		Set("status", status).
		Set("ended_at", s.now()).
		Where(sq.Eq{"id": id, "status": StatusRunning})
	if summary != nil {
		encoded, err := encodeSummary(summary)
		if err != nil {
			return err
		}
		b = b.Set("summary", encoded)
	}
	res, err := execBuilt(ctx, s.db, b)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return s.checkRunTransition(ctx, res, id)
}

// RecordAIUsage marks a run as AI-ranked and accumulates the call count.
func (s *Store) RecordAIUsage(ctx context.Context, id string, u AIUsage) error {
	res, err := execBuilt(ctx, s.db, s.sb.Update("runs").
		Set("ai_used", true).
		Set("ai_calls", sq.Expr("ai_calls + 1")).
		Set("ai_tokens_est", u.Tokens).
		Set("ai_cost_est_krw", u.CostKRW).
		Set("ai_model", nullString(u.Model)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("record ai usage on run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// AssertRunning returns ErrRunFinalized once the run has left the running
// state, so callers can refuse work before writing anything.
func (s *Store) AssertRunning(ctx context.Context, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status != StatusRunning {
		return fmt.Errorf("run %s: %w", id, ErrRunFinalized)
	}
	return nil
}

func (s *Store) checkRunTransition(ctx context.Context, res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.GetRun(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("run %s: %w", id, ErrRunFinalized)
}
