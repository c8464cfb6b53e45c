// Package ranker asks a language model to pick the ten most useful
// candidates of a run and writes the resulting ranks back.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/deusflow/shorts-hunter/internal/metrics"
	"github.com/deusflow/shorts-hunter/internal/storage"
)

var (
	ErrNotConfigured  = errors.New("ai ranking is not configured")
	ErrNoCandidates   = errors.New("no candidates with a non-negative rule score")
	ErrResponseFormat = errors.New("unexpected ranking response")
	ErrBudgetExceeded = errors.New("daily ai budget exceeded")
)

// DefaultPresetName is the topic used when the run has no preset.
const DefaultPresetName = "정책·제도"

const (
	DefaultTimeout = 30 * time.Second
	temperature    = 0.3
	maxTokens      = 800

	// Flat estimate, not metered billing.
	pricePerMillionTokens = 150.0
	krwRate               = 1400.0
)

// CompletionRequest is one prompt sent to a model.
type CompletionRequest struct {
	Model       string
	Prompt      string
	Temperature float32
	MaxTokens   int
	// JSON asks the provider for a JSON-only reply.
	JSON bool
}

type Completion struct {
	Text       string
	TokensUsed int
}

// Completer is implemented by each model provider.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// Budget is consulted before every model attempt.
type Budget interface {
	Use(model string) error
}

type Store interface {
	RankableCandidates(ctx context.Context, runID string, limit int) ([]storage.CandidateView, error)
	ApplyRanking(ctx context.Context, runID string, updates []storage.RankUpdate) (int, error)
	RecordAIUsage(ctx context.Context, id string, u storage.AIUsage) error
}

var _ Store = (*storage.Store)(nil)

type Options struct {
	PrimaryModel  string
	FallbackModel string
	// Timeout bounds each attempt separately.
	Timeout time.Duration
	// MaxCandidates caps the prompt's candidate list; 0 sends all of them.
	MaxCandidates int
}

type RerankParams struct {
	RunID             string
	PresetName        string
	PresetDescription string
}

type Result struct {
	Top10      []Entry `json:"top10"`
	Model      string  `json:"model"`
	TokensUsed int     `json:"tokensUsed"`
	Applied    int     `json:"applied"`
}

type Ranker struct {
	store     Store
	completer Completer
	opts      Options
	budget    Budget
	metrics   *metrics.Metrics
	log       *slog.Logger
}

type Option func(*Ranker)

func WithBudget(b Budget) Option {
	return func(r *Ranker) { r.budget = b }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Ranker) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Ranker) { r.log = l }
}

// New returns a ranker. A nil completer yields ErrNotConfigured on every
// Rerank so callers can construct it unconditionally.
func New(store Store, completer Completer, opts Options, options ...Option) *Ranker {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	r := &Ranker{
		store:     store,
		completer: completer,
		opts:      opts,
		metrics:   metrics.Global,
		log:       slog.Default(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Configured reports whether Rerank can reach a model.
func (r *Ranker) Configured() bool {
	return r.completer != nil && r.opts.PrimaryModel != ""
}

func (r *Ranker) Rerank(ctx context.Context, p RerankParams) (*Result, error) {
	if !r.Configured() {
		return nil, ErrNotConfigured
	}
	log := r.log.With("run_id", p.RunID)

	cands, err := r.store.RankableCandidates(ctx, p.RunID, r.opts.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("run %s: %w", p.RunID, ErrNoCandidates)
	}

	name := p.PresetName
	if name == "" {
		name = DefaultPresetName
	}
	prompt := BuildPrompt(name, p.PresetDescription, cands)

	completion, model, err := r.complete(ctx, log, prompt)
	if err != nil {
		return nil, err
	}

	entries, err := ParseResponse(completion.Text)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(cands))
	for _, c := range cands {
		known[c.ID] = true
	}
	updates := make([]storage.RankUpdate, 0, len(entries))
	for _, e := range entries {
		if !known[e.CandidateID] {
			log.Warn("ranked candidate not in run, skipping", "candidate_id", e.CandidateID, "rank", e.Rank)
			continue
		}
		updates = append(updates, storage.RankUpdate{CandidateID: e.CandidateID, Rank: e.Rank, Reason: e.Reason})
	}

	applied, err := r.store.ApplyRanking(ctx, p.RunID, updates)
	if err != nil {
		return nil, err
	}
	usage := storage.AIUsage{
		Model:   model,
		Tokens:  completion.TokensUsed,
		CostKRW: EstimateCostKRW(completion.TokensUsed),
	}
	if err := r.store.RecordAIUsage(ctx, p.RunID, usage); err != nil {
		return nil, err
	}

	log.Info("ai ranking applied", "model", model, "ranked", applied, "tokens", usage.Tokens, "cost_krw", usage.CostKRW)
	return &Result{Top10: entries, Model: model, TokensUsed: completion.TokensUsed, Applied: applied}, nil
}

type attempt int

const (
	attemptPrimary attempt = iota
	attemptFallback
	attemptsDone
)

// complete walks primary -> fallback. Any failure of the primary moves on
// to the fallback with the same prompt; a fallback failure ends the call.
func (r *Ranker) complete(ctx context.Context, log *slog.Logger, prompt string) (Completion, string, error) {
	var errs []error
	for state := attemptPrimary; state < attemptsDone; state++ {
		model := r.opts.PrimaryModel
		if state == attemptFallback {
			model = r.opts.FallbackModel
			if model == "" || model == r.opts.PrimaryModel {
				break
			}
		}

		if r.budget != nil {
			if err := r.budget.Use(model); err != nil {
				return Completion{}, "", fmt.Errorf("%w: %w", ErrBudgetExceeded, err)
			}
		}

		c, err := r.attempt(ctx, model, prompt)
		r.metrics.RecordAICall(state == attemptFallback, err == nil)
		if err == nil {
			return c, model, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", model, err))
		if state == attemptPrimary {
			log.Warn("primary model failed, trying fallback", "model", model, "fallback", r.opts.FallbackModel, "error", err)
		}
	}
	return Completion{}, "", fmt.Errorf("ai ranking failed: %w", errors.Join(errs...))
}

func (r *Ranker) attempt(ctx context.Context, model, prompt string) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return r.completer.Complete(ctx, CompletionRequest{
		Model:       model,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSON:        true,
	})
}

// EstimateCostKRW converts a token count into an approximate cost in won.
func EstimateCostKRW(tokens int) int {
	return int(math.Round(float64(tokens) / 1e6 * pricePerMillionTokens * krwRate))
}
