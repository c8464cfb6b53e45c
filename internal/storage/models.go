package storage

import (
	"crypto/sha1"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Run modes and statuses.
const (
	ModeCollectOnly = "collect_only"
	ModeAIRank      = "ai_rank"

	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type Source struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"sourceId"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	Enabled     bool      `json:"enabled"`
	Weight      int       `json:"weight"`
	PresetSlugs string    `json:"presetSlugs,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Slugs splits PresetSlugs into trimmed, non-empty slugs.
func (s Source) Slugs() []string {
	var out []string
	for _, part := range strings.Split(s.PresetSlugs, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EligibleFor reports whether the source is collected for the given preset
// slug. An empty slug means no preset is active.
func (s Source) EligibleFor(slug string) bool {
	slugs := s.Slugs()
	if len(slugs) == 0 || slug == "" {
		return true
	}
	for _, v := range slugs {
		if v == slug {
			return true
		}
	}
	return false
}

type Item struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	ContentText string     `json:"contentText,omitempty"`
	Hash        string     `json:"hash"`
	SourceID    string     `json:"sourceId"`
	FetchedAt   time.Time  `json:"fetchedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ContentHash is the change-detection hash of an item.
func ContentHash(title, url string) string {
	sum := sha1.Sum([]byte(title + "|" + url))
	return hex.EncodeToString(sum[:])
}

type Preset struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Enabled       bool      `json:"enabled"`
	DefaultAITopN int       `json:"defaultAiTopN"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Keyword struct {
	ID       string `json:"id"`
	PresetID string `json:"presetId"`
	Group    string `json:"group"`
	Term     string `json:"term"`
	Weight   int    `json:"weight"`
	Position int    `json:"position"`
}

type Run struct {
	ID           string      `json:"id"`
	Mode         string      `json:"mode"`
	WindowHours  int         `json:"windowHours"`
	PresetID     string      `json:"presetId,omitempty"`
	Status       string      `json:"status"`
	StartedAt    time.Time   `json:"startedAt"`
	EndedAt      *time.Time  `json:"endedAt,omitempty"`
	Summary      *RunSummary `json:"summary,omitempty"`
	AIRequested  bool        `json:"aiRequested"`
	AIUsed       bool        `json:"aiUsed"`
	AICalls      int         `json:"aiCalls"`
	AITokensEst  int         `json:"aiTokensEst"`
	AICostEstKRW int         `json:"aiCostEstKrw"`
	AIModel      string      `json:"aiModel,omitempty"`
}

// AIUsage is what a successful re-ranking records on its run.
type AIUsage struct {
	Model   string
	Tokens  int
	CostKRW int
}

type Candidate struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId"`
	ItemID     string    `json:"itemId"`
	RuleScore  int       `json:"ruleScore"`
	TotalScore int       `json:"totalScore"`
	Reasons    Reasons   `json:"reasons"`
	Rank       *int      `json:"rank,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CandidateView is a candidate joined with its item, the item's source and
// any judgment recorded for the item.
type CandidateView struct {
	Candidate
	Item     Item      `json:"item"`
	Source   Source    `json:"source"`
	Judgment *Judgment `json:"judgment,omitempty"`
}

// Judgment verdicts.
const (
	VerdictOK        = "ok"
	VerdictViolation = "violation"
)

type Judgment struct {
	ItemID    string    `json:"itemId"`
	Verdict   string    `json:"verdict"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Reasons is the ordered list of scoring tags of a candidate. It is stored
// as a JSON array of strings.
type Reasons []string

func (r Reasons) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Reasons) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("reasons: unsupported type %T", src)
	}
	if len(data) == 0 {
		*r = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("reasons: %w", err)
	}
	*r = list
	return nil
}

// WithoutPrefix returns a copy without the tags that start with prefix.
func (r Reasons) WithoutPrefix(prefix string) Reasons {
	out := make(Reasons, 0, len(r))
	for _, v := range r {
		if !strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	return out
}

// RunSummary is the fixed-shape record written to a run when collection ends.
type RunSummary struct {
	Preset        *PresetRef      `json:"preset"`
	WindowHours   int             `json:"windowHours"`
	Sources       []SourceOutcome `json:"sources,omitempty"`
	Totals        Totals          `json:"totals"`
	TrendingTop10 []TrendingEntry `json:"trendingTop10,omitempty"`
	Error         string          `json:"error,omitempty"`
}

type PresetRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type SourceOutcome struct {
	SourceID string `json:"sourceId"`
	OK       bool   `json:"ok"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

type Totals struct {
	Fetched    int `json:"fetched"`
	Deduped    int `json:"deduped"`
	Candidates int `json:"candidates"`
}

type TrendingEntry struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Source     string `json:"source"`
	TotalScore int    `json:"totalScore"`
}

func encodeSummary(s *RunSummary) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode run summary: %w", err)
	}
	return string(b), nil
}

func decodeSummary(raw string) (*RunSummary, error) {
	if raw == "" {
		return nil, nil
	}
	var s RunSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}
	return &s, nil
}
