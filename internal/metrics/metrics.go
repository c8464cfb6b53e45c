package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	RunsStarted        int64
	RunsSucceeded      int64
	RunsFailed         int64
	SourcesFetched     int64
	SourcesFailed      int64
	ItemsFetched       int64
	DuplicatesFiltered int64
	CandidatesScored   int64
	AICalls            int64
	AIFallbacks        int64
	AIFailures         int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunID     string
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) IncrementRunsStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsStarted++
}

// RecordSource counts one source fetch outcome.
func (m *Metrics) RecordSource(ok bool, items int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.SourcesFetched++
		m.ItemsFetched += int64(items)
		return
	}
	m.SourcesFailed++
}

func (m *Metrics) AddDuplicatesFiltered(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered += int64(n)
}

func (m *Metrics) AddCandidatesScored(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesScored += int64(n)
}

// RecordAICall counts one model attempt. fallback marks the second attempt.
func (m *Metrics) RecordAICall(fallback, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AICalls++
	if fallback {
		m.AIFallbacks++
	}
	if !ok {
		m.AIFailures++
	}
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

// SetRunSucceeded marks the service healthy after a completed run.
func (m *Metrics) SetRunSucceeded(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsSucceeded++
	m.LastRunID = runID
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetRunFailed(runID, err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunsFailed++
	m.LastRunID = runID
	m.LastRunTime = time.Now()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]any{
		"runs_started":               m.RunsStarted,
		"runs_succeeded":             m.RunsSucceeded,
		"runs_failed":                m.RunsFailed,
		"sources_fetched":            m.SourcesFetched,
		"sources_failed":             m.SourcesFailed,
		"items_fetched":              m.ItemsFetched,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"candidates_scored":          m.CandidatesScored,
		"ai_calls":                   m.AICalls,
		"ai_fallbacks":               m.AIFallbacks,
		"ai_failures":                m.AIFailures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_id":                m.LastRunID,
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error_time":            m.LastErrorTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}
