package health

import (
	"sort"
	"sync"
	"time"

	"github.com/jordanhubbard/councilhub/internal/events"
)

// State represents the observed health of a provider. It is informational
// only: deliberations always query every council member, so an unhealthy
// provider is reported but never skipped.
type State string

const (
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDown     State = "down"
)

// Stats captures runtime health metrics for a single provider.
type Stats struct {
	Provider      string    `json:"provider"`
	State         State     `json:"state"`
	TotalRequests int64     `json:"total_requests"`
	TotalErrors   int64     `json:"total_errors"`
	ConsecErrors  int       `json:"consec_errors"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorTime time.Time `json:"last_error_time,omitempty"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
}

// TrackerConfig configures the state thresholds.
type TrackerConfig struct {
	ConsecErrorsForDegraded int
	ConsecErrorsForDown     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ConsecErrorsForDegraded: 2,
		ConsecErrorsForDown:     5,
	}
}

// Tracker tracks runtime health of all providers.
type Tracker struct {
	cfg TrackerConfig
	bus *events.Bus

	mu    sync.RWMutex
	stats map[string]*Stats
}

// TrackerOption configures optional Tracker behaviour.
type TrackerOption func(*Tracker)

// WithEventBus attaches an event bus so that provider errors are published
// as provider_error events.
func WithEventBus(bus *events.Bus) TrackerOption {
	return func(t *Tracker) {
		t.bus = bus
	}
}

// NewTracker creates a health tracker with the given config.
func NewTracker(cfg TrackerConfig, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		cfg:   cfg,
		stats: make(map[string]*Stats),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordSuccess records a successful request to a provider.
func (t *Tracker) RecordSuccess(provider string, latencyMs float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.getOrCreate(provider)
	s.TotalRequests++
	s.ConsecErrors = 0
	s.LastSuccessAt = time.Now()
	s.State = StateHealthy

	// Running average (simple weighted).
	if s.TotalRequests == 1 {
		s.AvgLatencyMs = latencyMs
	} else {
		s.AvgLatencyMs = s.AvgLatencyMs*0.9 + latencyMs*0.1
	}
}

// RecordError records a failed request to a provider.
func (t *Tracker) RecordError(provider, errClass, errMsg string) {
	t.mu.Lock()

	s := t.getOrCreate(provider)
	s.TotalRequests++
	s.TotalErrors++
	s.ConsecErrors++
	s.LastError = errMsg
	s.LastErrorTime = time.Now()

	if s.ConsecErrors >= t.cfg.ConsecErrorsForDown {
		s.State = StateDown
	} else if s.ConsecErrors >= t.cfg.ConsecErrorsForDegraded {
		s.State = StateDegraded
	}
	t.mu.Unlock()

	if t.bus != nil {
		t.bus.Publish(events.Event{
			Type:       events.EventProviderError,
			Provider:   provider,
			ErrorClass: errClass,
			ErrorMsg:   errMsg,
		})
	}
}

// GetStats returns a copy of the health stats for a provider.
func (t *Tracker) GetStats(provider string) *Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.stats[provider]
	if !ok {
		return &Stats{Provider: provider, State: StateHealthy}
	}
	cp := *s
	return &cp
}

// AllStats returns health stats for all known providers, sorted by name.
func (t *Tracker) AllStats() []Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]Stats, 0, len(t.stats))
	for _, s := range t.stats {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Provider < result[j].Provider })
	return result
}

func (t *Tracker) getOrCreate(provider string) *Stats {
	s, ok := t.stats[provider]
	if !ok {
		s = &Stats{Provider: provider, State: StateHealthy}
		t.stats[provider] = s
	}
	return s
}
