package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jordanhubbard/councilhub/internal/council"
)

// Status is the lifecycle state of an async job. Transitions only move
// forward: pending -> running -> completed/failed -> webhook_sent/webhook_failed.
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusWebhookSent   Status = "webhook_sent"
	StatusWebhookFailed Status = "webhook_failed"
)

// ValidStatus reports whether s names a known job status.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusWebhookSent, StatusWebhookFailed:
		return true
	}
	return false
}

func terminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusWebhookSent, StatusWebhookFailed:
		return true
	}
	return false
}

// Params is everything needed to run one async deliberation.
type Params struct {
	Query          string         `json:"query"`
	FinalOnly      bool           `json:"final_only"`
	Models         []string       `json:"models,omitempty"`
	Chairman       string         `json:"chairman,omitempty"`
	IncludeDetails bool           `json:"include_details"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	WebhookURL     string         `json:"webhook_url"`
	WebhookSecret  string         `json:"-"`
}

// Job is one async deliberation and its outcome.
type Job struct {
	ID            string          `json:"job_id"`
	Status        Status          `json:"status"`
	Params        Params          `json:"params"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Error         string          `json:"error,omitempty"`
	Result        *council.Result `json:"result,omitempty"`
	ResultSummary string          `json:"result_summary,omitempty"`
}

// Info is the listing view of a job: the query is truncated for display and
// the result is omitted.
type Info struct {
	JobID         string     `json:"job_id"`
	Status        Status     `json:"status"`
	Query         string     `json:"query"`
	WebhookURL    string     `json:"webhook_url"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	ResultSummary string     `json:"result_summary,omitempty"`
}

// Gauge tracks the number of non-terminal jobs. Satisfied by
// prometheus.Gauge.
type Gauge interface {
	Inc()
	Dec()
}

// Store keeps jobs in memory. Jobs do not survive a restart; that is the
// deal async callers sign up for.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	gauge Gauge
	now   func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithGauge keeps an active-jobs gauge current.
func WithGauge(g Gauge) StoreOption {
	return func(s *Store) { s.gauge = g }
}

// NewStore creates an empty job store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new pending job and returns it.
func (s *Store) Create(params Params) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		Params:    params,
		CreatedAt: s.now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	if s.gauge != nil {
		s.gauge.Inc()
	}
	return job
}

// Get returns a copy of the job, or false when unknown.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns up to limit jobs sorted by creation time, newest first,
// optionally filtered by status. Queries longer than 100 characters are
// truncated for display.
func (s *Store) List(limit int, status Status) []Info {
	s.mu.RLock()
	all := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		all = append(all, job)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	infos := make([]Info, 0, len(all))
	for _, job := range all {
		query := job.Params.Query
		if runes := []rune(query); len(runes) > 100 {
			query = string(runes[:100]) + "..."
		}
		infos = append(infos, Info{
			JobID:         job.ID,
			Status:        job.Status,
			Query:         query,
			WebhookURL:    job.Params.WebhookURL,
			CreatedAt:     job.CreatedAt,
			StartedAt:     job.StartedAt,
			CompletedAt:   job.CompletedAt,
			Error:         job.Error,
			ResultSummary: job.ResultSummary,
		})
	}
	return infos
}

// MarkRunning transitions a pending job to running.
func (s *Store) MarkRunning(id string) {
	s.update(id, func(job *Job) {
		job.Status = StatusRunning
		t := s.now().UTC()
		job.StartedAt = &t
	})
}

// MarkCompleted records a successful deliberation.
func (s *Store) MarkCompleted(id string, result *council.Result, summary string) {
	s.update(id, func(job *Job) {
		job.Status = StatusCompleted
		t := s.now().UTC()
		job.CompletedAt = &t
		job.Result = result
		job.ResultSummary = summary
		if s.gauge != nil {
			s.gauge.Dec()
		}
	})
}

// MarkFailed records a failed deliberation.
func (s *Store) MarkFailed(id string, errMsg string) {
	s.update(id, func(job *Job) {
		job.Status = StatusFailed
		t := s.now().UTC()
		job.CompletedAt = &t
		job.Error = errMsg
		if s.gauge != nil {
			s.gauge.Dec()
		}
	})
}

// MarkWebhook records the webhook delivery outcome for a finished job.
func (s *Store) MarkWebhook(id string, delivered bool, errMsg string) {
	s.update(id, func(job *Job) {
		if delivered {
			job.Status = StatusWebhookSent
		} else {
			job.Status = StatusWebhookFailed
			job.Error = errMsg
		}
	})
}

// Cleanup removes terminal jobs older than maxAge and returns how many were
// removed.
func (s *Store) Cleanup(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if terminal(job.Status) && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *Store) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}
