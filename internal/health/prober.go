package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jordanhubbard/councilhub/internal/logging"
)

// Probeable describes a provider endpoint worth probing. LLM APIs rarely
// expose a dedicated health route, so this is usually the provider's model
// catalog URL.
type Probeable interface {
	ID() string
	HealthEndpoint() string
}

// ProberConfig configures the provider prober.
type ProberConfig struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
}

// DefaultProberConfig returns sensible defaults.
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		Interval:     30 * time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

// Prober periodically probes provider endpoints and feeds results into the
// health Tracker. Probing is about reachability, not authorization: an
// unauthenticated or rate-limited answer still proves the provider is up.
type Prober struct {
	cfg     ProberConfig
	tracker *Tracker
	client  *http.Client
	logger  *slog.Logger
	stop    chan struct{}
	done    chan struct{}

	mu      sync.RWMutex
	targets map[string]Probeable // keyed by provider ID
}

// NewProber creates a provider prober.
func NewProber(cfg ProberConfig, tracker *Tracker, targets []Probeable, logger *slog.Logger) *Prober {
	m := make(map[string]Probeable, len(targets))
	for _, t := range targets {
		m[t.ID()] = t
	}
	return &Prober{
		cfg:     cfg,
		tracker: tracker,
		targets: m,
		client:  &http.Client{Timeout: cfg.ProbeTimeout},
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// AddTarget registers a new probe target at runtime. If a target with the
// same ID already exists it is replaced. Safe to call while the prober is running.
func (p *Prober) AddTarget(t Probeable) {
	p.mu.Lock()
	p.targets[t.ID()] = t
	p.mu.Unlock()
	p.logger.Info("prober: added provider", slog.String("provider", t.ID()))
}

// RemoveTarget removes a probe target by ID. Safe to call while the prober is running.
func (p *Prober) RemoveTarget(id string) {
	p.mu.Lock()
	delete(p.targets, id)
	p.mu.Unlock()
	p.logger.Info("prober: removed provider", slog.String("provider", id))
}

// Start begins the periodic probe loop in a goroutine.
func (p *Prober) Start() {
	go p.run()
}

// Stop signals the prober to stop and waits for it to finish.
func (p *Prober) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Prober) run() {
	defer close(p.done)

	// Probe immediately on start.
	p.probeAll()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probeAll()
		case <-p.stop:
			return
		}
	}
}

func (p *Prober) probeAll() {
	p.mu.RLock()
	snapshot := make([]Probeable, 0, len(p.targets))
	for _, t := range p.targets {
		snapshot = append(snapshot, t)
	}
	p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, t := range snapshot {
		wg.Add(1)
		go func(target Probeable) {
			defer wg.Done()
			p.probe(target)
		}(t)
	}
	wg.Wait()
}

// reachableStatus reports whether a probe response proves the provider is up.
// 401/403 mean the endpoint exists but wants credentials (Gemini answers 403
// to a bad key), 405 means it exists but not for GET (Anthropic's messages
// endpoint), and 429 means it is alive enough to throttle us.
func reachableStatus(code int) bool {
	if code >= 200 && code < 300 {
		return true
	}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusMethodNotAllowed, http.StatusTooManyRequests:
		return true
	}
	return false
}

func (p *Prober) probe(target Probeable) {
	endpoint := target.HealthEndpoint()
	if endpoint == "" {
		return
	}
	// Gemini carries its key in the query string; never log it.
	loggedEndpoint := logging.ScrubURL(endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		p.tracker.RecordError(target.ID(), "probe", err.Error())
		p.logger.Warn("provider probe request error",
			slog.String("provider", target.ID()),
			slog.String("endpoint", loggedEndpoint),
			slog.String("error", err.Error()),
		)
		return
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latencyMs := float64(time.Since(start).Milliseconds())

	if err != nil {
		p.tracker.RecordError(target.ID(), "probe", err.Error())
		p.logger.Warn("provider probe failed",
			slog.String("provider", target.ID()),
			slog.String("endpoint", loggedEndpoint),
			slog.String("error", err.Error()),
		)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if reachableStatus(resp.StatusCode) {
		p.tracker.RecordSuccess(target.ID(), latencyMs)
		p.logger.Debug("provider probe ok",
			slog.String("provider", target.ID()),
			slog.Int("status", resp.StatusCode),
			slog.Float64("latency_ms", latencyMs),
		)
	} else {
		p.tracker.RecordError(target.ID(), "probe", "HTTP "+resp.Status)
		p.logger.Warn("provider probe unhealthy",
			slog.String("provider", target.ID()),
			slog.String("endpoint", loggedEndpoint),
			slog.Int("status", resp.StatusCode),
		)
	}
}
