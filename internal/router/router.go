package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// HealthRecorder receives per-provider outcomes. Implemented by
// health.Tracker; kept as an interface so the router has no upward imports.
type HealthRecorder interface {
	RecordSuccess(provider string, latencyMs float64)
	RecordError(provider, errClass, errMsg string)
}

// MetricsRecorder receives provider call counts. Implemented in internal/app
// over the prometheus registry.
type MetricsRecorder interface {
	ProviderRequest(provider, outcome string)
}

// Router classifies canonical model ids to providers and dispatches requests,
// retrying exactly once through the default provider's fallback mapping when
// the primary provider fails.
type Router struct {
	table    *RoutingTable
	adapters map[string]Sender
	fallback Sender // default-provider adapter used for fallback retries
	health   HealthRecorder
	metrics  MetricsRecorder
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithHealth attaches a health recorder.
func WithHealth(h HealthRecorder) Option {
	return func(r *Router) { r.health = h }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Router) { r.metrics = m }
}

// New creates a Router over the given routing table.
func New(table *RoutingTable, logger *slog.Logger, opts ...Option) *Router {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		table:    table,
		adapters: make(map[string]Sender),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider adapter. The adapter registered under the table's
// default provider also serves fallback retries.
func (r *Router) Register(provider string, adapter Sender) {
	r.adapters[provider] = adapter
	if provider == r.table.DefaultProvider {
		r.fallback = adapter
	}
}

// Providers returns the registered provider names.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// Table returns the routing table.
func (r *Router) Table() *RoutingTable { return r.table }

// ResolveAlias maps a short model name to its canonical id.
func (r *Router) ResolveAlias(name string) string { return r.table.ResolveAlias(name) }

// Dispatch sends one request to the provider the routing table selects for
// the model. On failure it consults the fallback map and retries exactly once
// through the default provider; the returned response then carries the
// fallback provider's tag.
func (r *Router) Dispatch(ctx context.Context, modelID string, req Request) (*Response, error) {
	provider := r.table.Classify(modelID)

	adapter, ok := r.adapters[provider]
	var resp *Response
	var err error
	if !ok {
		err = fmt.Errorf("provider %s not configured for model %s", provider, modelID)
	} else {
		start := time.Now()
		resp, err = adapter.Send(ctx, modelID, req)
		r.record(adapter, provider, start, err)
		if err == nil {
			return resp, nil
		}
	}

	fallbackID := r.table.FallbackID(modelID)
	if fallbackID == "" || r.fallback == nil || provider == r.table.DefaultProvider {
		return nil, err
	}

	r.logger.Warn("provider failed, retrying via fallback",
		slog.String("model", modelID),
		slog.String("provider", provider),
		slog.String("fallback_model", fallbackID),
		slog.String("error", err.Error()),
	)

	start := time.Now()
	resp, fbErr := r.fallback.Send(ctx, fallbackID, req)
	r.record(r.fallback, r.table.DefaultProvider, start, fbErr)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback after %v: %w", err, fbErr)
	}
	return resp, nil
}

func (r *Router) record(adapter Sender, provider string, start time.Time, err error) {
	latencyMs := float64(time.Since(start).Milliseconds())
	if err == nil {
		if r.health != nil {
			r.health.RecordSuccess(provider, latencyMs)
		}
		if r.metrics != nil {
			r.metrics.ProviderRequest(provider, "success")
		}
		return
	}

	classified := adapter.ClassifyError(err)
	if r.health != nil {
		r.health.RecordError(provider, string(classified.Class), err.Error())
	}
	if r.metrics != nil {
		r.metrics.ProviderRequest(provider, string(classified.Class))
	}
}
