// Package catalog discovers available models from provider APIs and caches
// the merged listing on disk.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTTL is how long a cached provider listing stays valid.
const DefaultTTL = 24 * time.Hour

// Lister fetches one provider's model listing. Implemented by the
// OpenRouter and Cerebras adapters.
type Lister interface {
	ListModels(ctx context.Context) ([]map[string]any, error)
}

// providerCache is the on-disk cache entry for one provider.
type providerCache struct {
	LastFetch int64            `json:"last_fetch"`
	Models    []map[string]any `json:"models"`
}

// CacheInfo describes one provider's cache state.
type CacheInfo struct {
	LastFetch  int64 `json:"last_fetch"`
	ModelCount int   `json:"model_count"`
	IsValid    bool  `json:"is_valid"`
}

// Discovery fetches and caches model listings from multiple providers.
type Discovery struct {
	cachePath string
	ttl       time.Duration
	listers   map[string]Lister
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]*providerCache
}

// New creates a Discovery caching under cacheDir/models.json. Providers with
// no configured credentials simply aren't registered.
func New(cacheDir string, listers map[string]Lister, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Discovery{
		cachePath: filepath.Join(cacheDir, "models.json"),
		ttl:       DefaultTTL,
		listers:   listers,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]*providerCache),
	}
	d.loadCache()
	return d
}

func (d *Discovery) loadCache() {
	data, err := os.ReadFile(d.cachePath)
	if err != nil {
		return
	}
	var cache map[string]*providerCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return
	}
	d.cache = cache
}

func (d *Discovery) saveCache() {
	data, err := json.MarshalIndent(d.cache, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(d.cachePath), 0o755); err != nil {
		d.logger.Warn("could not create cache dir", slog.String("error", err.Error()))
		return
	}
	if err := os.WriteFile(d.cachePath, data, 0o644); err != nil {
		d.logger.Warn("could not save model cache", slog.String("error", err.Error()))
	}
}

func (d *Discovery) cacheValid(provider string) bool {
	entry, ok := d.cache[provider]
	if !ok {
		return false
	}
	return d.now().Unix()-entry.LastFetch < int64(d.ttl.Seconds())
}

// Provider returns one provider's models, fetching when the cache is stale
// or forceRefresh is set. Fetch failures fall back to the stale cache. The
// lock is not held across the fetch so providers refresh concurrently.
func (d *Discovery) Provider(ctx context.Context, provider string, forceRefresh bool) []map[string]any {
	d.mu.Lock()
	if !forceRefresh && d.cacheValid(provider) {
		models := d.cache[provider].Models
		d.mu.Unlock()
		return models
	}
	var stale []map[string]any
	if entry, ok := d.cache[provider]; ok {
		stale = entry.Models
	}
	d.mu.Unlock()

	lister, ok := d.listers[provider]
	if !ok {
		return stale
	}

	models, err := lister.ListModels(ctx)
	if err != nil {
		d.logger.Warn("model fetch failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()))
		return stale
	}

	for _, m := range models {
		m["provider"] = provider
	}

	d.mu.Lock()
	d.cache[provider] = &providerCache{LastFetch: d.now().Unix(), Models: models}
	d.saveCache()
	d.mu.Unlock()
	return models
}

// All returns the merged model listing across every registered provider,
// fetched concurrently.
func (d *Discovery) All(ctx context.Context, forceRefresh bool) []map[string]any {
	providers := d.providerNames()

	results := make([][]map[string]any, len(providers))
	g, ctx := errgroup.WithContext(ctx)
	for i, provider := range providers {
		g.Go(func() error {
			results[i] = d.Provider(ctx, provider, forceRefresh)
			return nil
		})
	}
	_ = g.Wait()

	var merged []map[string]any
	for _, models := range results {
		merged = append(merged, models...)
	}
	return merged
}

// providerNames returns the registered provider names. Sorted so the merged
// listing is stable.
func (d *Discovery) providerNames() []string {
	names := make([]string, 0, len(d.listers))
	for name := range d.listers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns cache metadata per provider.
func (d *Discovery) Info() map[string]CacheInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := make(map[string]CacheInfo, len(d.listers))
	for name := range d.listers {
		entry := d.cache[name]
		ci := CacheInfo{IsValid: d.cacheValid(name)}
		if entry != nil {
			ci.LastFetch = entry.LastFetch
			ci.ModelCount = len(entry.Models)
		}
		info[name] = ci
	}
	return info
}
