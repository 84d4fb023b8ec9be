package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RootHandler returns the service banner.
func RootHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "LLM Council",
			"version": d.Version,
			"docs":    "/docs",
		})
	}
}

// HealthHandler reports liveness plus the effective council configuration.
func HealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"council_models": d.Engine.CouncilModels(),
			"chairman":       d.Engine.ChairmanModel(),
			"providers":      d.Router.Providers(),
		})
	}
}

// InfoHandler describes the running service: configuration, registered
// providers, job counts, and model cache state.
func InfoHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		info := map[string]any{
			"service":        "LLM Council",
			"version":        d.Version,
			"council_models": d.Engine.CouncilModels(),
			"chairman":       d.Engine.ChairmanModel(),
			"providers":      d.Router.Providers(),
		}
		if d.Jobs != nil {
			info["jobs_stored"] = d.Jobs.Len()
		}
		if d.Catalog != nil {
			info["model_cache"] = d.Catalog.Info()
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// ModelsHandler lists available models across all providers, or one provider
// when ?provider= is given. ?refresh=true bypasses the cache.
func ModelsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
		if provider := r.URL.Query().Get("provider"); provider != "" {
			models := d.Catalog.Provider(r.Context(), provider, refresh)
			writeJSON(w, http.StatusOK, map[string]any{
				"provider": provider,
				"models":   models,
				"count":    len(models),
			})
			return
		}
		models := d.Catalog.All(r.Context(), refresh)
		writeJSON(w, http.StatusOK, map[string]any{
			"models": models,
			"count":  len(models),
		})
	}
}

// ProviderModelsHandler lists one provider's models.
func ProviderModelsHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := chi.URLParam(r, "provider")
		refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
		models := d.Catalog.Provider(r.Context(), provider, refresh)
		writeJSON(w, http.StatusOK, map[string]any{
			"provider": provider,
			"models":   models,
			"count":    len(models),
		})
	}
}

// ProvidersHealthHandler reports per-provider success/error/latency stats.
func ProvidersHealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"providers": d.Health.AllStats(),
		})
	}
}
