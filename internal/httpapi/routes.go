package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/jordanhubbard/councilhub/internal/catalog"
	"github.com/jordanhubbard/councilhub/internal/council"
	"github.com/jordanhubbard/councilhub/internal/events"
	"github.com/jordanhubbard/councilhub/internal/health"
	"github.com/jordanhubbard/councilhub/internal/jobs"
	"github.com/jordanhubbard/councilhub/internal/metrics"
	"github.com/jordanhubbard/councilhub/internal/router"
	"github.com/jordanhubbard/councilhub/internal/store"
)

// Dependencies bundles everything the HTTP handlers need.
type Dependencies struct {
	Engine  *council.Engine
	Router  *router.Router
	Jobs    *jobs.Store
	Runner  *jobs.Runner
	Store   store.Store
	Catalog *catalog.Discovery
	Health  *health.Tracker
	Metrics *metrics.Registry

	// EventBus feeds the /api/events firehose (nil disables it).
	EventBus *events.Bus

	Version string
}

func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/", RootHandler(d))
	r.Get("/health", HealthHandler(d))

	r.Route("/api", func(r chi.Router) {
		r.Get("/info", InfoHandler(d))
		r.Get("/models", ModelsHandler(d))
		r.Get("/models/{provider}", ProviderModelsHandler(d))
		r.Get("/providers/health", ProvidersHealthHandler(d))

		r.Post("/council", CouncilHandler(d))
		r.Post("/council/async", CouncilAsyncHandler(d))
		r.Get("/council/jobs", JobsListHandler(d))
		r.Delete("/council/jobs/cleanup", JobsCleanupHandler(d))
		r.Get("/council/jobs/{id}", JobGetHandler(d))

		r.Get("/conversations", ConversationsListHandler(d))
		r.Post("/conversations", ConversationCreateHandler(d))
		r.Get("/conversations/{id}", ConversationGetHandler(d))
		r.Delete("/conversations/{id}", ConversationDeleteHandler(d))
		r.Post("/conversations/{id}/message", ConversationMessageHandler(d))
		r.Post("/conversations/{id}/message/stream", ConversationStreamHandler(d))

		if d.EventBus != nil {
			r.Get("/events", SSEHandler(d.EventBus))
		}
	})

	r.Handle("/metrics", d.Metrics.Handler())

	// Serve built documentation from docs/book/ if available.
	// Build with: make docs (requires mdbook)
	mountDocs(r)
}

func mountDocs(r chi.Router) {
	// Look for docs/book/ in known locations:
	// - docs/book/ relative to working directory (development)
	// - /docs/book/ absolute path (Docker container)
	candidates := []string{
		filepath.Join("docs", "book"),
		"/docs/book",
	}
	for _, docRoot := range candidates {
		if info, err := os.Stat(docRoot); err == nil && info.IsDir() {
			docsFS := http.FileServer(http.Dir(docRoot))
			r.Handle("/docs/*", http.StripPrefix("/docs/", docsFS))
			r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/docs/", http.StatusMovedPermanently)
			})
			return
		}
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
