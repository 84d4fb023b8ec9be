package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jordanhubbard/councilhub/internal/council"
	"github.com/jordanhubbard/councilhub/internal/jobs"
)

// CouncilRequest is the JSON body for POST /api/council.
type CouncilRequest struct {
	Query     string   `json:"query"`
	Models    []string `json:"models,omitempty"`
	Chairman  string   `json:"chairman,omitempty"`
	FinalOnly bool     `json:"final_only,omitempty"`
}

// AsyncCouncilRequest extends CouncilRequest with webhook delivery options.
type AsyncCouncilRequest struct {
	CouncilRequest
	WebhookURL     string         `json:"webhook_url"`
	WebhookSecret  string         `json:"webhook_secret,omitempty"`
	IncludeDetails bool           `json:"include_details,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// CouncilHandler runs a synchronous deliberation and returns the full result.
func CouncilHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CouncilRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			jsonError(w, "query is required", http.StatusBadRequest)
			return
		}

		result, err := d.Engine.Run(r.Context(), req.Query, council.RunOptions{
			CouncilModels: req.Models,
			ChairmanModel: req.Chairman,
			FinalOnly:     req.FinalOnly,
		})
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// CouncilAsyncHandler accepts a deliberation job and returns 202 immediately.
// The result is delivered to the webhook (if any) and pollable by job id.
func CouncilAsyncHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AsyncCouncilRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			jsonError(w, "query is required", http.StatusBadRequest)
			return
		}

		job := d.Jobs.Create(jobs.Params{
			Query:          req.Query,
			FinalOnly:      req.FinalOnly,
			Models:         req.Models,
			Chairman:       req.Chairman,
			IncludeDetails: req.IncludeDetails,
			Metadata:       req.Metadata,
			WebhookURL:     req.WebhookURL,
			WebhookSecret:  req.WebhookSecret,
		})
		d.Runner.Launch(job.ID)

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":      "accepted",
			"job_id":      job.ID,
			"message":     "Council deliberation started",
			"webhook_url": req.WebhookURL,
			"poll_url":    "/api/council/jobs/" + job.ID,
		})
	}
}

// JobsListHandler lists jobs, newest first. ?status= filters; ?limit= caps
// the listing (default 50).
func JobsListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}

		status := r.URL.Query().Get("status")
		if status != "" && !jobs.ValidStatus(status) {
			jsonError(w, "invalid status: "+status, http.StatusBadRequest)
			return
		}

		infos := d.Jobs.List(limit, jobs.Status(status))
		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":  infos,
			"count": len(infos),
		})
	}
}

// JobGetHandler returns one job. ?include_result=false omits the stored
// deliberation result.
func JobGetHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, ok := d.Jobs.Get(id)
		if !ok {
			jsonError(w, "job not found", http.StatusNotFound)
			return
		}

		includeResult := true
		if raw := r.URL.Query().Get("include_result"); raw != "" {
			includeResult, _ = strconv.ParseBool(raw)
		}
		if !includeResult {
			job.Result = nil
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// JobsCleanupHandler removes finished jobs older than ?max_age_hours=
// (default 24).
func JobsCleanupHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxAgeHours := 24
		if raw := r.URL.Query().Get("max_age_hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				jsonError(w, "max_age_hours must be a non-negative integer", http.StatusBadRequest)
				return
			}
			maxAgeHours = n
		}

		removed := d.Jobs.Cleanup(time.Duration(maxAgeHours) * time.Hour)
		writeJSON(w, http.StatusOK, map[string]any{
			"removed":       removed,
			"max_age_hours": maxAgeHours,
		})
	}
}
