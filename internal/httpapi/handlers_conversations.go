package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jordanhubbard/councilhub/internal/council"
	"github.com/jordanhubbard/councilhub/internal/store"
)

// ConversationsListHandler lists all conversations, newest first.
func ConversationsListHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := d.Store.ListConversations(r.Context())
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if convs == nil {
			convs = []store.ConversationSummary{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
	}
}

// ConversationCreateHandler creates an empty conversation.
func ConversationCreateHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title string `json:"title"`
		}
		// An empty body is fine; the title defaults server-side.
		_ = json.NewDecoder(r.Body).Decode(&req)

		conv, err := d.Store.CreateConversation(r.Context(), uuid.NewString(), req.Title)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, conv)
	}
}

// ConversationGetHandler returns a conversation with its messages.
func ConversationGetHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := d.Store.GetConversation(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			jsonError(w, "conversation not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

// ConversationDeleteHandler deletes a conversation and its messages.
func ConversationDeleteHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
			jsonError(w, "conversation not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// ConversationMessageHandler runs a full deliberation for the posted query
// and appends both turns to the conversation.
func ConversationMessageHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convID := chi.URLParam(r, "id")
		if _, err := d.Store.GetConversation(r.Context(), convID); err != nil {
			jsonError(w, "conversation not found", http.StatusNotFound)
			return
		}

		var req CouncilRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			jsonError(w, "query is required", http.StatusBadRequest)
			return
		}

		priorMessages, err := d.Store.MessageCount(r.Context(), convID)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if err := d.Store.AddMessage(r.Context(), convID, store.Message{Role: "user", Content: req.Query}); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
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

		persistAssistantTurn(r.Context(), d, convID, result)

		// First exchange names the conversation.
		if priorMessages == 0 {
			title := d.Engine.GenerateTitle(r.Context(), req.Query)
			if err := d.Store.SetTitle(r.Context(), convID, title); err != nil {
				slog.Warn("could not set conversation title",
					slog.String("conversation_id", convID),
					slog.String("error", err.Error()))
			}
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ConversationStreamHandler runs a deliberation while streaming stage events
// over SSE. On the first message of a conversation the title is generated
// concurrently and emitted as a title_complete event.
func ConversationStreamHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convID := chi.URLParam(r, "id")
		if _, err := d.Store.GetConversation(r.Context(), convID); err != nil {
			jsonError(w, "conversation not found", http.StatusNotFound)
			return
		}

		var req CouncilRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			jsonError(w, "query is required", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			jsonError(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		priorMessages, err := d.Store.MessageCount(r.Context(), convID)
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := d.Store.AddMessage(r.Context(), convID, store.Message{Role: "user", Content: req.Query}); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		// The title goroutine and the engine callback share the writer.
		var mu sync.Mutex
		emit := func(event string, data map[string]any) {
			body, err := json.Marshal(data)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body)
			flusher.Flush()
		}

		// Title generation runs concurrently with the deliberation so the
		// client sees the name as soon as it is ready.
		var titleWG sync.WaitGroup
		if priorMessages == 0 {
			titleWG.Add(1)
			go func() {
				defer titleWG.Done()
				title := d.Engine.GenerateTitle(r.Context(), req.Query)
				if err := d.Store.SetTitle(r.Context(), convID, title); err != nil {
					slog.Warn("could not set conversation title",
						slog.String("conversation_id", convID),
						slog.String("error", err.Error()))
				}
				emit("title_complete", map[string]any{"title": title})
			}()
		}

		result, err := d.Engine.Run(r.Context(), req.Query, council.RunOptions{
			CouncilModels: req.Models,
			ChairmanModel: req.Chairman,
			FinalOnly:     req.FinalOnly,
			OnEvent:       emit,
		})
		titleWG.Wait()
		if err != nil {
			emit("error", map[string]any{"error": err.Error()})
			return
		}

		persistAssistantTurn(r.Context(), d, convID, result)
		emit("complete", map[string]any{"result": result})
	}
}

// persistAssistantTurn appends the chairman's answer with the complete
// deliberation attached as a JSON payload. Persistence failures are logged,
// not surfaced; the deliberation already succeeded.
func persistAssistantTurn(ctx context.Context, d Dependencies, convID string, result *council.Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		payload = nil
	}
	msg := store.Message{
		Role:      "assistant",
		Content:   result.Stage3.Response,
		Payload:   string(payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := d.Store.AddMessage(ctx, convID, msg); err != nil {
		slog.Warn("could not persist assistant message",
			slog.String("conversation_id", convID),
			slog.String("error", err.Error()))
	}
}
