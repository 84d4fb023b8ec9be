package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jordanhubbard/councilhub/internal/router"
)

// noAuthPaths makes the token source find no OAuth credentials.
var noAuthPaths = []string{"/nonexistent/auth.json"}

func anthropicResponse(text string) map[string]any {
	return map[string]any{
		"content": []map[string]string{
			{"type": "text", "text": text},
		},
		"usage": map[string]int{"input_tokens": 10, "output_tokens": 5},
	}
}

func TestSendAPIKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header, got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("expected anthropic-version header")
		}
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected /v1/messages, got %s", r.URL.Path)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "claude-opus-4-20250514" {
			t.Errorf("model = %v, want mapped id", payload["model"])
		}
		if _, hasSystem := payload["system"]; hasSystem {
			t.Error("api-key request should not carry a system block without one in the request")
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(anthropicResponse("Hello from Claude!"))
	}))
	defer ts.Close()

	a := New("test-key", ts.URL, noAuthPaths, "")
	resp, err := a.Send(context.Background(), "claude-opus-4.5", router.Request{
		Messages: []router.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Hello from Claude!" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", resp.Provider)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}
}

func TestSendStripsRoutingPrefix(t *testing.T) {
	var gotModel string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotModel, _ = payload["model"].(string)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(anthropicResponse("ok"))
	}))
	defer ts.Close()

	a := New("test-key", ts.URL, noAuthPaths, "")
	_, err := a.Send(context.Background(), "anthropic/claude-opus-4.6", router.Request{
		Messages: []router.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "claude-opus-4.6" {
		t.Errorf("model sent = %q, want prefix stripped", gotModel)
	}
}

func TestSendLastMessageIsPrompt(t *testing.T) {
	var gotPrompt, gotSystem string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			System   string              `json:"system"`
			Messages []map[string]string `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotSystem = payload.System
		if len(payload.Messages) == 1 {
			gotPrompt = payload.Messages[0]["content"]
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(anthropicResponse("ok"))
	}))
	defer ts.Close()

	a := New("test-key", ts.URL, noAuthPaths, "")
	_, err := a.Send(context.Background(), "claude-opus-4.5", router.Request{
		Messages: []router.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "first"},
			{Role: "user", Content: "the actual question"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPrompt != "the actual question" {
		t.Errorf("prompt = %q, want last message", gotPrompt)
	}
	if gotSystem != "be brief" {
		t.Errorf("system = %q, want first system message", gotSystem)
	}
}

func TestSendNoCredentials(t *testing.T) {
	a := New("", "http://localhost:1", noAuthPaths, "")
	_, err := a.Send(context.Background(), "claude-opus-4.5", router.Request{
		Messages: []router.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error with no credentials")
	}
}

func writeAuthFile(t *testing.T, entry authFileEntry) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "auth.json")
	data, _ := json.Marshal(map[string]authFileEntry{"anthropic": entry})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSendOAuthPreferred(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer oauth-access" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if r.Header.Get("anthropic-beta") == "" {
			t.Error("expected anthropic-beta flags with oauth")
		}
		var payload struct {
			System string `json:"system"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.System != claudeCodeSystemPrefix {
			t.Errorf("system = %q, want claude code prefix", payload.System)
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(anthropicResponse("via oauth"))
	}))
	defer ts.Close()

	authPath := writeAuthFile(t, authFileEntry{
		Type:    "oauth",
		Access:  "oauth-access",
		Expires: time.Now().Add(time.Hour).UnixMilli(),
	})

	a := New("", ts.URL, []string{authPath}, "")
	resp, err := a.Send(context.Background(), "claude-opus-4.5", router.Request{
		Messages: []router.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "anthropic-oauth" {
		t.Errorf("Provider = %q, want anthropic-oauth", resp.Provider)
	}
	if resp.Content != "via oauth" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestSendOAuthFallsBackToAPIKey(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "" {
			// OAuth attempt is rejected.
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"bad token"}`))
			return
		}
		if r.Header.Get("x-api-key") != "fallback-key" {
			t.Errorf("expected x-api-key on fallback, got %q", r.Header.Get("x-api-key"))
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(anthropicResponse("via api key"))
	}))
	defer ts.Close()

	authPath := writeAuthFile(t, authFileEntry{
		Type:    "oauth",
		Access:  "stale-but-unexpired",
		Expires: time.Now().Add(time.Hour).UnixMilli(),
	})

	a := New("fallback-key", ts.URL, []string{authPath}, "")
	resp, err := a.Send(context.Background(), "claude-opus-4.5", router.Request{
		Messages: []router.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (oauth then api key), got %d", calls)
	}
	if resp.Provider != "anthropic" {
		t.Errorf("Provider = %q, want anthropic", resp.Provider)
	}
}

func TestTokenRefresh(t *testing.T) {
	refreshSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["grant_type"] != "refresh_token" {
			t.Errorf("grant_type = %q", payload["grant_type"])
		}
		if payload["refresh_token"] != "refresh-me" {
			t.Errorf("refresh_token = %q", payload["refresh_token"])
		}
		if payload["client_id"] != oauthClientID {
			t.Errorf("client_id = %q", payload["client_id"])
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-access",
			"refresh_token": "fresh-refresh",
			"expires_in":    7200,
		})
	}))
	defer refreshSrv.Close()

	authPath := writeAuthFile(t, authFileEntry{
		Type:    "oauth",
		Access:  "expired-access",
		Refresh: "refresh-me",
		Expires: time.Now().Add(-time.Hour).UnixMilli(),
	})

	src := newTokenSource([]string{authPath}, refreshSrv.URL)
	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "fresh-access" {
		t.Errorf("token = %q, want fresh-access", token)
	}

	// Refreshed credentials are written back to the auth file.
	data, err := os.ReadFile(authPath)
	if err != nil {
		t.Fatal(err)
	}
	var file map[string]authFileEntry
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatal(err)
	}
	saved := file["anthropic"]
	if saved.Access != "fresh-access" || saved.Refresh != "fresh-refresh" {
		t.Errorf("saved credentials not updated: %+v", saved)
	}
}

func TestTokenNoCredentials(t *testing.T) {
	src := newTokenSource(noAuthPaths, "")
	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty", token)
	}
}
