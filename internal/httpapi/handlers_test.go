package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jordanhubbard/councilhub/internal/catalog"
	"github.com/jordanhubbard/councilhub/internal/council"
	"github.com/jordanhubbard/councilhub/internal/events"
	"github.com/jordanhubbard/councilhub/internal/health"
	"github.com/jordanhubbard/councilhub/internal/jobs"
	"github.com/jordanhubbard/councilhub/internal/metrics"
	"github.com/jordanhubbard/councilhub/internal/router"
	"github.com/jordanhubbard/councilhub/internal/store"
	"github.com/jordanhubbard/councilhub/internal/webhook"
)

// fakeDispatcher satisfies both stages: its fan-out content parses as a
// ranking ("Response A" first), and Dispatch plays the chairman.
type fakeDispatcher struct {
	failAll bool
}

func (f *fakeDispatcher) FanOut(_ context.Context, modelIDs []string, _ router.Request) map[string]router.FanOutResult {
	out := make(map[string]router.FanOutResult, len(modelIDs))
	for _, id := range modelIDs {
		if f.failAll {
			out[id] = router.FanOutResult{Model: id, Err: errors.New("upstream down")}
			continue
		}
		out[id] = router.FanOutResult{Model: id, Response: &router.Response{
			Model:   id,
			Content: "FINAL RANKING:\n1. Response A",
		}}
	}
	return out
}

func (f *fakeDispatcher) Dispatch(_ context.Context, modelID string, _ router.Request) (*router.Response, error) {
	if f.failAll {
		return nil, errors.New("upstream down")
	}
	return &router.Response{Model: modelID, Content: "synthesized answer"}, nil
}

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu    sync.Mutex
	convs map[string]*store.Conversation
	order []string
}

func newMemStore() *memStore {
	return &memStore{convs: make(map[string]*store.Conversation)}
}

func (m *memStore) ListConversations(context.Context) ([]store.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ConversationSummary, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		c := m.convs[m.order[i]]
		out = append(out, store.ConversationSummary{
			ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, MessageCount: len(c.Messages),
		})
	}
	return out, nil
}

func (m *memStore) CreateConversation(_ context.Context, id, title string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if title == "" {
		title = "New Conversation"
	}
	c := &store.Conversation{ID: id, Title: title, CreatedAt: time.Now().UTC()}
	m.convs[id] = c
	m.order = append(m.order, id)
	return c, nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[id]; !ok {
		return errors.New("not found")
	}
	delete(m.convs, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) SetTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return errors.New("not found")
	}
	c.Title = title
	return nil
}

func (m *memStore) AddMessage(_ context.Context, conversationID string, msg store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return errors.New("not found")
	}
	msg.ID = int64(len(c.Messages) + 1)
	c.Messages = append(c.Messages, msg)
	return nil
}

func (m *memStore) MessageCount(_ context.Context, conversationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[conversationID]
	if !ok {
		return 0, errors.New("not found")
	}
	return len(c.Messages), nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

type staticLister struct {
	models []map[string]any
}

func (s *staticLister) ListModels(context.Context) ([]map[string]any, error) {
	out := make([]map[string]any, len(s.models))
	for i, mdl := range s.models {
		cp := make(map[string]any, len(mdl))
		for k, v := range mdl {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeps(t *testing.T, failAll bool) (Dependencies, *memStore) {
	t.Helper()
	logger := testLogger()
	disp := &fakeDispatcher{failAll: failAll}

	engine := council.New(disp, []string{"model-a", "model-b"}, "chairman-x", logger)
	jobStore := jobs.NewStore()
	runner := jobs.NewRunner(jobStore, engine, webhook.New(logger, webhook.WithBackoffBase(time.Millisecond)), logger)
	st := newMemStore()

	listers := map[string]catalog.Lister{
		"openrouter": &staticLister{models: []map[string]any{
			{"id": "openai/gpt-5.2"},
			{"id": "anthropic/claude-opus-4.6"},
		}},
	}
	disc := catalog.New(t.TempDir(), listers, logger)

	rt := router.New(router.DefaultTable(), logger)

	return Dependencies{
		Engine:   engine,
		Router:   rt,
		Jobs:     jobStore,
		Runner:   runner,
		Store:    st,
		Catalog:  disc,
		Health:   health.NewTracker(health.DefaultConfig()),
		Metrics:  metrics.New(),
		EventBus: events.NewBus(),
		Version:  "test",
	}, st
}

func newTestServer(t *testing.T, failAll bool) (*httptest.Server, Dependencies, *memStore) {
	t.Helper()
	d, st := newTestDeps(t, failAll)
	r := chi.NewRouter()
	MountRoutes(r, d)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, d, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestRootAndHealth(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["service"] != "LLM Council" || body["version"] != "test" {
		t.Errorf("root = %v", body)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body = decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("health status = %v", body["status"])
	}
	if body["chairman"] != "chairman-x" {
		t.Errorf("chairman = %v", body["chairman"])
	}
}

func TestCouncilMissingQuery(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/council", map[string]string{"query": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["error"] != "query is required" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestCouncilBadJSON(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp, err := http.Post(ts.URL+"/api/council", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCouncilSuccess(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/council", map[string]any{"query": "what is Go?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	stage3, ok := body["stage3"].(map[string]any)
	if !ok {
		t.Fatalf("stage3 missing: %v", body)
	}
	if stage3["response"] != "synthesized answer" {
		t.Errorf("stage3 response = %v", stage3["response"])
	}
	if stage1, ok := body["stage1"].([]any); !ok || len(stage1) != 2 {
		t.Errorf("stage1 = %v", body["stage1"])
	}
}

func TestCouncilAllModelsFailed(t *testing.T) {
	ts, _, _ := newTestServer(t, true)

	// Total provider failure is reported inside the result, not as an
	// HTTP error.
	resp := postJSON(t, ts.URL+"/api/council", map[string]any{"query": "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if _, hasErr := body["error"]; hasErr {
		t.Errorf("unexpected error field: %v", body["error"])
	}
	stage3, _ := body["stage3"].(map[string]any)
	if stage3["response"] != council.AllFailedResponse {
		t.Errorf("stage3 = %v", stage3)
	}
	if stage1, ok := body["stage1"].([]any); !ok || len(stage1) != 0 {
		t.Errorf("stage1 = %v, want empty list", body["stage1"])
	}
}

func TestCouncilAsyncAccepted(t *testing.T) {
	ts, d, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/council/async", map[string]any{"query": "hi"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "accepted" {
		t.Errorf("status field = %v", body["status"])
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatal("missing job_id")
	}
	if body["poll_url"] != "/api/council/jobs/"+jobID {
		t.Errorf("poll_url = %v", body["poll_url"])
	}

	// No webhook URL, so the job settles at completed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, ok := d.Jobs.Get(jobID)
		if ok && job.Status == jobs.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed: %+v", job)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCouncilAsyncMissingQuery(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/council/async", map[string]any{"webhook_url": "http://example.com"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestJobsListValidation(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/council/jobs?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/council/jobs?status=sideways")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad status status = %d", resp.StatusCode)
	}
}

func TestJobsListAndGet(t *testing.T) {
	ts, d, _ := newTestServer(t, false)

	job := d.Jobs.Create(jobs.Params{Query: "listed query"})

	resp, err := http.Get(ts.URL + "/api/council/jobs")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["count"] != float64(1) {
		t.Errorf("count = %v", body["count"])
	}

	resp, err = http.Get(ts.URL + "/api/council/jobs/" + job.ID)
	if err != nil {
		t.Fatal(err)
	}
	body = decodeBody(t, resp)
	if body["id"] != job.ID {
		t.Errorf("id = %v", body["id"])
	}

	resp, err = http.Get(ts.URL + "/api/council/jobs/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d", resp.StatusCode)
	}
}

func TestJobGetOmitsResult(t *testing.T) {
	ts, d, _ := newTestServer(t, false)

	job := d.Jobs.Create(jobs.Params{Query: "q"})
	d.Jobs.MarkRunning(job.ID)
	d.Jobs.MarkCompleted(job.ID, &council.Result{
		Stage3: council.Stage3Result{Model: "chairman-x", Response: "done"},
	}, "done")

	resp, err := http.Get(ts.URL + "/api/council/jobs/" + job.ID + "?include_result=false")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if _, ok := body["result"]; ok {
		t.Error("result should be omitted")
	}

	resp, err = http.Get(ts.URL + "/api/council/jobs/" + job.ID)
	if err != nil {
		t.Fatal(err)
	}
	body = decodeBody(t, resp)
	if _, ok := body["result"]; !ok {
		t.Error("result should be present by default")
	}
}

func TestJobsCleanup(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/council/jobs/cleanup?max_age_hours=0", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["max_age_hours"] != float64(0) {
		t.Errorf("max_age_hours = %v", body["max_age_hours"])
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/council/jobs/cleanup?max_age_hours=-1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative max_age status = %d", resp.StatusCode)
	}
}

func TestConversationLifecycle(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/conversations", map[string]string{"title": "My Chat"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody(t, resp)
	convID, _ := created["id"].(string)
	if convID == "" {
		t.Fatal("missing conversation id")
	}
	if created["title"] != "My Chat" {
		t.Errorf("title = %v", created["title"])
	}

	resp, err := http.Get(ts.URL + "/api/conversations")
	if err != nil {
		t.Fatal(err)
	}
	listed := decodeBody(t, resp)
	convs, _ := listed["conversations"].([]any)
	if len(convs) != 1 {
		t.Fatalf("conversations = %v", listed)
	}

	resp, err = http.Get(ts.URL + "/api/conversations/" + convID)
	if err != nil {
		t.Fatal(err)
	}
	got := decodeBody(t, resp)
	if got["id"] != convID {
		t.Errorf("get id = %v", got["id"])
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/conversations/"+convID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/conversations/" + convID)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d", resp.StatusCode)
	}
}

func TestConversationMessage(t *testing.T) {
	ts, _, st := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/conversations", nil)
	convID := decodeBody(t, resp)["id"].(string)

	resp = postJSON(t, ts.URL+"/api/conversations/"+convID+"/message", map[string]any{"query": "first question"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("message status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if _, ok := body["stage3"]; !ok {
		t.Errorf("expected deliberation result, got %v", body)
	}

	conv, err := st.GetConversation(context.Background(), convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("messages = %d, want user + assistant", len(conv.Messages))
	}
	if conv.Messages[0].Role != "user" || conv.Messages[0].Content != "first question" {
		t.Errorf("first message = %+v", conv.Messages[0])
	}
	if conv.Messages[1].Role != "assistant" || conv.Messages[1].Content != "synthesized answer" {
		t.Errorf("second message = %+v", conv.Messages[1])
	}
	if conv.Messages[1].Payload == "" {
		t.Error("assistant turn should carry the deliberation payload")
	}
	// First exchange names the conversation via the title model.
	if conv.Title == "" || conv.Title == "New Conversation" {
		t.Errorf("title not generated: %q", conv.Title)
	}
}

func TestConversationMessageUnknownConversation(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/conversations/ghost/message", map[string]any{"query": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConversationStream(t *testing.T) {
	ts, _, st := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/api/conversations", nil)
	convID := decodeBody(t, resp)["id"].(string)

	resp = postJSON(t, ts.URL+"/api/conversations/"+convID+"/message/stream", map[string]any{"query": "stream me"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	stream := string(raw)

	for _, event := range []string{
		"event: stage1_start", "event: stage1_complete",
		"event: stage2_start", "event: stage2_complete",
		"event: stage3_start", "event: stage3_complete",
		"event: title_complete", "event: complete",
	} {
		if !strings.Contains(stream, event) {
			t.Errorf("stream missing %q", event)
		}
	}

	conv, err := st.GetConversation(context.Background(), convID)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 2 {
		t.Errorf("messages = %d", len(conv.Messages))
	}
}

func TestModelsHandler(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/models")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["count"] != float64(2) {
		t.Errorf("count = %v", body["count"])
	}
	models, _ := body["models"].([]any)
	var ids []string
	for _, m := range models {
		ids = append(ids, m.(map[string]any)["id"].(string))
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "anthropic/claude-opus-4.6" {
		t.Errorf("ids = %v", ids)
	}
}

func TestProviderModelsHandler(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/models/openrouter")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["provider"] != "openrouter" {
		t.Errorf("provider = %v", body["provider"])
	}
	if body["count"] != float64(2) {
		t.Errorf("count = %v", body["count"])
	}

	resp, err = http.Get(ts.URL + "/api/models/unknown")
	if err != nil {
		t.Fatal(err)
	}
	body = decodeBody(t, resp)
	if body["count"] != float64(0) {
		t.Errorf("unknown provider count = %v", body["count"])
	}
}

func TestProvidersHealthHandler(t *testing.T) {
	ts, d, _ := newTestServer(t, false)

	d.Health.RecordSuccess("openrouter", 120)

	resp, err := http.Get(ts.URL + "/api/providers/health")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	providers, _ := body["providers"].([]any)
	if len(providers) != 1 {
		t.Fatalf("providers = %v", body)
	}
	stat := providers[0].(map[string]any)
	if stat["provider"] != "openrouter" || stat["state"] != "healthy" {
		t.Errorf("stat = %v", stat)
	}
}

func TestInfoHandler(t *testing.T) {
	ts, _, _ := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/api/info")
	if err != nil {
		t.Fatal(err)
	}
	body := decodeBody(t, resp)
	if body["service"] != "LLM Council" {
		t.Errorf("service = %v", body["service"])
	}
	if body["jobs_stored"] != float64(0) {
		t.Errorf("jobs_stored = %v", body["jobs_stored"])
	}
	if _, ok := body["model_cache"]; !ok {
		t.Error("expected model_cache section")
	}
}

func TestSSEHandlerStreamsEvents(t *testing.T) {
	bus := events.NewBus()
	handler := SSEHandler(bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler(rec, req)
		close(done)
	}()

	// Wait until the subscriber is registered, then publish.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	bus.Publish(events.Event{Type: events.EventStageComplete, Stage: "stage1"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	stream := rec.Body.String()
	if !strings.Contains(stream, "event: connected") {
		t.Errorf("missing connected event: %q", stream)
	}
	if !strings.Contains(stream, fmt.Sprintf("event: %s", events.EventStageComplete)) {
		t.Errorf("missing published event: %q", stream)
	}
}
