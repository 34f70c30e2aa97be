package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docstream/internal/config"
	"github.com/dgallion1/docstream/internal/pipeline"
	"github.com/dgallion1/docstream/internal/upstream"
	"github.com/go-chi/chi/v5"
)

const apiKey = "test-key"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sse(payloads ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
		}
		fmt.Fprint(w, "data: event: close\n\n")
	}
}

// entryServer fakes the entry server for one generated entry "gen".
func entryServer() chi.Router {
	r := chi.NewRouter()
	r.Get("/e/{entryID}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "entryID") != "gen" {
			http.NotFound(w, req)
			return
		}
		fmt.Fprint(w, `<html><body><header><h1>Glaciers</h1><div id="summary"><p>Rivers of ice.</p></div></header><article id="gen"></article></body></html>`)
	})
	r.Get("/e/gen/section/make", sse(
		`{"id":"a","title":"Formation","content":"<p>Snow compacts into ice.</p>","index":0}`,
		`{"id":"b","title":"Movement","content":"<p>Ice flows downhill.</p>","index":1}`,
	))
	r.Get("/e/gen/image/get-cover", sse())
	r.Get("/e/gen/get-related-topics", sse(`{"id":"t1","topic":"Ice ages"}`))
	r.Get("/e/gen/chat/make", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("context") == "" {
			http.Error(w, "missing context", http.StatusBadRequest)
			return
		}
		sse(`Glaciers move **slowly**.`)(w, req)
	})
	return r
}

type fakeCreator struct {
	topic string
	err   error
}

func (f *fakeCreator) NewEntry(_ context.Context, topic string, _ upstream.Proficiency) (string, error) {
	f.topic = topic
	if f.err != nil {
		return "", f.err
	}
	return "/e/new-" + strings.ReplaceAll(strings.ToLower(topic), " ", "-"), nil
}

type testEnv struct {
	server  *httptest.Server
	creator *fakeCreator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	upstreamSrv := httptest.NewServer(entryServer())
	t.Cleanup(upstreamSrv.Close)

	cfg := config.Defaults()
	cfg.DocstreamAPIKey = apiKey
	cfg.WorkerCount = 1

	client := upstream.NewClient(upstreamSrv.URL, "", 5*time.Second, testLogger())
	t.Cleanup(client.Close)

	orch := pipeline.NewOrchestrator(cfg, client, nil, testLogger())
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	creator := &fakeCreator{}
	srv := httptest.NewServer(NewServer(orch, creator, testLogger(), cfg))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, creator: creator}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, env.server.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func (env *testEnv) open(t *testing.T) map[string]any {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/e/gen/open?wait=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from open, got %d", resp.StatusCode)
	}
	return decode(t, resp)
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		header string
		status int
		want   string
	}{
		{"missing", "", http.StatusUnauthorized, "missing authorization"},
		{"other scheme", "Basic " + apiKey, http.StatusUnauthorized, "missing authorization"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "missing authorization"},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, "invalid api key"},
		{"lowercase scheme", "bearer " + apiKey, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/stats/streams", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status != http.StatusUnauthorized {
				return
			}
			if got := resp.Header.Get("WWW-Authenticate"); got != `Bearer realm="docstream"` {
				t.Errorf("expected Bearer challenge, got %q", got)
			}
			if got := decode(t, resp)["error"]; got != tt.want {
				t.Errorf("expected error %q, got %v", tt.want, got)
			}
		})
	}
}

func TestOpenWaitReturnsAssembledState(t *testing.T) {
	env := newTestEnv(t)
	body := env.open(t)

	job := body["job"].(map[string]any)
	if job["status"] != "completed" {
		t.Fatalf("expected completed job, got %v", job["status"])
	}
	state := body["state"].(map[string]any)
	if state["mode"] != "generation" {
		t.Errorf("expected generation mode, got %v", state["mode"])
	}
	if pages := state["pages"].([]any); len(pages) != 2 {
		t.Errorf("expected 2 pages, got %d", len(pages))
	}

	resp := env.do(t, http.MethodGet, "/api/jobs/"+job["job_id"].(string), nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for job status, got %d", resp.StatusCode)
	}
}

func TestOpenUnknownEntry(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/e/nowhere/open", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRoutesWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/e/gen/state"},
		{http.MethodGet, "/e/gen"},
		{http.MethodPost, "/e/gen/pages/0/activate"},
		{http.MethodDelete, "/e/gen"},
	}
	for _, p := range paths {
		if resp := env.do(t, p.method, p.path, nil); resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", p.method, p.path, resp.StatusCode)
		}
	}
}

func TestEntryHTMLAndExport(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	resp := env.do(t, http.MethodGet, "/e/gen", nil)
	markup, _ := io.ReadAll(resp.Body)
	for _, want := range []string{`id="summary"`, `class="super"`, "Snow compacts into ice."} {
		if !strings.Contains(string(markup), want) {
			t.Errorf("expected markup to contain %q", want)
		}
	}

	resp = env.do(t, http.MethodGet, "/e/gen/export.docx", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "glaciers.docx") {
		t.Errorf("expected glaciers.docx attachment, got %q", cd)
	}
}

func TestActivatePage(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	resp := env.do(t, http.MethodPost, "/e/gen/pages/x/activate", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad index, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/e/gen/pages/1/activate?wait=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	state := decode(t, resp)["state"].(map[string]any)
	pages := state["pages"].([]any)
	if pages[0].(map[string]any)["hidden"] != true || pages[1].(map[string]any)["hidden"] != false {
		t.Errorf("expected only the second page visible, got %v", pages)
	}
}

func TestSelectionAndChat(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	resp := env.do(t, http.MethodPost, "/e/gen/chat/open", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 before any selection, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/e/gen/selection", map[string]any{
		"text":      "Ice flows downhill.",
		"anchor_id": "b",
		"rect":      map[string]float64{"left": 100, "top": 50, "width": 80, "height": 20},
		"viewport":  map[string]float64{"width": 1000},
	})
	body := decode(t, resp)
	if body["actionable"] != true {
		t.Fatalf("expected actionable selection, got %v", body)
	}
	sel := body["selection"].(map[string]any)
	if sel["section_id"] != "b" {
		t.Errorf("expected section b, got %v", sel["section_id"])
	}
	surface := body["surface"].(map[string]any)
	if surface["visible"] != true || surface["top"] != 80.0 {
		t.Errorf("expected visible surface at top 80, got %v", surface)
	}

	resp = env.do(t, http.MethodPost, "/e/gen/selection", map[string]any{
		"text": "Formation",
		"path": []map[string]any{{"tag": "a"}, {"tag": "li"}, {"tag": "ol", "id": "toc"}, {"tag": "nav"}, {"tag": "body"}, {"tag": "html"}},
	})
	body = decode(t, resp)
	if body["actionable"] != false {
		t.Errorf("expected outline selection to be ignored, got %v", body)
	}
	if body["surface"].(map[string]any)["visible"] != true {
		t.Error("expected surface to stay as it was")
	}

	resp = env.do(t, http.MethodPost, "/e/gen/chat/open", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from chat open, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/e/gen/chat", map[string]string{"query": "How fast?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from chat, got %d", resp.StatusCode)
	}
	turns := decode(t, resp)["turns"].([]any)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	reply := turns[1].(map[string]any)
	if !strings.Contains(reply["html"].(string), "<strong>slowly</strong>") {
		t.Errorf("expected rendered reply, got %v", reply["html"])
	}

	resp = env.do(t, http.MethodPost, "/e/gen/chat", map[string]string{"query": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for empty query, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodDelete, "/e/gen/chat", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestLookupUsesSelectionText(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	resp := env.do(t, http.MethodPost, "/e/gen/lookup", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 without selection, got %d", resp.StatusCode)
	}

	env.do(t, http.MethodPost, "/e/gen/selection", map[string]any{
		"text":      "Rivers of ice",
		"anchor_id": "summary",
		"viewport":  map[string]float64{"width": 1000},
	})
	resp = env.do(t, http.MethodPost, "/e/gen/lookup", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if env.creator.topic != "Rivers of ice" {
		t.Errorf("expected topic from selection, got %q", env.creator.topic)
	}
	if loc := decode(t, resp)["location"]; loc != "/e/new-rivers-of-ice" {
		t.Errorf("expected location /e/new-rivers-of-ice, got %v", loc)
	}
}

func TestNewEntryErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"unknown topic", upstream.ErrUnknownTopic, http.StatusNotFound, "Unknown topic."},
		{"policy", upstream.ErrPolicyRejected, http.StatusUnprocessableEntity, upstream.UserMessage(upstream.ErrPolicyRejected)},
		{"other", upstream.ErrRequest, http.StatusBadGateway, "An error occurred."},
		{"empty", upstream.ErrEmptyTopic, http.StatusBadRequest, upstream.ErrEmptyTopic.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.creator.err = tt.err
			resp := env.do(t, http.MethodPost, "/e/new", map[string]string{"topic": "Glaciers"})
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if got := decode(t, resp)["error"]; got != tt.wantMsg {
				t.Errorf("expected message %q, got %v", tt.wantMsg, got)
			}
		})
	}
}

func TestCloseSession(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	if resp := env.do(t, http.MethodDelete, "/e/gen", nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodGet, "/e/gen/state", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after close, got %d", resp.StatusCode)
	}

	stats := decode(t, env.do(t, http.MethodGet, "/api/stats/streams", nil))
	if stats["sessions"] != 0.0 {
		t.Errorf("expected 0 sessions, got %v", stats["sessions"])
	}
}
