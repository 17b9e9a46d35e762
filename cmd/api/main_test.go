package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aiist007/24life/engine/assistant"
	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/engine/index"
	"github.com/aiist007/24life/engine/search"
	"github.com/aiist007/24life/pkg/metrics"
	"github.com/aiist007/24life/pkg/resilience"
)

// --- mocks ---

type mockChat struct {
	reply        *assistant.Reply
	err          error
	lastMessage  string
	lastLocation string
}

func (m *mockChat) Ask(_ context.Context, message, location string) (*assistant.Reply, error) {
	m.lastMessage, m.lastLocation = message, location
	return m.reply, m.err
}

type mockStatus struct{ last *domain.IndexSummary }

func (m mockStatus) Last() *domain.IndexSummary { return m.last }

func newTestStore() *index.Store {
	s := index.NewStore()
	s.Append(
		domain.Chunk{Title: "a.pdf", Content: "阴阳平衡，阳气为本"},
		domain.Chunk{Title: "b.pdf", Content: "阴阳阴阳阴阳"},
		domain.Chunk{Title: "c.pdf", Content: "量子"},
	)
	return s
}

func decode(t *testing.T, body io.Reader, v any) {
	t.Helper()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func postChat(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/chat", bytes.NewBufferString(body))
	h.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestHealthEndpoint(t *testing.T) {
	last := &domain.IndexSummary{Root: "/corpus", Indexed: 2, Chunks: 3,
		Outcomes: []domain.FileOutcome{{Path: "/corpus/a.pdf", Status: domain.FileIndexed}}}
	rec := httptest.NewRecorder()
	handleHealth(mockStatus{last: last}, newTestStore())(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	decode(t, rec.Body, &resp)
	if resp.Status != "ok" || resp.Chunks != 3 {
		t.Fatalf("unexpected health: %+v", resp)
	}
	if resp.Index == nil || resp.Index.Indexed != 2 || resp.Index.Outcomes != nil {
		t.Fatalf("unexpected index summary: %+v", resp.Index)
	}
	if len(last.Outcomes) != 1 {
		t.Fatal("health must not mutate the stored summary")
	}
}

func TestHealthEndpoint_BeforeFirstRun(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(mockStatus{}, index.NewStore())(rec, httptest.NewRequest("GET", "/api/health", nil))

	var resp map[string]any
	decode(t, rec.Body, &resp)
	if _, ok := resp["index"]; ok {
		t.Fatalf("expected no index field, got %v", resp)
	}
}

func TestChatEndpoint_Success(t *testing.T) {
	chat := &mockChat{reply: &assistant.Reply{Text: "宜早睡早起。"}}
	rec := postChat(handleChat(chat, nil), `{"message":"寒露怎么养生","location":"上海"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp ChatResponse
	decode(t, rec.Body, &resp)
	if resp.Reply != "宜早睡早起。" {
		t.Fatalf("unexpected reply %q", resp.Reply)
	}
	if chat.lastMessage != "寒露怎么养生" || chat.lastLocation != "上海" {
		t.Fatalf("unexpected args %q %q", chat.lastMessage, chat.lastLocation)
	}
}

func TestChatEndpoint_BadRequests(t *testing.T) {
	for name, body := range map[string]string{
		"empty message": `{"message":""}`,
		"blank message": `{"message":"   "}`,
		"missing":       `{}`,
		"invalid json":  "not json",
	} {
		t.Run(name, func(t *testing.T) {
			chat := &mockChat{}
			rec := postChat(handleChat(chat, nil), body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var resp map[string]string
			decode(t, rec.Body, &resp)
			if resp["error"] != "Message is required" {
				t.Fatalf("unexpected error %q", resp["error"])
			}
			if chat.lastMessage != "" {
				t.Fatal("assistant must not be called")
			}
		})
	}
}

func TestChatEndpoint_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{domain.NewValidationError("message", "x", domain.ErrMessageTooLong), http.StatusBadRequest, "Message is too long"},
		{domain.NewValidationError("location", "x", domain.ErrInvalidLocation), http.StatusBadRequest, "Invalid location"},
		{errors.New("llm down"), http.StatusInternalServerError, "Failed to communicate with the assistant"},
	}
	for _, tc := range cases {
		rec := postChat(handleChat(&mockChat{err: tc.err}, nil), `{"message":"阴阳"}`)
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, rec.Code)
		}
		var resp map[string]string
		decode(t, rec.Body, &resp)
		if resp["error"] != tc.msg {
			t.Fatalf("%v: unexpected error %q", tc.err, resp["error"])
		}
	}
}

func TestChatEndpoint_UpstreamFailure(t *testing.T) {
	var logs bytes.Buffer
	loggers := map[string]*slog.Logger{
		"default logger": nil,
		"given logger":   slog.New(slog.NewTextHandler(&logs, nil)),
	}
	for name, logger := range loggers {
		t.Run(name, func(t *testing.T) {
			rec := postChat(handleChat(&mockChat{err: errors.New("llm down")}, logger), `{"message":"阴阳"}`)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("expected 500, got %d", rec.Code)
			}
		})
	}
	if !strings.Contains(logs.String(), "chat failed") || !strings.Contains(logs.String(), "llm down") {
		t.Fatalf("upstream error not logged: %q", logs.String())
	}
}

func TestSearchEndpoint(t *testing.T) {
	ranker := search.NewRanker(newTestStore(), nil, nil)
	rec := httptest.NewRecorder()
	handleSearch(ranker)(rec, httptest.NewRequest("GET", "/api/search?q=阴阳&limit=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp SearchResponse
	decode(t, rec.Body, &resp)
	if len(resp.Hits) != 1 || resp.Hits[0].Title != "b.pdf" || resp.Hits[0].Score != 3 {
		t.Fatalf("unexpected hits: %+v", resp.Hits)
	}
	if !strings.HasPrefix(resp.Context, "[资料1 - b.pdf]:\n") {
		t.Fatalf("unexpected context %q", resp.Context)
	}
}

func TestSearchEndpoint_NoMatch(t *testing.T) {
	ranker := search.NewRanker(newTestStore(), nil, nil)
	rec := httptest.NewRecorder()
	handleSearch(ranker)(rec, httptest.NewRequest("GET", "/api/search?q=%E5%85%BB%E7%94%9F%E4%B9%8B%E9%81%93", nil))

	var resp SearchResponse
	decode(t, rec.Body, &resp)
	if len(resp.Hits) != 0 || resp.Context != search.NoMatchText {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchEndpoint_BadRequests(t *testing.T) {
	ranker := search.NewRanker(newTestStore(), nil, nil)
	for _, target := range []string{"/api/search", "/api/search?q=阴阳&limit=0", "/api/search?q=阴阳&limit=x"} {
		rec := httptest.NewRecorder()
		handleSearch(ranker)(rec, httptest.NewRequest("GET", target, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestMux_StaticFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>24life</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	mux := newMux(routes{chat: &mockChat{}, search: search.NewRanker(index.NewStore(), nil, nil), staticDir: dir})

	for path, want := range map[string]string{
		"/":              "<html>24life</html>",
		"/calendar/2026": "<html>24life</html>",
		"/assets/app.js": "console.log(1)",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: got %d %q", path, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/api/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown api route, got %d", rec.Code)
	}
}

func TestMux_ChatRateLimit(t *testing.T) {
	mux := newMux(routes{
		chat:      &mockChat{reply: &assistant.Reply{Text: "ok"}},
		search:    search.NewRanker(index.NewStore(), nil, nil),
		chatLimit: resilience.NewLimiter(resilience.LimiterOpts{Rate: 0.001, Burst: 1}),
	})

	if rec := postChat(mux, `{"message":"阴阳"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := postChat(mux, `{"message":"阴阳"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestMux_Metrics(t *testing.T) {
	reg := metrics.New()
	ranker := search.NewRanker(newTestStore(), nil, reg)
	mux := newMux(routes{chat: &mockChat{}, search: ranker, metrics: reg.Handler()})

	ranker.Search("阴阳", 5)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `rag_search_total{result="hit"} 1`) {
		t.Fatalf("unexpected metrics: %s", rec.Body.String())
	}
}
