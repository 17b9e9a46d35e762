package websearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aiist007/24life/pkg/fn"
	"github.com/aiist007/24life/pkg/metrics"
)

func resultBlock(title, url, snippet string) string {
	return fmt.Sprintf(`<div class="result"><div class="result__body">
<h2 class="result__title"><a href="#">%s</a></h2>
<a class="result__url" href="#"> %s </a>
<a class="result__snippet" href="#">%s</a>
</div></div>`, title, url, snippet)
}

func page(blocks ...string) string {
	return "<html><body><div id=\"links\">" + strings.Join(blocks, "\n") + "</div></body></html>"
}

var fourResults = page(
	resultBlock("寒露养生", "example.com/a", "寒露时节宜养阴防燥"),
	resultBlock("无摘要", "example.com/b", ""),
	resultBlock("秋季食疗", "example.com/c", "银耳百合润肺"),
	resultBlock("第四条", "example.com/d", "不应出现"),
)

func noRetry() fn.RetryOpts { return fn.RetryOpts{MaxAttempts: 1} }

func TestParse(t *testing.T) {
	hits, err := Parse(strings.NewReader(fourResults), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if want := (Hit{Rank: 1, Title: "寒露养生", URL: "example.com/a", Snippet: "寒露时节宜养阴防燥"}); hits[0] != want {
		t.Fatalf("got %+v, want %+v", hits[0], want)
	}
	if hits[1].Rank != 3 {
		t.Fatalf("second hit should keep page rank 3, got %d", hits[1].Rank)
	}
}

func TestFormat(t *testing.T) {
	out := Format([]Hit{{Rank: 1, Title: "T", URL: "u", Snippet: "S"}, {Rank: 3, Title: "T3", URL: "u3", Snippet: "S3"}})
	want := "[网络搜索结果 1]:\n标题: T\n来源: u\n摘要: S\n\n[网络搜索结果 3]:\n标题: T3\n来源: u3\n摘要: S3"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestSearch_Success(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotUA = r.UserAgent()
		fmt.Fprint(w, fourResults)
	}))
	defer srv.Close()

	reg := metrics.New()
	c := New(Options{URL: srv.URL, Retry: noRetry(), Metrics: reg})
	res := c.Search(context.Background(), "寒露 北京 今天吃什么")

	if gotQuery != "寒露 北京 今天吃什么 中医" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("unexpected user agent %q", gotUA)
	}
	if res.Err != nil || len(res.Hits) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.Text, "[网络搜索结果 1]:\n标题: 寒露养生") || !strings.Contains(res.Text, "[网络搜索结果 3]:") {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if strings.Contains(res.Text, "第四条") {
		t.Fatal("result past the limit was rendered")
	}
	if !strings.Contains(reg.Render(), `websearch_total{outcome="hit"} 1`) {
		t.Fatalf("hit counter missing:\n%s", reg.Render())
	}
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page())
	}))
	defer srv.Close()

	res := New(Options{URL: srv.URL, Retry: noRetry()}).Search(context.Background(), "量子物理")
	if !reflect.DeepEqual(res, Result{Text: NoResultsText}) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSearch_FailureRetriesThenDegrades(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, Retry: fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond}})
	res := c.Search(context.Background(), "阴阳")
	if res.Text != UnavailableText || len(res.Hits) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !errors.Is(res.Err, errStatus) {
		t.Fatalf("expected errStatus, got %v", res.Err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestSearch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, Timeout: 50 * time.Millisecond, Retry: noRetry()})
	start := time.Now()
	res := c.Search(context.Background(), "阴阳")
	if res.Text != UnavailableText {
		t.Fatalf("unexpected text %q", res.Text)
	}
	if d := time.Since(start); d >= time.Second {
		t.Fatalf("timeout not applied, took %s", d)
	}
}

func TestSearch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if res := New(Options{URL: srv.URL, Retry: noRetry()}).Search(context.Background(), "阴阳"); res.Text != UnavailableText {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestSearch_Cache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, fourResults)
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, CacheSize: 8, Retry: noRetry()})
	first := c.Search(context.Background(), "寒露")
	second := c.Search(context.Background(), "寒露")
	if first.Text != second.Text {
		t.Fatal("cached result differs from the first")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}

	c.Search(context.Background(), "霜降")
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected a miss for a new query, got %d calls", n)
	}
}

func TestSearch_FailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, fourResults)
	}))
	defer srv.Close()

	c := New(Options{URL: srv.URL, CacheSize: 8, Retry: noRetry()})
	if got := c.Search(context.Background(), "寒露").Text; got != UnavailableText {
		t.Fatalf("unexpected first text %q", got)
	}
	if got := c.Search(context.Background(), "寒露").Hits; len(got) != 2 {
		t.Fatalf("expected a fresh fetch with 2 hits, got %d", len(got))
	}
}
