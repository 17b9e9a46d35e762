// Package websearch scrapes the DuckDuckGo HTML endpoint for a handful of
// result snippets to put alongside local material in the assistant prompt.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aiist007/24life/pkg/fn"
	"github.com/aiist007/24life/pkg/metrics"
	"github.com/aiist007/24life/pkg/resilience"
)

const (
	DefaultURL        = "https://html.duckduckgo.com/html/"
	DefaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultMaxResults = 3
	// QuerySuffix steers results toward traditional medicine sources.
	QuerySuffix = " 中医"

	NoResultsText   = "网络搜索未返回相关结果。"
	UnavailableText = "网络搜索暂时不可用 (Connection failed or blocked)."
	DisabledText    = "网络搜索未启用。"
)

// Hit is one scraped result.
type Hit struct {
	// Rank is the 1-based position of the result block on the page.
	Rank    int    `json:"rank"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Result is the rendered outcome of a search. Text is always set; Hits is
// empty when nothing usable was found or the search failed.
type Result struct {
	Text string
	Hits []Hit
	Err  error
}

// Options configures a Client. Zero fields get defaults.
type Options struct {
	URL        string
	UserAgent  string
	Timeout    time.Duration
	MaxResults int
	// RPS limits outgoing requests; zero disables limiting.
	RPS       float64
	CacheSize int
	Retry     fn.RetryOpts
	HTTP      *http.Client
	Logger    *slog.Logger
	Metrics   *metrics.Registry
}

// Client performs rate-limited, cached searches.
type Client struct {
	endpoint string
	ua       string
	max      int
	timeout  time.Duration
	http     *http.Client
	limiter  *resilience.Limiter
	cache    *lru.Cache[string, []Hit]
	retry    fn.RetryOpts
	logger   *slog.Logger
	metrics  *metrics.Registry
}

// New builds a Client.
func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = fn.RetryOpts{MaxAttempts: 2, InitialWait: 300 * time.Millisecond, MaxWait: time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	c := &Client{
		endpoint: opts.URL,
		ua:       opts.UserAgent,
		max:      opts.MaxResults,
		timeout:  opts.Timeout,
		http:     opts.HTTP,
		limiter:  resilience.NewLimiter(resilience.LimiterOpts{Rate: opts.RPS, Burst: 1}),
		retry:    opts.Retry,
		logger:   opts.Logger.With("component", "websearch"),
		metrics:  opts.Metrics,
	}
	if opts.CacheSize > 0 {
		c.cache, _ = lru.New[string, []Hit](opts.CacheSize)
	}
	return c
}

// Search never fails: errors are logged and rendered as UnavailableText.
// The whole call, including rate-limit waits and retries, is bounded by the
// client timeout.
func (c *Client) Search(ctx context.Context, query string) Result {
	if c.cache != nil {
		if hits, ok := c.cache.Get(query); ok {
			c.count("cached")
			return render(hits)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("web search", "query", query)
	hits, err := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[]Hit] {
		return c.fetch(ctx, query)
	}).Unwrap()
	if err != nil {
		c.logger.Warn("web search failed", "query", query, "err", err)
		c.count("error")
		return Result{Text: UnavailableText, Err: err}
	}
	if c.cache != nil {
		c.cache.Add(query, hits)
	}
	if len(hits) == 0 {
		c.count("empty")
	} else {
		c.count("hit")
	}
	return render(hits)
}

func (c *Client) count(outcome string) {
	c.metrics.Counter("websearch_total", "Web searches by outcome", "outcome", outcome).Inc()
}

var errStatus = errors.New("unexpected status")

func (c *Client) fetch(ctx context.Context, query string) fn.Result[[]Hit] {
	if err := c.limiter.Wait(ctx); err != nil {
		return fn.Err[[]Hit](err)
	}
	u := c.endpoint + "?q=" + url.QueryEscape(query+QuerySuffix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fn.Err[[]Hit](err)
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return fn.Err[[]Hit](err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fn.Err[[]Hit](fmt.Errorf("websearch: %w: %d", errStatus, resp.StatusCode))
	}
	return fn.FromPair(Parse(resp.Body, c.max))
}

// Parse extracts up to max result blocks from a DuckDuckGo HTML page.
// Blocks without a title or snippet are skipped but keep their rank.
func Parse(r io.Reader, max int) ([]Hit, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("websearch: parse: %w", err)
	}
	var hits []Hit
	doc.Find(".result__body").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= max {
			return false
		}
		h := Hit{
			Rank:    i + 1,
			Title:   strings.TrimSpace(s.Find(".result__title").Text()),
			URL:     strings.TrimSpace(s.Find(".result__url").Text()),
			Snippet: strings.TrimSpace(s.Find(".result__snippet").Text()),
		}
		if h.Title != "" && h.Snippet != "" {
			hits = append(hits, h)
		}
		return true
	})
	return hits, nil
}

func render(hits []Hit) Result {
	if len(hits) == 0 {
		return Result{Text: NoResultsText}
	}
	return Result{Text: Format(hits), Hits: hits}
}

// Format renders hits as numbered blocks separated by a blank line.
func Format(hits []Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[网络搜索结果 %d]:\n标题: %s\n来源: %s\n摘要: %s", h.Rank, h.Title, h.URL, h.Snippet)
	}
	return strings.Join(blocks, "\n\n")
}
