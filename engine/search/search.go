// Package search ranks stored chunks against a free-text query by summed
// keyword frequency and renders the winners as a context block.
package search

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/pkg/fn"
	"github.com/aiist007/24life/pkg/metrics"
)

const (
	// DefaultLimit is used when a caller passes a non-positive limit.
	DefaultLimit = 5

	// EmptyStoreText is returned when nothing has been indexed.
	EmptyStoreText = "暂无相关参考资料。"
	// NoMatchText is returned when no chunk scores above zero.
	NoMatchText = "暂无高度相关的本地资料。"
)

// Source provides a consistent view of the indexed chunks.
type Source interface {
	Snapshot() []domain.Chunk
}

// Ranker scores chunks from a Source.
type Ranker struct {
	src     Source
	logger  *slog.Logger
	metrics *metrics.Registry
}

// NewRanker returns a Ranker reading from src. logger and reg may be nil.
func NewRanker(src Source, logger *slog.Logger, reg *metrics.Registry) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{src: src, logger: logger.With("component", "search"), metrics: reg}
}

// Keywords splits query on whitespace. A lone token longer than three runes
// with no Latin letters is also expanded into overlapping rune bigrams.
// Keywords shorter than two runes are dropped; if that leaves nothing, the
// raw query itself is the only keyword.
func Keywords(query string) []string {
	tokens := strings.Fields(query)
	kws := append([]string(nil), tokens...)
	if len(tokens) == 1 && utf8.RuneCountInString(tokens[0]) > 3 && !hasLatin(tokens[0]) {
		r := []rune(tokens[0])
		for i := 0; i < len(r)-1; i++ {
			kws = append(kws, string(r[i:i+2]))
		}
	}

	out := kws[:0]
	for _, k := range kws {
		if utf8.RuneCountInString(k) >= 2 {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		if query != "" {
			return []string{query}
		}
		return nil
	}
	return out
}

func hasLatin(s string) bool {
	for _, r := range s {
		if r < utf8.RuneSelf && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// Score sums the case-insensitive, non-overlapping occurrence counts of
// every keyword in content. Repeated keywords count again.
func Score(content string, keywords []string) int {
	lc := strings.ToLower(content)
	score := 0
	for _, k := range keywords {
		if k == "" {
			continue
		}
		score += strings.Count(lc, strings.ToLower(k))
	}
	return score
}

// Rank returns copies of the top limit chunks with Score set, highest
// first. Ties keep store order.
func (r *Ranker) Rank(query string, limit int) []domain.Chunk {
	return rank(r.src.Snapshot(), query, limit)
}

func rank(chunks []domain.Chunk, query string, limit int) []domain.Chunk {
	if limit <= 0 {
		limit = DefaultLimit
	}
	kws := Keywords(query)
	if len(kws) == 0 {
		return nil
	}

	scored := fn.Map(chunks, func(c domain.Chunk) domain.Chunk {
		c.Score = Score(c.Content, kws)
		return c
	})
	hits := fn.Filter(scored, func(c domain.Chunk) bool { return c.Score > 0 })
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// Search ranks and formats in one step, returning a sentinel text for an
// empty store or when nothing matches.
func (r *Ranker) Search(query string, limit int) string {
	snap := r.src.Snapshot()
	if len(snap) == 0 {
		r.count("empty")
		return EmptyStoreText
	}
	hits := rank(snap, query, limit)
	if len(hits) == 0 {
		r.logger.Info("no local match", "query", query)
		r.count("miss")
		return NoMatchText
	}
	for i, h := range hits {
		r.logger.Info("local match", "rank", i+1, "score", h.Score, "title", h.Title)
	}
	r.count("hit")
	return Format(hits)
}

func (r *Ranker) count(result string) {
	r.metrics.Counter("rag_search_total", "Local searches by result", "result", result).Inc()
}

// Format renders chunks as numbered blocks separated by a blank line.
func Format(chunks []domain.Chunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[资料%d - %s]:\n%s", i+1, c.Title, c.Content)
	}
	return strings.Join(blocks, "\n\n")
}
