// Package index holds the in-memory chunk store and the orchestrator that
// fills it from a corpus directory.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aiist007/24life/engine/chunk"
	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/engine/extract"
	"github.com/aiist007/24life/pkg/fn"
	"github.com/aiist007/24life/pkg/metrics"
)

const (
	// DefaultMaxDepth bounds directory recursion below the root.
	DefaultMaxDepth = 32
	// IndexedSubject is the NATS subject carrying run summaries.
	IndexedSubject = "corpus.indexed"
)

// Publisher announces a finished run.
type Publisher interface {
	Publish(ctx context.Context, s domain.IndexSummary) error
}

// Deps holds the collaborators of an Indexer. Zero fields get defaults.
type Deps struct {
	Extract   fn.Stage[string, string]
	Chunker   chunk.Chunker
	MaxDepth  int
	Publisher Publisher
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Indexer walks a corpus and rebuilds the store. Runs are serialized.
type Indexer struct {
	store    *Store
	process  fn.Stage[fileRef, []domain.Chunk]
	maxDepth int
	pub      Publisher
	metrics  *metrics.Registry
	logger   *slog.Logger

	mu   sync.Mutex
	last atomic.Pointer[domain.IndexSummary]
}

type fileRef struct {
	path  string
	title string
}

type document struct {
	fileRef
	text string
}

// NewIndexer returns an Indexer writing into store.
func NewIndexer(store *Store, deps Deps) *Indexer {
	if deps.Extract == nil {
		deps.Extract = extract.Stage
	}
	if deps.MaxDepth <= 0 {
		deps.MaxDepth = DefaultMaxDepth
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	chunker := deps.Chunker
	ext := deps.Extract
	var read fn.Stage[fileRef, document] = func(ctx context.Context, f fileRef) fn.Result[document] {
		return fn.MapResult(ext(ctx, f.path), func(text string) document {
			return document{fileRef: f, text: text}
		})
	}
	split := fn.MapStage(func(d document) []domain.Chunk {
		return chunker.Chunks(d.title, d.path, d.text)
	})
	return &Indexer{
		store:    store,
		process:  fn.TracedStage("index.file", fn.Then(read, split)),
		maxDepth: deps.MaxDepth,
		pub:      deps.Publisher,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With("component", "indexer"),
	}
}

// Store returns the store the indexer writes to.
func (ix *Indexer) Store() *Store { return ix.store }

// Last returns the summary of the most recent completed run, or nil.
func (ix *Indexer) Last() *domain.IndexSummary { return ix.last.Load() }

// Index clears the store and indexes every supported file under root.
// Per-file and per-directory problems are recorded in the summary; an
// error is returned only for an unusable root or a cancelled context.
func (ix *Indexer) Index(ctx context.Context, root string) (*domain.IndexSummary, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("index: resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("index %s: %w", abs, domain.ErrNotDirectory)
	}

	ix.logger.Info("indexing corpus", "path", abs)
	ix.store.Clear()
	s := &domain.IndexSummary{Root: abs, StartedAt: time.Now()}
	err = ix.walk(ctx, abs, 0, s)
	s.FinishedAt = time.Now()

	ix.metrics.Gauge("rag_index_chunks", "Chunks currently held in the index store").Set(int64(ix.store.Len()))
	ix.last.Store(s)
	if err != nil {
		ix.logger.Warn("indexing interrupted", "path", abs, "chunks", s.Chunks, "err", err)
		return s, err
	}
	ix.logger.Info("indexing complete",
		"path", abs,
		"indexed", s.Indexed,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"empty", s.Empty,
		"chunks", s.Chunks,
		"duration", s.Duration(),
	)
	if ix.pub != nil {
		if perr := ix.pub.Publish(ctx, *s); perr != nil {
			ix.logger.Warn("publish index summary failed", "err", perr)
		}
	}
	return s, nil
}

// Start runs Index in the background. The result is delivered on the
// returned channel, which is buffered so callers may ignore it.
func (ix *Indexer) Start(ctx context.Context, root string) <-chan fn.Result[*domain.IndexSummary] {
	out := make(chan fn.Result[*domain.IndexSummary], 1)
	go func() {
		defer close(out)
		s, err := ix.Index(ctx, root)
		if err != nil {
			ix.logger.Error("background indexing failed", "path", root, "err", err)
			out <- fn.Err[*domain.IndexSummary](err)
			return
		}
		out <- fn.Ok(s)
	}()
	return out
}

func (ix *Indexer) walk(ctx context.Context, dir string, depth int, s *domain.IndexSummary) error {
	if depth > ix.maxDepth {
		ix.logger.Warn("max depth exceeded, skipping subtree", "path", dir, "max_depth", ix.maxDepth)
		s.DirErrors++
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		ix.logger.Error("read directory failed", "path", dir, "err", err)
		s.DirErrors++
		return nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(dir, e.Name())
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			ix.logger.Debug("symlink not followed", "path", p)
			s.SymlinksSkipped++
		case e.IsDir():
			if err := ix.walk(ctx, p, depth+1, s); err != nil {
				return err
			}
		case e.Type().IsRegular():
			if err := ix.indexFile(ctx, fileRef{path: p, title: e.Name()}, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *Indexer) indexFile(ctx context.Context, f fileRef, s *domain.IndexSummary) error {
	chunks, err := ix.process(ctx, f).Unwrap()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnsupported):
		ix.record(s, domain.FileOutcome{Path: f.path, Status: domain.FileSkipped})
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		ix.logger.Error("extraction failed", "path", f.path, "err", err)
		ix.record(s, domain.FileOutcome{Path: f.path, Status: domain.FileFailed, Error: err.Error()})
		return nil
	}

	if len(chunks) == 0 {
		ix.logger.Warn("no text extracted", "path", f.path)
		ix.record(s, domain.FileOutcome{Path: f.path, Status: domain.FileEmpty})
		return nil
	}
	ix.store.Append(chunks...)
	ix.logger.Info("indexed file", "title", f.title, "chunks", len(chunks))
	ix.record(s, domain.FileOutcome{Path: f.path, Status: domain.FileIndexed, Chunks: len(chunks)})
	return nil
}

func (ix *Indexer) record(s *domain.IndexSummary, o domain.FileOutcome) {
	s.Record(o)
	ix.metrics.Counter("rag_index_files_total", "Files seen by the indexer by outcome", "outcome", string(o.Status)).Inc()
}
