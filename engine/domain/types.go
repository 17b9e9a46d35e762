// Package domain defines the types shared by the retrieval engine and its
// consumers: document chunks, per-file indexing outcomes and the summary of
// an indexing run.
package domain

import "time"

// Chunk is the unit of retrieval: a bounded span of a document's
// normalized text.
type Chunk struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	SourcePath string `json:"source_path"`
	// Score is set only on ranker output copies and never stored.
	Score int `json:"score,omitempty"`
}

// FileStatus classifies what happened to a single file during indexing.
type FileStatus string

const (
	FileIndexed FileStatus = "indexed"
	FileFailed  FileStatus = "failed"
	FileSkipped FileStatus = "skipped"
	FileEmpty   FileStatus = "empty"
)

// FileOutcome records the result of indexing one file.
type FileOutcome struct {
	Path   string     `json:"path"`
	Status FileStatus `json:"status"`
	Chunks int        `json:"chunks"`
	Error  string     `json:"error,omitempty"`
}

// IndexSummary aggregates the per-file outcomes of one indexing run.
type IndexSummary struct {
	Root            string        `json:"root"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Indexed         int           `json:"indexed"`
	Failed          int           `json:"failed"`
	Skipped         int           `json:"skipped"`
	Empty           int           `json:"empty"`
	DirErrors       int           `json:"dir_errors"`
	SymlinksSkipped int           `json:"symlinks_skipped"`
	Chunks          int           `json:"chunks"`
	Outcomes        []FileOutcome `json:"outcomes,omitempty"`
}

// Record adds a file outcome and updates the counters.
func (s *IndexSummary) Record(o FileOutcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case FileIndexed:
		s.Indexed++
		s.Chunks += o.Chunks
	case FileFailed:
		s.Failed++
	case FileSkipped:
		s.Skipped++
	case FileEmpty:
		s.Empty++
	}
}

// Duration is the wall time of the run, zero while it is still in progress.
func (s *IndexSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
