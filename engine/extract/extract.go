// Package extract turns PDF, DOCX and EPUB files into plain text.
//
// Extraction never panics past this package: parser panics are recovered
// into error results so that one malformed file cannot abort an indexing run.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/pkg/fn"
)

// Func extracts the text of the file at path.
type Func func(path string) (string, error)

var byExt = map[string]Func{
	".pdf":  PDF,
	".docx": DOCX,
	".epub": EPUB,
}

// Extensions lists the supported lower-case file extensions.
func Extensions() []string {
	out := make([]string, 0, len(byExt))
	for ext := range byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether path has an extension Extract understands.
func Supported(path string) bool {
	_, ok := byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract selects an extractor by the lower-cased extension of path.
// Unknown extensions yield domain.ErrUnsupported.
func Extract(path string) (res fn.Result[string]) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := byExt[ext]
	if !ok {
		return fn.Err[string](fmt.Errorf("extract %s: %w", filepath.Base(path), domain.ErrUnsupported))
	}
	defer func() {
		if r := recover(); r != nil {
			res = fn.Errf[string]("extract %s: parser panic: %v", filepath.Base(path), r)
		}
	}()
	text, err := f(path)
	if err != nil {
		return fn.Err[string](fmt.Errorf("extract %s: %w", filepath.Base(path), err))
	}
	return fn.Ok(text)
}

// Stage adapts Extract to a pipeline stage.
var Stage fn.Stage[string, string] = func(ctx context.Context, path string) fn.Result[string] {
	if err := ctx.Err(); err != nil {
		return fn.Err[string](err)
	}
	return Extract(path)
}
