package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aiist007/24life/engine/domain"
	"github.com/aiist007/24life/engine/search"
)

const documentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body><w:p><w:r><w:t>阳气与阴阳平衡的关系</w:t></w:r></w:p></w:body>
</w:document>`

func writeDocx(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func corpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeDocx(t, filepath.Join(dir, "阴阳.docx"))
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestIndexCommand(t *testing.T) {
	out, err := execute(t, "index", "-v", corpus(t))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	for _, want := range []string{
		"1 indexed, 0 failed, 1 skipped, 0 empty",
		"Chunks:  1",
		"indexed     1",
		"skipped     0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIndexCommand_JSON(t *testing.T) {
	out, err := execute(t, "index", "--json", corpus(t))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	var s domain.IndexSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Indexed != 1 || s.Skipped != 1 || s.Chunks != 1 || len(s.Outcomes) != 2 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestIndexCommand_BadRoot(t *testing.T) {
	if _, err := execute(t, "index", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
	if _, err := execute(t, "index"); err == nil {
		t.Fatal("expected error for missing argument")
	}
}

func TestSearchCommand(t *testing.T) {
	out, err := execute(t, "search", corpus(t), "阴阳")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, "[资料1 - 阴阳.docx]:\n阳气与阴阳平衡的关系") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestSearchCommand_NoMatch(t *testing.T) {
	out, err := execute(t, "search", "--limit", "3", corpus(t), "量子物理")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, search.NoMatchText) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestSearchCommand_EmptyCorpus(t *testing.T) {
	out, err := execute(t, "search", t.TempDir(), "阴阳")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(out, search.EmptyStoreText) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEventsCommand_RequiresURL(t *testing.T) {
	t.Setenv("NATS_URL", "")
	if _, err := execute(t, "events"); err == nil || !strings.Contains(err.Error(), "--nats") {
		t.Fatalf("expected --nats error, got %v", err)
	}
}
