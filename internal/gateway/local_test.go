package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func newTestFS(t *testing.T) *LocalFS {
	t.Helper()
	l, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	return l
}

func TestCreateAndReadFile(t *testing.T) {
	ctx := context.Background()
	l := newTestFS(t)

	if err := l.CreateFileWithContent(ctx, "Alpha/BRD/BRD01-base.json", `{"title":"a"}`); err != nil {
		t.Fatalf("CreateFileWithContent failed: %v", err)
	}

	got, err := l.ReadFile(ctx, "Alpha/BRD/BRD01-base.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got != `{"title":"a"}` {
		t.Errorf("ReadFile = %q", got)
	}

	exists, err := l.FileExists(ctx, "Alpha/BRD/BRD01-base.json")
	if err != nil || !exists {
		t.Errorf("FileExists = %v, %v; want true", exists, err)
	}

	_, err = l.ReadFile(ctx, "Alpha/BRD/BRD09-base.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPathsCannotEscapeWorkspace(t *testing.T) {
	ctx := context.Background()
	l := newTestFS(t)

	for _, p := range []string{"../secret.json", "a/../../x.json", "/etc/passwd"} {
		if _, err := l.ReadFile(ctx, p); !errors.Is(err, ErrOutsideWorkspace) {
			t.Errorf("ReadFile(%q) error = %v, want ErrOutsideWorkspace", p, err)
		}
	}
}

func TestGetFoldersFilters(t *testing.T) {
	ctx := context.Background()
	l := newTestFS(t)

	for _, p := range []string{
		"P/BRD/BRD01-base.json",
		"P/BRD/BRD02-base-archived.json",
		"P/PRD/PRD01-base.json",
		"P/PRD/PRD01-feature.json",
		"P/.metadata.json",
	} {
		if err := l.CreateFileWithContent(ctx, p, "{}"); err != nil {
			t.Fatalf("setup %s: %v", p, err)
		}
	}

	folders, err := l.GetFolders(ctx, "P", BaseFiles)
	if err != nil {
		t.Fatalf("GetFolders failed: %v", err)
	}
	got := map[string][]string{}
	for _, f := range folders {
		got[f.Name] = f.Children
	}
	if fmt.Sprint(got["BRD"]) != "[BRD01-base.json]" {
		t.Errorf("BRD children = %v", got["BRD"])
	}
	if fmt.Sprint(got["PRD"]) != "[PRD01-base.json]" {
		t.Errorf("PRD children = %v", got["PRD"])
	}

	folders, err = l.GetFolders(ctx, "P", AllBaseFiles)
	if err != nil {
		t.Fatalf("GetFolders failed: %v", err)
	}
	for _, f := range folders {
		if f.Name == "BRD" && len(f.Children) != 2 {
			t.Errorf("expected archived file to be included, got %v", f.Children)
		}
	}

	roots, err := l.GetFolders(ctx, ".", Filter{Suffix: ".metadata.json"})
	if err != nil {
		t.Fatalf("GetFolders(root) failed: %v", err)
	}
	if len(roots) != 1 || fmt.Sprint(roots[0].Children) != "[.metadata.json]" {
		t.Errorf("root folders = %+v", roots)
	}
}

func TestArchiveFile(t *testing.T) {
	ctx := context.Background()
	l := newTestFS(t)

	if err := l.CreateFileWithContent(ctx, "P/BRD/BRD01-base.json", "{}"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := l.ArchiveFile(ctx, "P/BRD/BRD01-base.json"); err != nil {
		t.Fatalf("ArchiveFile failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(l.Root(), "P/BRD/BRD01-base-archived.json")); err != nil {
		t.Errorf("archived file missing: %v", err)
	}
	if err := l.ArchiveFile(ctx, "P/BRD/BRD01-base.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second archive error = %v, want ErrNotFound", err)
	}
	if err := l.ArchiveFile(ctx, "P/BRD/BRD01-base-archived.json"); !errors.Is(err, ErrAlreadyArchived) {
		t.Errorf("archiving archived file error = %v, want ErrAlreadyArchived", err)
	}
}

func TestAppendFile(t *testing.T) {
	ctx := context.Background()
	l := newTestFS(t)

	n, err := l.AppendFile(ctx, "P/BRD", `{"title":"one"}`, false, 0)
	if err != nil || n != 1 {
		t.Fatalf("AppendFile = %d, %v; want 1", n, err)
	}

	// BRD02 exists only in archived form and must not be reused
	if err := l.CreateFileWithContent(ctx, "P/BRD/BRD02-base-archived.json", "{}"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	n, err = l.AppendFile(ctx, "P/BRD", `{"title":"three"}`, false, 1)
	if err != nil || n != 3 {
		t.Fatalf("AppendFile = %d, %v; want 3", n, err)
	}

	n, err = l.AppendFile(ctx, "P/PRD", `{"features":[]}`, true, 4)
	if err != nil || n != 4 {
		t.Fatalf("AppendFile(feature) = %d, %v; want 4", n, err)
	}
	if ok, _ := l.FileExists(ctx, "P/PRD/PRD04-feature.json"); !ok {
		t.Error("expected PRD04-feature.json")
	}

	n, err = l.AppendFile(ctx, "P/BRD", "{}", false, 99)
	if err != nil || n != 100 {
		t.Fatalf("AppendFile = %d, %v; want 100", n, err)
	}
	if ok, _ := l.FileExists(ctx, "P/BRD/BRD100-base.json"); !ok {
		t.Error("expected unpadded BRD100-base.json")
	}
}

func TestReadFileChunkProjectsKeys(t *testing.T) {
	ctx := context.Background()
	l := newTestFS(t)

	doc := `{"title":"Login \"SSO\"","requirement":"r","chatHistory":[{"user":"u"}],"selectedBRDs":["BRD01-base.json"]}`
	if err := l.CreateFileWithContent(ctx, "P/BP/BP01-base.json", doc); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got, err := l.ReadFileChunk(ctx, "P/BP/BP01-base.json", []string{"title", "selectedBRDs"})
	if err != nil {
		t.Fatalf("ReadFileChunk failed: %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("projection is not valid JSON: %v (%s)", err, got)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 keys, got %v", out)
	}
	if out["title"] != `Login "SSO"` {
		t.Errorf("title = %v", out["title"])
	}

	full, err := l.ReadFileChunk(ctx, "P/BP/BP01-base.json", nil)
	if err != nil || full != doc {
		t.Errorf("ReadFileChunk(nil) = %q, %v", full, err)
	}
}

func TestConcurrentWritesLastWins(t *testing.T) {
	ctx := context.Background()
	l := newTestFS(t)

	payloads := []string{`{"title":"first"}`, `{"title":"second"}`}
	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			if err := l.CreateFileWithContent(ctx, "P/BRD/BRD01-base.json", content); err != nil {
				t.Errorf("write failed: %v", err)
			}
		}(p)
	}
	wg.Wait()

	got, err := l.ReadFile(ctx, "P/BRD/BRD01-base.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got != payloads[0] && got != payloads[1] {
		t.Errorf("file holds %q, want exactly one payload", got)
	}
}

func TestNameHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{PadID(3), "03"},
		{PadID(123), "123"},
		{RequirementID("BRD01-base.json"), "BRD01"},
		{FeatureFileFor("PRD02-base.json"), "PRD02-feature.json"},
		{UnarchivedName("BRD02-base-archived.json"), "BRD02-base.json"},
		{ArchivedName("BRD02-base.json"), "BRD02-base-archived.json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	if n, ok := ParseNumber("PRD07", "PRD"); !ok || n != 7 {
		t.Errorf("ParseNumber(PRD07) = %d, %v", n, ok)
	}
	if _, ok := ParseNumber("US-x", "US"); ok {
		t.Error("ParseNumber(US-x) should fail")
	}
}

func TestFeatureFilesFilter(t *testing.T) {
	cases := map[string]bool{
		"PRD01-feature.json":          true,
		"PRD02-feature-archived.json": true,
		"PRD01-base.json":             false,
		".metadata.json":              false,
	}
	for name, want := range cases {
		if got := FeatureFiles.Match(name); got != want {
			t.Errorf("FeatureFiles.Match(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRootIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocalFS(filepath.Join(dir, "workspace"))
	if err != nil {
		t.Fatalf("NewLocalFS failed: %v", err)
	}
	if !filepath.IsAbs(l.Root()) || l.Root() != filepath.Join(dir, "workspace") {
		t.Errorf("Root() = %s", l.Root())
	}
	if _, err := os.Stat(l.Root()); err != nil {
		t.Errorf("root should exist: %v", err)
	}
}
