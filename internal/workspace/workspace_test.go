package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestGuard(t *testing.T) Guard {
	t.Helper()
	g, err := NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return g
}

func TestResolveRejectsEscape(t *testing.T) {
	g := newTestGuard(t)
	for _, path := range []string{"../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		if _, err := g.Resolve(path); err == nil {
			t.Errorf("Resolve(%q) should fail", path)
		}
	}
}

func TestResolveAllowsNestedPaths(t *testing.T) {
	g := newTestGuard(t)
	abs, err := g.Resolve("sub/dir/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(abs, g.Root()) {
		t.Errorf("resolved path %q not under root %q", abs, g.Root())
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	g := newTestGuard(t)
	if err := g.WriteFile("deep/nested/file.txt", "hello"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := g.ReadFile("deep/nested/file.txt", 0)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "hello" {
		t.Errorf("content = %q, want hello", got)
	}
}

func TestReadFileTooLarge(t *testing.T) {
	g := newTestGuard(t)
	if err := g.WriteFile("big.txt", strings.Repeat("x", 100)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := g.ReadFile("big.txt", 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestBackupKeepsSingleGeneration(t *testing.T) {
	g := newTestGuard(t)
	if err := g.WriteFile("a.txt", "first"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := g.Backup("a.txt"); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := g.WriteFile("a.txt", "second"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := g.Backup("a.txt"); err != nil {
		t.Fatalf("second Backup: %v", err)
	}
	got, err := g.ReadFile("a.txt.backup", 0)
	if err != nil {
		t.Fatalf("ReadFile backup: %v", err)
	}
	if got != "second" {
		t.Errorf("backup = %q, want second (latest pre-mutation state)", got)
	}
}

func TestRemoveMissingFileSucceeds(t *testing.T) {
	g := newTestGuard(t)
	if err := g.Remove("never-existed.txt"); err != nil {
		t.Errorf("Remove of missing file: %v", err)
	}
}

func TestDetectLineEnding(t *testing.T) {
	if got := DetectLineEnding("a\r\nb\r\n"); got != "\r\n" {
		t.Errorf("crlf content detected as %q", got)
	}
	if got := DetectLineEnding("a\nb\n"); got != "\n" {
		t.Errorf("lf content detected as %q", got)
	}
}

func TestDominantLineEnding(t *testing.T) {
	g := newTestGuard(t)
	seed := map[string]string{
		"a.txt":        "one\r\ntwo\r\n",
		"b.txt":        "three\r\nfour\r\n",
		"c.txt":        "five\nsix\n",
		"main.go":      "package main\n",
		"a.txt.backup": "stale\nbackup\n",
	}
	for path, content := range seed {
		if err := g.WriteFile(path, content); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}

	if got := g.DominantLineEnding("new.txt"); got != "\r\n" {
		t.Errorf("txt convention = %q, want CRLF majority", got)
	}
	if got := g.DominantLineEnding("other.go"); got != "\n" {
		t.Errorf("go convention = %q, want LF", got)
	}
	if got := g.DominantLineEnding("missing.rs"); got != "\n" {
		t.Errorf("unseen extension = %q, want LF default", got)
	}
	if got := g.DominantLineEnding("README"); got != "\n" {
		t.Errorf("extensionless = %q, want LF default", got)
	}
}

func TestCollectSkipsHiddenAndVendorDirs(t *testing.T) {
	g := newTestGuard(t)
	files := map[string]string{
		"main.go":              "package main",
		"node_modules/dep.js":  "module.exports = {}",
		".git/config":          "[core]",
		".hidden.txt":          "secret",
		"app.design":           "# Design",
		"src/util.go":          "package src",
	}
	for path, content := range files {
		if err := g.WriteFile(path, content); err != nil {
			t.Fatalf("WriteFile %s: %v", path, err)
		}
	}

	snap, err := Collect(g, SnapshotOptions{SkipDirs: []string{"node_modules", ".git"}})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := make(map[string]bool)
	for _, f := range snap.Files {
		got[f.Path] = true
	}
	for _, want := range []string{"main.go", "app.design", filepath.Join("src", "util.go")} {
		if !got[want] {
			t.Errorf("snapshot missing %s (have %v)", want, snap.Files)
		}
	}
	for _, banned := range []string{filepath.Join("node_modules", "dep.js"), ".hidden.txt"} {
		if got[banned] {
			t.Errorf("snapshot should not include %s", banned)
		}
	}
}

func TestCollectTruncatesAndBounds(t *testing.T) {
	g := newTestGuard(t)
	if err := g.WriteFile("long.txt", strings.Repeat("a", 50)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(g.Root(), "binary.bin"), []byte{0x00, 0x01, 0xff}, 0o644); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	snap, err := Collect(g, SnapshotOptions{TruncateChars: 10})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(snap.Files) != 1 {
		t.Fatalf("files = %d, want 1 (binary skipped)", len(snap.Files))
	}
	f := snap.Files[0]
	if !f.Truncated || len(f.Content) != 10 {
		t.Errorf("entry = %+v, want truncated to 10 chars", f)
	}
	if snap.Skipped == 0 {
		t.Error("binary file should count as skipped")
	}
}

func TestCollectRespectsMaxFiles(t *testing.T) {
	g := newTestGuard(t)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := g.WriteFile(name, "x"); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	snap, err := Collect(g, SnapshotOptions{MaxFiles: 2})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(snap.Files) != 2 {
		t.Errorf("files = %d, want 2", len(snap.Files))
	}
	if snap.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", snap.Skipped)
	}
}

func TestFindDesignFiles(t *testing.T) {
	g := newTestGuard(t)
	for _, name := range []string{"zeta.design", "alpha.design", "notes.txt"} {
		if err := g.WriteFile(name, "content"); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	found, err := FindDesignFiles(g)
	if err != nil {
		t.Fatalf("FindDesignFiles: %v", err)
	}
	if len(found) != 2 || found[0] != "alpha.design" || found[1] != "zeta.design" {
		t.Errorf("found = %v, want [alpha.design zeta.design]", found)
	}
}
