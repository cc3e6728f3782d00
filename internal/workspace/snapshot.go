package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// DesignSuffix marks design documents produced by the design mode.
const DesignSuffix = ".design"

// FileEntry is one file's contribution to the model context.
type FileEntry struct {
	Path      string
	Content   string
	Truncated bool
}

// Snapshot is the bounded view of the project sent to the model.
type Snapshot struct {
	Files   []FileEntry
	Skipped int
}

// SnapshotOptions bound how much of the tree is loaded.
type SnapshotOptions struct {
	SkipDirs      []string
	MaxFiles      int
	MaxFileBytes  int
	TruncateChars int
}

// Collect walks the workspace and gathers readable text files, skipping
// dependency and build directories, hidden entries other than design
// documents, oversized files, and anything that is not valid UTF-8.
func Collect(g Guard, opts SnapshotOptions) (Snapshot, error) {
	skip := make(map[string]bool, len(opts.SkipDirs))
	for _, d := range opts.SkipDirs {
		skip[d] = true
	}

	var snap Snapshot
	err := filepath.WalkDir(g.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == g.Root() {
				return nil
			}
			if skip[name] || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") && !strings.HasSuffix(name, DesignSuffix) {
			return nil
		}
		if strings.HasSuffix(name, BackupSuffix) {
			return nil
		}
		if opts.MaxFiles > 0 && len(snap.Files) >= opts.MaxFiles {
			snap.Skipped++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if opts.MaxFileBytes > 0 && info.Size() > int64(opts.MaxFileBytes) {
			snap.Skipped++
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if !utf8.Valid(data) || strings.ContainsRune(string(data), 0) {
			snap.Skipped++
			return nil
		}
		entry := FileEntry{Path: g.Rel(path), Content: string(data)}
		if opts.TruncateChars > 0 && len(entry.Content) > opts.TruncateChars {
			entry.Content = entry.Content[:opts.TruncateChars]
			entry.Truncated = true
		}
		snap.Files = append(snap.Files, entry)
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	sort.Slice(snap.Files, func(i, j int) bool {
		return snap.Files[i].Path < snap.Files[j].Path
	})
	return snap, nil
}

// DesignFilePath returns the canonical design document path for a project.
func DesignFilePath(project string) string {
	return project + DesignSuffix
}

// FindDesignFiles lists design documents at the workspace root, sorted
// by name.
func FindDesignFiles(g Guard) ([]string, error) {
	entries, err := os.ReadDir(g.Root())
	if err != nil {
		return nil, err
	}
	var found []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), DesignSuffix) {
			found = append(found, e.Name())
		}
	}
	sort.Strings(found)
	return found, nil
}
