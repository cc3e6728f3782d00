// Package workspace confines all file operations to a project root and
// provides the context snapshot the agent sends to the model.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BackupSuffix is appended to a file's path when a safety copy is taken
// before an edit or delete. Only one generation is kept.
const BackupSuffix = ".backup"

// ErrTooLarge is returned when a file exceeds the configured size ceiling.
var ErrTooLarge = errors.New("file too large")

// Guard resolves paths and rejects anything that would land outside the
// workspace root.
type Guard struct {
	root string
}

func NewGuard(root string) (Guard, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Guard{}, err
	}
	return Guard{root: abs}, nil
}

func (g Guard) Root() string {
	return g.root
}

// Resolve turns a path from a model response into an absolute path,
// failing if it escapes the root via .. segments or an absolute prefix.
func (g Guard) Resolve(path string) (string, error) {
	var target string
	if path == "" {
		target = g.root
	} else if filepath.IsAbs(path) {
		target = path
	} else {
		target = filepath.Join(g.root, path)
	}
	cleaned, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	if cleaned != g.root && !strings.HasPrefix(cleaned, g.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %s escapes workspace root", path)
	}
	return cleaned, nil
}

// Rel maps an absolute path back to its workspace-relative form for display.
func (g Guard) Rel(path string) string {
	rel, err := filepath.Rel(g.root, path)
	if err != nil {
		return path
	}
	return rel
}

// ReadFile returns the contents of a workspace file. Files larger than
// maxBytes yield ErrTooLarge; maxBytes <= 0 disables the check.
func (g Guard) ReadFile(path string, maxBytes int) (string, error) {
	abs, err := g.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && info.Size() > int64(maxBytes) {
		return "", fmt.Errorf("%s is %d bytes: %w", g.Rel(abs), info.Size(), ErrTooLarge)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes content to a workspace file, creating parent
// directories as needed.
func (g Guard) WriteFile(path, content string) error {
	abs, err := g.Resolve(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(abs); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// Exists reports whether a workspace path exists as a regular file.
func (g Guard) Exists(path string) bool {
	abs, err := g.Resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a workspace file. A missing file is not an error.
func (g Guard) Remove(path string) error {
	abs, err := g.Resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(abs)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Backup copies the file to <path>.backup, overwriting any previous
// backup so the safety copy always reflects the state before the most
// recent mutation.
func (g Guard) Backup(path string) error {
	abs, err := g.Resolve(path)
	if err != nil {
		return err
	}
	src, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(abs + BackupSuffix)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// DetectLineEnding reports the dominant line terminator of the content so
// edits can preserve CRLF files.
func DetectLineEnding(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// DominantLineEnding reports the prevailing line terminator among
// existing project files with the same extension, so newly created files
// follow the project's convention. Defaults to "\n".
func (g Guard) DominantLineEnding(path string) string {
	ext := filepath.Ext(path)
	if ext == "" || ext == BackupSuffix {
		return "\n"
	}
	const maxProbeFiles = 200
	var crlfFiles, lfFiles, seen int
	filepath.WalkDir(g.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p != g.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if seen >= maxProbeFiles {
			return filepath.SkipAll
		}
		if strings.HasSuffix(name, BackupSuffix) || filepath.Ext(name) != ext {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		buf := make([]byte, 4096)
		n, _ := f.Read(buf)
		f.Close()
		chunk := string(buf[:n])
		if !strings.Contains(chunk, "\n") {
			return nil
		}
		seen++
		if DetectLineEnding(chunk) == "\r\n" {
			crlfFiles++
		} else {
			lfFiles++
		}
		return nil
	})
	if crlfFiles > lfFiles {
		return "\r\n"
	}
	return "\n"
}
