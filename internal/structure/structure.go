// Package structure detects what kind of project a request is about and
// shapes the scaffolding prompt accordingly. Templates are embedded so
// the binary is self-contained.
package structure

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

//go:embed templates/*.json
var templateFS embed.FS

// FileSpec describes one expected file in a project layout.
type FileSpec struct {
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// Detection holds the signals that vote for a template.
type Detection struct {
	Keywords []string `json:"keywords"`
	Files    []string `json:"files"`
}

// Assumptions are the toolchain facts injected into the prompt.
type Assumptions struct {
	Language       string              `json:"language"`
	Framework      string              `json:"framework,omitempty"`
	Platform       string              `json:"platform,omitempty"`
	PackageManager string              `json:"package_manager"`
	BuildCommand   string              `json:"build_command"`
	RunCommand     string              `json:"run_command"`
	Structure      map[string]FileSpec `json:"structure"`
}

// Template is one project-type definition.
type Template struct {
	Name           string      `json:"name"`
	Detection      Detection   `json:"detection"`
	Assumptions    Assumptions `json:"assumptions"`
	PromptTemplate string      `json:"prompt_template"`
}

// Load parses every embedded template, sorted by name for stable scoring.
func Load() ([]Template, error) {
	entries, err := fs.Glob(templateFS, "templates/*.json")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	templates := make([]Template, 0, len(entries))
	for _, path := range entries {
		data, err := templateFS.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var t Template
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// walkSkip lists directories never scanned for detection files.
var walkSkip = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, "__pycache__": true,
}

// Detect scores every template against the request text and the files
// already present. Keyword hits in the request count 10, a matching file
// in the tree counts 20, a matching file in the parent directory counts
// 10. Returns nil when nothing scores.
func Detect(root, userInput string) *Template {
	templates, err := Load()
	if err != nil || len(templates) == 0 {
		return nil
	}
	names := collectNames(root)
	parentNames := listDir(filepath.Dir(root))
	input := strings.ToLower(userInput)

	var best *Template
	bestScore := 0
	for i := range templates {
		t := &templates[i]
		score := 0
		for _, kw := range t.Detection.Keywords {
			if containsWord(input, strings.ToLower(kw)) {
				score += 10
			}
		}
		for _, pattern := range t.Detection.Files {
			if matchAny(names, pattern) {
				score += 20
			}
			if !strings.Contains(pattern, "*") && parentNames[pattern] {
				score += 10
			}
		}
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	if bestScore == 0 {
		return nil
	}
	return best
}

// PromptSection renders the template into the scaffolding prompt.
func (t Template) PromptSection(projectName, description string) string {
	prompt := strings.ReplaceAll(t.PromptTemplate, "{PROJECT_NAME}", projectName)
	prompt = strings.ReplaceAll(prompt, "{PROJECT_DESCRIPTION}", description)

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nPROJECT STRUCTURE ASSUMPTIONS:\n")
	fmt.Fprintf(&b, "Language: %s\n", t.Assumptions.Language)
	if t.Assumptions.Framework != "" {
		fmt.Fprintf(&b, "Framework: %s\n", t.Assumptions.Framework)
	}
	if t.Assumptions.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", t.Assumptions.Platform)
	}
	fmt.Fprintf(&b, "Package Manager: %s\n", t.Assumptions.PackageManager)
	fmt.Fprintf(&b, "Build Command: %s\n", t.Assumptions.BuildCommand)
	fmt.Fprintf(&b, "Run Command: %s\n", t.Assumptions.RunCommand)

	var required []string
	for path, spec := range t.Assumptions.Structure {
		if spec.Required {
			required = append(required, fmt.Sprintf("  - %s: %s", path, spec.Description))
		}
	}
	if len(required) > 0 {
		sort.Strings(required)
		b.WriteString("\nRequired Files:\n")
		b.WriteString(strings.Join(required, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

var projectNamePattern = regexp.MustCompile(`(?i)(?:called|named)\s+([A-Za-z][A-Za-z0-9_]*)`)
var quotedNamePattern = regexp.MustCompile(`["']([A-Za-z][A-Za-z0-9_]*)["']`)

// ExtractProjectName pulls a project name out of the request, falling
// back to the workspace directory name.
func ExtractProjectName(userInput, root string) string {
	if m := projectNamePattern.FindStringSubmatch(userInput); m != nil {
		return m[1]
	}
	if m := quotedNamePattern.FindStringSubmatch(userInput); m != nil {
		return m[1]
	}
	return filepath.Base(root)
}

func collectNames(root string) []string {
	var names []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (walkSkip[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		names = append(names, d.Name())
		return nil
	})
	return names
}

func listDir(dir string) map[string]bool {
	entries, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[filepath.Base(e)] = true
	}
	return names
}

func matchAny(names []string, pattern string) bool {
	if strings.Contains(pattern, "*") {
		needle := strings.ReplaceAll(pattern, "*", "")
		for _, name := range names {
			if strings.Contains(name, needle) {
				return true
			}
		}
		return false
	}
	for _, name := range names {
		if name == pattern {
			return true
		}
	}
	return false
}

// containsWord avoids "go" matching inside "cargo" or "django".
func containsWord(haystack, word string) bool {
	if len(word) == 0 {
		return false
	}
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(haystack[start-1])
		afterOK := end == len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}
