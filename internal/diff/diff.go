// Package diff produces unified diffs for file edits and renders them
// with terminal colors.
package diff

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"
)

var (
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
)

// Unified returns a unified diff between the old and new content of a file.
func Unified(path, oldContent, newContent string) (string, error) {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: path + " (before)",
		ToFile:   path + " (after)",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// Summary counts added and removed lines for the one-line change report.
func Summary(unified string) string {
	var added, removed int
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	if added == 0 && removed == 0 {
		return "no changes"
	}
	return fmt.Sprintf("+%d -%d lines", added, removed)
}

// Render colorizes a unified diff for terminal output. When color is
// false the diff passes through unchanged.
func Render(unified string, color bool) string {
	if !color {
		return unified
	}
	lines := strings.Split(unified, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"), strings.HasPrefix(line, "@@"):
			lines[i] = headerStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = addStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removeStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}
