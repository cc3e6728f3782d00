// Package prompts holds the built-in system prompt for each agent mode.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed code.txt
var codePrompt string

//go:embed design.txt
var designPrompt string

//go:embed craft.txt
var craftPrompt string

//go:embed debug.txt
var debugPrompt string

//go:embed test.txt
var testPrompt string

// Modes lists every supported agent mode.
var Modes = []string{"code", "design", "craft", "debug", "test"}

// ForMode returns the base system prompt for a mode.
func ForMode(mode string) (string, error) {
	switch mode {
	case "code":
		return strings.TrimSpace(codePrompt), nil
	case "design":
		return strings.TrimSpace(designPrompt), nil
	case "craft":
		return strings.TrimSpace(craftPrompt), nil
	case "debug":
		return strings.TrimSpace(debugPrompt), nil
	case "test":
		return strings.TrimSpace(testPrompt), nil
	default:
		return "", fmt.Errorf("unknown mode %q (valid: %s)", mode, strings.Join(Modes, ", "))
	}
}

// Valid reports whether mode names a supported agent mode.
func Valid(mode string) bool {
	_, err := ForMode(mode)
	return err == nil
}
