package action

import (
	"fmt"
	"regexp"
	"strings"
)

// Policy validates actions before they touch the filesystem or a shell.
type Policy struct {
	// MaxEditBytes refuses edits to files larger than this on disk.
	// Zero disables the ceiling.
	MaxEditBytes int
}

// dangerousPrefixes match against the normalized leading tokens of a
// command. Matching is on whole tokens so rmdir is not caught by rm.
var dangerousPrefixes = [][]string{
	{"rm"},
	{"del"},
	{"format"},
	{"mkfs"},
	{"dd"},
	{"shutdown"},
	{"reboot"},
	{"halt"},
	{"sudo", "rm"},
	{"sudo", "del"},
	{"sudo", "format"},
	{"sudo", "mkfs"},
	{"sudo", "dd"},
}

// dangerousPatterns catch destructive shapes that prefix matching misses.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`(?i)\b(curl|wget)\b[^|]*\|\s*(ba|z|da)?sh\b`),
}

// Dangerous reports whether a command matches the deny list. The check
// is tolerant of case and extra whitespace so "  RM   -rf  /" is still
// caught.
func Dangerous(command string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(command), " "))
	if normalized == "" {
		return false
	}
	tokens := strings.Fields(normalized)
	for _, prefix := range dangerousPrefixes {
		if len(tokens) < len(prefix) {
			continue
		}
		match := true
		for i, want := range prefix {
			if tokens[i] != want {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	for _, re := range dangerousPatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Check validates a single action against the policy. A nil error means
// the action may proceed to the applier.
func (p Policy) Check(a Action) error {
	switch a.Kind {
	case KindCreate, KindEdit:
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("%s action requires a target path", a.Kind)
		}
	case KindDelete:
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("delete action requires a target path")
		}
	case KindRun:
		if strings.TrimSpace(a.Target) == "" {
			return fmt.Errorf("run action requires a command")
		}
		if Dangerous(a.Target) {
			return fmt.Errorf("command %q: %w", a.Target, ErrBlocked)
		}
	case KindMessage:
	default:
		return fmt.Errorf("unknown action type %q", a.Kind)
	}
	return nil
}
