package agent

import (
	"fmt"
	"strings"
	"sync"

	"forge/internal/config"
	"forge/internal/workspace"
)

const sectionRule = "================================================================================"

// Turn is one user/assistant exchange kept for prompt history.
type Turn struct {
	User      string
	Assistant string
}

// Conversation accumulates exchanges within a session. Only the most
// recent turns are replayed into the prompt.
type Conversation struct {
	mu    sync.Mutex
	turns []Turn
}

func (c *Conversation) Add(user, assistant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{User: user, Assistant: assistant})
}

func (c *Conversation) Recent(n int) []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n >= len(c.turns) {
		n = len(c.turns)
	}
	out := make([]Turn, n)
	copy(out, c.turns[len(c.turns)-n:])
	return out
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// ProjectContext is the loaded view of the workspace for prompt assembly.
type ProjectContext struct {
	Snapshot workspace.Snapshot
	Designs  []workspace.FileEntry
}

// LoadProjectContext gathers workspace files and splits out design
// documents, which get their own prompt section.
func LoadProjectContext(guard workspace.Guard, cfg config.Config) (ProjectContext, error) {
	snap, err := workspace.Collect(guard, workspace.SnapshotOptions{
		SkipDirs:      cfg.SkipDirs,
		MaxFiles:      cfg.MaxContextFiles,
		MaxFileBytes:  cfg.MaxFileBytes,
		TruncateChars: cfg.TruncateFileChars,
	})
	if err != nil {
		return ProjectContext{}, fmt.Errorf("load project context: %w", err)
	}

	var pc ProjectContext
	for _, f := range snap.Files {
		if strings.HasSuffix(f.Path, workspace.DesignSuffix) {
			pc.Designs = append(pc.Designs, f)
		} else {
			pc.Snapshot.Files = append(pc.Snapshot.Files, f)
		}
	}
	pc.Snapshot.Skipped = snap.Skipped
	return pc, nil
}

// BuildPrompt assembles the full model prompt: base system prompt,
// project files, design documents, search results, recent history,
// then the request.
func BuildPrompt(basePrompt, mode string, pc ProjectContext, search string, conv *Conversation, historyTurns int, userInput string) string {
	var parts []string
	parts = append(parts, basePrompt)

	if len(pc.Snapshot.Files) > 0 {
		parts = append(parts, "\n\nPROJECT CONTEXT:", sectionRule)
		for _, f := range pc.Snapshot.Files {
			parts = append(parts, fmt.Sprintf("\n--- %s ---", f.Path))
			content := f.Content
			if f.Truncated {
				content += "\n... (truncated)"
			}
			parts = append(parts, content)
		}
		if pc.Snapshot.Skipped > 0 {
			parts = append(parts, fmt.Sprintf("\n... and %d more files", pc.Snapshot.Skipped))
		}
	}

	if len(pc.Designs) > 0 {
		if mode == "craft" {
			parts = append(parts, "\n\nPRIMARY INSTRUCTION: IMPLEMENT THE DESIGN(S) BELOW", sectionRule)
		} else {
			parts = append(parts, "\n\nDESIGN DOCUMENT(S):", sectionRule)
		}
		for _, d := range pc.Designs {
			parts = append(parts, fmt.Sprintf("\n--- %s ---", d.Path), d.Content)
		}
		if mode == "craft" {
			parts = append(parts, "\n"+sectionRule, "Use the design document(s) above as your implementation guide.", sectionRule)
		}
	}

	if search != "" {
		parts = append(parts, "\n\nSEARCH RESULTS:", sectionRule, search)
	}

	if recent := conv.Recent(historyTurns); len(recent) > 0 {
		parts = append(parts, "\n\nCONVERSATION HISTORY:", sectionRule)
		for _, t := range recent {
			parts = append(parts, fmt.Sprintf("\nUser: %s", t.User))
			parts = append(parts, fmt.Sprintf("Assistant: %s", t.Assistant))
		}
	}

	parts = append(parts, "\n\nCURRENT REQUEST:", sectionRule, userInput)
	parts = append(parts, "\nRespond with JSON actions only.")
	return strings.Join(parts, "\n")
}
