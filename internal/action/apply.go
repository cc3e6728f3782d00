package action

import (
	"context"
	"fmt"
	"log"
	"os"

	"forge/internal/diff"
	"forge/internal/logging"
	"forge/internal/shell"
	"forge/internal/workspace"
)

// Confirmer asks the user to approve a destructive step. In
// non-interactive runs confirmation is declined, never assumed.
type Confirmer interface {
	Confirm(prompt string) bool
}

// DenyAll declines every confirmation. Used when no terminal is attached.
type DenyAll struct{}

func (DenyAll) Confirm(string) bool { return false }

// Applier executes validated actions against a guarded workspace.
type Applier struct {
	guard   workspace.Guard
	exec    *shell.Executor
	policy  Policy
	confirm Confirmer
	logger  *log.Logger
}

func NewApplier(guard workspace.Guard, exec *shell.Executor, policy Policy, confirm Confirmer, logger *log.Logger) *Applier {
	if confirm == nil {
		confirm = DenyAll{}
	}
	return &Applier{guard: guard, exec: exec, policy: policy, confirm: confirm, logger: logger}
}

// Apply runs every action in order and reports per-action outcomes.
// A failed action does not stop the rest; the agent decides what to do
// with failures. Cancellation takes effect between actions: once the
// context is done the remaining actions are reported as skipped without
// touching the workspace.
func (ap *Applier) Apply(ctx context.Context, actions []Action) []Outcome {
	outcomes := make([]Outcome, 0, len(actions))
	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			for _, rest := range actions[i:] {
				outcomes = append(outcomes, Outcome{
					Action: rest,
					Err:    fmt.Errorf("skipped %s %s: %w", rest.Kind, rest.Target, err),
				})
			}
			logging.ErrorLog(ap.logger, "apply: interrupted, %d action(s) skipped", len(actions)-i)
			break
		}
		outcomes = append(outcomes, ap.applyOne(ctx, a))
	}
	return outcomes
}

func (ap *Applier) applyOne(ctx context.Context, a Action) Outcome {
	out := Outcome{Action: a}
	if err := ap.policy.Check(a); err != nil {
		logging.ErrorLog(ap.logger, "apply: %s %s rejected: %v", a.Kind, a.Target, err)
		out.Err = err
		return out
	}

	switch a.Kind {
	case KindCreate:
		out = ap.create(a)
	case KindEdit:
		out = ap.edit(a)
	case KindDelete:
		out = ap.delete(a)
	case KindRun:
		out = ap.run(ctx, a)
	case KindMessage:
		out.Detail = a.Content
	}
	if out.Err != nil {
		logging.ErrorLog(ap.logger, "apply: %s %s: %v", a.Kind, a.Target, out.Err)
	} else {
		logging.DevLog(ap.logger, "apply: %s %s ok", a.Kind, a.Target)
	}
	return out
}

func (ap *Applier) create(a Action) Outcome {
	out := Outcome{Action: a}
	if ap.guard.Exists(a.Target) {
		existing, err := ap.guard.ReadFile(a.Target, 0)
		if err == nil && existing == a.Content {
			out.Detail = fmt.Sprintf("%s already exists with identical content", a.Target)
			return out
		}
		out.Err = fmt.Errorf("%s: %w, use edit instead", a.Target, ErrExists)
		return out
	}
	content := a.Content
	if workspace.DetectLineEnding(content) == "\n" && ap.guard.DominantLineEnding(a.Target) == "\r\n" {
		content = crlf(content)
	}
	if err := ap.guard.WriteFile(a.Target, content); err != nil {
		out.Err = fmt.Errorf("create %s: %w", a.Target, err)
		return out
	}
	out.Detail = fmt.Sprintf("created %s (%d bytes)", a.Target, len(content))
	return out
}

func (ap *Applier) edit(a Action) Outcome {
	out := Outcome{Action: a}
	if !ap.guard.Exists(a.Target) {
		out.Err = fmt.Errorf("%s: %w, use create instead", a.Target, ErrNotFound)
		return out
	}
	oldContent, err := ap.guard.ReadFile(a.Target, ap.policy.MaxEditBytes)
	if err != nil {
		out.Err = fmt.Errorf("read %s: %w", a.Target, err)
		return out
	}

	content := a.Content
	if workspace.DetectLineEnding(oldContent) == "\r\n" && workspace.DetectLineEnding(content) == "\n" {
		content = crlf(content)
	}

	unified, err := diff.Unified(a.Target, oldContent, content)
	if err != nil {
		out.Err = fmt.Errorf("diff %s: %w", a.Target, err)
		return out
	}
	if unified == "" {
		out.Detail = fmt.Sprintf("%s unchanged", a.Target)
		return out
	}
	if err := ap.guard.Backup(a.Target); err != nil {
		out.Err = fmt.Errorf("backup %s: %w", a.Target, err)
		return out
	}
	if err := ap.guard.WriteFile(a.Target, content); err != nil {
		out.Err = fmt.Errorf("edit %s: %w", a.Target, err)
		return out
	}
	out.Diff = unified
	out.Detail = fmt.Sprintf("edited %s (%s)", a.Target, diff.Summary(unified))
	return out
}

func (ap *Applier) delete(a Action) Outcome {
	out := Outcome{Action: a}
	if !ap.guard.Exists(a.Target) {
		out.Detail = fmt.Sprintf("%s already absent", a.Target)
		return out
	}
	prompt := fmt.Sprintf("Confirm deletion of %s? (yes/no): ", a.Target)
	if !ap.confirm.Confirm(prompt) {
		out.Err = fmt.Errorf("delete %s: %w", a.Target, ErrDeclined)
		return out
	}
	if err := ap.guard.Backup(a.Target); err != nil {
		out.Err = fmt.Errorf("backup %s: %w", a.Target, err)
		return out
	}
	if err := ap.guard.Remove(a.Target); err != nil {
		out.Err = fmt.Errorf("delete %s: %w", a.Target, err)
		return out
	}
	out.Detail = fmt.Sprintf("deleted %s (backup kept)", a.Target)
	return out
}

func (ap *Applier) run(ctx context.Context, a Action) Outcome {
	out := Outcome{Action: a}
	res, err := ap.exec.Run(ctx, a.Target)
	if err != nil {
		out.Err = err
		return out
	}
	out.Shell = &res
	if res.TimedOut {
		out.Err = fmt.Errorf("command timed out: %s", a.Target)
		return out
	}
	if res.ExitCode != 0 {
		out.Err = fmt.Errorf("command failed (exit %d): %s", res.ExitCode, a.Target)
		out.Detail = res.Output()
		return out
	}
	out.Detail = res.Stdout
	return out
}

func crlf(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			b = append(b, '\r')
		}
		b = append(b, s[i])
	}
	return string(b)
}

// interactive confirmation reads yes/no from the terminal; kept here so
// the applier owns the exact accepted answer.
type StdinConfirmer struct {
	In  *os.File
	Out *os.File
}

func (c StdinConfirmer) Confirm(prompt string) bool {
	fmt.Fprint(c.Out, prompt)
	var answer string
	if _, err := fmt.Fscanln(c.In, &answer); err != nil {
		return false
	}
	return answer == "yes"
}
