// Package agent ties the model client, the action engine, and the
// terminal together into the interactive modes.
package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"forge/internal/action"
	"forge/internal/config"
	"forge/internal/diff"
	"forge/internal/logging"
	"forge/internal/prompts"
	"forge/internal/shell"
	"forge/internal/structure"
	"forge/internal/web"
	"forge/internal/workspace"
)

// Generator abstracts the model runtime so tests can stub completions.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Agent runs one mode against one workspace.
type Agent struct {
	mode       string
	basePrompt string
	cfg        config.Config
	guard      workspace.Guard
	llm        Generator
	applier    *action.Applier
	webClient  *web.Client
	logger     *log.Logger
	in         io.Reader
	out        io.Writer
	renderer   *glamour.TermRenderer
	conv       *Conversation
	isTTY      bool

	// pendingSearch carries :search output into the next model turn.
	pendingSearch string

	// craft mode implements these design documents; empty means discover
	// them in the workspace.
	designFiles []string
}

// Options configures New beyond the required collaborators.
type Options struct {
	In          io.Reader
	Out         io.Writer
	DesignFiles []string
	Confirmer   action.Confirmer
}

func New(mode string, cfg config.Config, guard workspace.Guard, llm Generator, logger *log.Logger, opts Options) (*Agent, error) {
	basePrompt, err := prompts.ForMode(mode)
	if err != nil {
		return nil, err
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	var renderer *glamour.TermRenderer
	if isTTY {
		renderer, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			logging.ErrorLog(logger, "agent: glamour renderer unavailable: %v", err)
			renderer = nil
		}
	}

	confirm := opts.Confirmer
	if confirm == nil {
		if isTTY {
			confirm = action.StdinConfirmer{In: os.Stdin, Out: os.Stderr}
		} else {
			confirm = action.DenyAll{}
		}
	}

	exec := shell.NewExecutor(guard.Root(), cfg.ShellTimeout(), logger)
	applier := action.NewApplier(guard, exec, action.Policy{MaxEditBytes: cfg.MaxEditBytes}, confirm, logger)

	return &Agent{
		mode:        mode,
		basePrompt:  basePrompt,
		cfg:         cfg,
		guard:       guard,
		llm:         llm,
		applier:     applier,
		webClient:   web.NewClient(),
		logger:      logger,
		in:          in,
		out:         out,
		renderer:    renderer,
		conv:        &Conversation{},
		isTTY:       isTTY,
		designFiles: opts.DesignFiles,
	}, nil
}

// Mode returns the agent's mode name.
func (a *Agent) Mode() string {
	return a.mode
}

// Process handles one request end to end: assemble the prompt, call the
// model, apply the actions, and kick off the debug loop when commands
// fail in a building mode.
func (a *Agent) Process(ctx context.Context, userInput string) error {
	pc, err := a.loadContext()
	if err != nil {
		return err
	}

	base := a.basePrompt
	if a.mode == "craft" || a.mode == "design" {
		if tmpl := structure.Detect(a.guard.Root(), userInput); tmpl != nil {
			name := structure.ExtractProjectName(userInput, a.guard.Root())
			base += "\n\n" + tmpl.PromptSection(name, userInput)
			logging.DevLog(a.logger, "agent: detected project type %s", tmpl.Name)
		}
	}

	search := a.pendingSearch
	a.pendingSearch = ""

	prompt := BuildPrompt(base, a.mode, pc, search, a.conv, a.cfg.HistoryTurns, userInput)
	logging.DevLog(a.logger, "agent: %s mode, prompt %d chars", a.mode, len(prompt))

	fmt.Fprintln(a.out, "Thinking...")
	raw, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("model call failed: %w", err)
	}

	resp := action.Parse(raw, a.logger)
	for _, w := range resp.Warnings {
		fmt.Fprintf(a.out, "Warning: %s\n", w)
	}
	if a.mode == "design" {
		resp.Actions = a.restrictToDesignDocs(resp.Actions)
	}
	outcomes := a.applier.Apply(ctx, resp.Actions)
	a.printOutcomes(outcomes)

	if failed := failedCommands(outcomes); len(failed) > 0 && a.cfg.AutoDebugEnabled() && (a.mode == "code" || a.mode == "craft") {
		fmt.Fprintln(a.out, "\nErrors detected, entering debug mode...")
		a.debugLoop(ctx, failed)
	}

	a.conv.Add(userInput, summarize(outcomes))
	return nil
}

// debugLoop asks the model to fix failing commands, reapplying fixes
// until everything passes or the iteration budget runs out.
func (a *Agent) debugLoop(ctx context.Context, failures []action.Outcome) {
	debugPrompt, err := prompts.ForMode("debug")
	if err != nil {
		logging.ErrorLog(a.logger, "agent: debug prompt: %v", err)
		return
	}

	for iteration := 1; iteration <= a.cfg.MaxDebugIterations; iteration++ {
		fmt.Fprintf(a.out, "Debug iteration %d/%d\n", iteration, a.cfg.MaxDebugIterations)

		pc, err := a.loadContext()
		if err != nil {
			logging.ErrorLog(a.logger, "agent: debug context reload: %v", err)
			return
		}
		request := formatFailures(failures)
		prompt := BuildPrompt(debugPrompt, "debug", pc, "", a.conv, a.cfg.HistoryTurns, request)

		raw, err := a.llm.Generate(ctx, prompt)
		if err != nil {
			logging.ErrorLog(a.logger, "agent: debug generation failed: %v", err)
			return
		}
		resp := action.Parse(raw, a.logger)
		outcomes := a.applier.Apply(ctx, resp.Actions)
		a.printOutcomes(outcomes)

		failures = failedCommands(outcomes)
		if len(failures) == 0 {
			fmt.Fprintln(a.out, "All commands passing.")
			return
		}
	}
	fmt.Fprintf(a.out, "Debug budget exhausted, %d command(s) still failing.\n", len(failures))
}

// restrictToDesignDocs drops anything a design session must not do:
// touching source files or running commands.
func (a *Agent) restrictToDesignDocs(actions []action.Action) []action.Action {
	kept := actions[:0]
	for _, act := range actions {
		switch act.Kind {
		case action.KindCreate, action.KindEdit, action.KindDelete:
			if !strings.HasSuffix(act.Target, workspace.DesignSuffix) {
				fmt.Fprintf(a.out, "Warning: design mode only writes design documents, skipping %s %s\n", act.Kind, act.Target)
				continue
			}
		case action.KindRun:
			fmt.Fprintf(a.out, "Warning: design mode does not run commands, skipping %q\n", act.Target)
			continue
		}
		kept = append(kept, act)
	}
	return kept
}

func (a *Agent) loadContext() (ProjectContext, error) {
	pc, err := LoadProjectContext(a.guard, a.cfg)
	if err != nil {
		return ProjectContext{}, err
	}
	// Craft mode with explicit design files uses only those documents.
	if a.mode == "craft" && len(a.designFiles) > 0 {
		pc.Designs = pc.Designs[:0]
		for _, path := range a.designFiles {
			content, err := a.guard.ReadFile(path, a.cfg.MaxFileBytes)
			if err != nil {
				return ProjectContext{}, fmt.Errorf("design file %s: %w", path, err)
			}
			pc.Designs = append(pc.Designs, workspace.FileEntry{Path: path, Content: content})
		}
	}
	// Non-design, non-craft modes do not replay design documents.
	if a.mode != "design" && a.mode != "craft" {
		pc.Designs = nil
	}
	return pc, nil
}

func (a *Agent) printOutcomes(outcomes []action.Outcome) {
	for _, o := range outcomes {
		switch {
		case o.Action.Kind == action.KindMessage && o.Ok():
			a.printMarkdown(o.Detail)
		case o.Err != nil:
			fmt.Fprintf(a.out, "✗ %s %s: %v\n", o.Action.Kind, o.Action.Target, o.Err)
			if o.Shell != nil && o.Shell.Output() != "" {
				fmt.Fprintln(a.out, indent(o.Shell.Output()))
			}
		default:
			fmt.Fprintf(a.out, "✓ %s\n", o.Detail)
			if o.Diff != "" {
				fmt.Fprintln(a.out, diff.Render(o.Diff, a.isTTY))
			}
			if o.Action.Kind == action.KindRun && o.Shell != nil && o.Shell.Stdout != "" {
				fmt.Fprintln(a.out, indent(o.Shell.Stdout))
			}
		}
	}
}

func (a *Agent) printMarkdown(text string) {
	if a.renderer != nil {
		if rendered, err := a.renderer.Render(text); err == nil {
			fmt.Fprint(a.out, rendered)
			return
		}
	}
	fmt.Fprintln(a.out, text)
}

func failedCommands(outcomes []action.Outcome) []action.Outcome {
	var failed []action.Outcome
	for _, o := range action.Failed(outcomes) {
		if o.Action.Kind == action.KindRun {
			failed = append(failed, o)
		}
	}
	return failed
}

func formatFailures(failures []action.Outcome) string {
	var b strings.Builder
	b.WriteString("The following commands failed. Fix the underlying problems.\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "\nCommand: %s\n", f.Action.Target)
		if f.Action.Content != "" {
			fmt.Fprintf(&b, "Purpose: %s\n", f.Action.Content)
		}
		fmt.Fprintf(&b, "Error: %v\n", f.Err)
		if f.Shell != nil && f.Shell.Output() != "" {
			fmt.Fprintf(&b, "Output:\n%s\n", f.Shell.Output())
		}
	}
	return b.String()
}

func summarize(outcomes []action.Outcome) string {
	var parts []string
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			parts = append(parts, fmt.Sprintf("failed %s %s: %v", o.Action.Kind, o.Action.Target, o.Err))
		case o.Action.Kind == action.KindMessage:
			parts = append(parts, o.Detail)
		default:
			parts = append(parts, o.Detail)
		}
	}
	if len(parts) == 0 {
		return "(no actions)"
	}
	return strings.Join(parts, "\n")
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
