package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"forge/internal/web"
)

var commandSuggestions = []prompt.Suggest{
	{Text: ":help", Description: "show available commands"},
	{Text: ":context", Description: "show what project files are loaded"},
	{Text: ":model", Description: "show the active model"},
	{Text: ":search", Description: "search the web, e.g. :search go context cancellation"},
	{Text: ":quit", Description: "exit the session"},
	{Text: ":exit", Description: "exit the session"},
}

// interruptTracker detects a second Ctrl+C within the window, which
// exits the session instead of clearing the line.
type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
}

func newInterruptTracker(window time.Duration) *interruptTracker {
	return &interruptTracker{window: window}
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}

type promptExit struct{}

// Run enters the interactive session. With a terminal it uses the
// completing prompt. Piped input stays usable: code mode reads one
// request per line, every other mode takes the whole input as a single
// request.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return a.runPrompt(ctx, cancel)
	}
	if a.mode != "code" {
		return a.runBatch(ctx)
	}
	return a.runNonInteractive(ctx)
}

// runBatch reads everything from the input as one request.
func (a *Agent) runBatch(ctx context.Context) error {
	data, err := io.ReadAll(a.in)
	if err != nil {
		return err
	}
	request := strings.TrimSpace(string(data))
	if request == "" {
		return nil
	}
	return a.Process(ctx, request)
}

func (a *Agent) runPrompt(ctx context.Context, cancel context.CancelFunc) (err error) {
	history := loadInputHistory(a.cfg.HistoryPath)
	tracker := newInterruptTracker(2 * time.Second)
	var exitRequested atomic.Bool

	fmt.Fprintf(a.out, "forge %s mode, model %s. Type :help for commands.\n", a.mode, a.llm.Model())

	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(promptExit); ok {
				err = nil
				return
			}
			panic(r)
		}
	}()

	executor := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		history.Add(line)
		if strings.HasPrefix(line, ":") {
			if a.handleCommand(ctx, line) {
				exitRequested.Store(true)
				cancel()
				panic(promptExit{})
			}
			return
		}
		if err := a.Process(ctx, line); err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
		}
	}

	p := prompt.New(
		executor,
		a.commandCompleter(),
		prompt.OptionHistory(history.Entries()),
		prompt.OptionTitle("forge"),
		prompt.OptionPrefix(fmt.Sprintf("[%s] > ", a.mode)),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(buf *prompt.Buffer) {
					if tracker.secondPress() {
						fmt.Fprintln(a.out, "\nReceived second Ctrl+C, exiting.")
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
					fmt.Fprintln(a.out, "\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exitRequested.Store(true)
						cancel()
						panic(promptExit{})
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			if exitRequested.Load() {
				return true
			}
			select {
			case <-ctx.Done():
				return true
			default:
				return false
			}
		}),
	)

	p.Run()
	return nil
}

func (a *Agent) commandCompleter() func(prompt.Document) []prompt.Suggest {
	return func(doc prompt.Document) []prompt.Suggest {
		word := doc.GetWordBeforeCursor()
		prefix := strings.TrimLeft(doc.TextBeforeCursor(), " \t")
		if !strings.HasPrefix(prefix, ":") {
			return nil
		}
		return prompt.FilterHasPrefix(commandSuggestions, word, true)
	}
}

func (a *Agent) runNonInteractive(ctx context.Context) error {
	reader := bufio.NewReader(a.in)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if strings.HasPrefix(line, ":") {
				if a.handleCommand(ctx, line) {
					return nil
				}
			} else if perr := a.Process(ctx, line); perr != nil {
				fmt.Fprintf(a.out, "Error: %v\n", perr)
			}
		}
		if err != nil {
			return nil
		}
	}
}

// handleCommand executes a :command. Returns true when the session
// should end.
func (a *Agent) handleCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":exit":
		return true
	case ":help":
		fmt.Fprintln(a.out, "Commands:")
		for _, s := range commandSuggestions {
			fmt.Fprintf(a.out, "  %-10s %s\n", s.Text, s.Description)
		}
	case ":model":
		fmt.Fprintf(a.out, "model: %s (override with %s)\n", a.llm.Model(), "LOCAL_AI_MODEL")
	case ":context":
		pc, err := a.loadContext()
		if err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", err)
			break
		}
		fmt.Fprintf(a.out, "%d file(s) loaded", len(pc.Snapshot.Files))
		if pc.Snapshot.Skipped > 0 {
			fmt.Fprintf(a.out, ", %d skipped", pc.Snapshot.Skipped)
		}
		fmt.Fprintln(a.out)
		for _, f := range pc.Snapshot.Files {
			fmt.Fprintf(a.out, "  %s (%d chars)\n", f.Path, len(f.Content))
		}
		for _, d := range pc.Designs {
			fmt.Fprintf(a.out, "  %s (design document)\n", d.Path)
		}
	case ":search":
		query := strings.TrimSpace(strings.TrimPrefix(line, ":search"))
		if query == "" {
			fmt.Fprintln(a.out, "usage: :search <query>")
			break
		}
		results, err := a.webClient.Search(ctx, query, a.cfg.SearchResults)
		if err != nil {
			fmt.Fprintf(a.out, "Search failed: %v\n", err)
			break
		}
		formatted := web.Format(query, results)
		fmt.Fprintln(a.out, formatted)
		// The next request carries these results to the model.
		a.pendingSearch = formatted
	default:
		fmt.Fprintf(a.out, "Unknown command %s, try :help\n", fields[0])
	}
	return false
}
