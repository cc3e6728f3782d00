// Package shell runs commands from model responses with timeouts and a
// refusal list for interactive programs.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"forge/internal/logging"
)

// Result captures one command execution for display and for feeding the
// debug loop on failure.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Ok reports whether the command exited zero without timing out.
func (r Result) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Output merges stdout and stderr for prompts and error summaries.
func (r Result) Output() string {
	out := r.Stdout
	if r.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += r.Stderr
	}
	return out
}

// Executor runs tokenized commands inside a fixed working directory.
type Executor struct {
	workdir string
	timeout time.Duration
	logger  *log.Logger
}

func NewExecutor(workdir string, timeout time.Duration, logger *log.Logger) *Executor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{workdir: workdir, timeout: timeout, logger: logger}
}

// interactiveCommands require a terminal and would hang the agent.
var interactiveCommands = []string{"sudo", "su", "passwd"}

// Run tokenizes and executes a single command. Stdin is disconnected so
// interactive prompts fail fast instead of hanging.
func (e *Executor) Run(ctx context.Context, command string) (Result, error) {
	argv, err := Tokenize(command)
	if err != nil {
		return Result{}, err
	}
	name := filepath.Base(argv[0])
	for _, blocked := range interactiveCommands {
		if name == blocked {
			logging.ErrorLog(e.logger, "shell: blocked command '%s'", blocked)
			return Result{}, fmt.Errorf("command '%s' requires interactive input and is not allowed", blocked)
		}
	}

	logging.DevLog(e.logger, "shell: executing %v in %s", argv, e.workdir)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = e.workdir
	cmd.Env = os.Environ()
	cmd.Stdin = nil // prevent hangs on interactive input

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := Result{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	if ps := cmd.ProcessState; ps != nil {
		result.ExitCode = ps.ExitCode()
	}
	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			if result.ExitCode == 0 {
				result.ExitCode = -1
			}
			logging.ErrorLog(e.logger, "shell: command timed out after %s", e.timeout)
			return result, nil
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Nonzero exit is data for the caller, not a transport failure.
			return result, nil
		}
		return result, fmt.Errorf("run %s: %w", argv[0], runErr)
	}
	logging.DevLog(e.logger, "shell: command completed in %dms with exit code %d", duration.Milliseconds(), result.ExitCode)
	return result, nil
}

// Tokenize splits a command string into argv, honoring single quotes,
// double quotes, and backslash escapes.
func Tokenize(cmd string) ([]string, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil, errors.New("command string is empty")
	}

	var args []string
	var current strings.Builder
	var inQuote rune
	escaped := false

	for _, ch := range cmd {
		if escaped {
			current.WriteRune(ch)
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if inQuote != 0 {
			if ch == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(ch)
			}
			continue
		}
		if ch == '"' || ch == '\'' {
			inQuote = ch
			continue
		}
		if ch == ' ' || ch == '\t' {
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
			continue
		}
		current.WriteRune(ch)
	}

	if inQuote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", inQuote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	if len(args) == 0 {
		return nil, errors.New("command string is empty")
	}
	return args, nil
}
