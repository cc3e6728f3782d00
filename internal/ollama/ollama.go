// Package ollama drives a locally installed ollama binary over subprocess
// calls. No HTTP API is used so the agent works with any ollama install.
package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"forge/internal/logging"
)

// ModelEnvVar overrides the configured model at runtime.
const ModelEnvVar = "LOCAL_AI_MODEL"

// ErrUnavailable means the ollama binary is missing or not responding.
var ErrUnavailable = errors.New("ollama is not available")

// Client invokes the ollama CLI for a single fixed model.
type Client struct {
	binary  string
	model   string
	timeout time.Duration
	logger  *log.Logger
}

// New builds a client. The LOCAL_AI_MODEL environment variable takes
// precedence over the model argument.
func New(model string, timeout time.Duration, logger *log.Logger) *Client {
	if env := strings.TrimSpace(os.Getenv(ModelEnvVar)); env != "" {
		model = env
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Client{binary: "ollama", model: model, timeout: timeout, logger: logger}
}

// Model returns the resolved model identifier.
func (c *Client) Model() string {
	return c.model
}

// Available checks that the ollama binary exists and answers --version.
func (c *Client) Available(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, c.binary, "--version")
	if err := cmd.Run(); err != nil {
		logging.ErrorLog(c.logger, "ollama: version check failed: %v", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Generate sends the prompt on stdin to `ollama run <model>` and returns
// the raw completion text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logging.DevLog(c.logger, "ollama: generating with model %s, prompt %d chars", c.model, len(prompt))

	cmd := exec.CommandContext(runCtx, c.binary, "run", c.model)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			logging.ErrorLog(c.logger, "ollama: generation timed out after %s", c.timeout)
			return "", fmt.Errorf("model response timed out after %s", c.timeout)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: binary not found in PATH", ErrUnavailable)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		logging.ErrorLog(c.logger, "ollama: run failed: %s", msg)
		return "", fmt.Errorf("ollama run failed: %s", msg)
	}

	logging.DevLog(c.logger, "ollama: generation finished in %s, %d chars", duration.Round(time.Millisecond), stdout.Len())
	return stdout.String(), nil
}
