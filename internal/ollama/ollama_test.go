package ollama

import (
	"io"
	"log"
	"testing"
	"time"
)

func TestModelEnvOverride(t *testing.T) {
	t.Setenv(ModelEnvVar, "llama3:70b")
	c := New("qwen2.5-coder:14b", time.Minute, log.New(io.Discard, "", 0))
	if c.Model() != "llama3:70b" {
		t.Errorf("Model() = %q, want env override llama3:70b", c.Model())
	}
}

func TestModelDefaultWithoutEnv(t *testing.T) {
	t.Setenv(ModelEnvVar, "")
	c := New("qwen2.5-coder:14b", 0, log.New(io.Discard, "", 0))
	if c.Model() != "qwen2.5-coder:14b" {
		t.Errorf("Model() = %q, want configured model", c.Model())
	}
	if c.timeout != 300*time.Second {
		t.Errorf("timeout = %s, want 300s default", c.timeout)
	}
}
