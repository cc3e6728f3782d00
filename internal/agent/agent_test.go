package agent

import (
	"bytes"
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"forge/internal/action"
	"forge/internal/config"
	"forge/internal/workspace"
)

type stubModel struct {
	responses []string
	calls     int
	prompts   []string
}

func (s *stubModel) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.calls >= len(s.responses) {
		return `{"actions": [{"type": "message", "content": "out of responses"}]}`, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func (s *stubModel) Model() string { return "stub" }

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Model = "stub"
	cfg.ModelTimeoutSeconds = 5
	cfg.ShellTimeoutSeconds = 5
	cfg.MaxEditBytes = 300 * 1024
	cfg.MaxContextFiles = 50
	cfg.MaxFileBytes = 300 * 1024
	cfg.TruncateFileChars = 5000
	cfg.HistoryTurns = 5
	cfg.MaxDebugIterations = 2
	cfg.SearchResults = 5
	enabled := true
	cfg.AutoDebug = &enabled
	return cfg
}

func newTestAgent(t *testing.T, mode string, model *stubModel) (*Agent, workspace.Guard, *bytes.Buffer) {
	t.Helper()
	g, err := workspace.NewGuard(t.TempDir())
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	var out bytes.Buffer
	a, err := New(mode, testConfig(), g, model, log.New(io.Discard, "", 0), Options{
		Out:       &out,
		Confirmer: action.DenyAll{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, g, &out
}

func TestProcessCreatesFile(t *testing.T) {
	model := &stubModel{responses: []string{
		`{"actions": [
			{"type": "create", "target": "hello.py", "content": "print('hi')\n"},
			{"type": "message", "target": "", "content": "Created hello.py"}
		]}`,
	}}
	a, g, out := newTestAgent(t, "code", model)

	if err := a.Process(context.Background(), "make a hello script"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, err := g.ReadFile("hello.py", 0)
	if err != nil || got != "print('hi')\n" {
		t.Errorf("hello.py = %q, err = %v", got, err)
	}
	if !strings.Contains(out.String(), "Created hello.py") {
		t.Errorf("message not surfaced:\n%s", out.String())
	}
	if a.conv.Len() != 1 {
		t.Errorf("conversation turns = %d, want 1", a.conv.Len())
	}
}

func TestProcessAutoDebugFixesFailure(t *testing.T) {
	model := &stubModel{responses: []string{
		`{"actions": [{"type": "run", "target": "ls /no/such/dir/at/all", "content": "list files"}]}`,
		`{"actions": [{"type": "run", "target": "echo fixed", "content": "verify"}]}`,
	}}
	a, _, out := newTestAgent(t, "code", model)

	if err := a.Process(context.Background(), "list the files"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if model.calls != 2 {
		t.Fatalf("model calls = %d, want 2 (initial + one debug iteration)", model.calls)
	}
	if !strings.Contains(model.prompts[1], "ls /no/such/dir/at/all") {
		t.Error("debug prompt missing the failed command")
	}
	if !strings.Contains(out.String(), "All commands passing") {
		t.Errorf("debug loop did not report success:\n%s", out.String())
	}
}

func TestProcessNoAutoDebugInTestMode(t *testing.T) {
	model := &stubModel{responses: []string{
		`{"actions": [{"type": "run", "target": "ls /no/such/dir/at/all", "content": "x"}]}`,
	}}
	a, _, _ := newTestAgent(t, "test", model)

	if err := a.Process(context.Background(), "run something"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, debug loop should not run outside code/craft", model.calls)
	}
}

func TestProcessDebugBudgetExhausted(t *testing.T) {
	failing := `{"actions": [{"type": "run", "target": "ls /still/broken", "content": "x"}]}`
	model := &stubModel{responses: []string{failing, failing, failing, failing}}
	a, _, out := newTestAgent(t, "code", model)

	if err := a.Process(context.Background(), "do it"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	// Initial call plus MaxDebugIterations debug calls.
	if model.calls != 3 {
		t.Errorf("model calls = %d, want 3", model.calls)
	}
	if !strings.Contains(out.String(), "Debug budget exhausted") {
		t.Errorf("missing exhaustion notice:\n%s", out.String())
	}
}

func TestBuildPromptOrdering(t *testing.T) {
	pc := ProjectContext{
		Snapshot: workspace.Snapshot{Files: []workspace.FileEntry{
			{Path: "main.go", Content: "package main"},
		}},
		Designs: []workspace.FileEntry{{Path: "app.design", Content: "# Plan"}},
	}
	conv := &Conversation{}
	conv.Add("first question", "first answer")

	got := BuildPrompt("BASE PROMPT", "design", pc, "search hits here", conv, 5, "the request")

	order := []string{"BASE PROMPT", "PROJECT CONTEXT:", "main.go", "DESIGN DOCUMENT(S):", "# Plan", "SEARCH RESULTS:", "search hits here", "CONVERSATION HISTORY:", "first question", "CURRENT REQUEST:", "the request", "Respond with JSON actions only."}
	last := -1
	for _, want := range order {
		idx := strings.Index(got, want)
		if idx < 0 {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
		if idx < last {
			t.Errorf("%q appears out of order", want)
		}
		last = idx
	}
}

func TestBuildPromptCraftBanner(t *testing.T) {
	pc := ProjectContext{Designs: []workspace.FileEntry{{Path: "x.design", Content: "d"}}}
	got := BuildPrompt("base", "craft", pc, "", &Conversation{}, 5, "build it")
	if !strings.Contains(got, "PRIMARY INSTRUCTION: IMPLEMENT THE DESIGN(S) BELOW") {
		t.Error("craft prompt missing the implementation banner")
	}
}

func TestLoadContextCraftExplicitDesigns(t *testing.T) {
	model := &stubModel{}
	a, g, _ := newTestAgent(t, "craft", model)
	if err := g.WriteFile("chosen.design", "# The One"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := g.WriteFile("other.design", "# Ignored"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	a.designFiles = []string{"chosen.design"}

	pc, err := a.loadContext()
	if err != nil {
		t.Fatalf("loadContext: %v", err)
	}
	if len(pc.Designs) != 1 || pc.Designs[0].Path != "chosen.design" {
		t.Errorf("designs = %+v, want only chosen.design", pc.Designs)
	}
}

func TestLoadContextCodeModeDropsDesigns(t *testing.T) {
	model := &stubModel{}
	a, g, _ := newTestAgent(t, "code", model)
	if err := g.WriteFile("app.design", "# Plan"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	pc, err := a.loadContext()
	if err != nil {
		t.Fatalf("loadContext: %v", err)
	}
	if len(pc.Designs) != 0 {
		t.Errorf("code mode should not carry design documents, got %+v", pc.Designs)
	}
}

func TestProcessDesignModeOnlyWritesDesignDocs(t *testing.T) {
	model := &stubModel{responses: []string{
		`{"actions": [
			{"type": "create", "target": "app.design", "content": "# Design"},
			{"type": "create", "target": "main.go", "content": "package main"},
			{"type": "run", "target": "echo hi", "content": "test"}
		]}`,
	}}
	a, g, out := newTestAgent(t, "design", model)

	if err := a.Process(context.Background(), "design an app"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !g.Exists("app.design") {
		t.Error("design document not written")
	}
	if g.Exists("main.go") {
		t.Error("design mode wrote a source file")
	}
	if !strings.Contains(out.String(), "skipping") {
		t.Errorf("dropped actions not reported:\n%s", out.String())
	}
}

func TestProcessConsumesPendingSearch(t *testing.T) {
	ok := `{"actions": [{"type": "message", "content": "ok"}]}`
	model := &stubModel{responses: []string{ok, ok}}
	a, _, _ := newTestAgent(t, "code", model)
	a.pendingSearch = "SEARCH HIT BLOCK"

	if err := a.Process(context.Background(), "first"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(model.prompts[0], "SEARCH HIT BLOCK") {
		t.Error("first prompt missing the search results")
	}
	if err := a.Process(context.Background(), "second"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Contains(model.prompts[1], "SEARCH HIT BLOCK") {
		t.Error("search results should not leak into later turns")
	}
}

func TestProcessCraftInjectsStructure(t *testing.T) {
	model := &stubModel{responses: []string{
		`{"actions": [{"type": "message", "content": "starting"}]}`,
	}}
	a, g, _ := newTestAgent(t, "craft", model)
	if err := g.WriteFile("plan.design", "# Plan"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := a.Process(context.Background(), "build a python tool called Sorter"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	p := model.prompts[0]
	if !strings.Contains(p, "PROJECT STRUCTURE ASSUMPTIONS") {
		t.Error("craft prompt missing structure assumptions")
	}
	if !strings.Contains(p, "Sorter") {
		t.Error("craft prompt missing extracted project name")
	}
}

func TestRunPipedNonCodeModeIsOneRequest(t *testing.T) {
	ok := `{"actions": [{"type": "message", "content": "ack"}]}`
	model := &stubModel{responses: []string{ok, ok}}
	a, _, _ := newTestAgent(t, "debug", model)
	a.in = strings.NewReader("the build fails with:\nundefined: Foo\nin main.go\n")

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if model.calls != 1 {
		t.Fatalf("model calls = %d, want the whole input as one request", model.calls)
	}
	if !strings.Contains(model.prompts[0], "undefined: Foo") || !strings.Contains(model.prompts[0], "in main.go") {
		t.Error("prompt missing lines from the piped request")
	}
}

func TestRunPipedCodeModeIsPerLine(t *testing.T) {
	ok := `{"actions": [{"type": "message", "content": "ack"}]}`
	model := &stubModel{responses: []string{ok, ok}}
	a, _, _ := newTestAgent(t, "code", model)
	a.in = strings.NewReader("first request\nsecond request\n")

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want one per line", model.calls)
	}
}

func TestConversationRecent(t *testing.T) {
	c := &Conversation{}
	for i := 0; i < 8; i++ {
		c.Add("u", "a")
	}
	if got := len(c.Recent(5)); got != 5 {
		t.Errorf("Recent(5) = %d entries", got)
	}
	if got := len(c.Recent(0)); got != 8 {
		t.Errorf("Recent(0) = %d, want all", got)
	}
}
