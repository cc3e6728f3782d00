// Package action turns model responses into typed file and shell
// operations, gates them through a safety policy, and applies them to
// the workspace.
package action

import (
	"errors"

	"forge/internal/shell"
)

// Kind identifies what an action does to the workspace.
type Kind string

const (
	// KindCreate writes a new file.
	KindCreate Kind = "create"
	// KindEdit replaces the contents of an existing file.
	KindEdit Kind = "edit"
	// KindDelete removes a file after confirmation.
	KindDelete Kind = "delete"
	// KindRun executes a shell command.
	KindRun Kind = "run"
	// KindMessage carries explanatory text for the user.
	KindMessage Kind = "message"
)

// Action is one operation requested by the model. For run actions
// Target holds the command and Content describes its purpose; for file
// actions Target is the path and Content the file body.
type Action struct {
	Kind    Kind   `json:"type"`
	Target  string `json:"target"`
	Content string `json:"content"`
}

// Response is the decoded model reply. Warnings record actions that
// were dropped during decoding (unknown type, missing fields).
type Response struct {
	Actions  []Action `json:"actions"`
	Warnings []string `json:"-"`
}

// Sentinel errors the agent branches on.
var (
	ErrExists   = errors.New("file already exists")
	ErrNotFound = errors.New("file does not exist")
	ErrDeclined = errors.New("declined by user")
	ErrBlocked  = errors.New("blocked by safety policy")
)

// Outcome reports the result of applying one action.
type Outcome struct {
	Action Action
	Err    error
	Detail string
	Diff   string
	Shell  *shell.Result
}

// Ok reports whether the action applied successfully.
func (o Outcome) Ok() bool {
	return o.Err == nil
}

// Failed filters outcomes down to the ones that went wrong, which is
// what the debug loop feeds back to the model.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if !o.Ok() {
			failed = append(failed, o)
		}
	}
	return failed
}
