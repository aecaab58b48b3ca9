package engine

import (
	"time"

	"github.com/martinemde/oxbot/llm"
)

// FragmentKind identifies the shape of a Fragment.
type FragmentKind string

const (
	FragmentMessage   FragmentKind = "message"
	FragmentCode      FragmentKind = "code"
	FragmentExecuting FragmentKind = "executing"
	FragmentOutput    FragmentKind = "output"
	FragmentEnd       FragmentKind = "end"
	FragmentError     FragmentKind = "error"
)

// Fragment is one unit of engine output.
type Fragment struct {
	Kind     FragmentKind `json:"kind"`
	Text     string       `json:"text,omitempty"`
	Language string       `json:"language,omitempty"`
	Code     string       `json:"code,omitempty"`
	// Stream is "stdout" or "stderr" for output fragments.
	Stream string `json:"stream,omitempty"`
	// ExitCode is set on the end fragment of an execution.
	ExitCode int        `json:"exit_code,omitempty"`
	TimedOut bool       `json:"timed_out,omitempty"`
	Usage    *llm.Usage `json:"usage,omitempty"`
	Err      error      `json:"-"`
}

// Request is the input to Respond.
type Request struct {
	Messages      []llm.Message
	Model         string
	ContextWindow int
	MaxTokens     int
	Temperature   *float64
}

// Capabilities are the optional powers granted to executed code.
type Capabilities struct {
	AutoRun     bool `json:"auto_run" yaml:"auto_run"`
	ComputerUse bool `json:"computer_use" yaml:"computer_use"`
}

// ExecRequest is the input to Execute.
type ExecRequest struct {
	Language     string
	Code         string
	WorkDir      string
	Capabilities Capabilities
	Timeout      time.Duration
}
