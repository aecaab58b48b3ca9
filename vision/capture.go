package vision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrCaptureUnavailable means no screenshot can be taken on this machine.
var ErrCaptureUnavailable = errors.New("vision: screen capture unavailable")

// CaptureSource produces a screenshot as encoded image bytes.
type CaptureSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

// CaptureFunc adapts a function to CaptureSource.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// Capture calls f.
func (f CaptureFunc) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }

// captureTool describes a command-line screenshot utility.
type captureTool struct {
	name string
	args func(path string) []string
}

// captureTools are tried in order.
var captureTools = []captureTool{
	{name: "screencapture", args: func(p string) []string { return []string{"-x", "-t", "png", p} }},
	{name: "gnome-screenshot", args: func(p string) []string { return []string{"-f", p} }},
	{name: "scrot", args: func(p string) []string { return []string{"-o", p} }},
	{name: "import", args: func(p string) []string { return []string{"-window", "root", p} }},
}

// CommandSource captures the screen with a platform screenshot command.
type CommandSource struct {
	tool captureTool
	path string
}

// DetectCommandSource returns a CommandSource for the first screenshot tool
// found on PATH, or ErrCaptureUnavailable.
func DetectCommandSource() (*CommandSource, error) {
	for _, tool := range captureTools {
		if path, err := exec.LookPath(tool.name); err == nil {
			return &CommandSource{tool: tool, path: path}, nil
		}
	}
	return nil, ErrCaptureUnavailable
}

// Name returns the capture tool in use.
func (s *CommandSource) Name() string { return s.tool.name }

// Capture runs the tool into a temporary PNG and returns its bytes.
func (s *CommandSource) Capture(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "oxbot-capture-")
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "screen.png")
	cmd := exec.CommandContext(ctx, s.path, s.tool.args(out)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		// Headless sessions fail here; treat as no display.
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrCaptureUnavailable, s.tool.name, err, output)
	}
	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("%w: %s produced no image", ErrCaptureUnavailable, s.tool.name)
	}
	return data, nil
}

// FileSource reads a screenshot from a file on every capture.
type FileSource struct {
	Path string
}

// Capture reads the file. A missing file is reported as ErrCaptureUnavailable.
func (s FileSource) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrCaptureUnavailable, s.Path)
	}
	return data, err
}

// unavailableSource always reports ErrCaptureUnavailable.
type unavailableSource struct{}

func (unavailableSource) Capture(context.Context) ([]byte, error) { return nil, ErrCaptureUnavailable }
