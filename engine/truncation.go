package engine

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of oversized output survives.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// OutputLimits bounds execution output before it is written to history.
type OutputLimits struct {
	MaxChars int            `yaml:"max_chars" json:"max_chars"`
	MaxLines int            `yaml:"max_lines" json:"max_lines"`
	Mode     TruncationMode `yaml:"mode" json:"mode"`
}

// DefaultOutputLimits keeps 30000 characters and 256 lines, split between
// the head and the tail of the output.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{MaxChars: 30000, MaxLines: 256, Mode: TruncateHeadTail}
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: Output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Output was truncated. %d characters were removed from the middle. "+
			"If you need specific parts, re-run with more targeted output.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	if maxLines <= 0 {
		return output
	}
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// Truncate runs the character pass first, which handles pathological single
// lines, then the line pass for readability.
func (l OutputLimits) Truncate(output string) string {
	return TruncateLines(TruncateOutput(output, l.MaxChars, l.Mode), l.MaxLines)
}
