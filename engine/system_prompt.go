package engine

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// SafetyMarker opens the safety block. BuildSystemPrompt appends the block
// only when the marker is absent.
const SafetyMarker = "SAFETY RULES:"

// DefaultSystemPrompt is the base instruction for the code interpreter.
const DefaultSystemPrompt = `You are oxbot, a programmer that completes tasks by writing and running code on the user's machine.
To run code, write a single fenced code block with a language tag (python, shell, javascript, ruby or applescript).
The user reviews every block before it runs. After it runs you will see its output and can continue.
Run one block at a time and keep each block small. When the task is done, answer in plain prose without code.`

const safetyRules = SafetyMarker + `
1. NEVER delete files or folders without the user's explicit confirmation.
2. NEVER format disks or partitions.
3. NEVER change critical system settings.
4. Before running a potentially destructive command, EXPLAIN what it will do.
5. Work ONLY inside the working directory unless told otherwise.
6. If you are unsure about an action, ASK before proceeding.`

const computerUseRules = `COMPUTER USE:
You can control the keyboard and mouse. OXBOT_COMPUTER_USE=1 is set in the environment of every block you run.
- ALWAYS explain what you are about to do before moving the mouse or typing.
- Move slowly (at least 0.3s per movement) so the user can follow.
- Take a screenshot to understand the screen before acting.
- Prefer keyboard shortcuts for quick operations.`

// Environment describes the machine for the prompt's environment block.
type Environment struct {
	WorkDir     string
	Model       string
	ComputerUse bool
	// Now is injectable for tests; zero means time.Now.
	Now time.Time
}

// BuildSystemPrompt composes the full system prompt from base. Reapplying it
// to its own output does not duplicate the safety rules.
func BuildSystemPrompt(base string, env Environment) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}
	// Strip anything a previous build appended so rebuilding is stable.
	if i := strings.Index(base, SafetyMarker); i >= 0 {
		base = strings.TrimRight(base[:i], "\n ")
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	sb.WriteString(safetyRules)
	if env.ComputerUse {
		sb.WriteString("\n\n")
		sb.WriteString(computerUseRules)
	}
	sb.WriteString("\n\n")
	sb.WriteString(environmentContext(env))
	return sb.String()
}

func environmentContext(env Environment) string {
	now := env.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	if env.WorkDir != "" {
		fmt.Fprintf(&sb, "Working directory: %s\n", env.WorkDir)
		if branch := gitBranch(env.WorkDir); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", now.Format("2006-01-02"))
	if env.Model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", env.Model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
