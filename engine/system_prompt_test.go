package engine

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSystemPromptAddsSafetyOnce(t *testing.T) {
	env := Environment{WorkDir: t.TempDir(), Model: "openai/local", Now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	first := BuildSystemPrompt("", env)
	second := BuildSystemPrompt(first, env)

	if n := strings.Count(second, SafetyMarker); n != 1 {
		t.Errorf("expected one safety block, got %d", n)
	}
	if first != second {
		t.Error("rebuilding a built prompt should be stable")
	}
	if !strings.Contains(first, "Today's date: 2026-03-01") {
		t.Error("expected date in environment block")
	}
	if !strings.Contains(first, "Model: openai/local") {
		t.Error("expected model in environment block")
	}
	if !strings.HasPrefix(first, "You are oxbot") {
		t.Error("expected default prompt for empty base")
	}
}

func TestBuildSystemPromptComputerUse(t *testing.T) {
	without := BuildSystemPrompt("base", Environment{})
	if strings.Contains(without, "COMPUTER USE:") {
		t.Error("computer use guidance should be absent by default")
	}
	with := BuildSystemPrompt(without, Environment{ComputerUse: true})
	if !strings.Contains(with, "COMPUTER USE:") {
		t.Error("expected computer use guidance")
	}
	if !strings.HasPrefix(with, "base") {
		t.Errorf("expected custom base to be kept, got %q", with[:20])
	}
	if strings.Count(with, "<environment>") != 1 {
		t.Error("expected a single environment block")
	}
}
