package engine

import (
	"strings"
	"testing"
)

func TestTruncateOutputHeadTail(t *testing.T) {
	output := strings.Repeat("a", 100) + strings.Repeat("b", 100)
	got := TruncateOutput(output, 100, TruncateHeadTail)
	if !strings.HasPrefix(got, strings.Repeat("a", 50)) {
		t.Error("expected head to be kept")
	}
	if !strings.HasSuffix(got, strings.Repeat("b", 50)) {
		t.Error("expected tail to be kept")
	}
	if !strings.Contains(got, "100 characters were removed") {
		t.Errorf("expected removal notice, got %q", got)
	}
}

func TestTruncateOutputTail(t *testing.T) {
	output := strings.Repeat("a", 100) + strings.Repeat("b", 50)
	got := TruncateOutput(output, 50, TruncateTail)
	if !strings.HasSuffix(got, strings.Repeat("b", 50)) {
		t.Error("expected tail to be kept")
	}
	if !strings.HasPrefix(got, "[WARNING") {
		t.Errorf("expected leading notice, got %q", got)
	}
}

func TestTruncateOutputUnderLimit(t *testing.T) {
	if got := TruncateOutput("short", 100, TruncateHeadTail); got != "short" {
		t.Errorf("expected unchanged output, got %q", got)
	}
	if got := TruncateOutput("short", 0, TruncateHeadTail); got != "short" {
		t.Errorf("zero limit should disable truncation, got %q", got)
	}
}

func TestTruncateLines(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, string(rune('0'+i)))
	}
	got := TruncateLines(strings.Join(lines, "\n"), 4)
	want := "0\n1\n[... 6 lines omitted ...]\n8\n9"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestOutputLimitsTruncate(t *testing.T) {
	limits := DefaultOutputLimits()
	if limits.MaxChars != 30000 || limits.MaxLines != 256 {
		t.Fatalf("unexpected defaults %+v", limits)
	}
	output := strings.Repeat("line\n", 1000)
	got := limits.Truncate(output)
	if n := strings.Count(got, "\n"); n > 260 {
		t.Errorf("expected about 256 lines, got %d", n)
	}
	if !strings.Contains(got, "lines omitted") {
		t.Error("expected line omission notice")
	}
}
