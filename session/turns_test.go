package session

import (
	"strings"
	"testing"

	"github.com/martinemde/oxbot/llm"
)

func TestTurnText(t *testing.T) {
	turn := NewAssistantTurn([]Segment{
		{Kind: SegmentText, Text: "Let me check."},
		{Kind: SegmentCode, Language: "python", Text: "print(1)"},
	})
	want := "Let me check.\n```python\nprint(1)\n```\n"
	if got := turn.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}

	lang, code, ok := turn.Code()
	if !ok || lang != "python" || code != "print(1)" {
		t.Errorf("Code() = %q, %q, %v", lang, code, ok)
	}
}

func TestOutputTurnRendersAsCodeOutput(t *testing.T) {
	turn := NewOutputTurn("python", "1\n")
	if turn.Role != llm.RoleUser {
		t.Errorf("expected user role, got %s", turn.Role)
	}
	if got := turn.Text(); got != "Code output:\n```\n1\n```\n" {
		t.Errorf("unexpected output rendering %q", got)
	}
}

func TestToMessages(t *testing.T) {
	history := []Turn{
		NewSystemTurn("sys"),
		NewUserTurn("hi"),
		NewAssistantTurn([]Segment{{Kind: SegmentText, Text: "hello"}}),
		NewOutputTurn("sh", "ok"),
		{Role: llm.RoleUser, Segments: []Segment{{Kind: SegmentImage, ImageRef: "shot.jpg"}}},
	}
	msgs := ToMessages(history)
	if len(msgs) != len(history) {
		t.Fatalf("expected %d messages, got %d", len(history), len(msgs))
	}
	roles := []llm.Role{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleUser}
	for i, r := range roles {
		if msgs[i].Role != r {
			t.Errorf("message %d: expected %s, got %s", i, r, msgs[i].Role)
		}
	}
	if !strings.Contains(msgs[4].TextContent(), "shot.jpg") {
		t.Errorf("expected image reference as text, got %q", msgs[4].TextContent())
	}
	for _, m := range msgs {
		if m.HasImage() {
			t.Error("history must never carry inline images")
		}
	}
}

func TestAppendSegmentMergesText(t *testing.T) {
	var segs []Segment
	segs = appendSegment(segs, Segment{Kind: SegmentText, Text: "a"})
	segs = appendSegment(segs, Segment{Kind: SegmentText, Text: "b"})
	segs = appendSegment(segs, Segment{Kind: SegmentCode, Language: "sh", Text: "ls"})
	segs = appendSegment(segs, Segment{Kind: SegmentText, Text: "c"})
	if len(segs) != 3 || segs[0].Text != "ab" {
		t.Fatalf("unexpected segments %+v", segs)
	}
}
