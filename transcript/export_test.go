package transcript

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"md", FormatMarkdown, true},
		{"Markdown", FormatMarkdown, true},
		{"txt", FormatText, true},
		{" text ", FormatText, true},
		{"pdf", "", false},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestExportFileName(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	if got := ExportFileName(FormatMarkdown, now); got != "chat_2026-01-02_15-04-05.md" {
		t.Errorf("got %q", got)
	}
	if got := ExportFileName(FormatText, now); got != "chat_2026-01-02_15-04-05.txt" {
		t.Errorf("got %q", got)
	}
}

func TestExportMarkdown(t *testing.T) {
	s := openTestStore(t)
	recordConversation(t, s, "s1")

	var buf bytes.Buffer
	if err := s.Export(context.Background(), &buf, "s1", FormatMarkdown); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"# oxbot Chat History",
		"**Title:** what is in this directory?",
		"### User\n\nwhat is in   this directory?",
		"### Assistant\n\nLet me look.",
		"### Code (shell)\n\n```shell\nls\n```",
		"### Console Output\n\n```\na.txt\nb.txt\n```",
		"**Tokens:** 30 in, 7 out",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown export missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "helpful assistant") {
		t.Error("system prompt should not be exported")
	}
}

func TestExportText(t *testing.T) {
	s := openTestStore(t)
	recordConversation(t, s, "s1")

	var buf bytes.Buffer
	if err := s.Export(context.Background(), &buf, "s1", FormatText); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"oxbot Chat History",
		"[USER]\nwhat is in   this directory?",
		"[ASSISTANT]\nTwo files.",
		"[CODE shell]\nls",
		"[OUTPUT CONSOLE]\na.txt\nb.txt",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text export missing %q\n%s", want, out)
		}
	}
}

func TestExportUnknownSession(t *testing.T) {
	s := openTestStore(t)
	var buf bytes.Buffer
	if err := s.Export(context.Background(), &buf, "nope", FormatText); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
