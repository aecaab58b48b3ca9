package llm

import (
	"strings"
	"testing"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		msg  Message
		role Role
		text string
	}{
		{SystemMessage("You are helpful."), RoleSystem, "You are helpful."},
		{UserMessage("Hello"), RoleUser, "Hello"},
		{AssistantMessage("Hi there"), RoleAssistant, "Hi there"},
	}
	for _, tt := range tests {
		if tt.msg.Role != tt.role {
			t.Errorf("expected role %q, got %q", tt.role, tt.msg.Role)
		}
		if got := tt.msg.TextContent(); got != tt.text {
			t.Errorf("expected text %q, got %q", tt.text, got)
		}
	}
}

func TestMessageTextContentSkipsImages(t *testing.T) {
	msg := Message{Role: RoleUser, Content: []ContentPart{
		TextPart("look "),
		ImageURLPart("https://example.com/a.png", "image/png", "auto"),
		TextPart("here"),
	}}
	if got := msg.TextContent(); got != "look here" {
		t.Errorf("expected %q, got %q", "look here", got)
	}
	if !msg.HasImage() {
		t.Error("expected HasImage to be true")
	}
	if UserMessage("plain").HasImage() {
		t.Error("plain text message should not report an image")
	}
}

func TestMessageCloneIsIndependent(t *testing.T) {
	orig := UserMessage("hello")
	clone := orig.Clone()
	clone.Content = append(clone.Content, ImageDataPart([]byte{1, 2, 3}, "", ""))
	clone.Content[0].Text = "changed"

	if len(orig.Content) != 1 {
		t.Errorf("expected original to keep 1 part, got %d", len(orig.Content))
	}
	if orig.Content[0].Text != "hello" {
		t.Errorf("expected original text to be unchanged, got %q", orig.Content[0].Text)
	}
}

func TestImageDataURL(t *testing.T) {
	img := ImageData{Data: []byte("abc"), MediaType: "image/jpeg"}
	if got := img.DataURL(); got != "data:image/jpeg;base64,YWJj" {
		t.Errorf("unexpected data URL %q", got)
	}

	img = ImageData{URL: "https://example.com/x.png"}
	if got := img.DataURL(); got != "https://example.com/x.png" {
		t.Errorf("expected URL passthrough, got %q", got)
	}

	part := ImageDataPart([]byte("abc"), "", "low")
	if !strings.HasPrefix(part.Image.DataURL(), "data:image/png;base64,") {
		t.Errorf("expected png default, got %q", part.Image.DataURL())
	}
}

func TestRequestLastUserIndex(t *testing.T) {
	req := Request{Messages: []Message{
		SystemMessage("sys"),
		UserMessage("one"),
		AssistantMessage("reply"),
		UserMessage("two"),
		AssistantMessage("reply"),
	}}
	if got := req.LastUserIndex(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
	if got := (Request{Messages: []Message{SystemMessage("s")}}).LastUserIndex(); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, Requests: 1}
	b := Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20, Requests: 1}
	sum := a.Add(b)
	if sum.InputTokens != 15 || sum.OutputTokens != 35 || sum.TotalTokens != 50 || sum.Requests != 2 {
		t.Errorf("unexpected sum %+v", sum)
	}
}
