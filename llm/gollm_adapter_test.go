package llm

import (
	"errors"
	"testing"
)

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }
func errForMsg(msg string) error     { return &simpleError{msg: msg} }

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}

	tests := []struct {
		errMsg string
		check  func(error) bool
		want   string
	}{
		{"401 Unauthorized", func(e error) bool { _, ok := e.(*AuthenticationError); return ok }, "AuthenticationError"},
		{"invalid api key", func(e error) bool { _, ok := e.(*AuthenticationError); return ok }, "AuthenticationError"},
		{"403 Forbidden", func(e error) bool { _, ok := e.(*AccessDeniedError); return ok }, "AccessDeniedError"},
		{"404 not found", func(e error) bool { _, ok := e.(*NotFoundError); return ok }, "NotFoundError"},
		{"429 rate limit exceeded", func(e error) bool { _, ok := e.(*RateLimitError); return ok }, "RateLimitError"},
		{"context length exceeded", func(e error) bool { _, ok := e.(*ContextLengthError); return ok }, "ContextLengthError"},
		{"500 internal server error", func(e error) bool { _, ok := e.(*ServerError); return ok }, "ServerError"},
		{"timeout waiting for response", func(e error) bool { _, ok := e.(*RequestTimeoutError); return ok }, "RequestTimeoutError"},
		{"dial tcp: connection refused", func(e error) bool { _, ok := e.(*NetworkError); return ok }, "NetworkError"},
		{"model does not support image input", func(e error) bool { _, ok := e.(*CapabilityError); return ok }, "CapabilityError"},
		{"something unknown", func(e error) bool { _, ok := e.(*ProviderError); return ok }, "ProviderError"},
	}

	for _, tt := range tests {
		err := adapter.translateError(errForMsg(tt.errMsg))
		if err == nil {
			t.Errorf("expected non-nil error for %q", tt.errMsg)
			continue
		}
		if !tt.check(err) {
			t.Errorf("for %q: expected %s, got %T", tt.errMsg, tt.want, err)
		}
	}
}

func TestGollmAdapterRejectsImages(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}
	msg := UserMessage("what is on screen?")
	msg.Content = append(msg.Content, ImageDataPart([]byte{0xff, 0xd8}, "image/jpeg", "auto"))

	_, err := adapter.translateRequest(Request{Messages: []Message{msg}})
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if capErr.Capability != "image" {
		t.Errorf("expected image capability, got %q", capErr.Capability)
	}
}

func TestGollmAdapterTranslateRequest(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}
	prompt, err := adapter.translateRequest(Request{Messages: []Message{
		SystemMessage("be brief"),
		UserMessage("hi"),
		AssistantMessage("hello"),
		UserMessage("list files"),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt == nil {
		t.Fatal("expected a prompt")
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{
		Messages: []Message{
			UserMessage("Hello world, this is a test message."),
		},
	}
	tokens := estimateTokens(req)
	if tokens <= 0 {
		t.Errorf("expected positive token estimate, got %d", tokens)
	}
}

func TestEstimateTokensEmpty(t *testing.T) {
	req := Request{Messages: []Message{}}
	tokens := estimateTokens(req)
	if tokens != 10 {
		t.Errorf("expected default token estimate of 10, got %d", tokens)
	}
}
