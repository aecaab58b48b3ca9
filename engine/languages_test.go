package engine

import (
	"errors"
	"testing"
)

func TestPrecheck(t *testing.T) {
	tests := []struct {
		lang, code string
		want       error
	}{
		{"python", "print(1)", nil},
		{"bash", "echo hi", nil},
		{"json", `{"a": 1}`, ErrUnknownLanguage},
		{"python", "   \n", ErrEmptyCode},
		{"python", "print('\xff')", ErrInvalidEncoding},
		{"shell", "echo \x00", ErrInvalidEncoding},
	}
	for _, tt := range tests {
		err := Precheck(tt.lang, tt.code)
		if tt.want == nil {
			if err != nil {
				t.Errorf("Precheck(%q, %q): unexpected error %v", tt.lang, tt.code, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("Precheck(%q, %q) = %v, want %v", tt.lang, tt.code, err, tt.want)
		}
	}
}

func TestRunnable(t *testing.T) {
	for _, lang := range []string{"python", "py", "shell", "bash", "sh", "javascript"} {
		if !Runnable(lang) {
			t.Errorf("expected %q to be runnable", lang)
		}
	}
	for _, lang := range []string{"", "json", "yaml", "text"} {
		if Runnable(lang) {
			t.Errorf("expected %q not to be runnable", lang)
		}
	}
}
