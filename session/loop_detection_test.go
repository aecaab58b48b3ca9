package session

import "testing"

func codeTurn(code string) Turn {
	return NewAssistantTurn([]Segment{{Kind: SegmentCode, Language: "python", Text: code}})
}

func TestDetectLoop(t *testing.T) {
	tests := []struct {
		name    string
		history []Turn
		window  int
		want    bool
	}{
		{
			name:    "three identical proposals",
			history: []Turn{codeTurn("a"), NewOutputTurn("python", "x"), codeTurn("a"), codeTurn("a")},
			window:  3,
			want:    true,
		},
		{
			name:    "too few proposals",
			history: []Turn{codeTurn("a"), codeTurn("a")},
			window:  3,
			want:    false,
		},
		{
			name:    "distinct proposals",
			history: []Turn{codeTurn("a"), codeTurn("b"), codeTurn("c")},
			window:  3,
			want:    false,
		},
		{
			name:    "alternating pattern",
			history: []Turn{codeTurn("a"), codeTurn("b"), codeTurn("a"), codeTurn("b")},
			window:  4,
			want:    true,
		},
		{
			name:    "whitespace differences ignored",
			history: []Turn{codeTurn("a\n"), codeTurn(" a"), codeTurn("a")},
			window:  3,
			want:    true,
		},
		{
			name:    "only the latest window counts",
			history: []Turn{codeTurn("a"), codeTurn("a"), codeTurn("b"), codeTurn("c"), codeTurn("d")},
			window:  3,
			want:    false,
		},
		{
			name:    "window below two disables detection",
			history: []Turn{codeTurn("a")},
			window:  1,
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLoop(tt.history, tt.window); got != tt.want {
				t.Errorf("DetectLoop() = %v, want %v", got, tt.want)
			}
		})
	}
}
