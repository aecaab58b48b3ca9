package engine

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireBin(t *testing.T, bin string) {
	t.Helper()
	if _, err := exec.LookPath(bin); err != nil {
		t.Skipf("%s not available: %v", bin, err)
	}
}

func collect(t *testing.T, ch <-chan Fragment) (string, Fragment) {
	t.Helper()
	var sb strings.Builder
	var end Fragment
	for f := range ch {
		switch f.Kind {
		case FragmentOutput:
			sb.WriteString(f.Text)
		case FragmentEnd:
			end = f
		}
	}
	return sb.String(), end
}

func TestExecuteStreamsOutput(t *testing.T) {
	requireBin(t, "sh")
	ch, err := Execute(context.Background(), ExecRequest{
		Language: "sh",
		Code:     "echo one; echo two; echo err >&2; exit 3",
		WorkDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, end := collect(t, ch)
	for _, want := range []string{"one\n", "two\n", "err\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got %q", want, out)
		}
	}
	if end.Kind != FragmentEnd {
		t.Fatal("expected an end fragment")
	}
	if end.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", end.ExitCode)
	}
}

func TestExecuteUsesWorkDir(t *testing.T) {
	requireBin(t, "sh")
	dir := t.TempDir()
	ch, err := Execute(context.Background(), ExecRequest{Language: "sh", Code: "pwd", WorkDir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, _ := collect(t, ch)
	if !strings.Contains(out, dir) {
		t.Errorf("expected pwd %q in output %q", dir, out)
	}
}

func TestExecuteCapabilityEnvironment(t *testing.T) {
	requireBin(t, "sh")
	t.Setenv("OXBOT_COMPUTER_USE", "1")
	t.Setenv("MY_SERVICE_API_KEY", "secret-value")

	run := func(caps Capabilities) string {
		ch, err := Execute(context.Background(), ExecRequest{
			Language:     "sh",
			Code:         `echo "cu=${OXBOT_COMPUTER_USE:-0} key=${MY_SERVICE_API_KEY:-none}"`,
			Capabilities: caps,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out, _ := collect(t, ch)
		return strings.TrimSpace(out)
	}

	if got := run(Capabilities{}); got != "cu=0 key=none" {
		t.Errorf("inherited capability or secret leaked: %q", got)
	}
	if got := run(Capabilities{ComputerUse: true}); got != "cu=1 key=none" {
		t.Errorf("expected computer use flag, got %q", got)
	}
}

func TestExecuteTimeout(t *testing.T) {
	requireBin(t, "sh")
	ch, err := Execute(context.Background(), ExecRequest{Language: "sh", Code: "sleep 5", Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, end := collect(t, ch)
	if !end.TimedOut {
		t.Errorf("expected timeout, got %+v", end)
	}
}

func TestExecuteCancelKillsProcess(t *testing.T) {
	requireBin(t, "sh")
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := Execute(ctx, ExecRequest{Language: "sh", Code: "echo started; sleep 30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := <-ch
	if first.Text != "started\n" {
		t.Fatalf("expected first line, got %+v", first)
	}

	start := time.Now()
	cancel()
	for range ch {
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestExecuteRejectsUnknownLanguage(t *testing.T) {
	_, err := Execute(context.Background(), ExecRequest{Language: "cobol", Code: "DISPLAY 'HI'."})
	if !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("expected ErrUnknownLanguage, got %v", err)
	}
}
