package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// DefaultExecTimeout bounds a single execution when the request sets none.
const DefaultExecTimeout = 2 * time.Minute

// sensitiveEnvPatterns are case-insensitive suffixes for environment variables
// that are withheld from executed code.
var sensitiveEnvPatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// safeEnvVars are always passed through.
var safeEnvVars = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true,
	"LANG": true, "TERM": true, "TMPDIR": true, "DISPLAY": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "XDG_CACHE_HOME": true,
	"XDG_RUNTIME_DIR": true, "WAYLAND_DISPLAY": true,
}

func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitiveEnvPatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}

// executionEnv returns the filtered process environment plus the variables
// that announce granted capabilities to the child.
func executionEnv(caps Capabilities) []string {
	var env []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(name, "OXBOT_") {
			continue
		}
		if safeEnvVars[name] || !isSensitiveEnvVar(name) {
			env = append(env, kv)
		}
	}
	env = append(env, "PYTHONUNBUFFERED=1")
	if caps.ComputerUse {
		env = append(env, "OXBOT_COMPUTER_USE=1")
	}
	if caps.AutoRun {
		env = append(env, "OXBOT_AUTO_RUN=1")
	}
	return env
}

// command builds the child process for req without starting it.
func command(ctx context.Context, req ExecRequest) (*exec.Cmd, error) {
	lang, ok := languages[NormalizeLanguage(req.Language)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, req.Language)
	}
	bin, err := exec.LookPath(lang.bin)
	if err != nil {
		return nil, fmt.Errorf("engine: %s interpreter %q not found: %w", lang.name, lang.bin, err)
	}

	args := append([]string(nil), lang.args...)
	if !lang.stdin {
		args = append(args, req.Code)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if lang.stdin {
		cmd.Stdin = strings.NewReader(req.Code)
	}
	cmd.Dir = req.WorkDir
	cmd.Env = executionEnv(req.Capabilities)

	// Own process group so cancellation reaches grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	return cmd, nil
}

// Execute runs req and streams its output. The returned channel yields
// output fragments in arrival order and closes after a single end fragment.
// Errors that prevent the process from starting are returned directly.
func Execute(ctx context.Context, req ExecRequest) (<-chan Fragment, error) {
	if err := Precheck(req.Language, req.Code); err != nil {
		return nil, err
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)

	cmd, err := command(runCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("engine: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("engine: start %s: %w", req.Language, err)
	}

	out := make(chan Fragment, 64)
	go func() {
		defer close(out)
		defer cancel()

		lines := make(chan Fragment, 64)
		var wg sync.WaitGroup
		wg.Add(2)
		go pump(stdout, "stdout", lines, &wg)
		go pump(stderr, "stderr", lines, &wg)
		go func() {
			wg.Wait()
			close(lines)
		}()

		// Keep draining after the consumer leaves so the pipes never block
		// the child.
		consumerGone := false
		for f := range lines {
			if consumerGone {
				continue
			}
			select {
			case out <- f:
			case <-ctx.Done():
				consumerGone = true
			}
		}

		end := Fragment{Kind: FragmentEnd}
		waitErr := cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			end.TimedOut = true
			end.ExitCode = -1
			end.Text = fmt.Sprintf("execution timed out after %s", timeout)
		case ctx.Err() != nil:
			end.ExitCode = -1
			end.Err = ctx.Err()
		case errors.As(waitErr, &exitErr):
			end.ExitCode = exitErr.ExitCode()
		default:
			end.ExitCode = -1
			end.Err = waitErr
		}
		if !consumerGone {
			select {
			case out <- end:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func pump(r io.Reader, stream string, lines chan<- Fragment, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines <- Fragment{Kind: FragmentOutput, Stream: stream, Text: scanner.Text() + "\n"}
	}
	// A line over the buffer limit stops the scanner; keep the pipe moving.
	_, _ = io.Copy(io.Discard, r)
}
