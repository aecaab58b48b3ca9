package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/martinemde/oxbot/session"
	"github.com/martinemde/oxbot/tui"
)

func runChat(cmd *cobra.Command, flags *globalFlags) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer cancel()

	// The TUI owns the terminal; logs only go to logging.file.
	a, err := openApp(ctx, flags, nil)
	if err != nil {
		return err
	}
	defer a.close()
	a.start(ctx)

	model := tui.New(a.session, tui.Config{
		Model:  a.session.ProviderConfig().Model,
		Health: a.monitor.Last,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func runPrompt(cmd *cobra.Command, flags *globalFlags, args []string, yes bool) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	quiet := *flags
	if quiet.logLevel == "" {
		quiet.logLevel = "warn"
	}
	a, err := openApp(ctx, &quiet, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	if yes {
		a.session.SetAutoRun(true)
	}
	return converse(ctx, a.session, strings.Join(args, " "), yes, cmd.InOrStdin(), cmd.OutOrStdout())
}

// promptSession is the part of the coordinator a headless run needs.
type promptSession interface {
	Submit(text string) error
	Ready() <-chan struct{}
	PollEvents() []session.Event
	ResolveApproval(d session.Decision) error
	Cancel()
}

// converse submits prompt and prints events until the turn completes.
// Approvals are read from in as y/n lines unless autoApprove is set. A
// cancelled ctx cancels the turn and still waits for it to finish.
func converse(ctx context.Context, sess promptSession, prompt string, autoApprove bool, in io.Reader, out io.Writer) error {
	if err := sess.Submit(prompt); err != nil {
		return err
	}
	answers := bufio.NewScanner(in)
	done := ctx.Done()
	var failed error

	for {
		select {
		case <-done:
			sess.Cancel()
			done = nil
		case <-sess.Ready():
		}

		for _, ev := range sess.PollEvents() {
			switch ev.Kind {
			case session.EventTextDelta:
				fmt.Fprint(out, ev.Text)
			case session.EventCodeProposed:
				fmt.Fprintf(out, "\n```%s\n%s\n```\n", ev.Language, strings.TrimRight(ev.Code, "\n"))
			case session.EventExecutionRequested:
				if autoApprove {
					continue
				}
				fmt.Fprintf(out, "Run this %s code? [y/N] ", ev.Language)
				decision := session.Deny
				if answers.Scan() {
					switch strings.ToLower(strings.TrimSpace(answers.Text())) {
					case "y", "yes":
						decision = session.Approve
					}
				}
				if err := sess.ResolveApproval(decision); err != nil && !errors.Is(err, session.ErrNoPendingApproval) {
					return err
				}
			case session.EventExecutionDenied:
				fmt.Fprintln(out, "(not run)")
			case session.EventExecutionOutput:
				fmt.Fprint(out, ev.Text)
			case session.EventNotice:
				fmt.Fprintf(out, "\n[%s]\n", ev.Text)
			case session.EventError:
				failed = fmt.Errorf("%s: %s", ev.ErrorKind, ev.Detail)
				fmt.Fprintf(out, "\nerror: %s\n", failed)
			case session.EventTurnComplete:
				fmt.Fprintln(out)
				if err := ctx.Err(); err != nil {
					return err
				}
				return failed
			}
		}
	}
}
