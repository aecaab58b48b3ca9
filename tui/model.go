// Package tui is a terminal front end for a session.Coordinator. It polls
// the coordinator's event queue on a timer and never blocks on it.
package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/martinemde/oxbot/engine"
	"github.com/martinemde/oxbot/health"
	"github.com/martinemde/oxbot/llm"
	"github.com/martinemde/oxbot/session"
)

// PollInterval is how often the model drains the event queue.
const PollInterval = 100 * time.Millisecond

// Session is the part of session.Coordinator the TUI drives.
type Session interface {
	Submit(text string) error
	PollEvents() []session.Event
	ResolveApproval(d session.Decision) error
	Pending() (session.PendingApproval, bool)
	Cancel()
	Busy() bool
	Usage() llm.Usage
	NewConversation() error
	SetAutoRun(on bool)
	Capabilities() engine.Capabilities
	SetWorkingDirectory(dir string) error
	WorkingDirectory() string
}

var _ Session = (*session.Coordinator)(nil)

type lineKind int

const (
	lineUser lineKind = iota
	lineAssistant
	lineCode
	lineOutput
	lineNotice
	lineError
)

type line struct {
	kind lineKind
	lang string
	text string
}

type tickMsg time.Time

// Config carries the optional parts of the model.
type Config struct {
	Title string
	Model string
	// Health reports the endpoint status for the header. May be nil.
	Health func() health.Result
}

// Model is the bubbletea model.
type Model struct {
	sess  Session
	cfg   Config
	theme theme

	input textinput.Model
	view  viewport.Model
	lines []line
	// pending mirrors the coordinator's approval gate, refreshed every tick.
	pending *session.PendingApproval
	busy    bool
	// open is true while the last assistant line still receives deltas.
	open bool

	width  int
	height int
}

// New returns a Model driving sess.
func New(sess Session, cfg Config) Model {
	if cfg.Title == "" {
		cfg.Title = "oxbot"
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask something, or /help"
	ti.CharLimit = 0
	ti.Focus()

	m := Model{
		sess:  sess,
		cfg:   cfg,
		theme: defaultTheme(),
		input: ti,
		view:  viewport.New(80, 20),
	}
	m.input.PromptStyle = m.theme.Input
	return m
}

// Init starts the poll timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), textinput.Blink)
}

func tickCmd() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch t := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = t.Width
		m.height = t.Height
		m.input.Width = max(t.Width-4, 1)
		// Header, blank line, transcript, footer.
		m.view.Width = t.Width
		m.view.Height = max(t.Height-3, 1)
		return m.refresh(), nil
	case tickMsg:
		m = m.applyEvents(m.sess.PollEvents())
		m = m.syncPending()
		return m.refresh(), tickCmd()
	case tea.KeyMsg:
		next, cmd := m.updateKey(t)
		return next.refresh(), cmd
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) syncPending() Model {
	if p, ok := m.sess.Pending(); ok {
		m.pending = &p
	} else {
		m.pending = nil
	}
	return m
}

// refresh re-renders the transcript, following the tail unless the user
// has scrolled up.
func (m Model) refresh() Model {
	follow := m.view.AtBottom()
	m.view.SetContent(m.renderLines())
	if follow {
		m.view.GotoBottom()
	}
	return m
}

func (m Model) updateKey(k tea.KeyMsg) (Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyCtrlC:
		m.sess.Cancel()
		return m, tea.Quit
	case tea.KeyEsc:
		if m.busy {
			m.sess.Cancel()
			m = m.notice("cancelling...")
		}
		return m, nil
	}

	if m.pending != nil {
		return m.updateApproval(k)
	}

	switch k.Type {
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(k)
		return m, cmd
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		m.view.GotoBottom()
		if strings.HasPrefix(text, "/") {
			return m.command(text)
		}
		if err := m.sess.Submit(text); err != nil {
			return m.fail(err), nil
		}
		m.lines = append(m.lines, line{kind: lineUser, text: text})
		m.busy = true
		m.open = false
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(k)
	return m, cmd
}

func (m Model) updateApproval(k tea.KeyMsg) (Model, tea.Cmd) {
	if k.Type != tea.KeyRunes || len(k.Runes) != 1 {
		return m, nil
	}
	var d session.Decision
	switch k.Runes[0] {
	case 'y', 'Y':
		d = session.Approve
	case 'n', 'N':
		d = session.Deny
	default:
		return m, nil
	}
	err := m.sess.ResolveApproval(d)
	m.pending = nil
	// The gate may have closed since the last tick, for example on cancel.
	if err != nil && !errors.Is(err, session.ErrNoPendingApproval) {
		return m.fail(err), nil
	}
	return m, nil
}

// command handles slash commands typed into the input line.
func (m Model) command(text string) (Model, tea.Cmd) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit":
		m.sess.Cancel()
		return m, tea.Quit
	case "new":
		if err := m.sess.NewConversation(); err != nil {
			return m.fail(err), nil
		}
		m.lines = nil
		m.open = false
		return m.notice("started a new conversation"), nil
	case "auto":
		on := !m.sess.Capabilities().AutoRun
		switch arg {
		case "on":
			on = true
		case "off":
			on = false
		}
		m.sess.SetAutoRun(on)
		return m.notice(fmt.Sprintf("auto-run %s", onOff(on))), nil
	case "cd":
		if arg == "" {
			return m.notice("working directory: " + m.sess.WorkingDirectory()), nil
		}
		if err := m.sess.SetWorkingDirectory(arg); err != nil {
			return m.fail(err), nil
		}
		return m.notice("working directory: " + m.sess.WorkingDirectory()), nil
	default:
		return m.notice("commands: /new /auto [on|off] /cd [dir] /quit"), nil
	}
}

func (m Model) applyEvents(events []session.Event) Model {
	for _, ev := range events {
		switch ev.Kind {
		case session.EventTextDelta:
			if m.open && len(m.lines) > 0 {
				m.lines[len(m.lines)-1].text += ev.Text
			} else {
				m.lines = append(m.lines, line{kind: lineAssistant, text: ev.Text})
				m.open = true
			}
			continue
		case session.EventCodeProposed:
			m.lines = append(m.lines, line{kind: lineCode, lang: ev.Language, text: ev.Code})
		case session.EventExecutionApproved:
			m.lines = append(m.lines, line{kind: lineNotice, text: "running " + ev.Language + "..."})
		case session.EventExecutionDenied:
			m.lines = append(m.lines, line{kind: lineNotice, text: "execution declined"})
		case session.EventExecutionOutput:
			if n := len(m.lines); n > 0 && m.lines[n-1].kind == lineOutput {
				m.lines[n-1].text += ev.Text
			} else {
				m.lines = append(m.lines, line{kind: lineOutput, text: ev.Text})
			}
		case session.EventError:
			m.lines = append(m.lines, line{kind: lineError, text: fmt.Sprintf("%s: %s", ev.ErrorKind, ev.Detail)})
		case session.EventNotice:
			m.lines = append(m.lines, line{kind: lineNotice, text: ev.Text})
		case session.EventTurnComplete:
			m.busy = false
		}
		m.open = false
	}
	return m
}

func (m Model) notice(text string) Model {
	m.lines = append(m.lines, line{kind: lineNotice, text: text})
	m.open = false
	return m
}

func (m Model) fail(err error) Model {
	m.lines = append(m.lines, line{kind: lineError, text: err.Error()})
	m.open = false
	return m
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func (m Model) header() string {
	parts := []string{m.theme.Header.Render(m.cfg.Title)}
	if m.cfg.Model != "" {
		parts = append(parts, m.theme.Muted.Render(m.cfg.Model))
	}
	if m.cfg.Health != nil {
		r := m.cfg.Health()
		switch r.Status {
		case health.StatusOnline:
			parts = append(parts, m.theme.Success.Render("online"))
		case health.StatusOffline:
			parts = append(parts, m.theme.Danger.Render("offline"))
		default:
			parts = append(parts, m.theme.Muted.Render("checking"))
		}
	}
	u := m.sess.Usage()
	parts = append(parts, m.theme.Muted.Render(fmt.Sprintf("tokens %d/%d", u.InputTokens, u.OutputTokens)))
	if m.sess.Capabilities().AutoRun {
		parts = append(parts, m.theme.Alert.Render("auto-run"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderLines() string {
	var b strings.Builder
	for _, l := range m.lines {
		switch l.kind {
		case lineUser:
			b.WriteString(m.theme.User.Render("> " + l.text))
		case lineAssistant:
			b.WriteString(m.theme.Assistant.Render(strings.TrimRight(l.text, "\n")))
		case lineCode:
			b.WriteString(m.theme.Muted.Render(l.lang))
			b.WriteString("\n")
			b.WriteString(m.theme.Code.Render(strings.TrimRight(l.text, "\n")))
		case lineOutput:
			b.WriteString(m.theme.Output.Render(strings.TrimRight(l.text, "\n")))
		case lineNotice:
			b.WriteString(m.theme.Muted.Render(l.text))
		case lineError:
			b.WriteString(m.theme.Danger.Render("error: " + l.text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) footer() string {
	if m.pending != nil {
		return m.theme.Prompt.Render(fmt.Sprintf("Run this %s code? [y/n]", m.pending.Language))
	}
	if m.busy {
		return m.theme.Muted.Render("working... (esc to cancel)")
	}
	return m.input.View()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
