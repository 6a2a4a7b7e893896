// Package ui is the terminal dashboard: one share at a time, started and
// stopped from the keyboard, with status driven by the session event bus.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/security"
)

// Controller is the session surface the dashboard drives.
type Controller interface {
	Start(ctx context.Context) (model.SessionInfo, error)
	Stop() error
	Shutdown(ctx context.Context) error
	Status() model.StatusSnapshot
}

// Options tune the dashboard.
type Options struct {
	RefreshSeconds int
	Redact         bool
	// ShutdownTimeout bounds the stop performed on quit.
	ShutdownTimeout time.Duration
	// Clipboard receives the text copied with the copy key. Defaults to the
	// system clipboard.
	Clipboard func(text string) error
}

type tickMsg time.Time

type snapshotMsg model.StatusSnapshot

type startedMsg struct {
	info model.SessionInfo
	err  error
}

type stoppedMsg struct{ err error }

type shutdownMsg struct{ err error }

type updatesClosed struct{}

type dashboardModel struct {
	ctrl    Controller
	updates <-chan model.StatusSnapshot
	opts    Options

	snap      model.StatusSnapshot
	info      model.SessionInfo
	starting  bool
	stopping  bool
	quitting  bool
	userStop  bool
	showCreds bool
	status    string
	lastErr   string

	startCancel context.CancelFunc

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	width   int
}

func newDashboard(ctrl Controller, updates <-chan model.StatusSnapshot, opts Options) dashboardModel {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return dashboardModel{
		ctrl:    ctrl,
		updates: updates,
		opts:    opts,
		snap:    ctrl.Status(),
		status:  "Ready. Press s to share this terminal.",
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
	}
}

func tickCmd(seconds int) tea.Cmd {
	if seconds <= 0 {
		seconds = 1
	}
	return tea.Tick(time.Duration(seconds)*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForSnapshot(ch <-chan model.StatusSnapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return updatesClosed{}
		}
		return snapshotMsg(s)
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.opts.RefreshSeconds), waitForSnapshot(m.updates))
}

func (m dashboardModel) startCmd(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		info, err := m.ctrl.Start(ctx)
		return startedMsg{info: info, err: err}
	}
}

func (m dashboardModel) stopCmd() tea.Cmd {
	return func() tea.Msg { return stoppedMsg{err: m.ctrl.Stop()} }
}

func (m dashboardModel) shutdownCmd() tea.Cmd {
	timeout := m.opts.ShutdownTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return shutdownMsg{err: m.ctrl.Shutdown(ctx)}
	}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.observe(m.ctrl.Status())
		return m, tickCmd(m.opts.RefreshSeconds)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case spinner.TickMsg:
		if !m.starting && !m.stopping && !m.quitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case snapshotMsg:
		m.observe(model.StatusSnapshot(msg))
		return m, waitForSnapshot(m.updates)
	case updatesClosed:
		return m, nil
	case startedMsg:
		m.starting = false
		if m.startCancel != nil {
			m.startCancel()
			m.startCancel = nil
		}
		if msg.err != nil {
			m.lastErr = security.UserMessage(msg.err, m.opts.Redact)
			m.status = "Start failed: " + m.lastErr
			return m, nil
		}
		m.info = msg.info
		m.snap = model.SnapshotOf(msg.info)
		m.lastErr = ""
		m.status = "Sharing. Send the URL and credentials to your guest."
		return m, nil
	case stoppedMsg:
		m.stopping = false
		if msg.err != nil {
			m.status = "Stop failed: " + security.UserMessage(msg.err, m.opts.Redact)
			return m, nil
		}
		m.snap = model.StatusSnapshot{}
		m.info = model.SessionInfo{}
		m.showCreds = false
		m.status = "Stopped. Press s to share again."
		return m, nil
	case shutdownMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// observe applies a status snapshot and reports a session that ended without
// the user stopping it.
func (m *dashboardModel) observe(snap model.StatusSnapshot) {
	if m.starting {
		return
	}
	prev := m.snap
	m.snap = snap
	ended := prev.Running && !snap.Running
	if (ended || snap.Failure != "") && !m.userStop && !m.stopping && !m.quitting {
		reason := "a helper process exited"
		if snap.Failure != "" {
			reason = snap.Failure
		}
		m.info = model.SessionInfo{}
		m.showCreds = false
		m.status = "Session ended unexpectedly: " + reason + ". Press s to start again."
	}
}

func (m dashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.status = "Stopping session and quitting..."
		if m.startCancel != nil {
			m.startCancel()
		}
		return m, tea.Batch(m.spinner.Tick, m.shutdownCmd())
	case key.Matches(msg, m.keys.Start):
		if m.starting || m.stopping || m.snap.Running {
			return m, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		m.startCancel = cancel
		m.starting = true
		m.userStop = false
		m.lastErr = ""
		m.status = "Starting terminal server and tunnel..."
		return m, tea.Batch(m.spinner.Tick, m.startCmd(ctx))
	case key.Matches(msg, m.keys.Stop):
		if !m.snap.Running || m.stopping {
			return m, nil
		}
		m.stopping = true
		m.userStop = true
		m.status = "Stopping..."
		return m, tea.Batch(m.spinner.Tick, m.stopCmd())
	case key.Matches(msg, m.keys.Credentials):
		m.showCreds = !m.showCreds
	case key.Matches(msg, m.keys.Copy):
		if !m.snap.Running {
			return m, nil
		}
		if err := m.opts.Clipboard(m.shareText()); err != nil {
			m.status = "Copy failed: " + err.Error()
			return m, nil
		}
		if m.showCreds {
			m.status = "Copied the link and credentials."
		} else {
			m.status = "Copied the link. Press c then y to include the credentials."
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

// shareText is what the copy key puts on the clipboard: the link, plus the
// credentials only while they are shown on screen.
func (m dashboardModel) shareText() string {
	if !m.showCreds {
		return m.snap.URL
	}
	return fmt.Sprintf("%s\nUsername: %s\nPassword: %s", m.snap.URL, m.snap.Username, m.snap.Password)
}

func (m dashboardModel) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("termshare")

	session := strings.Builder{}
	switch {
	case m.starting:
		session.WriteString(m.spinner.View() + " starting\n")
	case m.stopping:
		session.WriteString(m.spinner.View() + " stopping\n")
	case m.snap.Running:
		session.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("● running") + "\n")
		session.WriteString(fmt.Sprintf("URL:      %s\n", m.snap.URL))
		session.WriteString(fmt.Sprintf("Port:     %d\n", m.snap.Port))
		if !m.info.StartedAt.IsZero() {
			session.WriteString(fmt.Sprintf("Uptime:   %s\n", time.Since(m.info.StartedAt).Truncate(time.Second)))
		}
		if m.showCreds {
			session.WriteString(fmt.Sprintf("Username: %s\nPassword: %s\n", m.snap.Username, m.snap.Password))
		} else {
			session.WriteString("Credentials hidden (press c)\n")
		}
	default:
		session.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render("○ not sharing") + "\n")
	}

	status := m.status
	if m.quitting {
		status = m.spinner.View() + " " + status
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		m.renderPanel("Session", session.String(), m.effectiveWidth(), lipgloss.Color("63")),
		m.renderPanel("Status", status, m.effectiveWidth(), lipgloss.Color("205")),
		m.help.View(m.keys),
	)
}

// Run starts the dashboard and blocks until the user quits. The session is
// stopped before Run returns.
func Run(ctrl Controller, updates <-chan model.StatusSnapshot, opts Options) error {
	p := tea.NewProgram(newDashboard(ctrl, updates, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m dashboardModel) effectiveWidth() int {
	if m.width <= 0 {
		return 80
	}
	return m.width
}

func (m dashboardModel) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}
