package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brahmanda-ai/Parishad/internal/events"
	"github.com/brahmanda-ai/Parishad/internal/supervisor"
)

type role int

const (
	roleUser role = iota
	roleAssistant
	roleSystem
)

type entry struct {
	role role
	text string
}

// Model is the main BubbleTea model for the chat TUI. The update loop is
// the only caller into the supervisor, so task state transitions never
// race with rendering.
type Model struct {
	sup      *supervisor.Supervisor
	interval time.Duration
	timeout  time.Duration

	width  int
	height int

	// Transcript
	transcript []entry
	view       viewport.Model
	ready      bool

	// Input
	input textarea.Model

	// Active task, nil when idle
	active    *supervisor.TaskHandle
	startedAt time.Time

	// Live indicators
	spin      spinner.Model
	lastEvent string
	lastAt    time.Time

	// Communication
	hubEvents   <-chan events.Event
	unsubscribe func()

	theme Theme
}

type pollMsg time.Time
type eventMsg events.Event

// New creates a new chat TUI model. hub may be nil.
func New(sup *supervisor.Supervisor, hub *events.Hub, interval, timeout time.Duration) *Model {
	ta := textarea.New()
	ta.Placeholder = "Ask something..."
	ta.Prompt = "┃ "
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(NewDefaultTheme().Spinner),
	)

	m := &Model{
		sup:      sup,
		interval: interval,
		timeout:  timeout,
		input:    ta,
		spin:     sp,
		theme:    NewDefaultTheme(),
	}

	if hub != nil {
		m.hubEvents, m.unsubscribe = hub.Subscribe()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		receiveNextEvent(m.hubEvents),
		tea.EnterAltScreen,
	)
}

// receiveNextEvent blocks on the hub channel in a command goroutine and
// hands the event back to the update loop.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.active != nil {
				m.sup.Cancel(context.Background(), m.active)
			}
			if m.unsubscribe != nil {
				m.unsubscribe()
			}
			return m, tea.Quit

		case "esc":
			if m.active != nil {
				// Flip the task now; the poll cadence picks up the
				// cancelled outcome on its next tick.
				m.sup.Cancel(context.Background(), m.active)
			}
			return m, nil

		case "enter":
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(m.width - 6)
		if !m.ready {
			m.view = viewport.New(m.width-6, m.transcriptHeight())
			m.ready = true
		} else {
			m.view.Width = m.width - 6
			m.view.Height = m.transcriptHeight()
		}
		m.refreshTranscript()

	case pollMsg:
		return m.poll()

	case spinner.TickMsg:
		if m.active == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case eventMsg:
		m.lastEvent = msg.Type
		m.lastAt = msg.At
		return m, receiveNextEvent(m.hubEvents)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit hands the typed prompt to the supervisor and schedules the first
// poll. Submit returns as soon as the worker is spawned, so the UI never
// stalls here.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.active != nil {
		return m, nil
	}
	prompt := strings.TrimSpace(m.input.Value())
	if prompt == "" {
		return m, nil
	}

	h, err := m.sup.Submit(context.Background(), supervisor.Request{Prompt: prompt}, m.timeout)
	if err != nil {
		m.transcript = append(m.transcript, entry{roleSystem, fmt.Sprintf("submit failed: %v", err)})
		m.refreshTranscript()
		return m, nil
	}

	m.active = h
	m.startedAt = time.Now()
	m.transcript = append(m.transcript, entry{roleUser, prompt})
	m.input.Reset()
	m.refreshTranscript()

	return m, tea.Batch(m.spin.Tick, m.schedulePoll())
}

func (m Model) schedulePoll() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// poll runs one non-blocking poll tick. Pending work reschedules itself;
// a terminal outcome lands in the transcript and releases the task's
// handshake directory.
func (m Model) poll() (tea.Model, tea.Cmd) {
	if m.active == nil {
		return m, nil
	}

	res := m.sup.Poll(context.Background(), m.active)
	if !res.Done {
		return m, m.schedulePoll()
	}

	switch res.Outcome.Kind {
	case supervisor.OutcomeSuccess:
		m.transcript = append(m.transcript, entry{roleAssistant, res.Outcome.Result.Answer})
	case supervisor.OutcomeTimeout:
		m.transcript = append(m.transcript, entry{roleSystem, fmt.Sprintf("timed out: %s", res.Outcome.Reason)})
	case supervisor.OutcomeCancelled:
		m.transcript = append(m.transcript, entry{roleSystem, "cancelled"})
	default:
		m.transcript = append(m.transcript, entry{roleSystem, fmt.Sprintf("failed: %s", res.Outcome.Reason)})
	}

	_ = m.sup.Cleanup(context.Background(), m.active)
	m.active = nil
	m.refreshTranscript()
	return m, nil
}

func (m *Model) transcriptHeight() int {
	h := m.height - m.input.Height() - 7
	if h < 3 {
		h = 3
	}
	return h
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.view.SetContent(m.renderTranscript())
	m.view.GotoBottom()
}

func (m *Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return m.theme.Dim.Render("No messages yet. Type a prompt and press enter.")
	}

	wrap := lipgloss.NewStyle().Width(m.view.Width)
	var b strings.Builder
	for i, e := range m.transcript {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case roleUser:
			b.WriteString(m.theme.User.Render("you") + "\n" + wrap.Render(e.text))
		case roleAssistant:
			b.WriteString(m.theme.Title.Render("parishad") + "\n" + wrap.Render(e.text))
		default:
			b.WriteString(m.theme.System.Render("· " + e.text))
		}
	}
	if m.active != nil {
		b.WriteString("\n\n" + m.theme.Pending.Render("thinking..."))
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "Initializing parishad..."
	}

	title := m.theme.Title.Render(" PARISHAD ")

	var status string
	if m.active != nil {
		elapsed := time.Since(m.startedAt).Round(time.Second)
		status = fmt.Sprintf(" %s working %s  task %s  [esc] cancel",
			m.spin.View(), elapsed, m.theme.Dim.Render(shortID(m.active.ID())))
	} else {
		status = m.theme.Dim.Render(" [enter] send • [esc] cancel • [ctrl+c] quit")
	}
	if m.lastEvent != "" {
		ago := time.Since(m.lastAt).Round(time.Second)
		status += m.theme.Dim.Render(fmt.Sprintf("  •  %s %s ago", m.lastEvent, ago))
	}

	transcript := m.theme.Border.Width(m.width - 4).Render(m.view.View())
	input := m.theme.Border.Width(m.width - 4).Render(m.input.View())

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, transcript, status, input),
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run blocks until the user quits the chat TUI.
func Run(sup *supervisor.Supervisor, hub *events.Hub, interval, timeout time.Duration) error {
	p := tea.NewProgram(New(sup, hub, interval, timeout))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat TUI failed: %w", err)
	}
	return nil
}
