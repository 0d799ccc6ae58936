// Package tui implements the interactive REPL: a single Bubble Tea program
// whose Update loop is the only place agent state, scrollback, and the
// input buffer are mutated. Worker goroutines
// (LLM streams, tool execution, mail waits) report back exclusively via
// tea.Msg values their tea.Cmd returns, so the render boundary is
// structural rather than a matter of discipline.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mgreenly/ikigai-sub013/coordinator"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Model is the single Bubble Tea model backing the whole program. Scrollback
// lives on the current agent and View reads it from there, so changing the
// current agent changes the visible scrollback. The input line (input) is a
// Model field shared by every agent; Agent.InputBuffer and
// Agent.ViewportOffset are not read or written by this package.
type Model struct {
	ctx   context.Context
	coord *coordinator.Coordinator
	input textinput.Model
	spin  spinner.Model

	streaming bool
	debug     bool
	width     int
	height    int

	submit func(ctx context.Context, prompt string) tea.Cmd
	slash  func(ctx context.Context, line string) tea.Cmd
}

func New(ctx context.Context, coord *coordinator.Coordinator, submit func(context.Context, string) tea.Cmd, slash func(context.Context, string) tea.Cmd) Model {
	ti := textinput.New()
	ti.Placeholder = "message (or /command)"
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{ctx: ctx, coord: coord, input: ti, spin: sp, submit: submit, slash: slash}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// LineMsg is the tea.Msg a slash-command tea.Cmd reports back with: one
// rendered scrollback line once its step of work completes. Worker
// goroutines report back only through tea.Msg values (LineMsg,
// StreamDeltaMsg, StreamDoneMsg), never by touching Model fields directly.
type LineMsg struct {
	Line string
}

// StreamDeltaMsg carries one incremental chunk of an assistant response.
// Update appends Text to the scrollback line a chat submission reserved and
// then issues Next to keep draining the stream; tui has no dependency on
// provider.Event, so the engine is responsible for translating streaming
// events down to this single opaque continuation shape.
type StreamDeltaMsg struct {
	Text string
	Next tea.Cmd
}

// StreamDoneMsg finalizes the scrollback line a chat submission's stream was
// writing to. A non-empty Line replaces that line's content: the engine sets
// it to an error or interrupt warning, or to the text of the final
// response's last text block. An empty Line (a final response with no text
// block) leaves the streamed text in place.
type StreamDoneMsg struct {
	Line string
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if cur := m.coord.Current(); cur != nil {
				cur.RequestInterrupt()
			}
			return m, nil
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			if strings.HasPrefix(line, "/") {
				return m, m.slash(m.ctx, line)
			}
			m.streaming = true
			if cur := m.coord.Current(); cur != nil {
				cur.Scrollback = append(cur.Scrollback, "")
			}
			return m, m.submit(m.ctx, line)
		}

	case LineMsg:
		m.streaming = false
		if cur := m.coord.Current(); cur != nil && msg.Line != "" {
			cur.Scrollback = append(cur.Scrollback, msg.Line)
		}
		return m, nil

	case StreamDeltaMsg:
		if cur := m.coord.Current(); cur != nil && msg.Text != "" && len(cur.Scrollback) > 0 {
			cur.Scrollback[len(cur.Scrollback)-1] += msg.Text
		}
		return m, msg.Next

	case StreamDoneMsg:
		m.streaming = false
		if cur := m.coord.Current(); cur != nil && msg.Line != "" && len(cur.Scrollback) > 0 {
			cur.Scrollback[len(cur.Scrollback)-1] = msg.Line
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder

	cur := m.coord.Current()
	if cur != nil {
		for _, line := range cur.Scrollback {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("[%s] %s", shortUUID(cur.UUID), cur.State())))
		b.WriteString("\n")
	}

	if m.streaming {
		b.WriteString(m.spin.View())
		b.WriteString(" thinking...\n")
	}

	b.WriteString(promptStyle.Render("> "))
	b.WriteString(m.input.View())
	return b.String()
}

func shortUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ScrollbackLine formats a one-line scrollback entry for errors and
// warnings.
func ScrollbackLine(severity, text string) string {
	switch severity {
	case "error":
		return errorStyle.Render("Error: " + text)
	case "warning":
		return warnStyle.Render("Warning: " + text)
	default:
		return text
	}
}

// PollTick drives the 100ms tick shared by the spinner animation and any
// timeout-bounded polling (e.g. control socket reads) on the main thread.
func PollTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return spinner.TickMsg{}
	})
}
