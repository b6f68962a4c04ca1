package eventlog

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"quizload/internal/events"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// eventMsg carries one record and its rendered log line.
type eventMsg struct {
	line string
	rec  events.Record
}

// progressMsg reports spawned and finished device counts.
type progressMsg struct{ spawned, finished, total int }

const maxLogLines = 2000

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// TUIWriter renders events using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting the
// program interrupts the process so a running load test winds down.
func NewTUIWriter(title string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(title), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteEvent implements Writer.
func (w *TUIWriter) WriteEvent(rec events.Record) error {
	line := fmt.Sprintf("%s%s%s %s%s%s %s%s%s",
		colorGray, rec.Timestamp.Format("15:04:05.000"), colorReset,
		colorBlue, rec.ClientID, colorReset,
		kindColor(rec.Kind), rec.Kind, colorReset)
	if rec.Detail != "" {
		line += " " + rec.Detail
	}
	w.program.Send(eventMsg{line: line, rec: rec})
	return nil
}

// WriteEvents outputs multiple records.
func (w *TUIWriter) WriteEvents(recs []events.Record) error {
	for _, r := range recs {
		_ = w.WriteEvent(r)
	}
	return nil
}

// SetProgress updates the device progress line.
func (w *TUIWriter) SetProgress(spawned, finished, total int) {
	w.program.Send(progressMsg{spawned: spawned, finished: finished, total: total})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if p, ok := w.program.(*tea.Program); ok {
		p.Quit()
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	title      string
	table      table.Model
	vp         viewport.Model
	logs       []string
	counts     map[events.Kind]int
	clients    map[string]struct{}
	progress   progressMsg
	wrap       bool
	autoscroll bool
	width      int
	height     int
}

func newTUIModel(title string) tuiModel {
	cols := []table.Column{
		{Title: "Event", Width: 18},
		{Title: "Count", Width: 8},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(len(events.Kinds)+1))
	m := tuiModel{
		title:      title,
		table:      t,
		vp:         viewport.New(0, 0),
		counts:     make(map[events.Kind]int),
		clients:    make(map[string]struct{}),
		autoscroll: true,
	}
	m.refreshTable()
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case eventMsg:
		m.counts[msg.rec.Kind]++
		m.clients[msg.rec.ClientID] = struct{}{}
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshTable()
		m.refreshViewport()
	case progressMsg:
		m.progress = msg
	}
	return m, nil
}

func (m *tuiModel) refreshTable() {
	rows := make([]table.Row, 0, len(events.Kinds))
	for _, k := range events.Kinds {
		rows = append(rows, table.Row{string(k), fmt.Sprintf("%d", m.counts[k])})
	}
	m.table.SetRows(rows)
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.renderHeader()) + 1
	h := m.height - used
	if h < 1 {
		h = 1
	}
	m.vp.Height = h
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		lines = make([]string, 0, len(m.logs))
		for _, l := range m.logs {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) renderHeader() string {
	status := fmt.Sprintf("devices %d/%d started, %d finished, %d seen",
		m.progress.spawned, m.progress.total, m.progress.finished, len(m.clients))
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(m.title),
		status,
		m.table.View(),
	)
}

func (m tuiModel) View() string {
	footer := footerStyle.Render("q quit • w wrap • s autoscroll")
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.vp.View(), footer)
}
