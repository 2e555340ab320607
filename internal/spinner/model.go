package spinner

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type completionMsg Completion

// finishedMsg ends the program once the work function returns.
type finishedMsg struct{}

type model struct {
	spinner     spinner.Model
	ids         []string
	inflight    []string
	completions map[string]Completion
	quitting    bool
}

var (
	checkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	crossStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newModel(ids []string) model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		spinner:     s,
		ids:         slices.Clone(ids),
		inflight:    slices.Clone(ids),
		completions: make(map[string]Completion),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case completionMsg:
		c := Completion(msg)
		if !slices.Contains(m.inflight, c.ID) {
			return m, nil
		}
		m.completions[c.ID] = c
		m.inflight = slices.DeleteFunc(m.inflight, func(id string) bool { return id == c.ID })
		if len(m.inflight) == 0 {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case finishedMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m model) View() string {
	// Transient progress only; the report is printed after.
	if m.quitting {
		return ""
	}

	var b strings.Builder
	for i, id := range m.ids {
		if i > 0 {
			b.WriteString("\n")
		}
		c, done := m.completions[id]
		switch {
		case !done:
			b.WriteString(m.spinner.View())
			b.WriteString(" ")
			b.WriteString(id)
		case c.Failed:
			b.WriteString(crossStyle.Render("✗"))
			b.WriteString(" ")
			b.WriteString(FormatCompletionText(c))
		case c.Refreshed:
			b.WriteString(checkStyle.Render("✓"))
			b.WriteString(" ")
			b.WriteString(FormatCompletionText(c))
		default:
			b.WriteString(dimStyle.Render("· " + FormatCompletionText(c)))
		}
	}
	return b.String()
}
