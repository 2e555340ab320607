package display

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

type TableOptions struct {
	Title   string
	NoColor bool
	// Width caps the rendered width. Zero leaves the table at its natural width.
	Width int
	// Muted reports data rows drawn dimmed, such as keys a warm run skipped.
	Muted func(row int) bool
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableMutedStyle  = tableCellStyle.Foreground(lipgloss.Color("8"))
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// NewTableWithOptions renders rows under headers with a rounded border.
func NewTableWithOptions(headers []string, rows [][]string, opts TableOptions) string {
	header, cell, muted, border := tableHeaderStyle, tableCellStyle, tableMutedStyle, tableBorderStyle
	if opts.NoColor {
		header, muted, border = tableCellStyle, tableCellStyle, lipgloss.NewStyle()
	}

	t := table.New().
		Headers(headers...).
		Rows(rows...).
		Border(lipgloss.RoundedBorder()).
		BorderStyle(border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case opts.Muted != nil && opts.Muted(row):
				return muted
			}
			return cell
		})
	if opts.Width > 0 {
		t.Width(opts.Width)
	}

	if opts.Title == "" {
		return t.String()
	}
	title := opts.Title
	if !opts.NoColor {
		title = titleStyle.Render(title)
	}
	return title + "\n" + t.String()
}
