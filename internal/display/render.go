package display

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fixturegate/fixturegate/internal/fixtures"
	"github.com/fixturegate/fixturegate/internal/quota"
	"github.com/fixturegate/fixturegate/internal/snapshot"
	"github.com/fixturegate/fixturegate/internal/warm"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Options control human-readable rendering.
type Options struct {
	NoColor  bool
	Location *time.Location
	Now      time.Time
	// Width caps table width; zero leaves tables at their natural width.
	Width int
}

func (o Options) style(s lipgloss.Style) lipgloss.Style {
	if o.NoColor {
		return lipgloss.NewStyle()
	}
	return s
}

func (o Options) loc() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func colorStyle(color string) lipgloss.Style {
	switch color {
	case "green":
		return greenStyle
	case "yellow":
		return yellowStyle
	case "red":
		return redStyle
	default:
		return lipgloss.NewStyle()
	}
}

func stateStyle(s snapshot.State) lipgloss.Style {
	switch s {
	case snapshot.StateFresh:
		return greenStyle
	case snapshot.StateStale:
		return yellowStyle
	default:
		return redStyle
	}
}

// RenderSnapshot describes a served snapshot: where it came from, how old
// it is and, for degraded reads, why.
func RenderSnapshot(snap snapshot.Snapshot, opts Options) string {
	var b strings.Builder
	b.WriteString(opts.style(titleStyle).Render(snap.Key.String()))
	b.WriteString("  ")
	b.WriteString(opts.style(stateStyle(snap.State)).Render(string(snap.State)))
	b.WriteString(opts.style(dimStyle).Render(fmt.Sprintf("  %s, fetched %s", snap.Source, FormatAge(snap.FetchedAt, opts.Now))))
	b.WriteString("\n")
	if snap.Reason != "" {
		fmt.Fprintf(&b, "Served stale: %s\n", snap.Reason)
	}
	if snap.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", snap.LastError)
	}
	if !snap.NextRetryAt.IsZero() {
		fmt.Fprintf(&b, "Next retry in %s\n", FormatCountdown(snap.NextRetryAt.Sub(opts.Now)))
	}
	if snap.Window != nil {
		b.WriteString("\n")
		b.WriteString(RenderSelection(*snap.Window, opts))
	}
	return b.String()
}

// RenderSelection renders the matches of a window as a table.
func RenderSelection(sel fixtures.Selection, opts Options) string {
	title := fmt.Sprintf("Next %dh", sel.Hours)
	if sel.Extended {
		title += " (extended)"
	}
	var b strings.Builder
	if len(sel.Matches) == 0 {
		b.WriteString(opts.style(titleStyle).Render(title))
		b.WriteString("\nNo matches in window\n")
	} else {
		b.WriteString(RenderMatches(sel.Matches, title, opts))
		b.WriteString("\n")
	}
	for _, w := range sel.Warnings {
		b.WriteString(opts.style(yellowStyle).Render("! " + w))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderMatches renders matches as a Kickoff/League/Home/Away table with
// kickoff times in the reference timezone.
func RenderMatches(matches []fixtures.Match, title string, opts Options) string {
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		kickoff := "TBD"
		if !m.Kickoff.IsZero() {
			kickoff = m.Kickoff.In(opts.loc()).Format("Mon 15:04")
		}
		rows = append(rows, []string{kickoff, m.League.Name, m.Home.Name, m.Away.Name})
	}
	return NewTableWithOptions([]string{"Kickoff", "League", "Home", "Away"}, rows, TableOptions{
		Title:   title,
		NoColor: opts.NoColor,
		Width:   opts.Width,
	})
}

// RenderWindow renders the merged upcoming-matches view with the source of
// each date.
func RenderWindow(res snapshot.WindowResult, opts Options) string {
	var b strings.Builder
	b.WriteString(RenderSelection(res.Selection, opts))
	parts := make([]string, 0, len(res.Dates))
	for _, d := range res.Dates {
		p := d.Date.String() + ": " + d.Source
		if d.Stale {
			p += " (stale)"
		}
		if d.Reason != "" {
			p += " " + d.Reason
		}
		parts = append(parts, p)
	}
	b.WriteString(opts.style(dimStyle).Render(res.Source + "  " + strings.Join(parts, ", ")))
	b.WriteString("\n")
	return b.String()
}

// RenderQuota renders today's budget line.
func RenderQuota(st quota.Status, opts Options) string {
	color := BudgetColor(st.CallsMade, st.MaxCalls, st.Locked)
	used := opts.style(colorStyle(color)).Render(fmt.Sprintf("%d/%d", st.CallsMade, st.MaxCalls))
	line := fmt.Sprintf("%s  %s calls used, %d remaining", st.Date, used, st.Remaining)
	if st.Locked {
		line += opts.style(redStyle).Render("  locked until midnight")
	}
	return line + "\n"
}

// RenderWarmReport renders one warm run as a per-key table followed by the
// budget and any warnings.
func RenderWarmReport(rep warm.Report, opts Options) string {
	rows := make([][]string, 0, len(rep.Keys))
	for _, k := range rep.Keys {
		refreshed := "no"
		if k.Refreshed {
			refreshed = opts.style(greenStyle).Render("yes")
		}
		rows = append(rows, []string{k.Key.String(), refreshed, k.Reason})
	}
	var b strings.Builder
	b.WriteString(NewTableWithOptions([]string{"Key", "Refreshed", "Reason"}, rows, TableOptions{
		Title:   "Warm " + strconv.Itoa(rep.FixturesLoaded) + " fixtures, " + strconv.Itoa(rep.LeaguesWarmed) + " leagues",
		NoColor: opts.NoColor,
		Width:   opts.Width,
		Muted:   func(row int) bool { return !rep.Keys[row].Refreshed },
	}))
	b.WriteString("\n")
	if rep.Quota != nil {
		b.WriteString(RenderQuota(*rep.Quota, opts))
	}
	for _, w := range rep.Warnings {
		b.WriteString(opts.style(yellowStyle).Render("! " + w))
		b.WriteString("\n")
	}
	return b.String()
}
