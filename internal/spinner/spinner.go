// Package spinner shows per-key progress while a warm run settles keys.
package spinner

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
)

// Completion describes one settled key.
type Completion struct {
	ID        string
	Refreshed bool
	Failed    bool
	// Detail is the reason a key was not refreshed, or the error.
	Detail string
}

// ShouldShow reports whether progress should be drawn. It is hidden for
// quiet mode, JSON output and piped output.
func ShouldShow(quiet, json, nonTTY bool) bool {
	return !quiet && !json && !nonTTY
}

// Run draws a spinner line per id on out while work runs. work reports each
// settled id through done. Run returns once work has returned, even when
// some ids were never reported.
func Run(out io.Writer, ids []string, work func(done func(Completion))) error {
	if len(ids) == 0 {
		work(func(Completion) {})
		return nil
	}

	p := tea.NewProgram(newModel(ids), tea.WithOutput(out))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		work(func(c Completion) { p.Send(completionMsg(c)) })
		p.Send(finishedMsg{})
	}()

	_, err := p.Run()
	<-finished
	if err != nil {
		return fmt.Errorf("running spinner: %w", err)
	}
	return nil
}
