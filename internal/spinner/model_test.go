package spinner

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

var testKeys = []string{"fixtures/2026-10-14", "fixtures/2026-10-15", "standings/2026-10-14/39"}

func complete(t *testing.T, m model, c Completion) (model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(completionMsg(c))
	return updated.(model), cmd
}

func TestNewModel(t *testing.T) {
	m := newModel(testKeys)
	if len(m.inflight) != 3 {
		t.Errorf("inflight = %d, want 3", len(m.inflight))
	}
	if len(m.completions) != 0 {
		t.Errorf("completions = %d, want 0", len(m.completions))
	}
	if m.quitting {
		t.Error("quitting = true, want false")
	}
}

func TestModelUpdate_Completion(t *testing.T) {
	m, cmd := complete(t, newModel(testKeys), Completion{ID: "fixtures/2026-10-15", Refreshed: true})

	if len(m.inflight) != 2 {
		t.Errorf("inflight = %d, want 2", len(m.inflight))
	}
	if _, ok := m.completions["fixtures/2026-10-15"]; !ok {
		t.Error("completion not recorded")
	}
	if m.quitting || cmd != nil {
		t.Error("should keep running after a non-final completion")
	}
}

func TestModelUpdate_AllComplete(t *testing.T) {
	m := newModel(testKeys[:2])
	m, _ = complete(t, m, Completion{ID: testKeys[0], Refreshed: true})
	m, cmd := complete(t, m, Completion{ID: testKeys[1], Detail: "fresh"})

	if !m.quitting {
		t.Error("quitting = false after the last key settled")
	}
	if cmd == nil {
		t.Error("expected tea.Quit")
	}
}

func TestModelUpdate_IgnoresDuplicatesAndUnknown(t *testing.T) {
	m := newModel(testKeys)
	m, _ = complete(t, m, Completion{ID: testKeys[0], Refreshed: true})
	m, _ = complete(t, m, Completion{ID: testKeys[0], Failed: true})
	m, _ = complete(t, m, Completion{ID: "logos/2026-10-14/39"})

	if len(m.completions) != 1 {
		t.Errorf("completions = %d, want 1", len(m.completions))
	}
	if m.completions[testKeys[0]].Failed {
		t.Error("duplicate overwrote the first completion")
	}
}

func TestModelUpdate_FinishedQuits(t *testing.T) {
	updated, cmd := newModel(testKeys).Update(finishedMsg{})
	if !updated.(model).quitting || cmd == nil {
		t.Error("finishedMsg should quit")
	}
}

func TestModelUpdate_CtrlC(t *testing.T) {
	updated, cmd := newModel(testKeys).Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !updated.(model).quitting || cmd == nil {
		t.Error("ctrl+c should quit")
	}
}

func TestModelView(t *testing.T) {
	m := newModel(testKeys)
	m, _ = complete(t, m, Completion{ID: testKeys[0], Refreshed: true})
	m, _ = complete(t, m, Completion{ID: testKeys[1], Failed: true, Detail: "store down"})

	view := m.View()
	lines := strings.Split(view, "\n")
	if len(lines) != 3 {
		t.Fatalf("view has %d lines, want one per key: %q", len(lines), view)
	}
	if !strings.Contains(lines[0], "✓") || !strings.Contains(lines[0], testKeys[0]) {
		t.Errorf("line 0 = %q, want refreshed key", lines[0])
	}
	if !strings.Contains(lines[1], "✗") || !strings.Contains(lines[1], "store down") {
		t.Errorf("line 1 = %q, want failed key with detail", lines[1])
	}
	if !strings.Contains(lines[2], testKeys[2]) {
		t.Errorf("line 2 = %q, want pending key", lines[2])
	}
}

func TestModelView_EmptyWhenDone(t *testing.T) {
	m, _ := complete(t, newModel(testKeys[:1]), Completion{ID: testKeys[0], Refreshed: true})
	if view := m.View(); view != "" {
		t.Errorf("final view = %q, want empty", view)
	}
}

func TestRun_NoIDsRunsWorkDirectly(t *testing.T) {
	called := false
	var out bytes.Buffer
	if err := Run(&out, nil, func(done func(Completion)) {
		called = true
		done(Completion{ID: "x"})
	}); err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if !called {
		t.Error("work was not called")
	}
	if out.Len() != 0 {
		t.Errorf("wrote %q with no ids", out.String())
	}
}

func TestShouldShow(t *testing.T) {
	tests := []struct {
		quiet, json, nonTTY, want bool
	}{
		{false, false, false, true},
		{true, false, false, false},
		{false, true, false, false},
		{false, false, true, false},
	}
	for _, tt := range tests {
		if got := ShouldShow(tt.quiet, tt.json, tt.nonTTY); got != tt.want {
			t.Errorf("ShouldShow(%v, %v, %v) = %v, want %v", tt.quiet, tt.json, tt.nonTTY, got, tt.want)
		}
	}
}

func TestFormatCompletionText(t *testing.T) {
	tests := []struct {
		c    Completion
		want string
	}{
		{Completion{ID: "fixtures/2026-10-14", Refreshed: true}, "fixtures/2026-10-14"},
		{Completion{ID: "logos/2026-10-14/39", Detail: "budget_exhausted"}, "logos/2026-10-14/39 (budget_exhausted)"},
	}
	for _, tt := range tests {
		if got := FormatCompletionText(tt.c); got != tt.want {
			t.Errorf("FormatCompletionText(%+v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}
