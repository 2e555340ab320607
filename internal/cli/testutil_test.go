package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fixturegate/fixturegate/internal/config"
	"github.com/fixturegate/fixturegate/internal/testenv"
)

var testNow = time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)

// fakeUpstream serves canned api-sports responses and counts calls per path.
type fakeUpstream struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeUpstream) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeUpstream) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.mu.Unlock()

	w.Header().Set("x-ratelimit-requests-remaining", "90")
	switch r.URL.Path {
	case "/fixtures":
		date := r.URL.Query().Get("date")
		id, kickoff := 1, "18:00"
		if date != testNow.Format("2006-01-02") {
			id, kickoff = 2, "15:00"
		}
		_, _ = fmt.Fprintf(w, `{"get":"fixtures","errors":[],"results":1,"response":[`+
			`{"fixture":{"id":%d,"date":"%sT%s:00+00:00"},"league":{"id":39,"name":"Premier League"},`+
			`"teams":{"home":{"id":1,"name":"Arsenal"},"away":{"id":2,"name":"Chelsea"}}}]}`,
			id, date, kickoff)
	case "/standings":
		_, _ = w.Write([]byte(`{"get":"standings","errors":[],"response":[{"league":{"id":39}}]}`))
	case "/teams":
		_, _ = w.Write([]byte(`{"get":"teams","errors":[],"response":[{"team":{"id":1,"name":"Arsenal"}}]}`))
	default:
		http.NotFound(w, r)
	}
}

type cliEnv struct {
	upstream *fakeUpstream
	dir      string
	out      *bytes.Buffer
}

// setupCLI isolates config and cache directories, points the upstream at a
// fake server and pins the clock.
func setupCLI(t *testing.T, extraConfig string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	testenv.Isolate(t.Setenv, dir)
	testenv.ClearEnv(t.Setenv)
	t.Setenv("API_SPORTS_KEY", "test-key")
	t.Setenv("FIXTUREGATE_TIMEZONE", "UTC")
	t.Setenv("MIN_REQUEST_INTERVAL_SECONDS", "0")

	up := &fakeUpstream{calls: make(map[string]int)}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	cfgFile := fmt.Sprintf("[upstream]\nbase_url = %q\nleagues = [39]\n%s", srv.URL, extraConfig)
	writeFile(t, filepath.Join(dir, "config", "config.toml"), cfgFile)
	reloadConfig()

	prevClock := clock
	clock = clockwork.NewFakeClockAt(testNow)
	t.Cleanup(func() { clock = prevClock })

	var buf bytes.Buffer
	outWriter = &buf
	t.Cleanup(func() { outWriter = os.Stdout })

	return &cliEnv{upstream: up, dir: dir, out: &buf}
}

// run executes the root command with args and resets every flag afterwards.
func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	e.out.Reset()
	rootCmd.SetArgs(args)
	rootCmd.SetErr(io.Discard)
	defer resetFlags(rootCmd)
	err := rootCmd.ExecuteContext(context.Background())
	return e.out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

// reloadConfig forces a config reload. Used by tests that modify
// FIXTUREGATE_CONFIG_DIR via t.Setenv before exercising commands.
func reloadConfig() {
	_, _ = config.Reload()
}

func assertContains(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
}
