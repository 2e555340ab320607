package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestWithLogger_StoresLoggerInContext(t *testing.T) {
	l := NewLogger(&bytes.Buffer{})
	ctx := WithLogger(context.Background(), l)

	if got := FromContext(ctx); got != l {
		t.Error("expected FromContext to return the logger stored by WithLogger")
	}
}

func TestFromContext_DefaultDiscards(t *testing.T) {
	got := FromContext(context.Background())
	if got == nil {
		t.Fatal("expected a non-nil default logger")
	}
	if got.GetLevel() != log.WarnLevel {
		t.Errorf("default level = %v, want warn", got.GetLevel())
	}
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  log.Level
	}{
		{"default", Flags{}, log.WarnLevel},
		{"verbose", Flags{Verbose: true}, log.DebugLevel},
		{"quiet wins over verbose", Flags{Verbose: true, Quiet: true}, log.ErrorLevel},
		{"serve mode logs info", Flags{Timestamps: true}, log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLogger(&bytes.Buffer{})
			Configure(l, tt.flags)
			if got := l.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigure_JSON(t *testing.T) {
	ctx, buf := NewTestContext(Flags{JSON: true, Verbose: true})
	FromContext(ctx).Info("warmed", "key", "fixtures/2026-10-14")

	out := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"key":"fixtures/2026-10-14"`) {
		t.Errorf("missing key field in %q", out)
	}
}
