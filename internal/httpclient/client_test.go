package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetJSONCtx_DecodesBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-apisports-key"); got != "k" {
			t.Errorf("header = %q", got)
		}
		if got := r.URL.Query().Get("date"); got != "2026-10-14" {
			t.Errorf("date = %q", got)
		}
		w.Header().Set("X-Ratelimit-Requests-Remaining", "41")
		_, _ = w.Write([]byte(`{"results":3}`))
	}))
	defer srv.Close()

	var out struct {
		Results int `json:"results"`
	}
	resp, err := New().GetJSONCtx(context.Background(), srv.URL+"/fixtures", &out,
		WithHeader("x-apisports-key", "k"), WithQuery("date", "2026-10-14"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || resp.JSONErr != nil {
		t.Fatalf("resp = %+v", resp)
	}
	if out.Results != 3 {
		t.Errorf("results = %d", out.Results)
	}
	if got := resp.Header.Get("x-ratelimit-requests-remaining"); got != "41" {
		t.Errorf("remaining header = %q", got)
	}
}

func TestGetJSONCtx_CapturesDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	var out map[string]any
	resp, err := New().GetJSONCtx(context.Background(), srv.URL, &out)
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway || resp.JSONErr == nil {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDoCtx_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewWithTimeout(50*time.Millisecond).DoCtx(context.Background(), http.MethodGet, srv.URL, nil)
	if err == nil {
		t.Fatal("expected a timeout")
	}
}

func TestDoCtx_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().DoCtx(ctx, http.MethodGet, srv.URL, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSummarizeBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "empty body"},
		{"blank", " \n\t ", "empty body"},
		{"trimmed", " ok ", "ok"},
		{"collapses whitespace", "{\n  \"errors\": {\n    \"token\": \"bad\"\n  }\n}", `{ "errors": { "token": "bad" } }`},
		{"truncates", strings.Repeat("x", 200), strings.Repeat("x", 120) + "..."},
		{"truncates on runes", strings.Repeat("é", 130), strings.Repeat("é", 120) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SummarizeBody([]byte(tt.in)); got != tt.want {
				t.Errorf("SummarizeBody(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
