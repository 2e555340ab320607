package upstream

import (
	"context"
	"errors"
	"strings"

	"github.com/fixturegate/fixturegate/internal/httpclient"
)

// Summarize turns a fetch error into the short text stored with an error
// snapshot and shown to clients.
func Summarize(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNoAPIKey) {
		return "API key not configured"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream request timed out"
	}
	lowered := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowered, "request limit"), strings.Contains(lowered, "daily limit"):
		return "API daily request limit reached"
	case strings.Contains(lowered, "free plans do not have access"):
		return "free-plan date window blocked"
	case strings.Contains(lowered, "timeout"):
		return "upstream request timed out"
	}
	return "upstream refresh failed: " + httpclient.SummarizeBody([]byte(err.Error()))
}
