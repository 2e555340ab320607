package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fixturegate/fixturegate/internal/display"
)

// outWriter receives all command output. Tests swap it for a buffer.
var outWriter io.Writer = os.Stdout

func out(format string, a ...any) {
	_, _ = fmt.Fprintf(outWriter, format, a...)
}

func outln(a ...any) {
	_, _ = fmt.Fprintln(outWriter, a...)
}

// outJSON writes v for --json.
func outJSON(v any) error {
	return display.OutputJSON(outWriter, v)
}

// outRendered writes pre-rendered human output.
func outRendered(s string) {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, _ = io.WriteString(outWriter, s)
}
