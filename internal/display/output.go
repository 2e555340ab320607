package display

import (
	"encoding/json"
	"io"
	"os"

	"github.com/charmbracelet/x/term"
)

// OutputJSON writes v as indented JSON. HTML escaping is off so logo and
// crest URLs stay readable.
func OutputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// TerminalWidth returns the width of the terminal behind w, or 0 when w is
// not a terminal so tables keep their natural width.
func TerminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return 0
	}
	width, _, err := term.GetSize(f.Fd())
	if err != nil || width <= 0 {
		return 0
	}
	return width
}
