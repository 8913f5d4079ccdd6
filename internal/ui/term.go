package ui

import (
	"os"

	"golang.org/x/term"
)

// fallbackWidth is used for terminals that do not report a size.
const fallbackWidth = 80

// Stream describes how text written to an output file will be displayed.
type Stream struct {
	TTY bool
	// Color is off for non-terminals and when NO_COLOR is set.
	Color bool
	// Width in columns; 0 means unbounded.
	Width int
}

// Inspect reports how output written to f is displayed. A nil file or one
// that is not a terminal yields the zero Stream.
func Inspect(f *os.File) Stream {
	if f == nil {
		return Stream{}
	}
	fd := int(f.Fd()) //nolint:gosec // fd values fit in int
	if !term.IsTerminal(fd) {
		return Stream{}
	}
	s := Stream{TTY: true, Color: colorAllowed(), Width: fallbackWidth}
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		s.Width = w
	}
	return s
}

// colorAllowed follows https://no-color.org: a non-empty NO_COLOR disables
// styling.
func colorAllowed() bool {
	return os.Getenv("NO_COLOR") == ""
}
