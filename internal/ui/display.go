package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

const (
	// fallbackWidth is used when neither the terminal nor $COLUMNS gives a
	// width.
	fallbackWidth = 100

	// maxTextWidth bounds the wrap width of rendered text fields.
	maxTextWidth = 100
)

// Terminal describes the destination of human-readable output.
type Terminal struct {
	Width       int
	Interactive bool
}

// Stdout inspects os.Stdout. The width comes from the terminal, then from
// $COLUMNS, then falls back to a fixed default.
func Stdout() Terminal {
	return inspect(os.Stdout.Fd(), os.Getenv("COLUMNS"))
}

func inspect(fd uintptr, columns string) Terminal {
	t := Terminal{
		Width:       fallbackWidth,
		Interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
	if t.Interactive {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			t.Width = w
			return t
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(columns)); err == nil && n > 0 {
		t.Width = n
	}
	return t
}

// TextWidth is the wrap width for text fields rendered as markdown: the
// terminal width less the render margin, at most maxTextWidth.
func (t Terminal) TextWidth() int {
	w := t.Width - MarkdownRenderMargin
	if w > maxTextWidth {
		w = maxTextWidth
	}
	if w < 20 {
		w = 20
	}
	return w
}
