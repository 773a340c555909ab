package tui

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown using glamour
// for the given color profile and background.
func NewRenderer(profile termenv.Profile, darkBackground bool) (func(string) (string, error), error) {
	style := "light"
	if darkBackground {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithColorProfile(profile),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, err
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}, nil
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// RendererFor returns a markdown renderer matched to w's terminal, or nil
// when w is not a terminal and output should stay plain.
func RendererFor(w io.Writer) func(string) (string, error) {
	if !IsTerminal(w) {
		return nil
	}
	out := termenv.NewOutput(w)
	r, err := NewRenderer(out.ColorProfile(), out.HasDarkBackground())
	if err != nil {
		return nil
	}
	return r
}
