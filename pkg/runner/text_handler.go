package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/review"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	Writer   io.Writer
	Renderer ContentRenderer

	input *linePump
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer renders proposals and final responses before printing them.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{Writer: w, input: newLinePump(r)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *TextHandler) Output(ctx context.Context, res *waypoint.Result) error {
	switch res.Status {
	case domain.StatusSuspended:
		fmt.Fprintf(h.Writer, "\n[%s] Proposed response:\n%s\n\n%s\n",
			res.ThreadID, h.render(res.ProposedResponse), review.InterventionNotice)
	case domain.StatusTerminal:
		fmt.Fprintf(h.Writer, "\n[%s] Final response:\n%s\n", res.ThreadID, h.render(res.Response))
	default:
		fmt.Fprintf(h.Writer, "\n[%s] %s\n", res.ThreadID, res.Status)
	}
	return nil
}

func (h *TextHandler) Input(ctx context.Context, prompt Prompt) (string, error) {
	fmt.Fprintf(h.Writer, "%s> ", prompt)
	return h.input.next(ctx)
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "! %s\n", msg)
	return err
}

// render falls back to the raw text when there is no renderer or it fails.
func (h *TextHandler) render(text string) string {
	if h.Renderer != nil {
		if rendered, err := h.Renderer(text); err == nil {
			text = rendered
		}
	}
	return strings.TrimSpace(text)
}

// Close stops the input reader. Later reads return io.EOF.
func (h *TextHandler) Close() error {
	h.input.stop()
	return nil
}
