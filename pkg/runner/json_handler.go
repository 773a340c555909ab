package runner

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/aretw0/waypoint"
)

// JSONResult is the line written for each result.
type JSONResult struct {
	ThreadID         string `json:"thread_id"`
	Status           string `json:"status"`
	Response         string `json:"response"`
	ProposedResponse string `json:"proposed_response,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Encoder *json.Encoder

	input *linePump
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{Encoder: json.NewEncoder(w), input: newLinePump(r)}
}

func (h *JSONHandler) Output(ctx context.Context, res *waypoint.Result) error {
	return h.Encoder.Encode(JSONResult{
		ThreadID:         res.ThreadID,
		Status:           string(res.Status),
		Response:         res.Response,
		ProposedResponse: res.ProposedResponse,
	})
}

// Input accepts a JSON string, an object with an "input" field, or raw text.
func (h *JSONHandler) Input(ctx context.Context, _ Prompt) (string, error) {
	text, err := h.input.next(ctx)
	if err != nil {
		return "", err
	}

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return val, nil
	}
	var obj struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj.Input, nil
	}
	return text, nil
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(map[string]string{"system": msg})
}

// Close stops the input reader. Later reads return io.EOF.
func (h *JSONHandler) Close() error {
	h.input.stop()
	return nil
}
