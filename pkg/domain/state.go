package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// State holds the field values of a thread.
// Append fields are stored as []any, replace fields as whatever the writer supplied.
type State map[string]any

// Update is a partial State: only the fields a step or a human wants to change.
type Update map[string]any

// Clone returns a copy of the state that shares no slices or maps with the receiver.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, inner := range t {
			cp[k] = cloneValue(inner)
		}
		return cp
	default:
		return v
	}
}

// String returns a replace field as a string, or "" if it is absent or not a string.
func (s State) String(field string) string {
	v, _ := s[field].(string)
	return v
}

// Strings decodes an append field into a string slice.
func (s State) Strings(field string) ([]string, error) {
	var out []string
	if err := decode(s[field], &out); err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	return out, nil
}

// Messages decodes an append field into transcript messages.
// Values may be Message structs (in memory) or generic maps (after a JSON round trip).
func (s State) Messages(field string) ([]Message, error) {
	var out []Message
	if err := decode(s[field], &out); err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	return out, nil
}

func decode(in any, out any) error {
	if in == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: false,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
