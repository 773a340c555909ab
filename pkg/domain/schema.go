package domain

import (
	"fmt"
	"reflect"
)

// MergePolicy decides how an update to a field combines with its previous value.
type MergePolicy int

const (
	// Replace overwrites the previous value.
	Replace MergePolicy = iota
	// Append concatenates the new value(s) onto the existing sequence.
	Append
)

func (p MergePolicy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Field declares one state field.
type Field struct {
	Name   string
	Policy MergePolicy
	// Default is used for Replace fields before the first write. Nil means "".
	Default any
}

// Schema is the immutable set of fields of a State.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema validates the field list and builds a Schema.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema: field name cannot be empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		if f.Policy != Replace && f.Policy != Append {
			return nil, fmt.Errorf("schema: field %q has unknown policy %v", f.Name, f.Policy)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Meant for package-level schemas.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Policy returns the merge policy of a field.
func (s *Schema) Policy(name string) (MergePolicy, bool) {
	i, ok := s.index[name]
	if !ok {
		return 0, false
	}
	return s.fields[i].Policy, true
}

// Init builds a State where every field holds its default, then applies initial.
func (s *Schema) Init(initial Update) (State, error) {
	return s.Apply(nil, initial)
}

// Apply merges update into prev and returns the result. prev is not modified.
// Fields missing from prev are filled with their defaults; fields not named in
// update are carried over unchanged.
func (s *Schema) Apply(prev State, update Update) (State, error) {
	for name := range update {
		if _, ok := s.index[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}

	next := prev.Clone()
	if next == nil {
		next = make(State, len(s.fields))
	}
	for _, f := range s.fields {
		if _, ok := next[f.Name]; !ok {
			next[f.Name] = f.zero()
		}
	}

	for _, f := range s.fields {
		val, touched := update[f.Name]
		if !touched {
			continue
		}
		switch f.Policy {
		case Append:
			existing, _ := next[f.Name].([]any)
			next[f.Name] = append(existing, toSlice(val)...)
		default:
			next[f.Name] = cloneValue(val)
		}
	}
	return next, nil
}

func (f Field) zero() any {
	if f.Policy == Append {
		return []any{}
	}
	if f.Default == nil {
		return ""
	}
	return f.Default
}

// toSlice spreads slices and arrays into their elements; any other value is a single element.
func toSlice(v any) []any {
	if v == nil {
		return nil
	}
	if items, ok := v.([]any); ok {
		out := make([]any, len(items))
		for i := range items {
			out[i] = cloneValue(items[i])
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return []any{v}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	default:
		return []any{v}
	}
}
