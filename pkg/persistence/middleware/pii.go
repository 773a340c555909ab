package middleware

import (
	"fmt"
	"regexp"

	"github.com/aretw0/waypoint/pkg/domain"
)

// Mask replaces redacted values.
const Mask = "***"

// Redactor masks state values whose key matches one of its patterns.
// It works on copies handed to external readers; checkpoints in the store are
// never masked because steps need the real values.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles the key patterns.
func NewRedactor(patterns []string) (*Redactor, error) {
	r := &Redactor{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Checkpoint returns a copy of cp with matching keys masked at any depth.
func (r *Redactor) Checkpoint(cp *domain.Checkpoint) *domain.Checkpoint {
	if r == nil || len(r.patterns) == 0 || cp == nil {
		return cp
	}
	out := cp.Snapshot()
	r.maskMap(out.State)
	return out
}

func (r *Redactor) match(key string) bool {
	for _, p := range r.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func (r *Redactor) maskMap(m map[string]any) {
	for k, v := range m {
		if r.match(k) {
			m[k] = Mask
			continue
		}
		r.maskValue(v)
	}
}

func (r *Redactor) maskValue(v any) {
	switch t := v.(type) {
	case map[string]any:
		r.maskMap(t)
	case domain.State:
		r.maskMap(t)
	case []any:
		for _, item := range t {
			r.maskValue(item)
		}
	}
}
