package idgen

import "github.com/google/uuid"

// NewFunc produces thread identifiers. Tests may replace it for deterministic IDs.
var NewFunc = func() string { return uuid.NewString() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }
