package schema

import (
	"fmt"
	"strings"
)

// Status classifies a validation result.
type Status string

const (
	// StatusValid: the output satisfies the kind's contract as-is.
	StatusValid Status = "valid"
	// StatusRepairable: structurally valid but bound-violating; a
	// deterministic repair (truncate/clamp) was applied.
	StatusRepairable Status = "repairable"
	// StatusInvalid: missing or unparseable structure, or a categorical
	// field outside its closed set. Cannot be repaired locally.
	StatusInvalid Status = "invalid"
)

// FieldError is one field-level violation.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Outcome is the transient result of validating one raw agent output. It is
// produced and consumed within a single invoker call and never persisted.
type Outcome struct {
	Status Status
	Errors []FieldError
}

// Summary renders the violations for a corrective retry prompt.
func (o Outcome) Summary() string {
	if len(o.Errors) == 0 {
		return string(o.Status)
	}
	parts := make([]string, 0, len(o.Errors))
	for _, e := range o.Errors {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}

func valid() Outcome {
	return Outcome{Status: StatusValid}
}

func invalidf(field, format string, args ...any) Outcome {
	return Outcome{
		Status: StatusInvalid,
		Errors: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}},
	}
}
