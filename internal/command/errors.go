package command

import "fmt"

// MissingFieldError is returned when a template references a field that
// was not supplied.
type MissingFieldError struct {
	Field    string
	Template string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q in %q", e.Field, e.Template)
}

// SyntaxError is returned for unbalanced braces.
type SyntaxError struct {
	Template string
	Offset   int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("unbalanced brace at offset %d in %q", e.Offset, e.Template)
}
