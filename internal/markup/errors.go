package markup

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax matches every *SyntaxError.
	ErrSyntax = errors.New("markup: syntax error")
	// ErrStructure matches every *StructureError.
	ErrStructure = errors.New("markup: structure error")
	// ErrPlacement is returned when a node substitution does not end up in
	// element content, for example inside an attribute value.
	ErrPlacement = errors.New("markup: node substitution outside element content")
)

// SyntaxError reports malformed markup: unbalanced tags, unterminated tags or
// attribute values, and invalid attribute names.
type SyntaxError struct {
	Reason string
	Markup string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("markup: syntax error: %s in %q", e.Reason, e.Markup)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// StructureError reports a fragment that does not resolve to exactly one
// top-level element.
type StructureError struct {
	Count  int
	Markup string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("markup: expected exactly one top-level element, found %d in %q", e.Count, e.Markup)
}

func (e *StructureError) Is(target error) bool { return target == ErrStructure }
