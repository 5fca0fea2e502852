package parser

import (
	"fmt"

	"github.com/relsql/relsql/token"
)

// ParseError is a single non-fatal diagnostic produced while parsing.
// Errors never abort the parse; they accumulate on the Parser and the
// affected subtree is represented by an ErrorExpression or ErrorStatement.
type ParseError struct {
	Message  string
	Position token.Position
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s (at %s)", e.Message, e.Position)
}
