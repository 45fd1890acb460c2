package resolver

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrBracketMismatch     = errors.New("bracket mismatch")
	ErrUnclosedBracket     = errors.New("unclosed bracket")
	ErrUnclosedDeclaration = errors.New("unclosed declaration")
	ErrMissingArgument     = errors.New("missing argument")
	ErrUnresolved          = errors.New("expression tree not solved")
	ErrAlreadyResolved     = errors.New("expression tree already resolved")
)

// Error is a structural resolution failure. Pos is the byte offset of the
// offending node, as recorded by the lexer.
type Error struct {
	Kind error
	Msg  string
	Pos  int
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func errorf(kind error, pos int, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
