package compiler

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/crystal-mush/gridscript/pkg/fold"
	"github.com/crystal-mush/gridscript/pkg/lexer"
	"github.com/crystal-mush/gridscript/pkg/resolver"
	"github.com/crystal-mush/gridscript/pkg/tree"
)

// Code classifies a diagnostic for clients and the diagnostics log.
type Code string

const (
	CodeLex                 Code = "lex"
	CodeBracketMismatch     Code = "bracket-mismatch"
	CodeUnclosedBracket     Code = "unclosed-bracket"
	CodeUnclosedDeclaration Code = "unclosed-declaration"
	CodeMissingArgument     Code = "missing-argument"
	CodeInvalidLiteral      Code = "invalid-literal"
	CodeUnresolved          Code = "unresolved"
	CodeAlreadyResolved     Code = "already-resolved"
	CodeEval                Code = "eval"
)

// Diagnostic is a compile error located in the source. Line and Column are
// 1-based; Column counts runes.
type Diagnostic struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Offset  int    `json:"offset"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

func (d *Diagnostic) Unwrap() error { return d.Err }

// diagnose locates err in src. Errors that carry no offset are reported at
// the start of the source.
func diagnose(src string, err error) *Diagnostic {
	d := &Diagnostic{Code: CodeUnresolved, Message: err.Error(), Err: err}

	var (
		lexErr  *lexer.Error
		resErr  *resolver.Error
		litErr  *tree.Error
		foldErr *fold.Error
	)
	switch {
	case errors.As(err, &lexErr):
		d.Offset, d.Code = lexErr.Pos, CodeLex
	case errors.As(err, &litErr):
		d.Offset, d.Code = litErr.Pos, CodeInvalidLiteral
	case errors.As(err, &foldErr):
		d.Offset, d.Code = foldErr.Pos, CodeEval
	case errors.As(err, &resErr):
		d.Offset = resErr.Pos
		switch {
		case errors.Is(err, resolver.ErrBracketMismatch):
			d.Code = CodeBracketMismatch
		case errors.Is(err, resolver.ErrUnclosedBracket):
			d.Code = CodeUnclosedBracket
		case errors.Is(err, resolver.ErrUnclosedDeclaration):
			d.Code = CodeUnclosedDeclaration
		case errors.Is(err, resolver.ErrMissingArgument):
			d.Code = CodeMissingArgument
		case errors.Is(err, resolver.ErrAlreadyResolved):
			d.Code = CodeAlreadyResolved
		}
	}
	d.Line, d.Column = position(src, d.Offset)
	return d
}

func position(src string, off int) (line, col int) {
	if off > len(src) {
		off = len(src)
	}
	before := src[:off]
	line = strings.Count(before, "\n") + 1
	if nl := strings.LastIndexByte(before, '\n'); nl >= 0 {
		before = before[nl+1:]
	}
	return line, utf8.RuneCountInString(before) + 1
}
