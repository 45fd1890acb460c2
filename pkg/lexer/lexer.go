// Package lexer splits script source into positioned lexemes for the
// expression tree builder.
package lexer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crystal-mush/gridscript/pkg/tree"
)

// Error is a lexical failure at a byte offset.
type Error struct {
	Msg string
	Pos int
}

func (e *Error) Error() string { return e.Msg }

// Lexer is read-only after construction.
type Lexer struct {
	ops   []string // longest first
	chars tree.CharClasses
}

// New creates a lexer that matches operators greedily against ops.
func New(ops []string, cc tree.CharClasses) *Lexer {
	sorted := append([]string(nil), ops...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return &Lexer{ops: sorted, chars: cc}
}

// Tokenize returns the lexemes of src, skipping whitespace and comments.
func (l *Lexer) Tokenize(src string) ([]tree.Token, error) {
	var toks []tree.Token
	pos := 0
	for pos < len(src) {
		ch := src[pos]
		start := pos
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			pos++

		case strings.HasPrefix(src[pos:], "//"):
			for pos < len(src) && src[pos] != '\n' {
				pos++
			}

		case strings.HasPrefix(src[pos:], "/*"):
			end := strings.Index(src[pos+2:], "*/")
			if end < 0 {
				return nil, &Error{Msg: "unterminated comment", Pos: start}
			}
			pos += end + 4

		case ch == l.chars.Quote:
			pos++
			closed := false
			for pos < len(src) {
				c := src[pos]
				if c == l.chars.Escape {
					pos += 2
					continue
				}
				pos++
				if c == l.chars.Quote {
					closed = true
					break
				}
			}
			if !closed {
				return nil, &Error{Msg: "unterminated string", Pos: start}
			}
			toks = append(toks, tree.Token{Text: src[start:pos], Pos: start})

		case isDigit(ch) || (ch == '.' && pos+1 < len(src) && isDigit(src[pos+1])):
			pos = l.chars.ScanNumber(src, pos)
			toks = append(toks, tree.Token{Text: src[start:pos], Pos: start})

		case isIdentStart(ch):
			for pos < len(src) && isIdentByte(src[pos]) {
				pos++
			}
			toks = append(toks, tree.Token{Text: src[start:pos], Pos: start})

		default:
			op := l.matchOperator(src[pos:])
			if op == "" {
				return nil, &Error{Msg: fmt.Sprintf("unexpected character %q", ch), Pos: start}
			}
			pos += len(op)
			toks = append(toks, tree.Token{Text: op, Pos: start})
		}
	}
	return toks, nil
}

func (l *Lexer) matchOperator(s string) string {
	for _, op := range l.ops {
		if strings.HasPrefix(s, op) {
			return op
		}
	}
	return ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentByte(c byte) bool { return isIdentStart(c) || isDigit(c) }
