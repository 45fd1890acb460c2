package tree

import (
	"strconv"
	"strings"
)

// CharClasses carries the character sets used to classify tokens.
type CharClasses struct {
	Operators           string // characters that form operator runs
	SingleOperators     string // characters that are always an operator on their own
	NumericContinuation string // characters that may follow the first digit of a number
	Quote               byte
	Escape              byte
}

// DefaultCharClasses matches the scripting language's lexical conventions.
var DefaultCharClasses = CharClasses{
	Operators:           "+-*/%<>=!&|^~.",
	SingleOperators:     "()[]{},;",
	NumericContinuation: "0123456789abcdefABCDEFxX.",
	Quote:               '"',
	Escape:              '\\',
}

// Token is a pre-tokenized string with its byte offset in the source.
type Token struct {
	Text string
	Pos  int
}

// FromStrings builds a flat tree from tokens without position information.
func FromStrings(tokens []string, cc CharClasses) *Tree {
	toks := make([]Token, len(tokens))
	for i, s := range tokens {
		toks[i] = Token{Text: s}
	}
	return FromTokens(toks, cc)
}

// FromTokens builds an ExpressionRoot whose immediate children are the
// lexemes of tokens, classified by local lexical rules. A token holding more
// than one lexeme is split.
func FromTokens(tokens []Token, cc CharClasses) *Tree {
	root := New(TagExpressionRoot, "", 0)
	for _, tok := range tokens {
		cc.split(root, tok)
	}
	return root
}

func (cc CharClasses) split(root *Tree, tok Token) {
	s := tok.Text
	if s == "" {
		return
	}
	if s[0] == cc.Quote {
		root.Append(New(TagStringLiteral, s, tok.Pos))
		return
	}
	i := 0
	for i < len(s) {
		c := s[i]
		start := i
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++
			continue
		case c == cc.Quote:
			i = cc.scanString(s, i)
			root.Append(New(TagStringLiteral, s[start:i], tok.Pos+start))
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			i = cc.ScanNumber(s, i)
			root.Append(New(TagNumericLiteral, s[start:i], tok.Pos+start))
		case strings.IndexByte(cc.SingleOperators, c) >= 0:
			i++
			root.Append(New(TagOperatorUnresolved, s[start:i], tok.Pos+start))
		case strings.IndexByte(cc.Operators, c) >= 0:
			for i < len(s) && strings.IndexByte(cc.Operators, s[i]) >= 0 && strings.IndexByte(cc.SingleOperators, s[i]) < 0 {
				i++
			}
			root.Append(New(TagOperatorUnresolved, s[start:i], tok.Pos+start))
		default:
			for i < len(s) && cc.isWordByte(s[i]) {
				i++
			}
			root.Append(New(TagUnknown, s[start:i], tok.Pos+start))
		}
	}
}

func (cc CharClasses) isWordByte(c byte) bool {
	switch {
	case c == ' ' || c == '\t' || c == '\r' || c == '\n', c == cc.Quote:
		return false
	case strings.IndexByte(cc.Operators, c) >= 0, strings.IndexByte(cc.SingleOperators, c) >= 0:
		return false
	}
	return true
}

// ScanNumber returns the end offset of the numeric lexeme starting at i.
// A sign directly after a decimal exponent marker continues the number.
func (cc CharClasses) ScanNumber(s string, i int) int {
	hex := len(s) > i+1 && s[i] == '0' && (s[i+1] == 'x' || s[i+1] == 'X')
	i++
	for i < len(s) {
		c := s[i]
		if strings.IndexByte(cc.NumericContinuation, c) >= 0 {
			i++
			continue
		}
		if !hex && (c == '+' || c == '-') && (s[i-1] == 'e' || s[i-1] == 'E') {
			i++
			continue
		}
		break
	}
	return i
}

// scanString returns the offset just past the closing quote, or len(s).
func (cc CharClasses) scanString(s string, i int) int {
	i++
	for i < len(s) {
		switch s[i] {
		case cc.Escape:
			i += 2
			continue
		case cc.Quote:
			return i + 1
		}
		i++
	}
	return len(s)
}

// ParseNumber parses an integer (decimal or 0x hex) and falls back to a
// float. Hex literals wrap to 32 bits.
func ParseNumber(text string) (Value, bool) {
	if len(text) > 2 && text[0] == '0' && (text[1] == 'x' || text[1] == 'X') {
		u, err := strconv.ParseUint(text[2:], 16, 32)
		if err != nil {
			return Value{}, false
		}
		return Integer(int32(uint32(u))), true
	}
	if n, err := strconv.ParseInt(text, 10, 32); err == nil {
		return Integer(int32(n)), true
	}
	if strings.ContainsAny(text, "_xXpP") {
		return Value{}, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Value{}, false
	}
	return Float(f), true
}

func unquote(text string) string {
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		return text
	}
	body := text[1 : len(text)-1]
	if strings.IndexByte(body, '\\') < 0 {
		return body
	}
	var sb strings.Builder
	sb.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			sb.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteString("    ")
		default:
			sb.WriteByte(body[i])
		}
	}
	return sb.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
