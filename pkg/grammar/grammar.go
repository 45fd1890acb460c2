// Package grammar defines the scripting language's expression grammar: the
// reserved words, operator precedence table, bracket pairs and lexical
// character classes the resolver and lexer are built from.
package grammar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/crystal-mush/gridscript/pkg/lexer"
	"github.com/crystal-mush/gridscript/pkg/resolver"
	"github.com/crystal-mush/gridscript/pkg/tree"
)

// Grammar is immutable once built; share it freely.
type Grammar struct {
	Name     string
	Version  string
	Reserved []string
	Levels   []resolver.Level // tightest first
	Brackets map[string]string
	Syntax   resolver.Syntax
	Chars    tree.CharClasses
}

// Reserved words of the scripting language.
var defaultReserved = []string{
	// types
	"integer", "float", "string", "key", "vector", "rotation", "quaternion", "list",
	// control flow
	"if", "else", "for", "do", "while", "jump", "return",
	// states and events
	"state", "default", "event", "print",
}

// Default returns the scripting language's grammar.
func Default() *Grammar {
	return &Grammar{
		Name:     "lsl",
		Version:  "1",
		Reserved: append([]string(nil), defaultReserved...),
		Levels: []resolver.Level{
			{"++": resolver.RightUnary, "--": resolver.RightUnary},
			{"++": resolver.LeftUnary, "--": resolver.LeftUnary, "!": resolver.LeftUnary, "~": resolver.LeftUnary, "-": resolver.LeftUnary},
			{"*": resolver.Binary, "/": resolver.Binary, "%": resolver.Binary},
			{"+": resolver.Binary, "-": resolver.Binary},
			{"<<": resolver.Binary, ">>": resolver.Binary},
			{"<": resolver.Binary, "<=": resolver.Binary, ">": resolver.Binary, ">=": resolver.Binary},
			{"==": resolver.Binary, "!=": resolver.Binary},
			{"&": resolver.Binary},
			{"^": resolver.Binary},
			{"|": resolver.Binary},
			{"&&": resolver.Binary, "||": resolver.Binary},
			{"=": resolver.Binary, "+=": resolver.Binary, "-=": resolver.Binary, "*=": resolver.Binary, "/=": resolver.Binary, "%=": resolver.Binary},
		},
		Brackets: map[string]string{"(": ")", "[": "]"},
		Syntax:   resolver.DefaultSyntax,
		Chars:    tree.DefaultCharClasses,
	}
}

// NewResolver builds a resolver over this grammar's tables.
func (g *Grammar) NewResolver() *resolver.Resolver {
	return resolver.NewWithSyntax(g.Reserved, g.Levels, g.Brackets, g.Syntax)
}

// NewLexer builds a lexer that recognises this grammar's operators.
func (g *Grammar) NewLexer() *lexer.Lexer {
	return lexer.New(g.Operators(), g.Chars)
}

// Operators returns every operator-like symbol of the grammar, longest first.
func (g *Grammar) Operators() []string {
	set := make(map[string]bool)
	for _, lvl := range g.Levels {
		for sym := range lvl {
			set[sym] = true
		}
	}
	for open, close := range g.Brackets {
		set[open] = true
		set[close] = true
	}
	for _, sym := range []string{g.Syntax.Separator, g.Syntax.AngleOpen, g.Syntax.AngleClose, g.Syntax.Dot, g.Syntax.Negate, ";"} {
		if sym != "" {
			set[sym] = true
		}
	}
	ops := make([]string, 0, len(set))
	for sym := range set {
		ops = append(ops, sym)
	}
	sort.Slice(ops, func(i, j int) bool {
		if len(ops[i]) != len(ops[j]) {
			return len(ops[i]) > len(ops[j])
		}
		return ops[i] < ops[j]
	})
	return ops
}

// Fingerprint identifies the grammar's content. Cached trees are keyed by it
// so a grammar change never serves a tree resolved under different rules.
func (g *Grammar) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00", g.Name, g.Version)
	reserved := append([]string(nil), g.Reserved...)
	sort.Strings(reserved)
	fmt.Fprintf(h, "%s\x00", strings.Join(reserved, " "))
	for _, lvl := range g.Levels {
		syms := make([]string, 0, len(lvl))
		for sym, f := range lvl {
			syms = append(syms, sym+":"+f.String())
		}
		sort.Strings(syms)
		fmt.Fprintf(h, "%s\x00", strings.Join(syms, " "))
	}
	opens := make([]string, 0, len(g.Brackets))
	for open, close := range g.Brackets {
		opens = append(opens, open+close)
	}
	sort.Strings(opens)
	fmt.Fprintf(h, "%s\x00%+v", strings.Join(opens, " "), g.Syntax)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Validate checks internal consistency.
func (g *Grammar) Validate() error {
	if len(g.Levels) == 0 {
		return fmt.Errorf("grammar %s: no precedence levels", g.Name)
	}
	for open, close := range g.Brackets {
		if open == "" || close == "" {
			return fmt.Errorf("grammar %s: empty bracket symbol", g.Name)
		}
		if open == close {
			return fmt.Errorf("grammar %s: bracket %q closes itself", g.Name, open)
		}
	}
	if g.Syntax.CallBracket != "" {
		if _, ok := g.Brackets[g.Syntax.CallBracket]; !ok {
			return fmt.Errorf("grammar %s: call bracket %q is not a bracket pair", g.Name, g.Syntax.CallBracket)
		}
	}
	if g.Syntax.ListBracket != "" {
		if _, ok := g.Brackets[g.Syntax.ListBracket]; !ok {
			return fmt.Errorf("grammar %s: list bracket %q is not a bracket pair", g.Name, g.Syntax.ListBracket)
		}
	}
	if g.Syntax.Separator == "" {
		return fmt.Errorf("grammar %s: no argument separator", g.Name)
	}
	for i, lvl := range g.Levels {
		for sym := range lvl {
			if _, ok := g.Brackets[sym]; ok {
				return fmt.Errorf("grammar %s: level %d: %q is also a bracket", g.Name, i, sym)
			}
		}
	}
	return nil
}
