// Package resolver rewrites a flat expression tree into a precedence-correct
// parse tree. Resolution is a fixed sequence of passes; each pass is a full
// traversal of the tree as the previous pass left it.
//
// A Resolver is read-only after construction and may be shared between
// goroutines. The trees it rewrites must not be.
package resolver

import (
	"fmt"

	"github.com/crystal-mush/gridscript/pkg/tree"
)

// Fixity is the position of an operator relative to its operands.
type Fixity int

const (
	LeftUnary  Fixity = iota // prefix: -x
	RightUnary               // postfix: x++
	Binary                   // a + b
)

func (f Fixity) String() string {
	switch f {
	case LeftUnary:
		return "left_unary"
	case RightUnary:
		return "right_unary"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("fixity(%d)", int(f))
	}
}

// ParseFixity accepts the names produced by String plus the aliases
// "prefix" and "postfix".
func ParseFixity(s string) (Fixity, error) {
	switch s {
	case "left_unary", "prefix":
		return LeftUnary, nil
	case "right_unary", "postfix":
		return RightUnary, nil
	case "binary":
		return Binary, nil
	}
	return 0, fmt.Errorf("resolver: unknown fixity %q", s)
}

// Level is one precedence level: operator symbol to fixity.
type Level map[string]Fixity

// Syntax names the grammar symbols the passes treat specially.
type Syntax struct {
	Separator   string // argument separator
	CallBracket string // bracket that opens a call's argument list
	ListBracket string // bracket that opens a list literal
	AngleOpen   string // opens a vector/rotation declaration
	AngleClose  string // closes a vector/rotation declaration
	Dot         string // member access
	Negate      string // prefix operator that may absorb the deferred literal
}

// DefaultSyntax is the scripting language's choice of special symbols.
var DefaultSyntax = Syntax{
	Separator:   ",",
	CallBracket: "(",
	ListBracket: "[",
	AngleOpen:   "<",
	AngleClose:  ">",
	Dot:         ".",
	Negate:      "-",
}

// Resolver holds the grammar tables the passes consult.
type Resolver struct {
	reserved map[string]bool
	levels   []Level
	openers  map[string]string // open -> close
	closers  map[string]string // close -> open
	syntax   Syntax
}

// New creates a resolver with DefaultSyntax. levels is ordered from the
// tightest-binding level to the loosest.
func New(reserved []string, levels []Level, brackets map[string]string) *Resolver {
	return NewWithSyntax(reserved, levels, brackets, DefaultSyntax)
}

// NewWithSyntax creates a resolver with explicit special symbols. All inputs
// are copied.
func NewWithSyntax(reserved []string, levels []Level, brackets map[string]string, syn Syntax) *Resolver {
	r := &Resolver{
		reserved: make(map[string]bool, len(reserved)),
		levels:   make([]Level, len(levels)),
		openers:  make(map[string]string, len(brackets)),
		closers:  make(map[string]string, len(brackets)),
		syntax:   syn,
	}
	for _, w := range reserved {
		r.reserved[w] = true
	}
	for i, lvl := range levels {
		cp := make(Level, len(lvl))
		for sym, f := range lvl {
			cp[sym] = f
		}
		r.levels[i] = cp
	}
	for open, close := range brackets {
		r.openers[open] = close
		r.closers[close] = open
	}
	return r
}

// Syntax returns the special symbols in use.
func (r *Resolver) Syntax() Syntax { return r.syntax }

// Process resolves root in place. On success root has exactly one child,
// the resolved expression, and is marked Resolved; resolving it again
// returns ErrAlreadyResolved. On failure the tree is left partially
// rewritten and must be discarded.
func (r *Resolver) Process(root *tree.Tree, variables []string) error {
	if root == nil || root.Tag != tree.TagExpressionRoot {
		return errorf(ErrUnresolved, 0, "expression tree not solved: no expression root")
	}
	if root.Resolved {
		return errorf(ErrAlreadyResolved, root.Pos, "expression tree already resolved")
	}
	vars := make(map[string]bool, len(variables))
	for _, v := range variables {
		vars[v] = true
	}

	r.tagReserved(root)
	r.tagVariables(root, vars)
	if err := r.resolveLiterals(root); err != nil {
		return err
	}
	r.tagSeparators(root)
	r.tagBrackets(root)
	if err := r.sortBrackets(root); err != nil {
		return err
	}
	if err := r.sortDeclarations(root); err != nil {
		return err
	}
	if err := r.sortFunctions(root); err != nil {
		return err
	}
	r.sortDots(root)
	r.identifyUnary(root)
	if err := r.sortUnary(root); err != nil {
		return err
	}
	r.identifyBinary(root)
	r.sortBinary(root)
	if err := r.check(root); err != nil {
		return err
	}
	root.Resolved = true
	return nil
}

// hasFixity reports whether any level lists sym with fixity f. The first
// level that does wins.
func (r *Resolver) hasFixity(sym string, f Fixity) bool {
	for _, lvl := range r.levels {
		if got, ok := lvl[sym]; ok && got == f {
			return true
		}
	}
	return false
}

// splice replaces kids[from:to] with n, returning a fresh slice.
func splice(kids []*tree.Tree, from, to int, n *tree.Tree) []*tree.Tree {
	out := make([]*tree.Tree, 0, len(kids)-(to-from)+1)
	out = append(out, kids[:from]...)
	out = append(out, n)
	out = append(out, kids[to:]...)
	return out
}
