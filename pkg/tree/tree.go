// Package tree holds the node type of the expression parse tree and the
// lexical rules that turn a token sequence into a flat, unresolved tree.
package tree

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/edwingeng/deque"
)

// DeferredLiteral is left unresolved by literal resolution so that a
// leading unary minus can still produce the minimum 32-bit integer.
const DeferredLiteral = "2147483648"

// ErrNotAValue is the Kind of errors raised for malformed literals.
var ErrNotAValue = errors.New("not a value")

// Error is a literal resolution failure.
type Error struct {
	Kind error
	Text string
	Pos  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("'%s' is not a value", e.Text)
}

func (e *Error) Unwrap() error { return e.Kind }

// Tree is one syntactic unit. Children are owned by their parent; a node is
// never reachable from two parents.
type Tree struct {
	Tag             Tag     `json:"tag"`
	Text            string  `json:"text,omitempty"`
	Pos             int     `json:"pos"`
	Children        []*Tree `json:"children,omitempty"`
	Value           *Value  `json:"value,omitempty"`
	AlreadyCombined bool    `json:"-"`
	Resolved        bool    `json:"resolved,omitempty"` // root only: set once fully resolved
}

// New creates a childless node.
func New(tag Tag, text string, pos int) *Tree {
	return &Tree{Tag: tag, Text: text, Pos: pos}
}

// Append adds children in order.
func (t *Tree) Append(children ...*Tree) {
	t.Children = append(t.Children, children...)
}

// Process resolves the literal value of this node. It never recurses.
func (t *Tree) Process() error {
	switch t.Tag {
	case TagStringLiteral:
		v := String(unquote(t.Text))
		t.Value = &v
	case TagNumericLiteral:
		v, ok := ParseNumber(t.Text)
		if !ok {
			return &Error{Kind: ErrNotAValue, Text: t.Text, Pos: t.Pos}
		}
		t.Value = &v
	}
	return nil
}

// Deferred reports whether this node is the deferred integer literal.
func (t *Tree) Deferred() bool {
	return t.Tag == TagNumericLiteral && t.Value == nil && t.Text == DeferredLiteral
}

// Walk visits every node depth-first, pre-order, using an explicit stack.
// Returning false from fn skips the node's children.
func Walk(root *Tree, fn func(*Tree) bool) {
	stack := []*Tree{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Containers returns every node that has children, innermost first: each
// node appears after all of its descendants.
func Containers(root *Tree) []*Tree {
	var order []*Tree
	queue := deque.NewDeque()
	queue.PushBack(root)
	for !queue.Empty() {
		n := queue.Front().(*Tree)
		queue.PopFront()
		if len(n.Children) == 0 {
			continue
		}
		order = append(order, n)
		for _, c := range n.Children {
			queue.PushBack(c)
		}
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// String renders the tree as an s-expression, e.g. (+ 2 (* 3 4)).
func (t *Tree) String() string {
	var sb strings.Builder
	t.writeSexpr(&sb)
	return sb.String()
}

func (t *Tree) writeSexpr(sb *strings.Builder) {
	label := t.Text
	switch t.Tag {
	case TagExpressionRoot:
		label = "root"
	case TagLevel:
		label = t.Text + t.closer()
	case TagFunctionArgument, TagDeclarationArgument:
		label = ""
	case TagDeclaration:
		label = "<>"
	case TagList:
		label = "[]"
	case TagVectorLiteral, TagRotationLiteral:
		if t.Value != nil {
			label = t.Value.String()
		}
	}
	if len(t.Children) == 0 {
		if label == "" {
			label = "()"
		}
		sb.WriteString(label)
		return
	}
	if label == "" && len(t.Children) == 1 {
		t.Children[0].writeSexpr(sb)
		return
	}
	sb.WriteByte('(')
	sb.WriteString(label)
	for _, c := range t.Children {
		sb.WriteByte(' ')
		c.writeSexpr(sb)
	}
	sb.WriteByte(')')
}

func (t *Tree) closer() string {
	switch t.Text {
	case "(":
		return ")"
	case "[":
		return "]"
	case "{":
		return "}"
	}
	return ""
}

// Dump writes an indented, one-node-per-line view of the tree.
func (t *Tree) Dump(w io.Writer) {
	type frame struct {
		n     *Tree
		depth int
	}
	stack := []frame{{t, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		line := strings.Repeat("  ", f.depth) + f.n.Tag.String()
		if f.n.Text != "" {
			line += " " + f.n.Text
		}
		if f.n.Value != nil {
			line += fmt.Sprintf(" = %s(%s)", f.n.Value.Kind, f.n.Value)
		}
		fmt.Fprintln(w, line)
		for i := len(f.n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.n.Children[i], f.depth + 1})
		}
	}
}
