// Package fold evaluates resolved expression trees whose leaves are
// constants, and rewrites constant angle-bracket declarations into vector
// and rotation literals.
package fold

import (
	"errors"
	"fmt"
	"math"

	"github.com/crystal-mush/gridscript/pkg/tree"
)

// Error kinds.
var (
	ErrNotConstant  = errors.New("not a constant expression")
	ErrTypeMismatch = errors.New("type mismatch")
	ErrDivideByZero = errors.New("division by zero")
)

// Error is an evaluation failure at a byte offset.
type Error struct {
	Kind error
	Msg  string
	Pos  int
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func errorf(kind error, pos int, format string, args ...any) (tree.Value, error) {
	return tree.Value{}, &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// Env binds variable names to values.
type Env map[string]tree.Value

// Named constants of the scripting language.
var constants = map[string]tree.Value{
	"TRUE":          tree.Integer(1),
	"FALSE":         tree.Integer(0),
	"PI":            tree.Float(math.Pi),
	"TWO_PI":        tree.Float(2 * math.Pi),
	"PI_BY_TWO":     tree.Float(math.Pi / 2),
	"DEG_TO_RAD":    tree.Float(math.Pi / 180),
	"RAD_TO_DEG":    tree.Float(180 / math.Pi),
	"SQRT2":         tree.Float(math.Sqrt2),
	"ZERO_VECTOR":   tree.Vector(0, 0, 0),
	"ZERO_ROTATION": tree.Rotation(0, 0, 0, 1),
	"NULL_KEY":      tree.String("00000000-0000-0000-0000-000000000000"),
	"EOF":           tree.String("\n\n\n"),
}

// Eval computes the value of a resolved tree. Variables are looked up in
// env, then in the language's named constants.
func Eval(n *tree.Tree, env Env) (tree.Value, error) {
	switch n.Tag {
	case tree.TagExpressionRoot, tree.TagLevel, tree.TagFunctionArgument, tree.TagDeclarationArgument:
		if len(n.Children) != 1 {
			return errorf(ErrNotConstant, n.Pos, "unresolved group")
		}
		return Eval(n.Children[0], env)

	case tree.TagStringLiteral, tree.TagNumericLiteral, tree.TagVectorLiteral, tree.TagRotationLiteral:
		if n.Value == nil {
			if err := n.Process(); err != nil {
				return tree.Value{}, err
			}
		}
		if n.Value == nil {
			return errorf(ErrNotConstant, n.Pos, "'%s' has no value", n.Text)
		}
		return *n.Value, nil

	case tree.TagVariable, tree.TagUnknown:
		if v, ok := env[n.Text]; ok {
			return v, nil
		}
		if v, ok := constants[n.Text]; ok {
			return v, nil
		}
		return errorf(ErrNotConstant, n.Pos, "'%s' is not a constant", n.Text)

	case tree.TagDeclaration:
		return declaration(n, env)

	case tree.TagList:
		elems := make([]tree.Value, 0, len(n.Children))
		for _, c := range n.Children {
			v, err := Eval(c, env)
			if err != nil {
				return tree.Value{}, err
			}
			if v.Kind == tree.KindList {
				return errorf(ErrTypeMismatch, c.Pos, "lists cannot contain lists")
			}
			elems = append(elems, v)
		}
		return tree.Value{Kind: tree.KindList, List: elems}, nil

	case tree.TagFunction:
		return call(n, env)

	case tree.TagOperatorPrefix:
		if len(n.Children) != 1 {
			return errorf(ErrNotConstant, n.Pos, "operator '%s' is missing an operand", n.Text)
		}
		return prefix(n, env)

	case tree.TagOperatorPostfix:
		return errorf(ErrNotConstant, n.Pos, "'%s' needs a variable", n.Text)

	case tree.TagOperatorBinary:
		if len(n.Children) != 2 {
			return errorf(ErrNotConstant, n.Pos, "operator '%s' is missing an operand", n.Text)
		}
		if n.Text == "." {
			return member(n, env)
		}
		return binary(n, env)
	}
	return errorf(ErrNotConstant, n.Pos, "cannot evaluate %s '%s'", n.Tag, n.Text)
}

// Fold replaces every declaration whose elements are constant with a
// VectorLiteral or RotationLiteral node. Non-constant declarations stay.
func Fold(root *tree.Tree) int {
	folded := 0
	for _, c := range tree.Containers(root) {
		for i, k := range c.Children {
			if k.Tag != tree.TagDeclaration {
				continue
			}
			v, err := Eval(k, nil)
			if err != nil {
				continue
			}
			tag := tree.TagVectorLiteral
			if v.Kind == tree.KindRotation {
				tag = tree.TagRotationLiteral
			}
			lit := tree.New(tag, v.String(), k.Pos)
			lit.Value = &v
			c.Children[i] = lit
			folded++
		}
	}
	return folded
}

func declaration(n *tree.Tree, env Env) (tree.Value, error) {
	if len(n.Children) != 3 && len(n.Children) != 4 {
		return errorf(ErrTypeMismatch, n.Pos, "declaration has %d elements, want 3 or 4", len(n.Children))
	}
	var c [4]float64
	for i, arg := range n.Children {
		v, err := Eval(arg, env)
		if err != nil {
			return tree.Value{}, err
		}
		if !v.IsNumeric() {
			return errorf(ErrTypeMismatch, arg.Pos, "declaration element %d is a %s", i+1, v.Kind)
		}
		c[i] = v.AsFloat()
	}
	if len(n.Children) == 3 {
		return tree.Vector(c[0], c[1], c[2]), nil
	}
	return tree.Rotation(c[0], c[1], c[2], c[3]), nil
}

func member(n *tree.Tree, env Env) (tree.Value, error) {
	v, err := Eval(n.Children[0], env)
	if err != nil {
		return tree.Value{}, err
	}
	if v.Kind != tree.KindVector && v.Kind != tree.KindRotation {
		return errorf(ErrTypeMismatch, n.Pos, "a %s has no components", v.Kind)
	}
	switch n.Children[1].Text {
	case "x":
		return tree.Float(v.Vec[0]), nil
	case "y":
		return tree.Float(v.Vec[1]), nil
	case "z":
		return tree.Float(v.Vec[2]), nil
	case "s":
		if v.Kind == tree.KindRotation {
			return tree.Float(v.Vec[3]), nil
		}
	}
	return errorf(ErrTypeMismatch, n.Children[1].Pos, "a %s has no component '%s'", v.Kind, n.Children[1].Text)
}

func prefix(n *tree.Tree, env Env) (tree.Value, error) {
	if n.Text == "++" || n.Text == "--" {
		return errorf(ErrNotConstant, n.Pos, "'%s' needs a variable", n.Text)
	}
	v, err := Eval(n.Children[0], env)
	if err != nil {
		return tree.Value{}, err
	}
	switch n.Text {
	case "-":
		switch v.Kind {
		case tree.KindInteger:
			return tree.Integer(-v.Int), nil
		case tree.KindFloat:
			return tree.Float(-v.Float), nil
		case tree.KindVector:
			return tree.Vector(-v.Vec[0], -v.Vec[1], -v.Vec[2]), nil
		case tree.KindRotation:
			return tree.Rotation(-v.Vec[0], -v.Vec[1], -v.Vec[2], -v.Vec[3]), nil
		}
	case "!":
		if v.Kind == tree.KindInteger {
			return boolean(v.Int == 0), nil
		}
	case "~":
		if v.Kind == tree.KindInteger {
			return tree.Integer(^v.Int), nil
		}
	}
	return errorf(ErrTypeMismatch, n.Pos, "operator '%s' cannot apply to a %s", n.Text, v.Kind)
}

func binary(n *tree.Tree, env Env) (tree.Value, error) {
	switch n.Text {
	case "=", "+=", "-=", "*=", "/=", "%=":
		return errorf(ErrNotConstant, n.Pos, "assignment '%s' is not a constant expression", n.Text)
	}
	a, err := Eval(n.Children[0], env)
	if err != nil {
		return tree.Value{}, err
	}
	b, err := Eval(n.Children[1], env)
	if err != nil {
		return tree.Value{}, err
	}
	return Apply(n.Text, a, b, n.Pos)
}

func boolean(b bool) tree.Value {
	if b {
		return tree.Integer(1)
	}
	return tree.Integer(0)
}
