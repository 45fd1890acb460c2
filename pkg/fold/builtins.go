package fold

import (
	"math"
	"unicode/utf8"

	"github.com/crystal-mush/gridscript/pkg/tree"
)

type builtin struct {
	args []tree.ValueKind // KindFloat accepts integers too
	fn   func(args []tree.Value) (tree.Value, error)
}

var builtins = map[string]builtin{
	"llAbs": {[]tree.ValueKind{tree.KindInteger}, func(a []tree.Value) (tree.Value, error) {
		n := a[0].Int
		if n < 0 {
			n = -n
		}
		return tree.Integer(n), nil
	}},
	"llFabs": {[]tree.ValueKind{tree.KindFloat}, func(a []tree.Value) (tree.Value, error) {
		return tree.Float(math.Abs(a[0].AsFloat())), nil
	}},
	"llFloor": {[]tree.ValueKind{tree.KindFloat}, func(a []tree.Value) (tree.Value, error) {
		return tree.Integer(toInt(math.Floor(a[0].AsFloat()))), nil
	}},
	"llCeil": {[]tree.ValueKind{tree.KindFloat}, func(a []tree.Value) (tree.Value, error) {
		return tree.Integer(toInt(math.Ceil(a[0].AsFloat()))), nil
	}},
	"llRound": {[]tree.ValueKind{tree.KindFloat}, func(a []tree.Value) (tree.Value, error) {
		return tree.Integer(toInt(math.Floor(a[0].AsFloat() + 0.5))), nil
	}},
	"llSqrt": {[]tree.ValueKind{tree.KindFloat}, func(a []tree.Value) (tree.Value, error) {
		f := a[0].AsFloat()
		if f < 0 {
			return errorf(ErrTypeMismatch, 0, "llSqrt of a negative number")
		}
		return tree.Float(math.Sqrt(f)), nil
	}},
	"llPow": {[]tree.ValueKind{tree.KindFloat, tree.KindFloat}, func(a []tree.Value) (tree.Value, error) {
		return tree.Float(math.Pow(a[0].AsFloat(), a[1].AsFloat())), nil
	}},
	"llVecMag": {[]tree.ValueKind{tree.KindVector}, func(a []tree.Value) (tree.Value, error) {
		v := a[0].Vec
		return tree.Float(math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])), nil
	}},
	"llVecNorm": {[]tree.ValueKind{tree.KindVector}, func(a []tree.Value) (tree.Value, error) {
		v := a[0].Vec
		mag := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		if mag == 0 {
			return tree.Vector(0, 0, 0), nil
		}
		return tree.Vector(v[0]/mag, v[1]/mag, v[2]/mag), nil
	}},
	"llStringLength": {[]tree.ValueKind{tree.KindString}, func(a []tree.Value) (tree.Value, error) {
		return tree.Integer(int32(utf8.RuneCountInString(a[0].Str))), nil
	}},
	"llGetListLength": {[]tree.ValueKind{tree.KindList}, func(a []tree.Value) (tree.Value, error) {
		return tree.Integer(int32(len(a[0].List))), nil
	}},
}

// Builtins returns the names of the functions Eval can call.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

func call(n *tree.Tree, env Env) (tree.Value, error) {
	b, ok := builtins[n.Text]
	if !ok {
		return errorf(ErrNotConstant, n.Pos, "'%s' is not a constant function", n.Text)
	}
	if len(n.Children) != len(b.args) {
		return errorf(ErrTypeMismatch, n.Pos, "%s takes %d arguments, got %d", n.Text, len(b.args), len(n.Children))
	}
	args := make([]tree.Value, len(n.Children))
	for i, c := range n.Children {
		v, err := Eval(c, env)
		if err != nil {
			return tree.Value{}, err
		}
		want := b.args[i]
		if v.Kind != want && !(want == tree.KindFloat && v.Kind == tree.KindInteger) {
			return errorf(ErrTypeMismatch, c.Pos, "%s argument %d: want %s, got %s", n.Text, i+1, want, v.Kind)
		}
		args[i] = v
	}
	v, err := b.fn(args)
	if e, ok := err.(*Error); ok {
		e.Pos = n.Pos
	}
	return v, err
}

// toInt converts the way the scripting language casts float to integer:
// out-of-range values become the minimum integer.
func toInt(f float64) int32 {
	if math.IsNaN(f) || f >= 1<<31 || f < -1<<31 {
		return math.MinInt32
	}
	return int32(f)
}
