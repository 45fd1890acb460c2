package fold

import (
	"github.com/crystal-mush/gridscript/pkg/tree"
)

// Apply computes a op b using the scripting language's typing rules.
// Integer arithmetic wraps at 32 bits.
func Apply(op string, a, b tree.Value, pos int) (tree.Value, error) {
	switch {
	case a.Kind == tree.KindInteger && b.Kind == tree.KindInteger:
		return intOp(op, a.Int, b.Int, pos)
	case a.IsNumeric() && b.IsNumeric():
		return floatOp(op, a.AsFloat(), b.AsFloat(), pos)
	case a.Kind == tree.KindList || b.Kind == tree.KindList:
		return listOp(op, a, b, pos)
	case a.Kind == tree.KindString && b.Kind == tree.KindString:
		switch op {
		case "+":
			return tree.String(a.Str + b.Str), nil
		case "==":
			return boolean(a.Str == b.Str), nil
		case "!=":
			return boolean(a.Str != b.Str), nil
		}
	case a.Kind == tree.KindVector || a.Kind == tree.KindRotation || b.Kind == tree.KindVector || b.Kind == tree.KindRotation:
		return spatialOp(op, a, b, pos)
	}
	return mismatch(op, a, b, pos)
}

func mismatch(op string, a, b tree.Value, pos int) (tree.Value, error) {
	return errorf(ErrTypeMismatch, pos, "operator '%s' cannot apply to %s and %s", op, a.Kind, b.Kind)
}

func intOp(op string, a, b int32, pos int) (tree.Value, error) {
	switch op {
	case "+":
		return tree.Integer(a + b), nil
	case "-":
		return tree.Integer(a - b), nil
	case "*":
		return tree.Integer(a * b), nil
	case "/":
		if b == 0 {
			return errorf(ErrDivideByZero, pos, "integer division by zero")
		}
		return tree.Integer(a / b), nil
	case "%":
		if b == 0 {
			return errorf(ErrDivideByZero, pos, "integer modulo by zero")
		}
		return tree.Integer(a % b), nil
	case "<<":
		return tree.Integer(a << uint(b&31)), nil
	case ">>":
		return tree.Integer(a >> uint(b&31)), nil
	case "&":
		return tree.Integer(a & b), nil
	case "|":
		return tree.Integer(a | b), nil
	case "^":
		return tree.Integer(a ^ b), nil
	case "&&":
		return boolean(a != 0 && b != 0), nil
	case "||":
		return boolean(a != 0 || b != 0), nil
	case "<":
		return boolean(a < b), nil
	case "<=":
		return boolean(a <= b), nil
	case ">":
		return boolean(a > b), nil
	case ">=":
		return boolean(a >= b), nil
	case "==":
		return boolean(a == b), nil
	case "!=":
		return boolean(a != b), nil
	}
	return mismatch(op, tree.Integer(a), tree.Integer(b), pos)
}

func floatOp(op string, a, b float64, pos int) (tree.Value, error) {
	switch op {
	case "+":
		return tree.Float(a + b), nil
	case "-":
		return tree.Float(a - b), nil
	case "*":
		return tree.Float(a * b), nil
	case "/":
		if b == 0 {
			return errorf(ErrDivideByZero, pos, "float division by zero")
		}
		return tree.Float(a / b), nil
	case "<":
		return boolean(a < b), nil
	case "<=":
		return boolean(a <= b), nil
	case ">":
		return boolean(a > b), nil
	case ">=":
		return boolean(a >= b), nil
	case "==":
		return boolean(a == b), nil
	case "!=":
		return boolean(a != b), nil
	}
	return mismatch(op, tree.Float(a), tree.Float(b), pos)
}

// listOp: + concatenates or appends, and the comparisons compare lengths.
func listOp(op string, a, b tree.Value, pos int) (tree.Value, error) {
	elems := func(v tree.Value) []tree.Value {
		if v.Kind == tree.KindList {
			return v.List
		}
		return []tree.Value{v}
	}
	switch op {
	case "+":
		out := append(append([]tree.Value(nil), elems(a)...), elems(b)...)
		return tree.Value{Kind: tree.KindList, List: out}, nil
	case "==", "!=":
		if a.Kind != tree.KindList || b.Kind != tree.KindList {
			break
		}
		if op == "==" {
			return boolean(len(a.List) == len(b.List)), nil
		}
		return tree.Integer(int32(len(a.List) - len(b.List))), nil
	}
	return mismatch(op, a, b, pos)
}

func spatialOp(op string, a, b tree.Value, pos int) (tree.Value, error) {
	va, vb := a.Kind == tree.KindVector, b.Kind == tree.KindVector
	ra, rb := a.Kind == tree.KindRotation, b.Kind == tree.KindRotation
	x, y := a.Vec, b.Vec

	switch {
	case va && vb:
		switch op {
		case "+":
			return tree.Vector(x[0]+y[0], x[1]+y[1], x[2]+y[2]), nil
		case "-":
			return tree.Vector(x[0]-y[0], x[1]-y[1], x[2]-y[2]), nil
		case "*":
			return tree.Float(x[0]*y[0] + x[1]*y[1] + x[2]*y[2]), nil
		case "%":
			return tree.Vector(x[1]*y[2]-x[2]*y[1], x[2]*y[0]-x[0]*y[2], x[0]*y[1]-x[1]*y[0]), nil
		case "==":
			return boolean(x == y), nil
		case "!=":
			return boolean(x != y), nil
		}

	case va && b.IsNumeric():
		f := b.AsFloat()
		switch op {
		case "*":
			return tree.Vector(x[0]*f, x[1]*f, x[2]*f), nil
		case "/":
			if f == 0 {
				return errorf(ErrDivideByZero, pos, "vector division by zero")
			}
			return tree.Vector(x[0]/f, x[1]/f, x[2]/f), nil
		}

	case a.IsNumeric() && vb:
		if op == "*" {
			f := a.AsFloat()
			return tree.Vector(y[0]*f, y[1]*f, y[2]*f), nil
		}

	case va && rb:
		switch op {
		case "*":
			return rotate(x, y), nil
		case "/":
			return rotate(x, conjugate(y)), nil
		}

	case ra && rb:
		switch op {
		case "+":
			return tree.Rotation(x[0]+y[0], x[1]+y[1], x[2]+y[2], x[3]+y[3]), nil
		case "-":
			return tree.Rotation(x[0]-y[0], x[1]-y[1], x[2]-y[2], x[3]-y[3]), nil
		case "*":
			return multiply(x, y), nil
		case "/":
			return multiply(x, conjugate(y)), nil
		case "==":
			return boolean(x == y), nil
		case "!=":
			return boolean(x != y), nil
		}
	}
	return mismatch(op, a, b, pos)
}

func conjugate(r [4]float64) [4]float64 {
	return [4]float64{-r[0], -r[1], -r[2], r[3]}
}

// multiply returns the quaternion product a*b.
func multiply(a, b [4]float64) tree.Value {
	return tree.Rotation(
		a[3]*b[0]+a[0]*b[3]+a[1]*b[2]-a[2]*b[1],
		a[3]*b[1]+a[1]*b[3]+a[2]*b[0]-a[0]*b[2],
		a[3]*b[2]+a[2]*b[3]+a[0]*b[1]-a[1]*b[0],
		a[3]*b[3]-a[0]*b[0]-a[1]*b[1]-a[2]*b[2],
	)
}

// rotate applies rotation r to vector v.
func rotate(v, r [4]float64) tree.Value {
	x, y, z, s := r[0], r[1], r[2], r[3]
	return tree.Vector(
		s*s*v[0]+2*y*s*v[2]-2*z*s*v[1]+x*x*v[0]+2*y*x*v[1]+2*z*x*v[2]-z*z*v[0]-y*y*v[0],
		2*x*y*v[0]+y*y*v[1]+2*z*y*v[2]+2*s*z*v[0]-z*z*v[1]+s*s*v[1]-2*x*s*v[2]-x*x*v[1],
		2*x*z*v[0]+2*y*z*v[1]+z*z*v[2]-2*s*y*v[0]-y*y*v[2]+2*s*x*v[1]-x*x*v[2]+s*s*v[2],
	)
}
