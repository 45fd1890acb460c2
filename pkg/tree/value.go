package tree

import (
	"fmt"
	"strings"
)

// ValueKind identifies the type held by a Value.
type ValueKind int

const (
	KindInteger ValueKind = iota
	KindFloat
	KindString
	KindVector
	KindRotation
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindVector:
		return "vector"
	case KindRotation:
		return "rotation"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a typed constant. Literal resolution only produces integers,
// floats and strings; vectors, rotations and lists come from folding.
type Value struct {
	Kind  ValueKind  `json:"kind"`
	Int   int32      `json:"int,omitempty"`
	Float float64    `json:"float,omitempty"`
	Str   string     `json:"str,omitempty"`
	Vec   [4]float64 `json:"vec,omitempty"` // x, y, z[, s]
	List  []Value    `json:"list,omitempty"`
}

// Integer returns an integer Value.
func Integer(n int32) Value { return Value{Kind: KindInteger, Int: n} }

// Float returns a float Value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Vector returns a vector Value.
func Vector(x, y, z float64) Value { return Value{Kind: KindVector, Vec: [4]float64{x, y, z, 0}} }

// Rotation returns a rotation Value.
func Rotation(x, y, z, s float64) Value { return Value{Kind: KindRotation, Vec: [4]float64{x, y, z, s}} }

// IsNumeric reports whether the value is an integer or a float.
func (v Value) IsNumeric() bool {
	return v.Kind == KindInteger || v.Kind == KindFloat
}

// AsFloat returns the numeric value as float64.
func (v Value) AsFloat() float64 {
	if v.Kind == KindInteger {
		return float64(v.Int)
	}
	return v.Float
}

// String formats the value the way the scripting language casts it to a string.
func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%.6f", v.Float)
	case KindString:
		return v.Str
	case KindVector:
		return fmt.Sprintf("<%.5f, %.5f, %.5f>", v.Vec[0], v.Vec[1], v.Vec[2])
	case KindRotation:
		return fmt.Sprintf("<%.5f, %.5f, %.5f, %.5f>", v.Vec[0], v.Vec[1], v.Vec[2], v.Vec[3])
	case KindList:
		parts := make([]string, len(v.List))
		for i, e := range v.List {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return ""
	}
}
