package compiler

import (
	"errors"
	"sync"
	"testing"

	"github.com/crystal-mush/gridscript/pkg/fold"
	"github.com/crystal-mush/gridscript/pkg/grammar"
	"github.com/crystal-mush/gridscript/pkg/resolver"
	"github.com/crystal-mush/gridscript/pkg/tree"
)

func TestCompileConstant(t *testing.T) {
	c := New(nil)
	res, err := c.Compile("2+3*4", nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got := res.Tree.Children[0].String(); got != "(+ 2 (* 3 4))" {
		t.Errorf("tree = %s", got)
	}
	if res.Value == nil || res.Value.Int != 14 {
		t.Errorf("value = %v, want 14", res.Value)
	}
	if res.Grammar != c.Fingerprint() {
		t.Errorf("result grammar %q, compiler %q", res.Grammar, c.Fingerprint())
	}
}

func TestCompileWithVariables(t *testing.T) {
	c := New(nil)
	res, err := c.Compile("pos = <1, 2, 3> * 2", []string{"pos"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Value != nil {
		t.Errorf("assignment has a constant value %v", res.Value)
	}
	if res.Folded != 1 {
		t.Errorf("folded %d declarations, want 1", res.Folded)
	}
}

func TestCompilePostfixComparison(t *testing.T) {
	c := New(nil)
	tests := []struct {
		src  string
		want string
	}{
		{"i++ < n", "(< (++ i) n)"},
		{"x = a-- < b", "(= x (< (-- a) b))"},
	}
	for _, tt := range tests {
		res, err := c.Compile(tt.src, []string{"i", "n", "x", "a", "b"})
		if err != nil {
			t.Fatalf("Compile(%q): %v", tt.src, err)
		}
		if got := res.Tree.Children[0].String(); got != tt.want {
			t.Errorf("%q resolved to %s, want %s", tt.src, got, tt.want)
		}
	}
}

func TestEval(t *testing.T) {
	c := New(nil)
	res, err := c.Eval("speed * 2 + llAbs(-1)", fold.Env{"speed": tree.Integer(20)})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if res.Value.Int != 41 {
		t.Errorf("value = %s", res.Value)
	}
	if _, err := c.Eval("missing + 1", nil); err == nil {
		t.Error("Eval of a non-constant expression succeeded")
	}
}

func TestDiagnostics(t *testing.T) {
	tests := []struct {
		src  string
		code Code
		line int
		col  int
		kind error
	}{
		{"a + (b", CodeUnclosedBracket, 1, 5, resolver.ErrUnclosedBracket},
		{"a +\n  b)", CodeBracketMismatch, 2, 4, resolver.ErrBracketMismatch},
		{"foo(a,,b)", CodeMissingArgument, 1, 7, resolver.ErrMissingArgument},
		{"v = <1, 2", CodeUnclosedDeclaration, 1, 5, resolver.ErrUnclosedDeclaration},
		{"a b", CodeUnresolved, 1, 3, resolver.ErrUnresolved},
		{"1.2.3", CodeInvalidLiteral, 1, 1, tree.ErrNotAValue},
		{"a @ b", CodeLex, 1, 3, nil},
		{"\"é\" + @", CodeLex, 1, 7, nil},
	}
	c := New(nil)
	for _, tt := range tests {
		_, err := c.Compile(tt.src, nil)
		var d *Diagnostic
		if !errors.As(err, &d) {
			t.Errorf("%q: err = %v, want *Diagnostic", tt.src, err)
			continue
		}
		if d.Code != tt.code || d.Line != tt.line || d.Column != tt.col {
			t.Errorf("%q: %s at %d:%d, want %s at %d:%d", tt.src, d.Code, d.Line, d.Column, tt.code, tt.line, tt.col)
		}
		if tt.kind != nil && !errors.Is(err, tt.kind) {
			t.Errorf("%q: err does not wrap %v", tt.src, tt.kind)
		}
	}
}

func TestEvalDiagnostic(t *testing.T) {
	_, err := New(nil).Eval("1 / 0", nil)
	var d *Diagnostic
	if !errors.As(err, &d) || d.Code != CodeEval || d.Column != 3 {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, fold.ErrDivideByZero) {
		t.Errorf("err does not wrap ErrDivideByZero")
	}
}

func TestSetGrammar(t *testing.T) {
	c := New(nil)
	old := c.Fingerprint()
	g, err := grammar.Parse([]byte("name: flat\nlevels:\n  - {\"+\": binary, \"*\": binary}\n"))
	if err != nil {
		t.Fatal(err)
	}
	c.SetGrammar(g)
	if c.Fingerprint() == old {
		t.Error("fingerprint unchanged after SetGrammar")
	}
	if c.Grammar().Name != "flat" {
		t.Errorf("Grammar().Name = %q", c.Grammar().Name)
	}
	res, err := c.Compile("2+3*4", nil)
	if err != nil {
		t.Fatal(err)
	}
	// One level: left to right.
	if got := res.Tree.Children[0].String(); got != "(* (+ 2 3) 4)" {
		t.Errorf("tree = %s", got)
	}
}

func TestConcurrentCompile(t *testing.T) {
	c := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res, err := c.Compile("a * (b + 1) - <1, 2, 3>.x", []string{"a", "b"})
				if err != nil {
					t.Error(err)
					return
				}
				if res.Tree == nil {
					t.Error("nil tree")
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			c.SetGrammar(grammar.Default())
		}()
	}
	wg.Wait()
}

func TestPosition(t *testing.T) {
	src := "ab\ncd\nef"
	tests := []struct{ off, line, col int }{
		{0, 1, 1}, {2, 1, 3}, {3, 2, 1}, {7, 3, 2}, {100, 3, 3},
	}
	for _, tt := range tests {
		line, col := position(src, tt.off)
		if line != tt.line || col != tt.col {
			t.Errorf("position(%d) = %d:%d, want %d:%d", tt.off, line, col, tt.line, tt.col)
		}
	}
}
