package grammar

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crystal-mush/gridscript/pkg/resolver"
	"github.com/crystal-mush/gridscript/pkg/tree"
)

func TestDefaultIsValid(t *testing.T) {
	g := Default()
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if g.Name != "lsl" {
		t.Errorf("Name = %q", g.Name)
	}
}

func TestOperatorsLongestFirst(t *testing.T) {
	ops := Default().Operators()
	seen := make(map[string]bool)
	for i, op := range ops {
		seen[op] = true
		if i > 0 && len(op) > len(ops[i-1]) {
			t.Fatalf("%q after shorter %q", op, ops[i-1])
		}
	}
	for _, want := range []string{"&&", "<<", "+=", "(", "]", ",", ".", ";", "-"} {
		if !seen[want] {
			t.Errorf("operator %q missing", want)
		}
	}
}

func TestFingerprint(t *testing.T) {
	a, b := Default(), Default()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical grammars have different fingerprints")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint %q is not 16 hex digits", a.Fingerprint())
	}
	b.Levels = append(b.Levels, resolver.Level{"?": resolver.Binary})
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("changing the levels kept the fingerprint")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := map[string]func(g *Grammar){
		"no levels":           func(g *Grammar) { g.Levels = nil },
		"closes itself":       func(g *Grammar) { g.Brackets["|"] = "|" },
		"call bracket":        func(g *Grammar) { g.Syntax.CallBracket = "{" },
		"list bracket":        func(g *Grammar) { g.Syntax.ListBracket = "{" },
		"no separator":        func(g *Grammar) { g.Syntax.Separator = "" },
		"operator is bracket": func(g *Grammar) { g.Levels[0]["("] = resolver.Binary },
	}
	for name, mutate := range tests {
		g := Default()
		mutate(g)
		if err := g.Validate(); err == nil {
			t.Errorf("%s: Validate accepted the grammar", name)
		}
	}
}

func TestParseOverlaysDefault(t *testing.T) {
	doc := `
name: tiny
version: "7"
reserved: [let]
levels:
  - {"-": prefix}
  - {"*": binary}
  - {"+": binary, "-": binary}
`
	g, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if g.Name != "tiny" || g.Version != "7" {
		t.Errorf("name/version = %q/%q", g.Name, g.Version)
	}
	if len(g.Levels) != 3 || g.Levels[0]["-"] != resolver.LeftUnary {
		t.Errorf("levels = %v", g.Levels)
	}
	if g.Syntax.Separator != "," || g.Brackets["("] != ")" {
		t.Error("unset fields did not keep their defaults")
	}
	if g.Fingerprint() == Default().Fingerprint() {
		t.Error("overlay kept the default fingerprint")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		doc string
		msg string
	}{
		{"levels:\n  - {\"+\": ternary}\n", "unknown fixity"},
		{"levels: []\n", "no precedence levels"},
		{"name: [unclosed\n", "parsing YAML"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.doc))
		if err == nil || !strings.Contains(err.Error(), tt.msg) {
			t.Errorf("Parse(%q) = %v, want error containing %q", tt.doc, err, tt.msg)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	if err := os.WriteFile(path, []byte("name: fromdisk\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if g.Name != "fromdisk" {
		t.Errorf("Name = %q", g.Name)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
}

func TestLexerAndResolverAgree(t *testing.T) {
	g := Default()
	lx, res := g.NewLexer(), g.NewResolver()
	tests := []struct {
		src  string
		want string
	}{
		{"x=-1", "(= x (- 1))"},
		{"a<<2+1", "(<< a (+ 2 1))"},
		{"v=<1,2,3>*r", "(= v (* (<> 1 2 3) r))"},
		{"a&&b|c", "(&& a (| b c))"},
		{"i++ + --j", "(+ (++ i) (-- j))"},
		{"n%=3", "(%= n 3)"},
		{"a==b!=c", "(!= (== a b) c)"},
		{"x=-2147483648", "(= x -2147483648)"},
	}
	for _, tt := range tests {
		toks, err := lx.Tokenize(tt.src)
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", tt.src, err)
		}
		root := tree.FromTokens(toks, g.Chars)
		if err := res.Process(root, []string{"x", "v", "i", "j", "n"}); err != nil {
			t.Fatalf("Process(%q): %v", tt.src, err)
		}
		if got := root.Children[0].String(); got != tt.want {
			t.Errorf("%q resolved to %s, want %s", tt.src, got, tt.want)
		}
	}
}
