// Package compiler turns script expressions into resolved, constant-folded
// trees. It ties the lexer, resolver and folder to one grammar, and lets the
// grammar be swapped while compilations are in flight.
package compiler

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/crystal-mush/gridscript/pkg/fold"
	"github.com/crystal-mush/gridscript/pkg/grammar"
	"github.com/crystal-mush/gridscript/pkg/lexer"
	"github.com/crystal-mush/gridscript/pkg/resolver"
	"github.com/crystal-mush/gridscript/pkg/tree"
)

// Result is a successful compilation.
type Result struct {
	Source   string        `json:"source"`
	Tree     *tree.Tree    `json:"tree"`
	Value    *tree.Value   `json:"value,omitempty"` // nil unless the expression is constant
	Folded   int           `json:"folded"`          // declarations rewritten as literals
	Grammar  string        `json:"grammar"`         // fingerprint
	Duration time.Duration `json:"duration"`
}

type engine struct {
	g   *grammar.Grammar
	fp  string
	lex *lexer.Lexer
	res *resolver.Resolver
}

func newEngine(g *grammar.Grammar) *engine {
	return &engine{g: g, fp: g.Fingerprint(), lex: g.NewLexer(), res: g.NewResolver()}
}

// Compiler is safe for concurrent use.
type Compiler struct {
	eng atomic.Pointer[engine]
}

// New creates a compiler for g. A nil grammar means grammar.Default().
func New(g *grammar.Grammar) *Compiler {
	if g == nil {
		g = grammar.Default()
	}
	c := &Compiler{}
	c.eng.Store(newEngine(g))
	return c
}

// SetGrammar replaces the grammar. Compilations already running finish
// under the old one.
func (c *Compiler) SetGrammar(g *grammar.Grammar) {
	c.eng.Store(newEngine(g))
}

// Grammar returns the current grammar.
func (c *Compiler) Grammar() *grammar.Grammar { return c.eng.Load().g }

// Fingerprint returns the current grammar's fingerprint.
func (c *Compiler) Fingerprint() string { return c.eng.Load().fp }

// Parse tokenizes src into a flat, unresolved tree.
func (c *Compiler) Parse(src string) (*tree.Tree, error) {
	e := c.eng.Load()
	return e.parse(src)
}

func (e *engine) parse(src string) (*tree.Tree, error) {
	toks, err := e.lex.Tokenize(src)
	if err != nil {
		return nil, diagnose(src, err)
	}
	return tree.FromTokens(toks, e.g.Chars), nil
}

// Compile resolves src with the given names tagged as variables, then folds
// constant declarations. Errors are *Diagnostic.
func (c *Compiler) Compile(src string, vars []string) (*Result, error) {
	e := c.eng.Load()
	start := time.Now()
	root, err := e.parse(src)
	if err != nil {
		return nil, err
	}
	if err := e.res.Process(root, vars); err != nil {
		return nil, diagnose(src, err)
	}
	res := &Result{Source: src, Tree: root, Grammar: e.fp}
	res.Folded = fold.Fold(root)
	if v, err := fold.Eval(root, nil); err == nil {
		res.Value = &v
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Eval compiles src with env's names as variables and evaluates it. Unlike
// Compile, a non-constant expression is an error.
func (c *Compiler) Eval(src string, env fold.Env) (*Result, error) {
	vars := make([]string, 0, len(env))
	for name := range env {
		vars = append(vars, name)
	}
	sort.Strings(vars)
	res, err := c.Compile(src, vars)
	if err != nil {
		return nil, err
	}
	v, err := fold.Eval(res.Tree, env)
	if err != nil {
		return nil, diagnose(src, err)
	}
	res.Value = &v
	return res, nil
}
