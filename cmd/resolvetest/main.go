package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystal-mush/gridscript/pkg/compiler"
	"github.com/crystal-mush/gridscript/pkg/grammar"
	"github.com/crystal-mush/gridscript/pkg/tree"
	"github.com/fatih/color"
	"github.com/peterh/liner"
)

const historyFile = ".gridscript_history"

var (
	pass    = color.New(color.FgGreen, color.Bold).SprintFunc()
	fail    = color.New(color.FgRed, color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	treeOut = color.New(color.FgCyan).SprintFunc()
	valOut  = color.New(color.FgYellow).SprintFunc()
)

func main() {
	grammarFile := flag.String("grammar", "", "YAML grammar file (default: built-in LSL grammar)")
	expr := flag.String("e", "", "Expression to resolve (non-interactive mode)")
	batch := flag.String("batch", "", "File of expressions, one per line, optionally 'expr | expected'")
	vars := flag.String("vars", "", "Comma-separated names to treat as variables")
	dump := flag.Bool("dump", false, "Print the full node listing instead of the s-expression")
	flag.Parse()

	g := grammar.Default()
	if *grammarFile != "" {
		var err error
		g, err = grammar.LoadFile(*grammarFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading grammar: %v\n", err)
			os.Exit(1)
		}
	}
	c := compiler.New(g)

	var names []string
	for _, v := range strings.Split(*vars, ",") {
		if v = strings.TrimSpace(v); v != "" {
			names = append(names, v)
		}
	}

	if *expr != "" {
		if !show(c, *expr, names, *dump) {
			os.Exit(1)
		}
		return
	}

	if *batch != "" {
		failed, err := runBatch(c, *batch, names)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	repl(c, names, *dump)
}

// render is the text a batch expectation is compared against: the resolved
// expression as an s-expression, followed by " = value" when it is constant.
// A failure renders as "error: <code>".
func render(c *compiler.Compiler, src string, vars []string) string {
	res, err := c.Compile(src, vars)
	if err != nil {
		var d *compiler.Diagnostic
		if errors.As(err, &d) {
			return "error: " + string(d.Code)
		}
		return "error: " + err.Error()
	}
	out := body(res.Tree)
	if res.Value != nil {
		out += " = " + res.Value.String()
	}
	return out
}

// body renders the root's single child, or the root itself if that fails.
func body(root *tree.Tree) string {
	if len(root.Children) == 1 {
		return root.Children[0].String()
	}
	return root.String()
}

func show(c *compiler.Compiler, src string, vars []string, dump bool) bool {
	res, err := c.Compile(src, vars)
	if err != nil {
		var d *compiler.Diagnostic
		lines := strings.Split(src, "\n")
		if errors.As(err, &d) && d.Line > 0 && d.Line <= len(lines) && d.Column > 0 {
			fmt.Println(dim(lines[d.Line-1]))
			fmt.Println(strings.Repeat(" ", d.Column-1) + fail("^"))
		}
		fmt.Println(fail("error: ") + err.Error())
		return false
	}
	if dump {
		res.Tree.Dump(os.Stdout)
	} else {
		fmt.Println(treeOut(body(res.Tree)))
	}
	if res.Value != nil {
		fmt.Printf("%s %s\n", valOut("="), res.Value)
	}
	if res.Folded > 0 {
		fmt.Println(dim(fmt.Sprintf("(%d declarations folded)", res.Folded)))
	}
	return true
}

func runBatch(c *compiler.Compiler, path string, vars []string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening batch file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum, passed, failed := 0, 0, 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Format: expression | expected (optional)
		parts := strings.SplitN(line, " | ", 2)
		expression := parts[0]
		result := render(c, expression, vars)

		if len(parts) == 2 {
			expected := strings.TrimSpace(parts[1])
			if result == expected {
				passed++
				fmt.Printf("[%s] Line %d: %s\n", pass("PASS"), lineNum, expression)
				continue
			}
			failed++
			fmt.Printf("[%s] Line %d: %s\n", fail("FAIL"), lineNum, expression)
			fmt.Printf("  Expected: %s\n", expected)
			fmt.Printf("  Got:      %s\n", result)
		} else {
			fmt.Printf("Line %d: %s => %s\n", lineNum, expression, treeOut(result))
		}
	}
	if err := scanner.Err(); err != nil {
		return failed, err
	}
	if passed+failed > 0 {
		fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	}
	return failed, nil
}

func repl(c *compiler.Compiler, vars []string, dump bool) {
	g := c.Grammar()
	fmt.Printf("gridscript resolver, grammar %s v%s\n", g.Name, g.Version)
	fmt.Println("Type expressions to resolve. :vars a,b sets variables, :dump toggles node listing, :quit exits.")
	fmt.Println()

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		line, err := ln.Prompt("lsl> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, fail(err.Error()))
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		switch {
		case line == ":quit" || line == ":q":
			return
		case line == ":dump":
			dump = !dump
			continue
		case strings.HasPrefix(line, ":vars"):
			vars = vars[:0]
			for _, v := range strings.Split(strings.TrimSpace(strings.TrimPrefix(line, ":vars")), ",") {
				if v = strings.TrimSpace(v); v != "" {
					vars = append(vars, v)
				}
			}
			fmt.Println(dim("variables: " + strings.Join(vars, ", ")))
			continue
		case strings.HasPrefix(line, ":"):
			fmt.Println("unknown command. Type :quit to exit.")
			continue
		}
		show(c, line, vars, dump)
	}
}
