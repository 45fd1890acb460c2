package grammar

import (
	"fmt"
	"os"

	"github.com/crystal-mush/gridscript/pkg/resolver"
	"gopkg.in/yaml.v3"
)

// File is the YAML form of a grammar. Omitted fields keep the default
// grammar's values.
//
//	name: lsl-strict
//	version: "2"
//	reserved: [integer, float, string]
//	levels:
//	  - {"*": binary, "/": binary}
//	  - {"+": binary, "-": binary}
//	brackets: {"(": ")"}
//	separator: ","
type File struct {
	Name        string              `yaml:"name"`
	Version     string              `yaml:"version"`
	Reserved    []string            `yaml:"reserved"`
	Levels      []map[string]string `yaml:"levels"`
	Brackets    map[string]string   `yaml:"brackets"`
	Separator   string              `yaml:"separator"`
	CallBracket string              `yaml:"call_bracket"`
	ListBracket string              `yaml:"list_bracket"`
	AngleOpen   string              `yaml:"angle_open"`
	AngleClose  string              `yaml:"angle_close"`
	Dot         string              `yaml:"dot"`
	Negate      string              `yaml:"negate"`
}

// LoadFile reads a YAML grammar file.
func LoadFile(path string) (*Grammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("grammar %s: %w", path, err)
	}
	return g, nil
}

// Parse decodes a YAML grammar document on top of Default.
func Parse(data []byte) (*Grammar, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	g := Default()
	if f.Name != "" {
		g.Name = f.Name
	}
	if f.Version != "" {
		g.Version = f.Version
	}
	if f.Reserved != nil {
		g.Reserved = f.Reserved
	}
	if f.Levels != nil {
		levels := make([]resolver.Level, 0, len(f.Levels))
		for i, raw := range f.Levels {
			lvl := make(resolver.Level, len(raw))
			for sym, name := range raw {
				fx, err := resolver.ParseFixity(name)
				if err != nil {
					return nil, fmt.Errorf("level %d, operator %q: %w", i, sym, err)
				}
				lvl[sym] = fx
			}
			levels = append(levels, lvl)
		}
		g.Levels = levels
	}
	if f.Brackets != nil {
		g.Brackets = f.Brackets
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&g.Syntax.Separator, f.Separator)
	set(&g.Syntax.CallBracket, f.CallBracket)
	set(&g.Syntax.ListBracket, f.ListBracket)
	set(&g.Syntax.AngleOpen, f.AngleOpen)
	set(&g.Syntax.AngleClose, f.AngleClose)
	set(&g.Syntax.Dot, f.Dot)
	set(&g.Syntax.Negate, f.Negate)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
