package server

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridscript.yaml")
	writeFile(t, path, `
name: test
port: 9000
cors_origins: [https://a.example, https://b.example]
rate_limit: 10
bolt_path: data/scripts.bolt
sql_path: /var/lib/diag.sqlite
grammar_file: grammar.yaml
cache_trees: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "test" || cfg.Port != 9000 || cfg.RateLimit != 10 || cfg.CacheTrees {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("cors = %v", cfg.CORSOrigins)
	}
	if cfg.BoltPath != filepath.Join(dir, "data/scripts.bolt") {
		t.Errorf("bolt path %q not made relative to the config", cfg.BoltPath)
	}
	if cfg.SQLPath != "/var/lib/diag.sqlite" {
		t.Errorf("absolute sql path rewritten to %q", cfg.SQLPath)
	}
	// Unset fields keep their defaults.
	if cfg.JWTExpiry != 86400 || cfg.MaxSource != 64*1024 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigLegacy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "auth.conf"), "jwt_secret   s3cret\njwt_expiry\t600\n")
	path := filepath.Join(dir, "gridscript.conf")
	writeFile(t, path, `# service settings
name legacy
port 8000
tls yes
cors_origin https://a.example
cors_origin https://b.example
include auth.conf
cache_trees off
unknown_directive whatever
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Name != "legacy" || cfg.Port != 8000 || !cfg.TLS || cfg.CacheTrees {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.JWTSecret != "s3cret" || cfg.JWTExpiry != 600 {
		t.Errorf("include not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("cors = %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigCircularInclude(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.conf")
	writeFile(t, path, "include loop.conf\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("circular include loaded")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "port: [not, a, number]\n")
	if _, err := LoadConfig(bad); err == nil {
		t.Error("bad YAML loaded")
	}
}

func TestSplitKeyVal(t *testing.T) {
	tests := []struct{ line, key, val string }{
		{"port 80", "port", "80"},
		{"name\t  spaced out ", "name", "spaced out"},
		{"flag", "flag", ""},
	}
	for _, tt := range tests {
		k, v := splitKeyVal(tt.line)
		if k != tt.key || v != tt.val {
			t.Errorf("splitKeyVal(%q) = %q, %q", tt.line, k, v)
		}
	}
}
