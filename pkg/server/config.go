package server

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration.
// Supports both YAML (.yaml/.yml) and a legacy "key value" text format (.conf).
type Config struct {
	// --- Identity ---
	Name string `yaml:"name"`

	// --- Listener ---
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`         // Bind address (empty = all interfaces)
	Domain      string   `yaml:"domain"`       // Let's Encrypt domain
	CertFile    string   `yaml:"cert_file"`    // Provided TLS certificate
	KeyFile     string   `yaml:"key_file"`     // Provided TLS key
	CertDir     string   `yaml:"cert_dir"`     // Self-signed and autocert cache directory
	TLS         bool     `yaml:"tls"`          // Serve HTTPS with a self-signed cert when no domain or cert is set
	CORSOrigins []string `yaml:"cors_origins"` // Allowed CORS origins (empty = any)
	RateLimit   int      `yaml:"rate_limit"`   // Requests per minute per IP

	// --- Auth ---
	JWTSecret string `yaml:"jwt_secret"` // Generated per process if empty
	JWTExpiry int    `yaml:"jwt_expiry"` // Seconds

	// --- Storage ---
	BoltPath      string `yaml:"bolt_path"`
	SQLPath       string `yaml:"sql_path"`       // Diagnostics log; disabled if empty
	SQLTimeout    int    `yaml:"sql_timeout"`    // Seconds
	DiagRetention int    `yaml:"diag_retention"` // Hours to keep diagnostics, 0 = forever
	CacheTrees    bool   `yaml:"cache_trees"`    // Cache resolved trees in bolt

	// --- Compiler ---
	GrammarFile  string `yaml:"grammar_file"` // YAML grammar overlay; watched for changes
	MaxSource    int    `yaml:"max_source"`   // Largest accepted expression, bytes
	WatchGrammar bool   `yaml:"watch_grammar"`
}

// DefaultConfig returns a Config with the service defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:          "gridscript",
		Port:          8480,
		CertDir:       "certs",
		RateLimit:     120,
		JWTExpiry:     86400,
		SQLTimeout:    5,
		DiagRetention: 24 * 7,
		CacheTrees:    true,
		MaxSource:     64 * 1024,
		WatchGrammar:  true,
	}
}

// LoadConfig reads a config file. The format is chosen by extension.
func LoadConfig(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return loadConfigYAML(path)
	default:
		return loadConfigLegacy(path)
	}
}

func loadConfigYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// resolvePaths makes file settings relative to the config file's directory.
func (c *Config) resolvePaths(baseDir string) {
	for _, p := range []*string{&c.GrammarFile, &c.BoltPath, &c.SQLPath, &c.CertFile, &c.KeyFile, &c.CertDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// --- Legacy text loader ---

func loadConfigLegacy(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadLegacyFile(path, 0); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

func (c *Config) loadLegacyFile(path string, depth int) error {
	if depth > 10 {
		return fmt.Errorf("include depth exceeded (circular include?)")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	baseDir := filepath.Dir(path)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		key, val := splitKeyVal(line)
		if key == "" {
			continue
		}

		switch strings.ToLower(key) {
		case "include":
			inc := val
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(baseDir, inc)
			}
			if err := c.loadLegacyFile(inc, depth+1); err != nil {
				return fmt.Errorf("include %s: %w", val, err)
			}
		case "name":
			c.Name = val
		case "port":
			c.Port = atoi(val, c.Port)
		case "host":
			c.Host = val
		case "domain":
			c.Domain = val
		case "cert_file":
			c.CertFile = val
		case "key_file":
			c.KeyFile = val
		case "cert_dir":
			c.CertDir = val
		case "tls":
			c.TLS = parseBool(val)
		case "cors_origin":
			c.CORSOrigins = append(c.CORSOrigins, val)
		case "rate_limit":
			c.RateLimit = atoi(val, c.RateLimit)
		case "jwt_secret":
			c.JWTSecret = val
		case "jwt_expiry":
			c.JWTExpiry = atoi(val, c.JWTExpiry)
		case "bolt_path":
			c.BoltPath = val
		case "sql_path":
			c.SQLPath = val
		case "sql_timeout":
			c.SQLTimeout = atoi(val, c.SQLTimeout)
		case "diag_retention":
			c.DiagRetention = atoi(val, c.DiagRetention)
		case "cache_trees":
			c.CacheTrees = parseBool(val)
		case "grammar_file":
			c.GrammarFile = val
		case "max_source":
			c.MaxSource = atoi(val, c.MaxSource)
		case "watch_grammar":
			c.WatchGrammar = parseBool(val)
		default:
			// Unknown directives silently ignored for forward compatibility
		}
	}
	return scanner.Err()
}

// splitKeyVal splits a line on the first whitespace (space or tab).
func splitKeyVal(line string) (string, string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			return line[:i], strings.TrimSpace(line[i+1:])
		}
	}
	return line, ""
}

func atoi(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "true" || s == "1" || s == "on"
}
