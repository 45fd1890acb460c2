package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/crystal-mush/gridscript/pkg/boltstore"
	"github.com/crystal-mush/gridscript/pkg/compiler"
	"github.com/crystal-mush/gridscript/pkg/grammar"
	"github.com/crystal-mush/gridscript/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: gridscript -bolt <boltfile> [-conf <config>] [-sqldb <sqlite>] [-grammar <yaml>] [-port 8480]")
	fmt.Fprintln(os.Stderr, "       gridscript -bolt <boltfile> -setpass name:password[:admin]")
	fmt.Fprintln(os.Stderr, "")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Environment variables (used as defaults when flags are not set):")
	fmt.Fprintln(os.Stderr, "  GRIDSCRIPT_CONF     Path to config file (.yaml or .conf)")
	fmt.Fprintln(os.Stderr, "  GRIDSCRIPT_BOLT     Path to bbolt script store")
	fmt.Fprintln(os.Stderr, "  GRIDSCRIPT_SQLDB    Path to SQLite diagnostics log")
	fmt.Fprintln(os.Stderr, "  GRIDSCRIPT_GRAMMAR  Path to YAML grammar file")
	fmt.Fprintln(os.Stderr, "  GRIDSCRIPT_PORT     HTTP port")
	fmt.Fprintln(os.Stderr, "  GRIDSCRIPT_SETPASS  name:password[:admin], set and exit")
	fmt.Fprintln(os.Stderr, "  GRIDSCRIPT_JWT_SECRET  JWT signing secret")
}

func main() {
	confFile := flag.String("conf", envDefault("GRIDSCRIPT_CONF", ""), "Path to config file (env: GRIDSCRIPT_CONF)")
	boltPath := flag.String("bolt", envDefault("GRIDSCRIPT_BOLT", ""), "Path to bbolt script store (env: GRIDSCRIPT_BOLT)")
	sqlPath := flag.String("sqldb", envDefault("GRIDSCRIPT_SQLDB", ""), "Path to SQLite diagnostics log (env: GRIDSCRIPT_SQLDB)")
	grammarFile := flag.String("grammar", envDefault("GRIDSCRIPT_GRAMMAR", ""), "Path to YAML grammar file (env: GRIDSCRIPT_GRAMMAR)")
	port := flag.Int("port", 0, "HTTP port, overrides config (env: GRIDSCRIPT_PORT)")
	setPass := flag.String("setpass", envDefault("GRIDSCRIPT_SETPASS", ""), "Set an author password and exit: name:password[:admin] (env: GRIDSCRIPT_SETPASS)")
	flag.Usage = usage
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())

	cfg := server.DefaultConfig()
	if *confFile != "" {
		var err error
		cfg, err = server.LoadConfig(*confFile)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		log.Printf("Loaded config from %s", *confFile)
	}

	// Flags and environment override the config file.
	if *boltPath != "" {
		cfg.BoltPath = *boltPath
	}
	if *sqlPath != "" {
		cfg.SQLPath = *sqlPath
	}
	if *grammarFile != "" {
		cfg.GrammarFile = *grammarFile
	}
	if *port == 0 {
		if p, err := strconv.Atoi(os.Getenv("GRIDSCRIPT_PORT")); err == nil {
			*port = p
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if s := os.Getenv("GRIDSCRIPT_JWT_SECRET"); s != "" {
		cfg.JWTSecret = s
	}

	if cfg.BoltPath == "" {
		usage()
		os.Exit(1)
	}

	store, err := boltstore.Open(cfg.BoltPath)
	if err != nil {
		log.Fatalf("Error opening bolt database: %v", err)
	}
	defer store.Close()
	if counts, err := store.Counts(); err == nil {
		log.Printf("Script store %s: %d scripts, %d cached trees, %d authors",
			cfg.BoltPath, counts.Scripts, counts.Trees, counts.Authors)
	}

	if cfg.JWTSecret == "" {
		log.Printf("WARNING: no jwt_secret configured, tokens will not survive a restart")
	}
	auth := server.NewAuthService(store, cfg.JWTSecret, cfg.JWTExpiry)

	if *setPass != "" {
		parts := strings.SplitN(*setPass, ":", 3)
		if len(parts) < 2 {
			log.Fatalf("-setpass wants name:password[:admin]")
		}
		admin := len(parts) == 3 && parts[2] == "admin"
		if err := auth.SetPassword(parts[0], parts[1], admin); err != nil {
			log.Fatalf("Error setting password: %v", err)
		}
		log.Printf("Password set for %s (admin=%v)", parts[0], admin)
		return
	}

	g := grammar.Default()
	if cfg.GrammarFile != "" {
		g, err = grammar.LoadFile(cfg.GrammarFile)
		if err != nil {
			log.Fatalf("Error loading grammar: %v", err)
		}
	}
	log.Printf("grammar: %s v%s (%s)", g.Name, g.Version, g.Fingerprint())

	var diags *server.DiagLog
	if cfg.SQLPath != "" {
		diags, err = server.OpenDiagLog(cfg.SQLPath, cfg.SQLTimeout)
		if err != nil {
			log.Printf("WARNING: failed to open diagnostics log %s: %v", cfg.SQLPath, err)
		} else {
			defer diags.Close()
			log.Printf("Diagnostics log: %s (retain %dh)", cfg.SQLPath, cfg.DiagRetention)
		}
	}

	svc := server.NewService(cfg, compiler.New(g), store, diags)
	// Trees cached under an older grammar can never be served again.
	if _, err := store.PurgeTrees(g.Fingerprint()); err != nil {
		log.Printf("WARNING: purging stale trees: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GrammarFile != "" && cfg.WatchGrammar {
		if err := server.WatchGrammar(ctx, svc, cfg.GrammarFile); err != nil {
			log.Printf("WARNING: %v", err)
		}
	}

	if diags != nil && cfg.DiagRetention > 0 {
		retention := time.Duration(cfg.DiagRetention) * time.Hour
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			svc.PruneDiagnostics(retention)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					svc.PruneDiagnostics(retention)
					if err := diags.Checkpoint(); err != nil {
						log.Printf("diaglog: checkpoint: %v", err)
					}
				}
			}
		}()
	}

	web := server.NewWebServer(svc, auth, cfg)
	errc := make(chan error, 1)
	go func() { errc <- web.Start(ctx) }()

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := web.Stop(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}
}
