package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchGrammar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grammar.yaml")
	writeFile(t, path, "name: first\n")

	svc := NewService(nil, nil, nil, nil)
	if err := svc.ReloadGrammar(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := WatchGrammar(ctx, svc, path); err != nil {
		t.Fatalf("WatchGrammar: %v", err)
	}

	// An invalid edit keeps the running grammar.
	writeFile(t, path, "levels: [{\"+\": sideways}]\n")
	time.Sleep(300 * time.Millisecond)
	if name := svc.Compiler().Grammar().Name; name != "first" {
		t.Fatalf("grammar after bad edit = %q", name)
	}

	// Edits to other files in the directory are ignored.
	writeFile(t, filepath.Join(dir, "other.yaml"), "name: other\n")

	writeFile(t, path, "name: second\n")
	deadline := time.Now().Add(5 * time.Second)
	for svc.Compiler().Grammar().Name != "second" {
		if time.Now().After(deadline) {
			t.Fatalf("grammar not reloaded, still %q", svc.Compiler().Grammar().Name)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatchGrammarMissingDir(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	err := WatchGrammar(context.Background(), svc, filepath.Join(t.TempDir(), "nope", "g.yaml"))
	if err == nil {
		t.Error("watching a missing directory succeeded")
	}
}
