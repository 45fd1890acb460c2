package server

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crystal-mush/gridscript/pkg/boltstore"
	"github.com/crystal-mush/gridscript/pkg/compiler"
	"github.com/crystal-mush/gridscript/pkg/events"
	"github.com/crystal-mush/gridscript/pkg/fold"
	"github.com/crystal-mush/gridscript/pkg/grammar"
	"github.com/crystal-mush/gridscript/pkg/tree"
)

// recorder is an events.Subscriber that keeps what it receives.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Receive(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Closed() bool { return false }

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	store, err := boltstore.Open(filepath.Join(dir, "test.bolt"))
	if err != nil {
		t.Fatalf("boltstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	diags, err := OpenDiagLog(filepath.Join(dir, "diag.sqlite"), 5)
	if err != nil {
		t.Fatalf("OpenDiagLog: %v", err)
	}
	t.Cleanup(func() { diags.Close() })
	return NewService(DefaultConfig(), compiler.New(nil), store, diags)
}

func TestServiceCompileCaches(t *testing.T) {
	svc := newTestService(t)

	res, cached, err := svc.Compile("wiz", "", "2+3*4", nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cached {
		t.Error("first compile reported a cache hit")
	}
	if res.Value == nil || res.Value.Int != 14 {
		t.Errorf("value = %v", res.Value)
	}

	again, cached, err := svc.Compile("wiz", "", "2+3*4", nil)
	if err != nil {
		t.Fatalf("second Compile: %v", err)
	}
	if !cached {
		t.Error("second compile missed the cache")
	}
	if again.Tree.String() != res.Tree.String() {
		t.Errorf("cached tree %s, want %s", again.Tree, res.Tree)
	}
	if again.Value == nil || again.Value.Int != 14 {
		t.Errorf("cached value = %v", again.Value)
	}

	// Different variables are a different key.
	if _, cached, _ := svc.Compile("wiz", "", "2+3*4", []string{"x"}); cached {
		t.Error("compile with other vars hit the cache")
	}
}

func TestServiceCacheKeyFollowsCompiledGrammar(t *testing.T) {
	svc := newTestService(t)
	flat, err := grammar.Parse([]byte("name: flat\nlevels:\n  - {\"*\": binary, \"+\": binary}\n"))
	if err != nil {
		t.Fatal(err)
	}
	def := grammar.Default()
	const src = "2+3*4"

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				svc.Compiler().SetGrammar(flat)
			} else {
				svc.Compiler().SetGrammar(def)
			}
		}
	}()
	for i := 0; i < 200; i++ {
		if _, _, err := svc.Compile("", "", src, nil); err != nil {
			t.Errorf("Compile: %v", err)
		}
	}
	close(stop)
	wg.Wait()

	// Whatever got cached, each entry sits under its own grammar's key.
	for _, g := range []*grammar.Grammar{def, flat} {
		fp := g.Fingerprint()
		e, err := svc.Store().GetTree(boltstore.TreeKey(fp, nil, src))
		if errors.Is(err, boltstore.ErrNotFound) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if e.Grammar != fp {
			t.Errorf("entry under %s key was built by grammar %s", g.Name, e.Grammar)
		}
	}
}

func TestServiceDiagnosticRecorded(t *testing.T) {
	svc := newTestService(t)
	rec := &recorder{}
	svc.Bus().Subscribe("wiz", rec)

	_, _, err := svc.Compile("wiz", "broken", "a + (b", nil)
	var d *compiler.Diagnostic
	if !errors.As(err, &d) {
		t.Fatalf("error %v is not a diagnostic", err)
	}
	if d.Code != compiler.CodeUnclosedBracket {
		t.Errorf("code = %s", d.Code)
	}

	recs, err := svc.Diagnostics("WIZ", 10)
	if err != nil {
		t.Fatalf("Diagnostics: %v", err)
	}
	if len(recs) != 1 || recs[0].Script != "broken" || recs[0].Column != 5 {
		t.Fatalf("recorded %+v", recs)
	}
	if got := rec.types(); len(got) != 1 || got[0] != events.EvDiagnostic {
		t.Errorf("events = %v", got)
	}
}

func TestServiceSourceLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSource = 4
	svc := NewService(cfg, nil, nil, nil)
	if _, _, err := svc.Compile("wiz", "", "1 + 2 + 3", nil); !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("err = %v, want ErrSourceTooLarge", err)
	}
	if _, err := svc.Eval("wiz", "1 + 2 + 3", nil); !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("Eval err = %v, want ErrSourceTooLarge", err)
	}
}

func TestServiceWithoutStorage(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	if _, cached, err := svc.Compile("wiz", "", "1+1", nil); err != nil || cached {
		t.Fatalf("Compile: cached=%v err=%v", cached, err)
	}
	if _, _, err := svc.SaveScript("wiz", false, "x", "1", nil); !errors.Is(err, ErrNoStore) {
		t.Errorf("SaveScript err = %v", err)
	}
	if recs, err := svc.Diagnostics("wiz", 5); err != nil || recs != nil {
		t.Errorf("Diagnostics = %v, %v", recs, err)
	}
}

func TestServiceEval(t *testing.T) {
	svc := newTestService(t)
	res, err := svc.Eval("wiz", "speed * 2", fold.Env{"speed": tree.Integer(21)})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if res.Value.Int != 42 {
		t.Errorf("value = %s", res.Value)
	}
}

func TestServiceScripts(t *testing.T) {
	svc := newTestService(t)
	rec := &recorder{}
	svc.Bus().SubscribeGlobal(rec)

	sc, res, err := svc.SaveScript("bob", false, "offset", "<1, 2, 3> * 2", nil)
	if err != nil {
		t.Fatalf("SaveScript: %v", err)
	}
	if sc.Author != "bob" || res.Value == nil || res.Value.Kind != tree.KindVector {
		t.Errorf("saved %+v, value %v", sc, res.Value)
	}

	if _, _, err := svc.SaveScript("bob", false, "bad name!", "1", nil); !errors.Is(err, ErrBadScriptName) {
		t.Errorf("bad name err = %v", err)
	}
	if _, _, err := svc.SaveScript("bob", false, "broken", "(1", nil); err == nil {
		t.Error("saved a script that does not resolve")
	}
	if _, _, err := svc.SaveScript("eve", false, "offset", "1", nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("overwrite by another author: err = %v", err)
	}
	if _, _, err := svc.SaveScript("wiz", true, "offset", "<0, 0, 1>", nil); err != nil {
		t.Errorf("admin overwrite: %v", err)
	}

	got, res, err := svc.GetScript("bob", "OFFSET")
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if got.Source != "<0, 0, 1>" || res == nil {
		t.Errorf("GetScript = %+v, %v", got, res)
	}

	list, err := svc.ListScripts("wiz")
	if err != nil || len(list) != 1 {
		t.Errorf("ListScripts(wiz) = %v, %v", list, err)
	}

	if err := svc.DeleteScript("bob", false, "offset"); !errors.Is(err, ErrForbidden) {
		t.Errorf("delete by non-owner: err = %v", err)
	}
	if err := svc.DeleteScript("wiz", false, "offset"); err != nil {
		t.Fatalf("DeleteScript: %v", err)
	}
	if err := svc.DeleteScript("wiz", false, "offset"); !errors.Is(err, boltstore.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}

	var saved, deleted int
	for _, ty := range rec.types() {
		switch ty {
		case events.EvScriptSaved:
			saved++
		case events.EvScriptDeleted:
			deleted++
		}
	}
	if saved != 2 || deleted != 1 {
		t.Errorf("saved=%d deleted=%d events", saved, deleted)
	}
}

func TestServiceReloadGrammar(t *testing.T) {
	svc := newTestService(t)
	rec := &recorder{}
	svc.Bus().Subscribe("wiz", rec)

	if _, _, err := svc.Compile("wiz", "", "2+3*4", nil); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	before := svc.Compiler().Fingerprint()

	path := filepath.Join(t.TempDir(), "flat.yaml")
	doc := "name: flat\nlevels:\n  - {\"*\": binary, \"+\": binary}\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReloadGrammar(path); err != nil {
		t.Fatalf("ReloadGrammar: %v", err)
	}
	if svc.Compiler().Fingerprint() == before {
		t.Fatal("fingerprint unchanged after reload")
	}
	counts, err := svc.Store().Counts()
	if err != nil || counts.Trees != 0 {
		t.Errorf("trees after reload = %d, %v", counts.Trees, err)
	}

	res, cached, err := svc.Compile("wiz", "", "2+3*4", nil)
	if err != nil || cached {
		t.Fatalf("Compile after reload: cached=%v err=%v", cached, err)
	}
	if got := res.Tree.Children[0].String(); got != "(* (+ 2 3) 4)" {
		t.Errorf("tree under flat grammar = %s", got)
	}

	var reloaded bool
	for _, ty := range rec.types() {
		reloaded = reloaded || ty == events.EvGrammarReloaded
	}
	if !reloaded {
		t.Error("no grammar_reloaded event")
	}

	if err := svc.ReloadGrammar(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("reloading a missing file succeeded")
	}
	if svc.Compiler().Grammar().Name != "flat" {
		t.Error("failed reload replaced the grammar")
	}
}

func TestServicePruneDiagnostics(t *testing.T) {
	svc := newTestService(t)
	old := &DiagRecord{Time: time.Now().Add(-48 * time.Hour), Author: "wiz", Source: "(", Code: "lex", Message: "old"}
	if err := svc.DiagLog().Record(old); err != nil {
		t.Fatal(err)
	}
	svc.Compile("wiz", "", "(", nil)

	svc.PruneDiagnostics(24 * time.Hour)
	recs, _ := svc.Diagnostics("wiz", 10)
	if len(recs) != 1 || recs[0].Message == "old" {
		t.Errorf("after prune: %+v", recs)
	}
}

func TestSetGrammarDefault(t *testing.T) {
	svc := NewService(nil, nil, nil, nil)
	svc.SetGrammar(grammar.Default())
	if _, _, err := svc.Compile("", "", "1+1", nil); err != nil {
		t.Errorf("Compile after SetGrammar: %v", err)
	}
}
