package server

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/crystal-mush/gridscript/pkg/boltstore"
	"github.com/crystal-mush/gridscript/pkg/compiler"
	"github.com/crystal-mush/gridscript/pkg/events"
	"github.com/crystal-mush/gridscript/pkg/fold"
	"github.com/crystal-mush/gridscript/pkg/grammar"
)

var (
	ErrNoStore        = errors.New("script storage not configured")
	ErrForbidden      = errors.New("permission denied")
	ErrSourceTooLarge = errors.New("expression too large")
	ErrBadScriptName  = errors.New("invalid script name")
)

// Service is the compile service shared by every transport. store and diags
// may be nil; the service then neither caches nor records.
type Service struct {
	comp      *compiler.Compiler
	store     *boltstore.Store
	diags     *DiagLog
	bus       *events.Bus
	metrics   *Metrics
	cache     bool
	maxSource int
}

// NewService wires the compile service together.
func NewService(cfg *Config, comp *compiler.Compiler, store *boltstore.Store, diags *DiagLog) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if comp == nil {
		comp = compiler.New(nil)
	}
	return &Service{
		comp:      comp,
		store:     store,
		diags:     diags,
		bus:       events.NewBus(),
		metrics:   NewMetrics(store, time.Now()),
		cache:     cfg.CacheTrees && store != nil,
		maxSource: cfg.MaxSource,
	}
}

func (s *Service) Compiler() *compiler.Compiler { return s.comp }
func (s *Service) Store() *boltstore.Store       { return s.store }
func (s *Service) Bus() *events.Bus             { return s.bus }
func (s *Service) Metrics() *Metrics            { return s.metrics }
func (s *Service) DiagLog() *DiagLog            { return s.diags }

// Compile resolves src for author. The bool result reports a cache hit.
// Failures are returned as *compiler.Diagnostic, recorded in the diagnostics
// log and published to the author.
func (s *Service) Compile(author, script, src string, vars []string) (*compiler.Result, bool, error) {
	if s.maxSource > 0 && len(src) > s.maxSource {
		return nil, false, ErrSourceTooLarge
	}

	var key string
	if s.cache {
		key = boltstore.TreeKey(s.comp.Fingerprint(), vars, src)
		if e, err := s.store.GetTree(key); err == nil {
			res := &compiler.Result{
				Source:  e.Source,
				Tree:    e.Tree,
				Value:   e.Value,
				Folded:  e.Folded,
				Grammar: e.Grammar,
			}
			s.metrics.ObserveResolve("cached", 0)
			s.publishResult(author, script, res)
			return res, true, nil
		} else if !errors.Is(err, boltstore.ErrNotFound) {
			log.Printf("service: tree cache read: %v", err)
		}
	}

	res, err := s.comp.Compile(src, vars)
	if err != nil {
		s.metrics.ObserveResolve("error", 0)
		s.reportDiagnostic(author, script, src, err)
		return nil, false, err
	}
	s.metrics.ObserveResolve("ok", res.Duration)

	if s.cache {
		// Keyed by the grammar that produced the tree, which may differ
		// from the one the lookup used if a swap happened in between.
		key = boltstore.TreeKey(res.Grammar, vars, src)
		entry := &boltstore.TreeEntry{
			Source:  res.Source,
			Tree:    res.Tree,
			Value:   res.Value,
			Folded:  res.Folded,
			Grammar: res.Grammar,
		}
		if err := s.store.PutTree(key, entry); err != nil {
			log.Printf("service: tree cache write: %v", err)
		}
	}
	s.publishResult(author, script, res)
	return res, false, nil
}

// Eval compiles src with env's names bound and evaluates it.
func (s *Service) Eval(author, src string, env fold.Env) (*compiler.Result, error) {
	if s.maxSource > 0 && len(src) > s.maxSource {
		return nil, ErrSourceTooLarge
	}
	res, err := s.comp.Eval(src, env)
	if err != nil {
		s.metrics.ObserveResolve("error", 0)
		s.reportDiagnostic(author, "", src, err)
		return nil, err
	}
	s.metrics.ObserveResolve("ok", res.Duration)
	s.publishResult(author, "", res)
	return res, nil
}

// publishResult tells the author's subscribers about a compilation.
// Anonymous compilations are not published; an empty author would broadcast.
func (s *Service) publishResult(author, script string, res *compiler.Result) {
	if author == "" {
		return
	}
	data := map[string]any{
		"tree":    res.Tree.String(),
		"grammar": res.Grammar,
	}
	if res.Value != nil {
		data["value"] = res.Value.String()
	}
	s.bus.Emit(events.Event{
		Type:   events.EvCompiled,
		Author: author,
		Script: script,
		Source: res.Source,
		Text:   res.Tree.String(),
		Data:   data,
	})
}

func (s *Service) reportDiagnostic(author, script, src string, err error) {
	var d *compiler.Diagnostic
	if !errors.As(err, &d) {
		log.Printf("service: compile %q: %v", src, err)
		return
	}
	if s.diags != nil {
		rec := &DiagRecord{
			Author:  author,
			Script:  script,
			Source:  src,
			Line:    d.Line,
			Column:  d.Column,
			Code:    string(d.Code),
			Message: d.Message,
			Grammar: s.comp.Fingerprint(),
		}
		if err := s.diags.Record(rec); err != nil {
			log.Printf("service: %v", err)
		}
	}
	if author == "" {
		return
	}
	s.bus.Emit(events.Event{
		Type:   events.EvDiagnostic,
		Author: author,
		Script: script,
		Source: src,
		Text:   d.Error(),
		Data: map[string]any{
			"line":    d.Line,
			"column":  d.Column,
			"code":    string(d.Code),
			"message": d.Message,
		},
	})
}

// validScriptName accepts names of letters, digits, '_', '-' and '.'.
func validScriptName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

// SaveScript compiles src and, if it resolves, stores it under name. Only
// the script's author or an admin may replace an existing script.
func (s *Service) SaveScript(author string, admin bool, name, src string, vars []string) (*boltstore.Script, *compiler.Result, error) {
	if s.store == nil {
		return nil, nil, ErrNoStore
	}
	if !validScriptName(name) {
		return nil, nil, ErrBadScriptName
	}
	if old, err := s.store.GetScript(name); err == nil {
		if !admin && !strings.EqualFold(old.Author, author) {
			return nil, nil, ErrForbidden
		}
	} else if !errors.Is(err, boltstore.ErrNotFound) {
		return nil, nil, err
	}

	res, _, err := s.Compile(author, name, src, vars)
	if err != nil {
		return nil, nil, err
	}

	sc := &boltstore.Script{Name: name, Author: author, Source: src, Vars: vars}
	if err := s.store.PutScript(sc); err != nil {
		return nil, nil, fmt.Errorf("saving script %s: %w", name, err)
	}
	s.bus.Emit(events.Event{Type: events.EvScriptSaved, Author: author, Script: name, Source: src,
		Text: fmt.Sprintf("script %s saved", name)})
	return sc, res, nil
}

// GetScript loads a script and recompiles it under the current grammar.
func (s *Service) GetScript(author, name string) (*boltstore.Script, *compiler.Result, error) {
	if s.store == nil {
		return nil, nil, ErrNoStore
	}
	sc, err := s.store.GetScript(name)
	if err != nil {
		return nil, nil, err
	}
	res, _, err := s.Compile(author, sc.Name, sc.Source, sc.Vars)
	if err != nil {
		// A grammar change can break a saved script; the source is still returned.
		return sc, nil, err
	}
	return sc, res, nil
}

// DeleteScript removes a script owned by author, or any script for an admin.
func (s *Service) DeleteScript(author string, admin bool, name string) error {
	if s.store == nil {
		return ErrNoStore
	}
	sc, err := s.store.GetScript(name)
	if err != nil {
		return err
	}
	if !admin && !strings.EqualFold(sc.Author, author) {
		return ErrForbidden
	}
	if err := s.store.DeleteScript(name); err != nil {
		return err
	}
	s.bus.Emit(events.Event{Type: events.EvScriptDeleted, Author: author, Script: sc.Name,
		Text: fmt.Sprintf("script %s deleted", sc.Name)})
	return nil
}

// ListScripts returns saved scripts, all of them when author is empty.
func (s *Service) ListScripts(author string) ([]*boltstore.Script, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListScripts(author)
}

// Diagnostics returns recent diagnostics for author, or for everyone when
// author is empty.
func (s *Service) Diagnostics(author string, limit int) ([]DiagRecord, error) {
	if s.diags == nil {
		return nil, nil
	}
	return s.diags.Recent(author, limit)
}

// ReloadGrammar loads a grammar file, swaps it into the compiler and drops
// cached trees resolved under any other grammar.
func (s *Service) ReloadGrammar(path string) error {
	g, err := grammar.LoadFile(path)
	if err != nil {
		return err
	}
	s.SetGrammar(g)
	return nil
}

// SetGrammar installs g and purges stale cached trees.
func (s *Service) SetGrammar(g *grammar.Grammar) {
	s.comp.SetGrammar(g)
	fp := s.comp.Fingerprint()
	s.metrics.grammarReloads.Inc()
	if s.store != nil {
		if _, err := s.store.PurgeTrees(fp); err != nil {
			log.Printf("service: purging trees: %v", err)
		}
	}
	log.Printf("grammar: %s v%s active (%s)", g.Name, g.Version, fp[:12])
	s.bus.Emit(events.Event{
		Type: events.EvGrammarReloaded,
		Text: fmt.Sprintf("grammar %s v%s loaded", g.Name, g.Version),
		Data: map[string]any{"name": g.Name, "version": g.Version, "fingerprint": fp},
	})
}

// PruneDiagnostics drops diagnostics older than the retention window.
func (s *Service) PruneDiagnostics(retention time.Duration) {
	if s.diags == nil || retention <= 0 {
		return
	}
	n, err := s.diags.Prune(time.Now().Add(-retention))
	if err != nil {
		log.Printf("service: %v", err)
		return
	}
	if n > 0 {
		log.Printf("service: pruned %d diagnostics", n)
	}
}
