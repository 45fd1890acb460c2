package boltstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/crystal-mush/gridscript/pkg/tree"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScripts(t *testing.T) {
	s := openTemp(t)
	if err := s.PutScript(&Script{Name: "Offset", Author: "wiz", Source: "pos + <0, 0, 1>", Vars: []string{"pos"}}); err != nil {
		t.Fatalf("PutScript: %v", err)
	}
	if err := s.PutScript(&Script{Name: "area", Author: "guest", Source: "w * h"}); err != nil {
		t.Fatal(err)
	}

	sc, err := s.GetScript("OFFSET")
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if sc.Source != "pos + <0, 0, 1>" || len(sc.Vars) != 1 || sc.Updated.IsZero() {
		t.Errorf("got %+v", sc)
	}

	all, err := s.ListScripts("")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListScripts = %d, %v", len(all), err)
	}
	if all[0].Name != "Offset" || all[1].Name != "area" {
		t.Errorf("order = %s, %s", all[0].Name, all[1].Name)
	}
	mine, _ := s.ListScripts("WIZ")
	if len(mine) != 1 || mine[0].Name != "Offset" {
		t.Errorf("ListScripts(wiz) = %v", mine)
	}

	if err := s.DeleteScript("offset"); err != nil {
		t.Fatalf("DeleteScript: %v", err)
	}
	if _, err := s.GetScript("offset"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetScript after delete: %v", err)
	}
	if err := s.DeleteScript("offset"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestTreeRoundTrip(t *testing.T) {
	s := openTemp(t)
	root := tree.New(tree.TagExpressionRoot, "", 0)
	add := tree.New(tree.TagOperatorBinary, "+", 1)
	two := tree.New(tree.TagNumericLiteral, "2", 0)
	two.Process()
	add.Append(two, tree.New(tree.TagVariable, "x", 2))
	add.AlreadyCombined = true
	root.Append(add)
	root.Resolved = true

	key := TreeKey("abc", []string{"x"}, "2+x")
	if err := s.PutTree(key, &TreeEntry{Source: "2+x", Tree: root, Grammar: "abc"}); err != nil {
		t.Fatalf("PutTree: %v", err)
	}
	got, err := s.GetTree(key)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if got.Tree.String() != root.String() {
		t.Errorf("tree = %s, want %s", got.Tree, root)
	}
	if !got.Tree.Resolved || got.Tree.Children[0].Tag != tree.TagOperatorBinary {
		t.Errorf("decoded tree lost its tags: %+v", got.Tree.Children[0])
	}
	if v := got.Tree.Children[0].Children[0].Value; v == nil || v.Int != 2 {
		t.Errorf("literal value = %v", v)
	}
}

func TestTreeKey(t *testing.T) {
	a := TreeKey("g1", []string{"b", "a"}, "a+b")
	if a != TreeKey("g1", []string{"a", "b"}, "a+b") {
		t.Error("variable order changed the key")
	}
	if a == TreeKey("g2", []string{"a", "b"}, "a+b") {
		t.Error("grammar did not change the key")
	}
	if a == TreeKey("g1", []string{"a"}, "a+b") {
		t.Error("variables did not change the key")
	}
}

func TestPurgeTrees(t *testing.T) {
	s := openTemp(t)
	root := tree.New(tree.TagExpressionRoot, "", 0)
	for i, g := range []string{"old", "old", "new"} {
		key := TreeKey(g, nil, string(rune('a'+i)))
		if err := s.PutTree(key, &TreeEntry{Tree: root, Grammar: g}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.PurgeTrees("new")
	if err != nil || n != 2 {
		t.Fatalf("PurgeTrees = %d, %v", n, err)
	}
	c, _ := s.Counts()
	if c.Trees != 1 {
		t.Errorf("%d trees left", c.Trees)
	}
}

func TestAuthors(t *testing.T) {
	s := openTemp(t)
	if _, err := s.GetAuthor("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAuthor(missing) = %v", err)
	}
	if err := s.PutAuthor(&Author{Name: "Wiz", PassHash: "$2a$...", Admin: true}); err != nil {
		t.Fatal(err)
	}
	a, err := s.GetAuthor("wiz")
	if err != nil || !a.Admin || a.Created.IsZero() {
		t.Errorf("GetAuthor = %+v, %v", a, err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keep.bolt")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.PutScript(&Script{Name: "k", Source: "1"})
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.GetScript("k"); err != nil {
		t.Errorf("script lost across reopen: %v", err)
	}
	if v, _ := s.Schema(); v != schemaVersion {
		t.Errorf("schema = %d", v)
	}
}
