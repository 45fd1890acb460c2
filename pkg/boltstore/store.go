package boltstore

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/crystal-mush/gridscript/pkg/tree"
	bbolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by the getters when no record exists.
var ErrNotFound = errors.New("boltstore: not found")

// Script is a named, saved expression.
type Script struct {
	Name    string
	Author  string
	Source  string
	Vars    []string
	Updated time.Time
}

// Author is an account allowed to save scripts.
type Author struct {
	Name      string
	PassHash  string
	Admin     bool
	Created   time.Time
	LastLogin time.Time
}

// TreeEntry is a resolved tree cached under its TreeKey.
type TreeEntry struct {
	Source  string
	Tree    *tree.Tree
	Value   *tree.Value
	Folded  int
	Grammar string
	Stored  time.Time
}

// Counts reports how many records each bucket holds.
type Counts struct {
	Scripts int
	Trees   int
	Authors int
}

// Store wraps a bbolt database for ACID persistence.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketScripts, bucketTrees, bucketAuthors} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(keySchema) == nil {
			return meta.Put(keySchema, intToKey(schemaVersion))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// Schema returns the stored schema version.
func (s *Store) Schema() (int, error) {
	var v int
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketMeta).Get(keySchema); b != nil {
			v = keyToInt(b)
		}
		return nil
	})
	return v, err
}

// ---------- Scripts ----------

// PutScript saves a script, replacing any script with the same name.
func (s *Store) PutScript(sc *Script) error {
	if sc.Updated.IsZero() {
		sc.Updated = time.Now().UTC()
	}
	data, err := encode(sc)
	if err != nil {
		return fmt.Errorf("boltstore: encode script %s: %w", sc.Name, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScripts).Put(nameKey(sc.Name), data)
	})
}

// GetScript loads a script by name. Names are case-insensitive.
func (s *Store) GetScript(name string) (*Script, error) {
	var sc Script
	if err := s.get(bucketScripts, nameKey(name), &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// DeleteScript removes a script. Deleting a missing script is an error.
func (s *Store) DeleteScript(name string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketScripts)
		key := nameKey(name)
		if b.Get(key) == nil {
			return ErrNotFound
		}
		return b.Delete(key)
	})
}

// ListScripts returns every script, optionally only those by author,
// ordered by name.
func (s *Store) ListScripts(author string) ([]*Script, error) {
	var out []*Script
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketScripts).ForEach(func(k, v []byte) error {
			var sc Script
			if err := decode(v, &sc); err != nil {
				log.Printf("boltstore: skipping script %q: %v", k, err)
				return nil
			}
			if author == "" || strings.EqualFold(sc.Author, author) {
				out = append(out, &sc)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// ---------- Cached trees ----------

// PutTree caches a resolved tree.
func (s *Store) PutTree(key string, e *TreeEntry) error {
	if e.Stored.IsZero() {
		e.Stored = time.Now().UTC()
	}
	data, err := encode(e)
	if err != nil {
		return fmt.Errorf("boltstore: encode tree %s: %w", key, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTrees).Put([]byte(key), data)
	})
}

// GetTree loads a cached tree.
func (s *Store) GetTree(key string) (*TreeEntry, error) {
	var e TreeEntry
	if err := s.get(bucketTrees, []byte(key), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// PurgeTrees drops every cached tree not resolved under the given grammar
// fingerprint and returns how many were removed.
func (s *Store) PurgeTrees(keep string) (int, error) {
	removed := 0
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrees)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var e TreeEntry
			if err := decode(v, &e); err != nil || e.Grammar != keep {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err == nil && removed > 0 {
		log.Printf("boltstore: purged %d cached trees", removed)
	}
	return removed, err
}

// ---------- Authors ----------

// PutAuthor creates or replaces an author.
func (s *Store) PutAuthor(a *Author) error {
	if a.Created.IsZero() {
		a.Created = time.Now().UTC()
	}
	data, err := encode(a)
	if err != nil {
		return fmt.Errorf("boltstore: encode author %s: %w", a.Name, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAuthors).Put(nameKey(a.Name), data)
	})
}

// GetAuthor loads an author by case-insensitive name.
func (s *Store) GetAuthor(name string) (*Author, error) {
	var a Author
	if err := s.get(bucketAuthors, nameKey(name), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// ---------- Helpers ----------

// Counts returns the number of records in each bucket.
func (s *Store) Counts() (Counts, error) {
	var c Counts
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		c.Scripts = tx.Bucket(bucketScripts).Stats().KeyN
		c.Trees = tx.Bucket(bucketTrees).Stats().KeyN
		c.Authors = tx.Bucket(bucketAuthors).Stats().KeyN
		return nil
	})
	return c, err
}

func (s *Store) get(bucket, key []byte, into any) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		if err := decode(v, into); err != nil {
			return fmt.Errorf("boltstore: decode %s/%s: %w", bucket, key, err)
		}
		return nil
	})
}
