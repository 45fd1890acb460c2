package boltstore

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strings"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta    = []byte("meta")
	bucketScripts = []byte("scripts")
	bucketTrees   = []byte("trees")
	bucketAuthors = []byte("authors")
)

// Meta key constants.
var (
	keySchema = []byte("schema")
)

const schemaVersion = 1

// nameKey folds a script or author name to its bucket key.
func nameKey(name string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(name)))
}

// TreeKey identifies a resolved tree: the same source resolved under the
// same grammar with the same variable set always yields the same tree.
func TreeKey(grammar string, vars []string, src string) string {
	sorted := append([]string(nil), vars...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(grammar))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte{0})
	h.Write([]byte(src))
	return hex.EncodeToString(h.Sum(nil))
}

// intToKey converts an int to an 8-byte big-endian key.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
