package boltstore

import (
	"bytes"
	"encoding/gob"
)

func init() {
	gob.Register(Script{})
	gob.Register(Author{})
	gob.Register(TreeEntry{})
}

// encode serializes a record to bytes using gob.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes bytes back into the record pointed to by into.
func decode(data []byte, into any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(into)
}
