// Package objectstore implements the write-once, content-addressed blob
// store holding the LSI's body, links, and manifest blobs:
// objects/<digest[:2]>/<digest>, written via atomic temp-file-plus-rename.
// Triplet records, ref records, and the ledger are plain JSON files
// written outside this store.
package objectstore

import (
	"os"
	"path/filepath"

	"github.com/McElyea/orket-kernel/internal/canon"
	"github.com/McElyea/orket-kernel/internal/fsutil"
)

// Store addresses blobs under a single scope root (a staging turn directory
// or the committed directory).
type Store struct {
	root string
}

// New returns a Store rooted at root (the directory containing objects/).
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the scope root this store addresses.
func (s *Store) Root() string { return s.root }

func (s *Store) objectPath(digestHex string) string {
	prefix := digestHex
	if len(prefix) > 2 {
		prefix = digestHex[:2]
	}
	return filepath.Join(s.root, "objects", prefix, digestHex)
}

// Put writes data under its digest, skipping the write if a blob with that
// name already exists (digests only collide on a sha256 collision, so an
// existing file is treated as an equal, successful put).
func (s *Store) Put(digestHex string, data []byte) error {
	path := s.objectPath(digestHex)
	if fsutil.Exists(path) {
		return nil
	}
	return fsutil.AtomicWriteBytes(path, data, 0o644)
}

// Get reads the blob for digestHex, returning (nil, nil) when absent.
func (s *Store) Get(digestHex string) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(digestHex))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// PutValue canonicalizes v, stores it by digest, and returns the digest.
func (s *Store) PutValue(v canon.Value) (string, error) {
	bytes := canon.CanonicalBytes(v)
	digest := canon.StructuralDigest(bytes)
	if err := s.Put(digest, bytes); err != nil {
		return "", err
	}
	return digest, nil
}

// GetValue reads and parses the blob for digestHex, returning
// (Value{}, false, nil) when absent.
func (s *Store) GetValue(digestHex string) (canon.Value, bool, error) {
	data, err := s.Get(digestHex)
	if err != nil {
		return canon.Value{}, false, err
	}
	if data == nil {
		return canon.Value{}, false, nil
	}
	v, err := canon.ParseJSON(data)
	if err != nil {
		return canon.Value{}, false, err
	}
	return v, true, nil
}
