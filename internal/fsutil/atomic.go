// Package fsutil provides the single filesystem-atomicity primitive the
// kernel is built on: write-to-temp-file-then-rename. Every durable write in
// the object store, the LSI, and the promotion ledger goes through it.
package fsutil

import (
	"os"
	"path/filepath"
)

// AtomicWriteBytes writes data to path such that readers never observe a
// partial write: it writes to a temp file in the same directory, then
// renames it into place. Rename is atomic on a POSIX filesystem when the
// source and destination share a volume.
func AtomicWriteBytes(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
