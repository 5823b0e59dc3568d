package ioutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicFile is written under a temporary name next to its target and renamed
// into place on Commit, so readers see either the old file or the new one.
type AtomicFile struct {
	*os.File
	target string
	done   bool
}

// CreateAtomic creates the parent directories of target and a temporary file
// beside it.
func CreateAtomic(target string) (*AtomicFile, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{File: f, target: target}, nil
}

// TempPath is where data is written before Commit.
func (a *AtomicFile) TempPath() string { return a.File.Name() }

// Target is the final path.
func (a *AtomicFile) Target() string { return a.target }

// Commit syncs, closes and renames the temporary file over the target.
func (a *AtomicFile) Commit() error {
	if a.done {
		return fmt.Errorf("atomic file %s already finished", a.target)
	}
	a.done = true
	if err := a.File.Sync(); err != nil {
		_ = a.File.Close()
		_ = os.Remove(a.File.Name())
		return err
	}
	if err := a.File.Close(); err != nil {
		_ = os.Remove(a.File.Name())
		return err
	}
	if err := os.Rename(a.File.Name(), a.target); err != nil {
		_ = os.Remove(a.File.Name())
		return err
	}
	return nil
}

// Discard closes and removes the temporary file. It is a no-op after Commit.
func (a *AtomicFile) Discard() error {
	if a.done {
		return nil
	}
	a.done = true
	_ = a.File.Close()
	if err := os.Remove(a.File.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CopyFileAtomic copies src to dst, replacing dst atomically.
func CopyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := CreateAtomic(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Discard()
		return err
	}
	return out.Commit()
}

// ReserveTemp creates the parent directories of target and an empty,
// uniquely named sibling for writers that open paths themselves.
func ReserveTemp(target string) (string, error) {
	af, err := CreateAtomic(target)
	if err != nil {
		return "", err
	}
	name := af.TempPath()
	if err := af.File.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// PromoteFile renames a finished temporary path over target, creating parents.
func PromoteFile(tmp, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}
