// Package sink delivers a rendered snapshot to its destination.
//
// An Output is written to and then either committed or aborted. Tree output
// may stream straight to stdout; structured output goes through a Spool so
// that the destination only ever receives a complete document.
package sink

import (
	"io"
	"os"
	"path/filepath"

	"github.com/koustreak/pgtree/internal/errs"
)

// Output is a destination that is finalised explicitly.
type Output interface {
	io.Writer
	// Commit makes everything written visible at the destination.
	Commit() error
	// Abort discards what was written, as far as the destination allows.
	Abort() error
}

// Stream writes straight through to w. Commit and Abort are no-ops: data
// already written cannot be withdrawn.
func Stream(w io.Writer) Output {
	return stream{w}
}

type stream struct{ io.Writer }

func (stream) Commit() error { return nil }
func (stream) Abort() error  { return nil }

// File writes to a temporary file next to path and renames it into place on
// Commit, so readers of path never observe a partial snapshot.
type File struct {
	path string
	tmp  *os.File
	done bool
}

// CreateFile prepares an atomic write to path.
func CreateFile(path string) (*File, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "create output file "+path, err)
	}
	return &File{path: path, tmp: tmp}, nil
}

func (f *File) Write(p []byte) (int, error) {
	return f.tmp.Write(p)
}

// Commit flushes the temporary file to disk and renames it to the target path.
func (f *File) Commit() error {
	if f.done {
		return nil
	}
	f.done = true

	// CreateTemp creates files with mode 0600.
	if err := f.tmp.Chmod(0o644); err != nil {
		f.discard()
		return errs.Wrap(errs.ErrKindUnknown, "chmod output file", err)
	}
	if err := f.tmp.Sync(); err != nil {
		f.discard()
		return errs.Wrap(errs.ErrKindUnknown, "sync output file", err)
	}
	if err := f.tmp.Close(); err != nil {
		_ = os.Remove(f.tmp.Name())
		return errs.Wrap(errs.ErrKindUnknown, "close output file", err)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		_ = os.Remove(f.tmp.Name())
		return errs.Wrap(errs.ErrKindUnknown, "move output file into place", err)
	}
	return nil
}

// Abort removes the temporary file; the target path is left untouched.
func (f *File) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	f.discard()
	return nil
}

// Path is the final destination of the file.
func (f *File) Path() string { return f.path }

func (f *File) discard() {
	_ = f.tmp.Close()
	_ = os.Remove(f.tmp.Name())
}
