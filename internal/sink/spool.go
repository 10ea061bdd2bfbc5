package sink

import (
	"io"
	"os"

	"github.com/koustreak/pgtree/internal/errs"
)

// Spool buffers output in a temporary file and forwards it to dst only on
// Commit. Memory use stays flat however large the snapshot is.
//
// After a successful Commit the spooled bytes remain readable through Open
// until Close, which lets the same snapshot be uploaded elsewhere.
type Spool struct {
	dst  Output
	tmp  *os.File
	size int64
	done bool
}

// NewSpool creates a spool in dir (the system temp dir when empty) that
// forwards to dst.
func NewSpool(dst Output, dir string) (*Spool, error) {
	tmp, err := os.CreateTemp(dir, "pgtree-spool-*")
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "create spool file", err)
	}
	return &Spool{dst: dst, tmp: tmp}, nil
}

func (s *Spool) Write(p []byte) (int, error) {
	n, err := s.tmp.Write(p)
	s.size += int64(n)
	return n, err
}

// Commit copies the spooled bytes to dst and commits dst.
func (s *Spool) Commit() error {
	if s.done {
		return nil
	}
	s.done = true

	if _, err := s.tmp.Seek(0, io.SeekStart); err != nil {
		_ = s.dst.Abort()
		return errs.Wrap(errs.ErrKindUnknown, "rewind spool", err)
	}
	if _, err := io.Copy(s.dst, s.tmp); err != nil {
		_ = s.dst.Abort()
		return errs.Wrap(errs.ErrKindUnknown, "write output", err)
	}
	return s.dst.Commit()
}

// Abort drops the spooled bytes; dst receives nothing.
func (s *Spool) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.dst.Abort()
}

// Size is the number of bytes spooled so far.
func (s *Spool) Size() int64 { return s.size }

// Open returns a reader over the spooled bytes. The reader is only valid
// until Close.
func (s *Spool) Open() io.ReadSeeker {
	return io.NewSectionReader(s.tmp, 0, s.size)
}

// Close removes the spool file.
func (s *Spool) Close() error {
	_ = s.tmp.Close()
	if err := os.Remove(s.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.ErrKindUnknown, "remove spool file", err)
	}
	return nil
}
