// safefile.go -- buffered output files that appear under their final
// name only once they are complete and on disk
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package hashdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// safeFile is written through a temp file in the same directory as its
// final name. Write errors are sticky and surface at Commit. Nothing is
// visible under the final name until Commit succeeds.
type safeFile struct {
	*bufio.Writer

	name string
	tmp  string
	fd   *os.File
	ew   *errWriter
	done bool
}

// createSafe opens a temp file for the eventual file 'name'
func createSafe(name string, bufsz int) (*safeFile, error) {
	tmp := fmt.Sprintf("%s.tmp.%d", name, rand32())
	fd, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}

	ew := &errWriter{w: fd}
	sf := &safeFile{
		Writer: bufio.NewWriterSize(ew, bufsz),
		name:   name,
		tmp:    tmp,
		fd:     fd,
		ew:     ew,
	}
	return sf, nil
}

// Commit flushes and fsyncs the temp file and moves it into place.
// With 'replace' an existing file of the same name is atomically
// replaced; otherwise a collision picks a new name of the form
// <base>.<n><ext> and the existing file is left alone. Returns the name
// the contents were committed under.
func (s *safeFile) Commit(replace bool) (string, error) {
	if err := s.finish(); err != nil {
		s.Abort()
		return "", err
	}

	dir := filepath.Dir(s.name)
	if replace {
		if err := os.Rename(s.tmp, s.name); err != nil {
			s.Abort()
			return "", err
		}
		s.done = true
		return s.name, syncDir(dir)
	}

	ext := filepath.Ext(s.name)
	pfx := strings.TrimSuffix(s.name, ext)
	for i := 0; ; i++ {
		nm := s.name
		if i > 0 {
			nm = fmt.Sprintf("%s.%d%s", pfx, i, ext)
		}

		// link(2) never replaces an existing name
		err := os.Link(s.tmp, nm)
		if err == nil {
			s.done = true
			os.Remove(s.tmp)
			return nm, syncDir(dir)
		}
		if !errors.Is(err, os.ErrExist) {
			s.Abort()
			return "", err
		}
	}
}

// Abort discards an uncommitted file; it is a no-op after Commit.
func (s *safeFile) Abort() {
	if s.done {
		return
	}
	s.done = true
	s.fd.Close()
	os.Remove(s.tmp)
}

func (s *safeFile) finish() error {
	if err := s.Flush(); err != nil {
		return fmt.Errorf("%s: %w", s.tmp, err)
	}
	if err := s.ew.err; err != nil {
		return fmt.Errorf("%s: %w", s.tmp, err)
	}
	if err := s.fd.Sync(); err != nil {
		return fmt.Errorf("%s: %w", s.tmp, err)
	}
	if err := s.fd.Close(); err != nil {
		return fmt.Errorf("%s: %w", s.tmp, err)
	}
	return nil
}

// errWriter remembers the first error; every later Write fails with it.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(b []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}

	n, err := e.w.Write(b)
	if err == nil && n != len(b) {
		err = fmt.Errorf("short write: exp %d, wrote %d", len(b), n)
	}
	e.err = err
	return n, err
}
