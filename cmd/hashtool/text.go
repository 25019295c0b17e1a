// text.go -- read digests from a variety of text files
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

package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsnet/compress/bzip2"

	"github.com/opencoff/go-hashdb"
)

type record struct {
	d    hashdb.Digest
	line int
	err  error
}

// openInput opens 'fn' for reading, decompressing it if it ends in
// ".bz2". It returns the name without the compression suffix so that
// the caller can pick a parser.
func openInput(fn string) (io.ReadCloser, string, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, fn, err
	}

	if !strings.HasSuffix(fn, ".bz2") {
		return fd, fn, nil
	}

	zr, err := bzip2.NewReader(fd, &bzip2.ReaderConfig{})
	if err != nil {
		fd.Close()
		return nil, fn, fmt.Errorf("%s: %w", fn, err)
	}

	rc := &bz2File{zr, fd}
	return rc, strings.TrimSuffix(fn, ".bz2"), nil
}

type bz2File struct {
	*bzip2.Reader
	fd *os.File
}

func (b *bz2File) Close() error {
	b.Reader.Close()
	return b.fd.Close()
}

// AddTextFile reads digests from 'fn': one hex digest per line, in the
// first white space delimited field. Empty lines and lines starting
// with '#' are skipped.
func AddTextFile(ds []hashdb.Digest, fn string) ([]hashdb.Digest, int, error) {
	fd, nm, err := openInput(fn)
	if err != nil {
		return ds, 0, err
	}

	defer fd.Close()

	if strings.HasSuffix(nm, ".csv") {
		return AddCSVStream(ds, fd, fn, 0)
	}
	return AddTextStream(ds, fd, fn)
}

// AddTextStream is AddTextFile for an open stream
func AddTextStream(ds []hashdb.Digest, fd io.Reader, name string) ([]hashdb.Digest, int, error) {
	sc := bufio.NewScanner(bufio.NewReader(fd))
	ch := make(chan record, 64)

	// do I/O asynchronously
	go func(sc *bufio.Scanner, ch chan record) {
		var line int

		for sc.Scan() {
			line++
			s := strings.TrimSpace(sc.Text())
			if len(s) == 0 || s[0] == '#' {
				continue
			}

			if i := strings.IndexAny(s, " \t"); i > 0 {
				s = s[:i]
			}

			d, err := hashdb.ParseDigest(s)
			ch <- record{d, line, err}
		}

		if err := sc.Err(); err != nil {
			ch <- record{line: line, err: err}
		}
		close(ch)
	}(sc, ch)

	return addFromChan(ds, ch, name)
}

// AddCSVStream reads digests from field 'field' of a CSV stream; quoted
// fields are accepted. A first record that isn't a digest is taken to
// be a header and skipped.
func AddCSVStream(ds []hashdb.Digest, fd io.Reader, name string, field int) ([]hashdb.Digest, int, error) {
	ch := make(chan record, 64)
	cr := csv.NewReader(fd)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	go func(cr *csv.Reader, ch chan record) {
		defer close(ch)

		for n := 1; ; n++ {
			v, err := cr.Read()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					ch <- record{line: n, err: err}
				}
				return
			}

			line, _ := cr.FieldPos(0)
			if len(v) <= field {
				ch <- record{line: line, err: fmt.Errorf("no field %d", field)}
				return
			}

			d, err := hashdb.ParseDigest(v[field])
			if err != nil && n == 1 {
				continue
			}
			ch <- record{d, line, err}
		}
	}(cr, ch)

	return addFromChan(ds, ch, name)
}

// drain the chan; the first bad record aborts the read
func addFromChan(ds []hashdb.Digest, ch chan record, name string) ([]hashdb.Digest, int, error) {
	var n int
	var err error

	for r := range ch {
		if err != nil {
			continue
		}
		if r.err != nil {
			err = &hashdb.FormatError{File: name, Line: r.line, Err: r.err}
			continue
		}
		ds = append(ds, r.d)
		n++
	}
	return ds, n, err
}
