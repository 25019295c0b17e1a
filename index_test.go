// index_test.go -- tests for loading and searching the base index
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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBaseLoad(t *testing.T) {
	assert := newAsserter(t)

	for _, sz := range []int{SizeMD5, SizeSHA1, SizeSHA256, SizeSHA512} {
		ds := mkdigests(uint64(sz), keyw, sz)
		fn := writeBase(t, t.TempDir(), ds)

		bi, err := LoadBase(fn)
		assert(err == nil, "%d: load: %s", sz, err)
		assert(bi.Len() == len(ds), "%d: len: exp %d, saw %d", sz, len(ds), bi.Len())
		assert(bi.Size() == sz, "%d: size: saw %d", sz, bi.Size())

		for i, d := range ds {
			assert(bi.At(i) == d, "%d: at %d: exp %s, saw %s", sz, i, d, bi.At(i))
			assert(bi.Exists(d), "%d: %s missing", sz, d)
		}

		for _, s := range []string{"not", "in", "the", "list"} {
			d := mkdigest(uint64(sz), s, sz)
			assert(!bi.Exists(d), "%d: phantom %s", sz, d)
		}

		// wrong width is never present
		assert(!bi.Exists(mkdigest(1, "x", 2*sz%96)), "%d: odd width found", sz)
	}
}

func TestBaseSearch(t *testing.T) {
	assert := newAsserter(t)

	ds := mkdigests(42, keyw, SizeMD5)
	bi, err := ReadBase(bytes.NewReader(hashText(ds)), "mem")
	assert(err == nil, "read: %s", err)

	lo := Digest(make([]byte, SizeMD5))
	hi := Digest(bytes.Repeat([]byte{0xff}, SizeMD5))

	assert(bi.Search(lo) == 0, "search low: %d", bi.Search(lo))
	assert(bi.Search(hi) == bi.Len(), "search high: %d", bi.Search(hi))
	for i, d := range ds {
		assert(bi.Search(d) == i, "search %s: exp %d, saw %d", d, i, bi.Search(d))
	}
}

func TestBaseEmpty(t *testing.T) {
	assert := newAsserter(t)

	fn := filepath.Join(t.TempDir(), "empty.txt")
	err := os.WriteFile(fn, nil, 0600)
	assert(err == nil, "write: %s", err)

	bi, err := LoadBase(fn)
	assert(err == nil, "load: %s", err)
	assert(bi.Len() == 0, "len: %d", bi.Len())
	assert(bi.Size() == 0, "size: %d", bi.Size())
	assert(!bi.Exists(mkdigest(1, "a", SizeMD5)), "empty index has a digest")
}

func TestBaseCRLF(t *testing.T) {
	assert := newAsserter(t)

	ds := mkdigests(7, keyw, SizeSHA1)
	txt := bytes.ReplaceAll(hashText(ds), []byte("\n"), []byte("\r\n"))

	// no trailing newline on the last line either
	txt = bytes.TrimSuffix(txt, []byte("\r\n"))

	bi, err := ReadBase(bytes.NewReader(txt), "crlf")
	assert(err == nil, "read: %s", err)
	assert(bi.Len() == len(ds), "len: exp %d, saw %d", len(ds), bi.Len())
}

func TestBaseMalformed(t *testing.T) {
	assert := newAsserter(t)

	ds := mkdigests(9, keyw, SizeMD5)
	a, b, c := ds[0].String(), ds[1].String(), ds[2].String()
	sha1 := mkdigest(9, "x", SizeSHA1).String()

	tests := []struct {
		name string
		txt  string
		line int
		err  error
	}{
		{"unsorted", a + "\n" + c + "\n" + b + "\n", 3, ErrUnsorted},
		{"duplicate", a + "\n" + b + "\n" + b + "\n", 3, ErrUnsorted},
		{"mixed", a + "\n" + sha1 + "\n", 2, ErrDigestSize},
		{"badwidth", "ABCDEF\n", 1, ErrDigestSize},
		{"nonhex", a + "\n" + "X" + b[1:] + "\n", 2, ErrInvalidDigest},
		{"blank", a + "\n\n" + b + "\n", 2, nil},
	}

	for _, tc := range tests {
		_, err := ReadBase(bytes.NewReader([]byte(tc.txt)), tc.name)
		assert(err != nil, "%s: no error", tc.name)

		var fe *FormatError
		assert(errors.As(err, &fe), "%s: not a format error: %s", tc.name, err)
		assert(fe.Line == tc.line, "%s: line: exp %d, saw %d", tc.name, tc.line, fe.Line)
		assert(fe.File == tc.name, "%s: file %s", tc.name, fe.File)
		if tc.err != nil {
			assert(errors.Is(err, tc.err), "%s: exp %s, saw %s", tc.name, tc.err, err)
		}
	}
}

func TestBaseMissing(t *testing.T) {
	assert := newAsserter(t)

	_, err := LoadBase(filepath.Join(t.TempDir(), "nope.txt"))
	assert(errors.Is(err, os.ErrNotExist), "missing file: %v", err)
}
