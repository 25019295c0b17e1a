// index.go -- immutable sorted index of digests loaded from a hash file
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
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/opencoff/go-mmap"
)

// Index is the common query interface for a set of digests. It is
// satisfied by the read-only BaseIndex and by the Layered view of a base
// with a ChangeSet on top.
type Index interface {
	// Exists returns true if 'd' is in the set
	Exists(d Digest) bool

	// Len returns the number of digests in the set
	Len() int
}

var _ Index = &BaseIndex{}
var _ Index = &Layered{}

// BaseIndex is an immutable, sorted, contiguous array of fixed width
// digests. It is safe for concurrent use without any locking.
type BaseIndex struct {
	// n * size bytes of sorted binary digests
	keys []byte
	size int
	n    int
	fn   string
}

// LoadBase reads the hash file 'fn': one uppercase hex digest per line,
// sorted ascending, all of the same width. The file is memory mapped and
// scanned line by line; each line is decoded into a pre-sized array.
// Any line that is not strictly greater than its predecessor aborts the
// load with a *FormatError.
func LoadBase(fn string) (*BaseIndex, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return nil, err
	}

	defer fd.Close()

	st, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("%s: can't stat: %w", fn, err)
	}

	b := &BaseIndex{
		fn: fn,
	}

	if st.Size() == 0 {
		return b, nil
	}

	mm := mmap.New(fd)
	mapping, err := mm.Map(st.Size(), 0, mmap.PROT_READ, mmap.F_READAHEAD)
	if err != nil {
		return nil, fmt.Errorf("%s: can't mmap %d bytes: %w", fn, st.Size(), err)
	}

	defer mapping.Unmap()

	if err := b.scan(mapping.Bytes()); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadBase builds a BaseIndex from a stream in the hash file format; 'name'
// is only used for error messages.
func ReadBase(r io.Reader, name string) (*BaseIndex, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	b := &BaseIndex{
		fn: name,
	}
	if len(buf) == 0 {
		return b, nil
	}
	if err := b.scan(buf); err != nil {
		return nil, err
	}
	return b, nil
}

// decode every line in 'bs' and verify the ordering as we go
func (b *BaseIndex) scan(bs []byte) error {
	var hexlen int

	total := len(bs)
	for line := 1; len(bs) > 0; line++ {
		var s []byte

		i := bytes.IndexByte(bs, '\n')
		if i < 0 {
			s, bs = bs, nil
		} else {
			s, bs = bs[:i], bs[i+1:]
		}

		if n := len(s); n > 0 && s[n-1] == '\r' {
			s = s[:n-1]
		}

		if len(s) == 0 {
			return &FormatError{b.fn, line, fmt.Errorf("blank line")}
		}

		// the first line decides the width of the entire file
		if hexlen == 0 {
			hexlen = len(s)
			if hexlen%2 != 0 || !ValidSize(hexlen/2) {
				return &FormatError{b.fn, line, ErrDigestSize}
			}
			b.size = hexlen / 2

			// upper bound on the number of digests; this avoids
			// repeated re-allocation for very large files.
			est := total/(hexlen+1) + 1
			b.keys = make([]byte, 0, est*b.size)
		}

		if len(s) != hexlen {
			return &FormatError{b.fn, line, fmt.Errorf("%w: exp %d hex chars, saw %d", ErrDigestSize, hexlen, len(s))}
		}

		off := len(b.keys)
		b.keys = slices.Grow(b.keys, b.size)[:off+b.size]
		if err := decodeHex(b.keys[off:], s); err != nil {
			return &FormatError{b.fn, line, err}
		}

		if off > 0 && bytes.Compare(b.keys[off-b.size:off], b.keys[off:]) >= 0 {
			return &FormatError{b.fn, line, ErrUnsorted}
		}
		b.n++
	}
	return nil
}

// Len returns the number of digests in the index
func (b *BaseIndex) Len() int {
	return b.n
}

// Size returns the width of each digest in bytes; it is zero for an
// empty index.
func (b *BaseIndex) Size() int {
	return b.size
}

// Filename returns the name of the underlying hash file
func (b *BaseIndex) Filename() string {
	return b.fn
}

// At returns the i'th digest in sorted order
func (b *BaseIndex) At(i int) Digest {
	return Digest(b.at(i))
}

func (b *BaseIndex) at(i int) []byte {
	j := i * b.size
	return b.keys[j : j+b.size]
}

// Search returns the position of the first digest that is >= 'd'; it
// returns Len() if every digest is smaller.
func (b *BaseIndex) Search(d Digest) int {
	lo, hi := 0, b.n
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if string(b.at(m)) < string(d) {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// Exists returns true if 'd' is in the index
func (b *BaseIndex) Exists(d Digest) bool {
	if len(d) != b.size {
		return false
	}

	i := b.Search(d)
	return i < b.n && string(b.at(i)) == string(d)
}

// Desc provides a human description of the index
func (b *BaseIndex) Desc() string {
	var w strings.Builder

	fmt.Fprintf(&w, "%s: %d digests, %d bytes each, %d bytes in memory\n",
		b.fn, b.n, b.size, len(b.keys))
	return w.String()
}
