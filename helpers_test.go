// helpers_test.go - helper routines for tests
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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"

	"github.com/opencoff/go-fasthash"
)

func newAsserter(t *testing.T) func(cond bool, msg string, args ...interface{}) {
	return func(cond bool, msg string, args ...interface{}) {
		if cond {
			return
		}

		_, file, line, ok := runtime.Caller(1)
		if !ok {
			file = "???"
			line = 0
		}

		s := fmt.Sprintf(msg, args...)
		t.Fatalf("%s: %d: Assertion failed: %s\n", file, line, s)
	}
}

// mkdigest derives a 'size' byte digest from 's' by chaining fasthash
func mkdigest(seed uint64, s string, size int) Digest {
	var b [SizeSHA512]byte

	h := seed
	for i := 0; i < size; i += 8 {
		h = fasthash.Hash64(h, []byte(s))
		binary.BigEndian.PutUint64(b[i:], h)
	}
	return Digest(b[:size])
}

// mkdigests returns the digests of every word in 'keys', sorted
func mkdigests(seed uint64, keys []string, size int) []Digest {
	ds := make([]Digest, 0, len(keys))
	for _, s := range keys {
		ds = append(ds, mkdigest(seed, s, size))
	}
	slices.Sort(ds)
	return slices.Compact(ds)
}

// hashText renders 'ds' in the hash file format
func hashText(ds []Digest) []byte {
	var b bytes.Buffer

	for _, d := range ds {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// writeBase writes 'ds' to a hash file in 'dir' and returns its name
func writeBase(t *testing.T, dir string, ds []Digest) string {
	fn := filepath.Join(dir, "hashes.txt")
	if err := os.WriteFile(fn, hashText(ds), 0600); err != nil {
		t.Fatalf("can't write %s: %s", fn, err)
	}
	return fn
}

var keyw = []string{
	"expectoration",
	"mizzenmastman",
	"stockfather",
	"pictorialness",
	"villainous",
	"unquality",
	"sized",
	"Tarahumari",
	"endocrinotherapy",
	"quicksandy",
	"heretics",
	"pediment",
	"spleen's",
	"Shepard's",
	"paralyzed",
	"megahertzes",
	"Richardson's",
	"mechanics's",
	"Springfield",
	"burlesques",
}
