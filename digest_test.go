// digest_test.go -- tests for the digest codec
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
	"errors"
	"strings"
	"testing"
)

func TestParseDigest(t *testing.T) {
	assert := newAsserter(t)

	tests := []struct {
		in   string
		size int
		err  error
	}{
		{"D41D8CD98F00B204E9800998ECF8427E", 16, nil},
		{"d41d8cd98f00b204e9800998ecf8427e", 16, nil},
		{"DA39A3EE5E6B4B0D3255BFEF95601890AFD80709", 20, nil},
		{strings.Repeat("AB", 32), 32, nil},
		{strings.Repeat("0f", 64), 64, nil},
		{"", 0, ErrInvalidDigest},
		{"ABC", 0, ErrDigestSize},
		{strings.Repeat("AB", 17), 0, ErrDigestSize},
		{"G41D8CD98F00B204E9800998ECF8427E", 0, ErrInvalidDigest},
		{"D41D8CD98F00B204E9800998ECF8427 ", 0, ErrInvalidDigest},
	}

	for i, tc := range tests {
		d, err := ParseDigest(tc.in)
		if tc.err != nil {
			assert(errors.Is(err, tc.err), "%d: %q: exp %s, saw %v", i, tc.in, tc.err, err)
			continue
		}

		assert(err == nil, "%d: %q: %s", i, tc.in, err)
		assert(d.Size() == tc.size, "%d: size: exp %d, saw %d", i, tc.size, d.Size())
		assert(d.String() == strings.ToUpper(tc.in), "%d: text: exp %s, saw %s", i, strings.ToUpper(tc.in), d)
	}
}

func TestDigestOrder(t *testing.T) {
	assert := newAsserter(t)

	a, err := ParseDigest("00FF0000000000000000000000000000")
	assert(err == nil, "parse: %s", err)
	b, err := ParseDigest("0100000000000000000000000000000A")
	assert(err == nil, "parse: %s", err)

	// byte-wise order is the same as the order of the hex text
	assert(a < b, "order: %s !< %s", a, b)
	assert(a.String() < b.String(), "text order: %s !< %s", a, b)
}

func TestDigestWire(t *testing.T) {
	assert := newAsserter(t)

	for _, sz := range []int{SizeMD5, SizeSHA1, SizeSHA256, SizeSHA512} {
		d := mkdigest(0x1234, "wire", sz)
		w, err := DigestFromWire(d.Wire())
		assert(err == nil, "%d: %s", sz, err)
		assert(w == d, "%d: mismatch: exp %s, saw %s", sz, d, w)
	}

	_, err := DigestFromWire(make([]byte, 15))
	assert(errors.Is(err, ErrDigestSize), "short wire digest: %v", err)
}

func TestSizeOf(t *testing.T) {
	assert := newAsserter(t)

	exp := map[string]int{
		"":       16,
		"md5":    16,
		"SHA1":   20,
		"sha256": 32,
		"sha512": 64,
	}
	for a, n := range exp {
		v, err := SizeOf(a)
		assert(err == nil, "%s: %s", a, err)
		assert(v == n, "%s: exp %d, saw %d", a, n, v)
	}

	_, err := SizeOf("crc32")
	assert(err != nil, "crc32 accepted")
}
