// digest.go -- hash digest codec
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
	"fmt"
	"strings"
)

// Supported digest sizes in bytes
const (
	SizeMD5    = 16
	SizeSHA1   = 20
	SizeSHA256 = 32
	SizeSHA512 = 64
)

// Digest is the canonical binary form of a hash: the raw big-endian bytes
// held in an immutable string. Digests compare byte-wise with the usual
// string operators.
type Digest string

const hexdigits = "0123456789ABCDEF"

// ValidSize returns true if 'n' is a supported digest size in bytes
func ValidSize(n int) bool {
	switch n {
	case SizeMD5, SizeSHA1, SizeSHA256, SizeSHA512:
		return true
	}
	return false
}

// SizeOf maps an algorithm name to its digest size in bytes
func SizeOf(algo string) (int, error) {
	switch strings.ToLower(algo) {
	case "md5", "":
		return SizeMD5, nil
	case "sha1":
		return SizeSHA1, nil
	case "sha256":
		return SizeSHA256, nil
	case "sha512":
		return SizeSHA512, nil
	}
	return 0, fmt.Errorf("unknown digest algorithm '%s'", algo)
}

// ParseDigest parses a hex digest; mixed case input is accepted.
func ParseDigest(s string) (Digest, error) {
	return parseHex([]byte(s))
}

// parseHex decodes hex text in 'b' into a Digest. This is the hot path
// for loading the base file, so we avoid encoding/hex and the extra copy.
func parseHex(b []byte) (Digest, error) {
	if len(b) == 0 {
		return "", ErrInvalidDigest
	}
	if len(b)%2 != 0 || !ValidSize(len(b)/2) {
		return "", ErrDigestSize
	}

	var buf [SizeSHA512]byte

	n := len(b) / 2
	if err := decodeHex(buf[:n], b); err != nil {
		return "", err
	}
	return Digest(buf[:n]), nil
}

// decodeHex decodes len(dst)*2 hex characters from src into dst
func decodeHex(dst, src []byte) error {
	for i := range dst {
		hi, ok1 := unhex(src[2*i])
		lo, ok2 := unhex(src[2*i+1])
		if !ok1 || !ok2 {
			return ErrInvalidDigest
		}
		dst[i] = hi<<4 | lo
	}
	return nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// DigestFromWire builds a digest from its raw wire bytes
func DigestFromWire(b []byte) (Digest, error) {
	if !ValidSize(len(b)) {
		return "", ErrDigestSize
	}
	return Digest(b), nil
}

// Size returns the digest size in bytes
func (d Digest) Size() int {
	return len(d)
}

// Wire returns the raw bytes of the digest
func (d Digest) Wire() []byte {
	return []byte(d)
}

// AppendText appends the canonical uppercase hex form of 'd' to 'b'
func (d Digest) AppendText(b []byte) []byte {
	for i := 0; i < len(d); i++ {
		c := d[i]
		b = append(b, hexdigits[c>>4], hexdigits[c&0xf])
	}
	return b
}

// String returns the canonical uppercase hex form
func (d Digest) String() string {
	return string(d.AppendText(make([]byte, 0, 2*len(d))))
}
