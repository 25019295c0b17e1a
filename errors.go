// errors.go - public errors exposed by hashdb
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
	"fmt"
)

var (
	// ErrInvalidDigest is returned when a digest has non-hex characters
	// or is empty
	ErrInvalidDigest = errors.New("invalid digest")

	// ErrDigestSize is returned when a digest is not one of the supported
	// lengths, or doesn't match the width of the DB
	ErrDigestSize = errors.New("unsupported digest size")

	// ErrUnsorted is returned when the hash file has two adjacent lines
	// that are not in strictly increasing order
	ErrUnsorted = errors.New("hash file not sorted")

	// ErrClosed is returned when operating on a closed DB or change log
	ErrClosed = errors.New("db closed")

	// ErrLocked is returned when another process holds the changes dir
	ErrLocked = errors.New("changes dir locked by another process")

	// ErrBadOp is returned for an unknown change log operation
	ErrBadOp = errors.New("unknown operation")

	// ErrChecksum is returned when a change log record fails its checksum
	ErrChecksum = errors.New("record checksum mismatch")
)

// FormatError describes a malformed line in a hash file or change log.
type FormatError struct {
	File string
	Line int
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func errShortWrite(who string, n int) error {
	return fmt.Errorf("%s: incomplete write; saw %d", who, n)
}
