// proto.go -- binary wire protocol for the hash server
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

package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/opencoff/go-hashdb"
)

// Every request is a frame:
//
//	+--------+-----------------+--------------------+
//	| opcode | payload length  |      payload       |
//	+--------+-----------------+--------------------+
//	| 1 byte | 2 bytes (u16be) | length bytes       |
//	+--------+-----------------+--------------------+
//
// Single digest requests carry one raw digest. Batch requests carry a
// u16be count followed by that many raw digests. The digest width is
// fixed by the server's hash file.
//
// Every response starts with a status byte:
//
//	Ping, End        's'
//	Query            'h' | 'm'
//	QueryBatch       's' [count u16be] [ceil(count/8) bytes; bit i is
//	                 (byte i/8 >> i%8) & 1]
//	Add, Remove      'c'
//	AddBatch,
//	RemoveBatch      'c' [count u16be]
//	any failure      'e' [length u16be] [message]
//
// Responses are written in request order. A malformed frame gets one
// error response after which the server closes the connection.

// Opcode identifies a request
type Opcode byte

const (
	OpPing        Opcode = 'p'
	OpQuery       Opcode = 'q'
	OpQueryBatch  Opcode = 'Q'
	OpAdd         Opcode = 'a'
	OpRemove      Opcode = 'r'
	OpAddBatch    Opcode = 'A'
	OpRemoveBatch Opcode = 'R'
	OpEnd         Opcode = 'e'
)

func (o Opcode) String() string {
	switch o {
	case OpPing:
		return "ping"
	case OpQuery:
		return "query"
	case OpQueryBatch:
		return "query-batch"
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpAddBatch:
		return "add-batch"
	case OpRemoveBatch:
		return "remove-batch"
	case OpEnd:
		return "end"
	}
	return fmt.Sprintf("opcode<%#x>", byte(o))
}

func (o Opcode) isBatch() bool {
	return o == OpQueryBatch || o == OpAddBatch || o == OpRemoveBatch
}

// Status is the first byte of every response
type Status byte

const (
	StatusOK        Status = 's'
	StatusHit       Status = 'h'
	StatusMiss      Status = 'm'
	StatusCommitted Status = 'c'
	StatusError     Status = 'e'
)

const (
	// MaxPayload is the largest payload a frame can carry
	MaxPayload = 65535

	_HdrSize = 3
)

// MaxBatch returns the largest batch of 'size' byte digests that fits in
// one frame
func MaxBatch(size int) int {
	return (MaxPayload - 2) / size
}

var (
	// ErrUnknownOpcode is returned for an opcode outside the protocol
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrBadLength is returned when the length field is inconsistent
	// with the opcode or the digest width
	ErrBadLength = errors.New("inconsistent length")

	// ErrTruncated is returned when the peer goes away mid-frame
	ErrTruncated = errors.New("truncated frame")

	// ErrTooLarge is returned when a request won't fit in one frame
	ErrTooLarge = errors.New("request too large for one frame")
)

// ProtocolError is a framing error; the connection can't be resumed
// after one.
type ProtocolError struct {
	Op  Opcode
	Len int
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s, length %d: %s", e.Op, e.Len, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// readFrame reads one frame from 'r'; the payload is read into 'buf'
// which is grown as needed. io.EOF is returned only if the peer closed
// the connection cleanly between frames.
func readFrame(r io.Reader, buf []byte) (Opcode, []byte, error) {
	var hdr [_HdrSize]byte

	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, buf, &ProtocolError{Opcode(hdr[0]), 0, ErrTruncated}
		}
		return 0, buf, err
	}

	op := Opcode(hdr[0])
	plen := int(binary.BigEndian.Uint16(hdr[1:]))
	if cap(buf) < plen {
		buf = make([]byte, plen)
	}
	buf = buf[:plen]

	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return op, buf, &ProtocolError{op, plen, ErrTruncated}
		}
		return op, buf, err
	}
	return op, buf, nil
}

// decodeDigests validates the payload 'p' of an 'op' request and splits
// it into digests of 'size' bytes; the digests are appended to 'ds'.
func decodeDigests(op Opcode, p []byte, size int, ds []hashdb.Digest) ([]hashdb.Digest, error) {
	bad := func(err error) ([]hashdb.Digest, error) {
		return ds, &ProtocolError{op, len(p), err}
	}

	switch op {
	case OpPing, OpEnd:
		if len(p) != 0 {
			return bad(ErrBadLength)
		}
		return ds, nil

	case OpQuery, OpAdd, OpRemove:
		if len(p) != size {
			return bad(ErrBadLength)
		}
		return append(ds, hashdb.Digest(p)), nil

	case OpQueryBatch, OpAddBatch, OpRemoveBatch:
		if len(p) < 2 {
			return bad(ErrBadLength)
		}

		n := int(binary.BigEndian.Uint16(p[:2]))
		p = p[2:]
		if len(p) != n*size {
			return bad(ErrBadLength)
		}
		for i := 0; i < n; i++ {
			ds = append(ds, hashdb.Digest(p[i*size:(i+1)*size]))
		}
		return ds, nil
	}
	return bad(ErrUnknownOpcode)
}

// AppendRequest encodes a request frame for 'op' with digests 'ds' and
// appends it to 'b'.
func AppendRequest(b []byte, op Opcode, ds ...hashdb.Digest) ([]byte, error) {
	var plen int

	for _, d := range ds {
		plen += d.Size()
	}

	switch {
	case op == OpPing || op == OpEnd:
		if len(ds) != 0 {
			return b, fmt.Errorf("%s: %w", op, ErrBadLength)
		}
	case op.isBatch():
		plen += 2
	case op == OpQuery || op == OpAdd || op == OpRemove:
		if len(ds) != 1 {
			return b, fmt.Errorf("%s: %w", op, ErrBadLength)
		}
	default:
		return b, fmt.Errorf("%s: %w", op, ErrUnknownOpcode)
	}

	if plen > MaxPayload {
		return b, fmt.Errorf("%s: %d digests: %w", op, len(ds), ErrTooLarge)
	}

	b = append(b, byte(op))
	b = binary.BigEndian.AppendUint16(b, uint16(plen))
	if op.isBatch() {
		b = binary.BigEndian.AppendUint16(b, uint16(len(ds)))
	}
	for _, d := range ds {
		b = append(b, string(d)...)
	}
	return b, nil
}

// response encoders; the caller flushes

func appendStatus(b []byte, st Status) []byte {
	return append(b, byte(st))
}

func appendError(b []byte, msg string) []byte {
	if len(msg) > MaxPayload {
		msg = msg[:MaxPayload]
	}
	b = append(b, byte(StatusError))
	b = binary.BigEndian.AppendUint16(b, uint16(len(msg)))
	return append(b, msg...)
}

func appendCount(b []byte, st Status, n int) []byte {
	b = append(b, byte(st))
	return binary.BigEndian.AppendUint16(b, uint16(n))
}

func appendBits(b []byte, res []bool) []byte {
	b = appendCount(b, StatusOK, len(res))

	var x byte
	for i, v := range res {
		if v {
			x |= 1 << (i % 8)
		}
		if i%8 == 7 {
			b = append(b, x)
			x = 0
		}
	}
	if len(res)%8 != 0 {
		b = append(b, x)
	}
	return b
}

// unpackBits is the inverse of appendBits' bitmap
func unpackBits(bits []byte, n int) []bool {
	res := make([]bool, n)
	for i := range res {
		res[i] = (bits[i/8]>>(i%8))&1 == 1
	}
	return res
}
