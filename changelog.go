// changelog.go -- durable append-only log of ChangeSet mutations
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
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dchest/siphash"
	"github.com/dsnet/compress/bzip2"
	"github.com/google/uuid"
)

// A change log is a text file; the first line is a header with a random
// salt, every following line is one record:
//
//	#hashdb-changelog v1 <salt: 32 hex chars>
//	<seq> <A|R> <HEX DIGEST> <siphash-2-4: 16 hex chars>
//
// The checksum is over "<seq> <op> <digest>" keyed by the salt. Sequence
// numbers start at 1 and increase by one. Files without the header are
// change files written by older servers: one digest per line, each an add.
const (
	_LogMagic   = "#hashdb-changelog v1"
	_LogSuffix  = ".log"
	_LegacyText = ".txt"
	_ArchiveDir = "archive"
)

// Entry is one mutation in a change log
type Entry struct {
	Seq    uint64
	Op     Op
	Digest Digest
}

func (e Entry) String() string {
	return fmt.Sprintf("%d %c %s", e.Seq, byte(e.Op), e.Digest)
}

// ChangeLog is the writer side of a change log. Appends are serialized
// and each Append returns only after the records are on stable storage.
type ChangeLog struct {
	sync.Mutex

	fd   *os.File
	fn   string
	k0   uint64
	k1   uint64
	seq  uint64
	off  int64
	buf  []byte
	err  error
	done bool
}

// CreateLog creates a new change log in 'dir'. Log files are named by a
// time ordered UUID, so lexical order of names is creation order.
func CreateLog(dir string) (*ChangeLog, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	fn := filepath.Join(dir, id.String()+_LogSuffix)
	fd, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}

	salt := randbytes(16)
	l := &ChangeLog{
		fd:  fd,
		fn:  fn,
		k0:  binary.LittleEndian.Uint64(salt[:8]),
		k1:  binary.LittleEndian.Uint64(salt[8:]),
		buf: make([]byte, 0, 256),
	}

	hdr := fmt.Sprintf("%s %x\n", _LogMagic, salt)
	if _, err := writeAll(fd, []byte(hdr)); err != nil {
		l.abort()
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if err := fd.Sync(); err != nil {
		l.abort()
		return nil, fmt.Errorf("%s: %w", fn, err)
	}

	// make the new name durable too
	if err := syncDir(dir); err != nil {
		l.abort()
		return nil, err
	}

	l.off = int64(len(hdr))
	return l, nil
}

func (l *ChangeLog) abort() {
	l.fd.Close()
	os.Remove(l.fn)
}

// Filename returns the name of the log file
func (l *ChangeLog) Filename() string {
	return l.fn
}

// Seq returns the sequence number of the last record
func (l *ChangeLog) Seq() uint64 {
	l.Lock()
	defer l.Unlock()
	return l.seq
}

// Append writes one record for each digest in 'ds' and syncs the file.
// The records are committed only if Append returns nil. A failed write
// is trimmed off the end of the file so that later records remain
// replayable; a failed sync leaves the log unusable.
func (l *ChangeLog) Append(op Op, ds ...Digest) error {
	if !op.Valid() {
		return ErrBadOp
	}

	l.Lock()
	defer l.Unlock()

	if l.done {
		return ErrClosed
	}
	if l.err != nil {
		return l.err
	}

	seq := l.seq
	buf := l.buf[:0]
	for _, d := range ds {
		seq++
		buf = l.appendRecord(buf, seq, op, d)
	}
	l.buf = buf

	if n, err := l.fd.WriteAt(buf, l.off); err != nil || n != len(buf) {
		if err == nil {
			err = errShortWrite(l.fn, n)
		}
		if terr := l.fd.Truncate(l.off); terr != nil {
			l.err = fmt.Errorf("%s: can't trim failed write: %w", l.fn, terr)
		}
		return fmt.Errorf("%s: %w", l.fn, err)
	}

	// once a sync fails we can't know what made it to disk
	if err := l.fd.Sync(); err != nil {
		l.err = fmt.Errorf("%s: sync: %w", l.fn, err)
		return l.err
	}

	l.off += int64(len(buf))
	l.seq = seq
	return nil
}

// Close closes the log; the file stays in place for replay and merge
func (l *ChangeLog) Close() error {
	l.Lock()
	defer l.Unlock()

	if l.done {
		return ErrClosed
	}
	l.done = true
	return l.fd.Close()
}

func (l *ChangeLog) appendRecord(b []byte, seq uint64, op Op, d Digest) []byte {
	start := len(b)
	b = strconv.AppendUint(b, seq, 10)
	b = append(b, ' ', byte(op), ' ')
	b = d.AppendText(b)

	sum := siphash.Hash(l.k0, l.k1, b[start:])
	b = append(b, ' ')
	b = appendHex64(b, sum)
	return append(b, '\n')
}

func appendHex64(b []byte, v uint64) []byte {
	var x [8]byte

	binary.BigEndian.PutUint64(x[:], v)
	return append(b, hex.EncodeToString(x[:])...)
}

// Replay describes the outcome of reading a change log
type Replay struct {
	File    string
	Entries int
	Legacy  bool

	// Stopped is the first malformed record; nil if the entire log was
	// intact. Everything before it has been replayed.
	Stopped *FormatError
}

// ReplayLog reads the change log in 'fn' and calls 'fp' for every intact
// record in order. Reading stops at the first record that is truncated,
// malformed or fails its checksum; this is reported in Replay.Stopped and
// is not an error. Archived logs ending in ".bz2" are decompressed.
// The returned error is either an I/O error or the error from 'fp'.
func ReplayLog(fn string, fp func(e Entry) error) (Replay, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return Replay{File: fn}, err
	}

	defer fd.Close()

	var r io.Reader = fd
	if strings.HasSuffix(fn, ".bz2") {
		var cfg bzip2.ReaderConfig

		zr, err := bzip2.NewReader(fd, &cfg)
		if err != nil {
			return Replay{File: fn}, fmt.Errorf("%s: %w", fn, err)
		}
		defer zr.Close()
		r = zr
	}

	return ReplayReader(r, fn, fp)
}

// ReplayReader is ReplayLog for an arbitrary stream; 'name' is used in
// error messages.
func ReplayReader(r io.Reader, name string, fp func(e Entry) error) (Replay, error) {
	rd := bufio.NewReaderSize(r, 64*1024)
	rp := Replay{
		File: name,
	}

	stop := func(line int, err error) (Replay, error) {
		rp.Stopped = &FormatError{name, line, err}
		return rp, nil
	}

	var k0, k1 uint64
	var seq uint64

	for line := 1; ; line++ {
		s, err := rd.ReadSlice('\n')
		switch {
		case err == io.EOF:
			if len(s) > 0 {
				return stop(line, fmt.Errorf("truncated record"))
			}
			return rp, nil
		case errors.Is(err, bufio.ErrBufferFull):
			return stop(line, fmt.Errorf("record too long"))
		case err != nil:
			return rp, fmt.Errorf("%s: %w", name, err)
		}

		s = bytes.TrimRight(s, "\r\n")
		if line == 1 {
			if bytes.HasPrefix(s, []byte(_LogMagic)) {
				k0, k1, err = parseHeader(s)
				if err != nil {
					return stop(line, err)
				}
				continue
			}
			rp.Legacy = true
		}

		var e Entry
		if rp.Legacy {
			e.Digest, err = parseHex(s)
			e.Op = OpAdd
			e.Seq = seq + 1
		} else {
			e, err = parseRecord(s, k0, k1)
			if err == nil && e.Seq != seq+1 {
				err = fmt.Errorf("sequence gap: exp %d, saw %d", seq+1, e.Seq)
			}
		}
		if err != nil {
			return stop(line, err)
		}

		seq = e.Seq
		if err := fp(e); err != nil {
			return rp, err
		}
		rp.Entries++
	}
}

func parseHeader(s []byte) (uint64, uint64, error) {
	f := bytes.Fields(s[len(_LogMagic):])
	if len(f) != 1 || len(f[0]) != 32 {
		return 0, 0, fmt.Errorf("malformed header")
	}

	var salt [16]byte
	if _, err := hex.Decode(salt[:], f[0]); err != nil {
		return 0, 0, fmt.Errorf("malformed header salt: %w", err)
	}
	return binary.LittleEndian.Uint64(salt[:8]), binary.LittleEndian.Uint64(salt[8:]), nil
}

func parseRecord(s []byte, k0, k1 uint64) (Entry, error) {
	var e Entry

	i := bytes.LastIndexByte(s, ' ')
	if i < 0 || len(s)-i-1 != 16 {
		return e, fmt.Errorf("malformed record")
	}

	body := s[:i]
	sum, err := strconv.ParseUint(string(s[i+1:]), 16, 64)
	if err != nil {
		return e, fmt.Errorf("malformed checksum: %w", err)
	}
	if siphash.Hash(k0, k1, body) != sum {
		return e, ErrChecksum
	}

	f := bytes.Fields(body)
	if len(f) != 3 || len(f[1]) != 1 {
		return e, fmt.Errorf("malformed record")
	}

	if e.Seq, err = strconv.ParseUint(string(f[0]), 10, 64); err != nil {
		return e, fmt.Errorf("malformed sequence: %w", err)
	}
	if e.Op = Op(f[1][0]); !e.Op.Valid() {
		return e, ErrBadOp
	}
	if e.Digest, err = parseHex(f[2]); err != nil {
		return e, err
	}
	return e, nil
}

// ListLogs returns the change logs in 'dir' in replay order. A missing
// directory has no logs.
func ListLogs(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	// ReadDir returns entries sorted by name. Legacy change files
	// predate every log we write, so they replay first.
	var legacy, fns []string
	for _, de := range des {
		nm := de.Name()
		if !de.Type().IsRegular() || strings.HasPrefix(nm, ".") {
			continue
		}
		switch {
		case strings.HasSuffix(nm, _LegacyText):
			legacy = append(legacy, filepath.Join(dir, nm))
		case strings.HasSuffix(nm, _LogSuffix):
			fns = append(fns, filepath.Join(dir, nm))
		}
	}
	return append(legacy, fns...), nil
}
