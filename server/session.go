// session.go -- per connection protocol state machine
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
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencoff/go-hashdb"
)

type state int

const (
	_AwaitingFrame state = iota
	_Dispatching
	_Closed
)

func (s state) String() string {
	switch s {
	case _AwaitingFrame:
		return "awaiting-frame"
	case _Dispatching:
		return "dispatching"
	case _Closed:
		return "closed"
	}
	return "unknown"
}

// session serves one connection: it reads a frame, dispatches it and
// writes exactly one response before reading the next frame. Responses
// are therefore always in request order.
type session struct {
	id   string
	conn net.Conn
	db   *hashdb.DB
	rd   *bufio.Reader
	wr   *bufio.Writer
	log  *zap.SugaredLogger

	state state

	// current request
	op      Opcode
	payload []byte

	// scratch space reused across requests
	out []byte
	ds  []hashdb.Digest
	res []bool

	nreq int
}

func newSession(conn net.Conn, db *hashdb.DB, log *zap.SugaredLogger) *session {
	id := uuid.New().String()
	s := &session{
		id:      id,
		conn:    conn,
		db:      db,
		rd:      bufio.NewReaderSize(conn, 64*1024),
		wr:      bufio.NewWriterSize(conn, 16*1024),
		log:     log.With("session", id, "remote", conn.RemoteAddr().String()),
		state:   _AwaitingFrame,
		payload: make([]byte, 0, 4096),
		out:     make([]byte, 0, 4096),
	}
	return s
}

// run drives the state machine until the session is closed
func (s *session) run() {
	start := time.Now()

	s.log.Debugf("session start")
	for s.state != _Closed {
		switch s.state {
		case _AwaitingFrame:
			s.state = s.awaitFrame()
		case _Dispatching:
			s.state = s.dispatch()
		}
	}

	s.conn.Close()
	s.log.Debugf("session end: %d requests in %s", s.nreq, time.Since(start).Truncate(time.Millisecond))
}

func (s *session) awaitFrame() state {
	var err error

	s.op, s.payload, err = readFrame(s.rd, s.payload)
	if err == nil {
		s.nreq++
		return _Dispatching
	}

	var perr *ProtocolError
	switch {
	case errors.As(err, &perr):
		s.log.Warnf("%s", err)
		s.fail(err)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	default:
		s.log.Debugf("read: %s", err)
	}
	return _Closed
}

func (s *session) dispatch() state {
	var err error

	s.ds, err = decodeDigests(s.op, s.payload, s.db.Size(), s.ds[:0])
	if err != nil {
		s.log.Warnf("%s", err)
		s.fail(err)
		return _Closed
	}

	out := s.out[:0]
	next := _AwaitingFrame

	switch s.op {
	case OpPing:
		out = appendStatus(out, StatusOK)

	case OpEnd:
		out = appendStatus(out, StatusOK)
		next = _Closed

	case OpQuery:
		st := StatusMiss
		if s.db.Exists(s.ds[0]) {
			st = StatusHit
		}
		out = appendStatus(out, st)

	case OpQueryBatch:
		s.res = s.db.ExistsBatch(s.ds, s.res[:0])
		out = appendBits(out, s.res)
		s.log.Debugf("query: %d digests", len(s.ds))

	case OpAdd, OpRemove, OpAddBatch, OpRemoveBatch:
		op := hashdb.OpAdd
		if s.op == OpRemove || s.op == OpRemoveBatch {
			op = hashdb.OpRemove
		}

		if err := s.db.Apply(op, s.ds...); err != nil {
			s.log.Errorf("%s: %d digests: %s", s.op, len(s.ds), err)
			out = appendError(out, err.Error())
			break
		}

		if s.op.isBatch() {
			out = appendCount(out, StatusCommitted, len(s.ds))
		} else {
			out = appendStatus(out, StatusCommitted)
		}
	}

	s.out = out
	if err := s.write(out, next == _Closed); err != nil {
		s.log.Debugf("write: %s", err)
		return _Closed
	}
	return next
}

// write queues a response; it is flushed unless another complete
// request is already buffered.
func (s *session) write(b []byte, flush bool) error {
	if _, err := s.wr.Write(b); err != nil {
		return err
	}
	if flush || !s.pending() {
		return s.wr.Flush()
	}
	return nil
}

// pending returns true if a whole frame is waiting in the read buffer
func (s *session) pending() bool {
	n := s.rd.Buffered()
	if n < _HdrSize {
		return false
	}

	hdr, err := s.rd.Peek(_HdrSize)
	if err != nil {
		return false
	}
	return n >= _HdrSize+int(binary.BigEndian.Uint16(hdr[1:]))
}

// fail sends a single error response before the session closes
func (s *session) fail(err error) {
	s.write(appendError(s.out[:0], err.Error()), true)
}
