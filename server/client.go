// client.go -- client side of the hash server protocol
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
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/opencoff/go-hashdb"
)

// ServerError is an error response from the server
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server: %s", e.Msg)
}

// Client is a connection to a hash server. Calls are serialized; a
// Client is safe for concurrent use but does not pipeline.
type Client struct {
	sync.Mutex

	conn net.Conn
	rd   *bufio.Reader
	buf  []byte
}

// Dial connects to the server at TCP address 'addr'
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient makes a client on an established connection
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn: conn,
		rd:   bufio.NewReaderSize(conn, 16*1024),
		buf:  make([]byte, 0, 4096),
	}
	return c
}

// Ping checks that the server is alive
func (c *Client) Ping() error {
	_, err := c.call(OpPing, StatusOK)
	return err
}

// Query returns true if 'd' is present on the server
func (c *Client) Query(d hashdb.Digest) (bool, error) {
	c.Lock()
	defer c.Unlock()

	st, err := c.send(OpQuery, d)
	if err != nil {
		return false, err
	}

	switch st {
	case StatusHit:
		return true, nil
	case StatusMiss:
		return false, nil
	}
	return false, c.unexpected(OpQuery, st)
}

// QueryBatch returns the presence of each of 'ds' in order
func (c *Client) QueryBatch(ds ...hashdb.Digest) ([]bool, error) {
	c.Lock()
	defer c.Unlock()

	st, err := c.send(OpQueryBatch, ds...)
	if err != nil {
		return nil, err
	}
	if st != StatusOK {
		return nil, c.unexpected(OpQueryBatch, st)
	}

	n, err := c.readU16()
	if err != nil {
		return nil, err
	}
	if n != len(ds) {
		return nil, fmt.Errorf("%s: exp %d results, saw %d", OpQueryBatch, len(ds), n)
	}

	bits := make([]byte, (n+7)/8)
	if _, err := io.ReadFull(c.rd, bits); err != nil {
		return nil, err
	}
	return unpackBits(bits, n), nil
}

// Add adds 'd'; it returns after the server has committed it
func (c *Client) Add(d hashdb.Digest) error {
	_, err := c.call(OpAdd, StatusCommitted, d)
	return err
}

// Remove removes 'd'; it returns after the server has committed it
func (c *Client) Remove(d hashdb.Digest) error {
	_, err := c.call(OpRemove, StatusCommitted, d)
	return err
}

// AddBatch adds all of 'ds' and returns the count the server committed
func (c *Client) AddBatch(ds ...hashdb.Digest) (int, error) {
	return c.batch(OpAddBatch, ds)
}

// RemoveBatch removes all of 'ds' and returns the count the server committed
func (c *Client) RemoveBatch(ds ...hashdb.Digest) (int, error) {
	return c.batch(OpRemoveBatch, ds)
}

// Close ends the session and closes the connection
func (c *Client) Close() error {
	_, err := c.call(OpEnd, StatusOK)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	if e := c.conn.Close(); err == nil {
		err = e
	}
	return err
}

func (c *Client) batch(op Opcode, ds []hashdb.Digest) (int, error) {
	c.Lock()
	defer c.Unlock()

	st, err := c.send(op, ds...)
	if err != nil {
		return 0, err
	}
	if st != StatusCommitted {
		return 0, c.unexpected(op, st)
	}
	return c.readU16()
}

func (c *Client) call(op Opcode, want Status, ds ...hashdb.Digest) (Status, error) {
	c.Lock()
	defer c.Unlock()

	st, err := c.send(op, ds...)
	if err != nil {
		return st, err
	}
	if st != want {
		return st, c.unexpected(op, st)
	}
	return st, nil
}

// send writes one request and reads back the status byte. An error
// response is consumed and returned as a *ServerError.
func (c *Client) send(op Opcode, ds ...hashdb.Digest) (Status, error) {
	b, err := AppendRequest(c.buf[:0], op, ds...)
	if err != nil {
		return 0, err
	}
	c.buf = b

	if _, err := c.conn.Write(b); err != nil {
		return 0, err
	}

	x, err := c.rd.ReadByte()
	if err != nil {
		return 0, err
	}

	st := Status(x)
	if st != StatusError {
		return st, nil
	}

	n, err := c.readU16()
	if err != nil {
		return st, err
	}

	msg := make([]byte, n)
	if _, err := io.ReadFull(c.rd, msg); err != nil {
		return st, err
	}
	return st, &ServerError{string(msg)}
}

func (c *Client) readU16() (int, error) {
	var b [2]byte

	if _, err := io.ReadFull(c.rd, b[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint16(b[:])), nil
}

func (c *Client) unexpected(op Opcode, st Status) error {
	return fmt.Errorf("%s: unexpected response %#x", op, byte(st))
}
