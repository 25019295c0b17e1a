// server.go -- TCP listener and connection bookkeeping
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

// Package server exposes a hashdb.DB over a compact binary protocol on
// a stream connection. Each connection is served by its own goroutine;
// see proto.go for the wire format.
package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/opencoff/go-hashdb"
)

// Options control a Server; the zero value is usable.
type Options struct {
	// Max concurrent connections; 0 is unlimited
	MaxConns int

	Logger *zap.SugaredLogger
}

// Server accepts connections and runs one session per connection
// against a shared DB.
type Server struct {
	db  *hashdb.DB
	log *zap.SugaredLogger
	max int

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	done  bool
	wg    sync.WaitGroup
}

// New creates a server for 'db'
func New(db *hashdb.DB, opt *Options) *Server {
	if opt == nil {
		opt = &Options{}
	}

	log := opt.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Server{
		db:    db,
		log:   log,
		max:   opt.MaxConns,
		conns: make(map[net.Conn]struct{}),
	}
	return s
}

// ListenAndServe listens on the TCP address 'addr' and calls Serve
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on 'ln' until 'ctx' is cancelled or Close is
// called. Every live session is closed before Serve returns. A nil
// error means an orderly shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.max > 0 {
		ln = netutil.LimitListener(ln, s.max)
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	s.log.Infof("listening on %s", ln.Addr())

	stop := context.AfterFunc(ctx, func() {
		s.Close()
	})
	defer stop()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing() {
				s.wg.Wait()
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = backoff(delay)
				s.log.Warnf("accept: %s; retrying in %s", err, delay)
				time.Sleep(delay)
				continue
			}

			s.Close()
			s.wg.Wait()
			return err
		}

		delay = 0
		if !s.track(conn) {
			conn.Close()
			continue
		}

		s.log.Debugf("connection from %s", conn.RemoteAddr())
		go func(conn net.Conn) {
			defer s.untrack(conn)
			s.serveConn(conn)
		}(conn)
	}
}

// serveConn runs one session on 'conn' and closes it
func (s *Server) serveConn(conn net.Conn) {
	sess := newSession(conn, s.db, s.log)
	sess.run()
}

// Addr returns the listen address, or nil before Serve
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops the listener and closes every live connection. In-flight
// mutations that reached the change log stay committed.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil
	}
	s.done = true

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	return err
}

func (s *Server) closing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}
