// remote.go -- commands that talk to a running server
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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/opencoff/go-hashdb"
	"github.com/opencoff/go-hashdb/server"
)

type remoteCommand struct {
	nm   string
	min  int
	exec func(c *server.Client, ds []hashdb.Digest, opt *Option) error
}

func init() {
	registerCommand("ping", &remoteCommand{nm: "ping", exec: ping})
	registerCommand("query", &remoteCommand{nm: "query", min: 1, exec: query})
	registerCommand("add", &remoteCommand{nm: "add", min: 1, exec: add})
	registerCommand("remove", &remoteCommand{nm: "remove", min: 1, exec: remove})
}

func (r *remoteCommand) run(args []string, opt *Option) error {
	args = args[1:]
	if len(args) < r.min {
		return fmt.Errorf("%s: insufficient args", r.nm)
	}

	ds := make([]hashdb.Digest, 0, len(args))
	for _, s := range args {
		d, err := hashdb.ParseDigest(s)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", r.nm, s, err)
		}
		ds = append(ds, d)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := server.Dial(ctx, opt.addr)
	if err != nil {
		return fmt.Errorf("%s: %w", r.nm, err)
	}

	if err = r.exec(c, ds, opt); err != nil {
		c.Close()
		return fmt.Errorf("%s: %w", r.nm, err)
	}
	return c.Close()
}

func ping(c *server.Client, _ []hashdb.Digest, opt *Option) error {
	start := time.Now()
	if err := c.Ping(); err != nil {
		return err
	}
	fmt.Printf("%s: alive, %s\n", opt.addr, time.Since(start))
	return nil
}

func query(c *server.Client, ds []hashdb.Digest, opt *Option) error {
	for _, b := range batches(ds) {
		res, err := c.QueryBatch(b...)
		if err != nil {
			return err
		}

		for i, d := range b {
			v := "not found"
			if res[i] {
				v = "found"
			}
			fmt.Printf("%s %s\n", d, v)
		}
	}
	return nil
}

func add(c *server.Client, ds []hashdb.Digest, opt *Option) error {
	for _, b := range batches(ds) {
		n, err := c.AddBatch(b...)
		if err != nil {
			return err
		}
		opt.Printf("+ %d committed\n", n)
	}
	return nil
}

func remove(c *server.Client, ds []hashdb.Digest, opt *Option) error {
	for _, b := range batches(ds) {
		n, err := c.RemoveBatch(b...)
		if err != nil {
			return err
		}
		opt.Printf("- %d committed\n", n)
	}
	return nil
}

// split 'ds' into runs that fit in one frame
func batches(ds []hashdb.Digest) [][]hashdb.Digest {
	var bs [][]hashdb.Digest

	for len(ds) > 0 {
		n := min(len(ds), server.MaxBatch(ds[0].Size()))
		bs = append(bs, ds[:n])
		ds = ds[n:]
	}
	return bs
}
