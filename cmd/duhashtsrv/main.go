// main.go -- hash lookup database server
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

// duhashtsrv serves membership queries for a large sorted file of hex
// digests over TCP. Clients may add and remove digests at run time; the
// changes are kept in change logs next to the hash file and folded into
// it with --merge.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	flag "github.com/opencoff/pflag"

	"github.com/opencoff/go-hashdb"
	"github.com/opencoff/go-hashdb/server"
)

// Version is the release of this program
const Version = "0.2.0"

const banner = `
     __     __            __   __
 ___/ /_ __/ /  ___ ____ / /  / /____ _____  __
/ _  / // / _ \/ _ ` + "`" + `(_-</ _ \/ __(_-</ __/ |/ /
\_,_/\_,_/_//_/\_,_/___/_//_/\__/___/_/  |___/
`

// interval between stats lines in the log
const statsInterval = 10 * time.Minute

var Z string = path.Base(os.Args[0])

func main() {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		die("%s", err)
	}

	fmt.Print(banner)

	log, err := hashdb.NewLogger(cfg.LogLevel)
	if err != nil {
		die("%s", err)
	}

	log.Infof("initializing %s version %s", Z, Version)
	if err := run(cfg, log); err != nil {
		log.Errorf("%s", err)
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run(cfg *hashdb.Config, log *zap.SugaredLogger) error {
	if cfg.Merge {
		if err := merge(cfg, log); err != nil {
			return err
		}
	}

	opt := cfg.Options()
	opt.Logger = log

	db, err := hashdb.Open(cfg.HashFile, opt)
	if err != nil {
		return err
	}

	defer db.Close()

	if cfg.Test != "" {
		return test(db, cfg.Test, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(db, &server.Options{
		MaxConns: cfg.MaxConns,
		Logger:   log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Addr())
	})
	g.Go(func() error {
		stats(gctx, db, log)
		return nil
	})

	err = g.Wait()
	log.Infof("shutting down")
	return err
}

func merge(cfg *hashdb.Config, log *zap.SugaredLogger) error {
	log.Infof("merging change logs from %s into %s", cfg.ChangesDir, cfg.HashFile)

	mo := &hashdb.MergeOptions{
		Backup: cfg.Backup,
		Logger: log,
	}

	rep, err := hashdb.Merge(cfg.HashFile, cfg.ChangesDir, cfg.HashFile, mo)
	if err != nil {
		return err
	}

	if len(rep.Logs) == 0 {
		log.Infof("merge specified but no change logs found")
		return nil
	}

	log.Infof("merged %d change logs: %d -> %d digests (+%d -%d) in %s",
		len(rep.Logs), rep.Base, rep.Total, rep.Added, rep.Removed,
		rep.Elapsed.Truncate(time.Millisecond))
	return nil
}

// test looks up one digest and reports the answer
func test(db *hashdb.DB, hash string, log *zap.SugaredLogger) error {
	start := time.Now()

	log.Infof("running test with hash %s", hash)
	res, err := lookup(db, hash)
	if err != nil {
		return err
	}

	log.Infof("%s", res)
	log.Infof("finished test search in %s", time.Since(start))
	return nil
}

// lookup describes where, if anywhere, 'hash' is found in 'db'
func lookup(db *hashdb.DB, hash string) (string, error) {
	d, err := hashdb.ParseDigest(hash)
	if err != nil {
		return "", fmt.Errorf("test hash %s: %w", hash, err)
	}
	if d.Size() != db.Size() {
		return "", fmt.Errorf("test hash %s: %w: exp %d bytes", hash, hashdb.ErrDigestSize, db.Size())
	}

	switch {
	case !db.Exists(d):
		return "test hash not found", nil
	case db.Base().Exists(d):
		return fmt.Sprintf("test hash found at position %d", db.Base().Search(d)+1), nil
	default:
		return "test hash found in the change logs", nil
	}
}

func stats(ctx context.Context, db *hashdb.DB, log *zap.SugaredLogger) {
	t := time.NewTicker(statsInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a, r := db.ChangeSet().Len()
			log.Infof("stats: %d digests; %d added, %d removed pending merge", db.Len(), a, r)
		}
	}
}

// die with error
func die(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", Z, f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); s[n-1] != '\n' {
		s += "\n"
	}

	os.Stderr.WriteString(s)
	os.Stderr.Sync()
	os.Exit(1)
}
