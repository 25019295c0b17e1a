// fsck.go -- 'fsck' command implementation
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
	"fmt"
	"os"

	flag "github.com/opencoff/pflag"

	"github.com/opencoff/go-hashdb"
)

type fsckCommand struct{}

func init() {
	m := fsckCommand{}
	registerCommand("fsck", &m)
}

func (m *fsckCommand) run(args []string, opt *Option) (err error) {
	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.Usage = func() {
		fmt.Printf(`Usage: fsck [options] HASHFILE

where  'HASHFILE' is the name of the sorted hash file. Every change log
in the changes dir is replayed and checked against the hash file.

Options:
`)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err = fs.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}

	args = fs.Args()
	if len(args) < 1 {
		return fmt.Errorf("fsck: insufficient args")
	}

	fn := args[0]
	bi, err := hashdb.LoadBase(fn)
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}

	fmt.Print(bi.Desc())

	fns, err := hashdb.ListLogs(opt.changes)
	if err != nil {
		return fmt.Errorf("fsck: %w", err)
	}

	var bad int
	cs := hashdb.NewChangeSet()
	for _, lf := range fns {
		rp, err := hashdb.ReplayLog(lf, func(e hashdb.Entry) error {
			if bi.Size() > 0 && e.Digest.Size() != bi.Size() {
				return fmt.Errorf("%s: record %d: %w", lf, e.Seq, hashdb.ErrDigestSize)
			}
			cs.Apply(e.Op, e.Digest)
			return nil
		})
		if err != nil {
			return fmt.Errorf("fsck: %w", err)
		}

		kind := "log"
		if rp.Legacy {
			kind = "legacy change file"
		}
		if rp.Stopped != nil {
			bad++
			fmt.Printf("%s: %s: %d records; damaged: %s\n", lf, kind, rp.Entries, rp.Stopped)
		} else {
			opt.Printf("%s: %s: %d records\n", lf, kind, rp.Entries)
		}
	}

	a, r := cs.Len()
	view := hashdb.NewLayered(bi, cs)
	fmt.Printf("%d change logs: %d added, %d removed; %d digests after merge\n",
		len(fns), a, r, view.Len())

	if bad > 0 {
		return fmt.Errorf("fsck: %d damaged change logs", bad)
	}
	return nil
}
