// dump.go -- 'dump' command implementation
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

type dumpCommand struct{}

func init() {
	m := dumpCommand{}
	registerCommand("dump", &m)
}

func (m *dumpCommand) run(args []string, opt *Option) (err error) {
	var all, net bool

	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.BoolVarP(&all, "all", "a", false, "Dump every log in the changes dir")
	fs.BoolVarP(&net, "net", "n", false, "Print the net effect of the logs, not each record")
	fs.Usage = func() {
		fmt.Printf(`Usage: dump [options] [LOG...]

where  'LOG' is a change log; archived logs ending in .bz2 are accepted.

Options:
`)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err = fs.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}

	args = fs.Args()
	if all {
		fns, err := hashdb.ListLogs(opt.changes)
		if err != nil {
			return fmt.Errorf("dump: %w", err)
		}
		args = append(args, fns...)
	}

	if len(args) < 1 {
		return fmt.Errorf("dump: insufficient args")
	}

	cs := hashdb.NewChangeSet()
	for _, fn := range args {
		rp, err := hashdb.ReplayLog(fn, func(e hashdb.Entry) error {
			if net {
				cs.Apply(e.Op, e.Digest)
			} else {
				fmt.Printf("%s\n", e)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("dump: %w", err)
		}

		opt.Printf("# %s: %d records\n", fn, rp.Entries)
		if rp.Stopped != nil {
			warn("%s: stopped at %s", fn, rp.Stopped)
		}
	}

	if net {
		for _, d := range cs.Added() {
			fmt.Printf("+ %s\n", d)
		}
		for _, d := range cs.Removed() {
			fmt.Printf("- %s\n", d)
		}
	}
	return nil
}
