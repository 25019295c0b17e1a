// main.go -- operator tool for hashdb files and servers
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

// hashtool builds, inspects and verifies hash files and change logs, and
// talks to a running hash server:
//   - make a sorted hash file from unsorted digest lists (text, CSV or bz2)
//   - fsck a hash file and the change logs waiting to be merged
//   - dump change logs, including archived ones
//   - merge change logs offline
//   - ping, query, add or remove digests on a server

package main

import (
	"fmt"
	"os"

	flag "github.com/opencoff/pflag"

	"github.com/opencoff/go-hashdb"
)

func main() {
	var opt Option

	usage := fmt.Sprintf(
		`%s - hash database tool

Usage: %s [global-options] CMD CMD-ARGS...

CMD is an operation to be performed and CMD-ARGS are operation specific
arguments. The list of supported operations are:

  make [options] OUTPUT [INPUTS...]  -- Make a sorted hash file from the inputs
  fsck [options] HASHFILE            -- Verify a hash file and its change logs
  dump [options] LOG...              -- Print the records in change logs
  merge [options] HASHFILE           -- Fold the change logs into HASHFILE
  ping                               -- Check that the server is alive
  query HASH...                      -- Look up hashes on the server
  add HASH...                        -- Add hashes on the server
  remove HASH...                     -- Remove hashes on the server

Options:
`, os.Args[0], os.Args[0])

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(os.Stdout)
	fs.BoolVarP(&opt.verbose, "verbose", "V", false, "Show verbose output")
	fs.StringVarP(&opt.addr, "server", "s", defaultAddr(), "Talk to the server at `A`")
	fs.StringVarP(&opt.changes, "changes-dir", "c", hashdb.DefaultChangesDir, "Use `D` as the change log directory")
	fs.Usage = func() {
		fmt.Print(usage)
		fs.PrintDefaults()
		os.Exit(0)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		die("%s", err)
	}

	args := fs.Args()
	if len(args) < 1 {
		fmt.Print(usage)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err := runCommand(args, &opt)
	if err != nil {
		die("%s", err)
	}
}

func defaultAddr() string {
	c := hashdb.DefaultConfig()
	return c.Addr()
}

// die with error
func die(f string, v ...interface{}) {
	warn(f, v...)
	os.Exit(1)
}

func warn(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); s[n-1] != '\n' {
		s += "\n"
	}

	os.Stderr.WriteString(s)
	os.Stderr.Sync()
}

// vim: ft=go:sw=4:ts=4:noexpandtab:tw=78:
