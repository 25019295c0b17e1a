// merge.go -- 'merge' command implementation
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

type mergeCommand struct{}

func init() {
	m := mergeCommand{}
	registerCommand("merge", &m)
}

func (m *mergeCommand) run(args []string, opt *Option) (err error) {
	var backup bool
	var out string

	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.BoolVarP(&backup, "backup", "b", false, "Keep the old hash file as HASHFILE.bak")
	fs.StringVarP(&out, "output", "o", "", "Write the merged hash file to `F` instead of HASHFILE")
	fs.Usage = func() {
		fmt.Printf(`Usage: merge [options] HASHFILE

Fold every change log in the changes dir into HASHFILE. The server
must not be running against the same changes dir.

Options:
`)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err = fs.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	args = fs.Args()
	if len(args) < 1 {
		return fmt.Errorf("merge: insufficient args")
	}

	fn := args[0]
	if out == "" {
		out = fn
	}

	log := opt.Logger()
	defer log.Sync()

	mo := &hashdb.MergeOptions{
		Backup: backup,
		Logger: log,
	}

	rep, err := hashdb.Merge(fn, opt.changes, out, mo)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d digests (%d base, %d added, %d removed) from %d logs in %s\n",
		out, rep.Total, rep.Base, rep.Added, rep.Removed, len(rep.Logs), rep.Elapsed)
	return nil
}
