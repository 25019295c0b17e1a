// make.go -- 'make' command implementation
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
	"strings"
	"time"

	flag "github.com/opencoff/pflag"

	"github.com/opencoff/go-hashdb"
)

type makeCommand struct{}

func init() {
	m := makeCommand{}
	registerCommand("make", &m)
}

func (m *makeCommand) run(args []string, opt *Option) (err error) {
	var field int

	fs := flag.NewFlagSet("make", flag.ExitOnError)
	fs.SetOutput(os.Stdout)
	fs.IntVarP(&field, "field", "f", 0, "Use CSV field `F` (0 based) as the digest")
	fs.Usage = func() {
		fmt.Printf(`Usage: make [options] OUTPUT [INPUT...]

where:
   OUTPUT   is the name of the hash file to write
   INPUT    is one or more optional input files; stdin is read if
            there are none

The input file(s) must have a name suffix of one of the following,
optionally followed by '.bz2':
   .txt     one hex digest per line; anything after white space is
            ignored
   .csv     a comma-separated file; the digest is in field F

options:
`)
		fs.PrintDefaults()
		os.Exit(0)
	}

	err = fs.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("make: %w", err)
	}

	args = fs.Args()
	if len(args) < 1 {
		return fmt.Errorf("make: insufficient args")
	}

	fn := args[0]
	args = args[1:]

	var ds []hashdb.Digest
	var n int

	start := time.Now()
	if len(args) > 0 {
		for _, f := range args {
			nm := strings.TrimSuffix(f, ".bz2")
			switch {
			case strings.HasSuffix(nm, ".txt"):
				ds, n, err = AddTextFile(ds, f)

			case strings.HasSuffix(nm, ".csv"):
				ds, n, err = addCSVFile(ds, f, field)

			default:
				return fmt.Errorf("make: don't know how to add %s", f)
			}

			if err != nil {
				return fmt.Errorf("make: can't add %s: %w", f, err)
			}

			opt.Printf("+ %s: %d records\n", f, n)
		}
	} else {
		ds, n, err = AddTextStream(ds, os.Stdin, "<STDIN>")
		if err != nil {
			return fmt.Errorf("make: can't add text from stdin: %w", err)
		}

		opt.Printf("+ <STDIN>: %d records\n", n)
	}

	tot := len(ds)
	n, err = hashdb.WriteHashFile(fn, ds)
	if err != nil {
		return fmt.Errorf("make: can't write %s: %w", fn, err)
	}

	delta := time.Since(start)
	speed := (1.0e6 * float64(tot)) / float64(delta.Microseconds()+1)
	opt.Printf("%d records, %d unique digests, %s (%3.1f records/sec)\n",
		tot, n, delta.Truncate(time.Millisecond).String(), speed)
	return nil
}

func addCSVFile(ds []hashdb.Digest, fn string, field int) ([]hashdb.Digest, int, error) {
	fd, _, err := openInput(fn)
	if err != nil {
		return ds, 0, err
	}

	defer fd.Close()

	return AddCSVStream(ds, fd, fn, field)
}
