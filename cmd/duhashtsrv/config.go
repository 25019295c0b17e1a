// config.go -- command line and config file handling
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

	flag "github.com/opencoff/pflag"
	"github.com/spf13/viper"

	"github.com/opencoff/go-hashdb"
)

// parseArgs builds the config from the defaults, an optional config
// file and the command line, in increasing order of precedence.
func parseArgs(args []string) (*hashdb.Config, error) {
	var cfile string
	var version bool

	cfg := hashdb.DefaultConfig()

	usage := fmt.Sprintf(
		`%s - hash lookup database server

Usage: %s [options] --hash-file HASHFILE

Options:
`, Z, Z)

	fs := flag.NewFlagSet(Z, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Listen on host `H`")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Listen on port `P`")
	fs.StringVarP(&cfg.HashFile, "hash-file", "f", "", "Serve the sorted hash file `F`")
	fs.StringVarP(&cfg.ChangesDir, "changes-dir", "d", cfg.ChangesDir, "Keep change logs in directory `D`")
	fs.BoolVarP(&cfg.Merge, "merge", "m", false, "Merge the change logs into the hash file before serving")
	fs.BoolVarP(&cfg.Backup, "backup", "b", false, "Keep the pre-merge hash file as HASHFILE.bak")
	fs.StringVarP(&cfg.Test, "test", "t", "", "Look up hash `X` and exit")
	fs.StringVarP(&cfg.LogLevel, "log-level", "L", cfg.LogLevel,
		fmt.Sprintf("Log at level `L` (one of %s)", strings.Join(hashdb.LogLevels, ", ")))
	fs.StringVarP(&cfg.Digest, "digest", "a", cfg.Digest, "Assume digest algorithm `A` when the hash file is empty")
	fs.IntVarP(&cfg.CacheSize, "cache-size", "C", cfg.CacheSize, "Cache `N` base lookups (0 disables)")
	fs.IntVarP(&cfg.MaxConns, "max-conns", "M", cfg.MaxConns, "Allow at most `N` concurrent connections (0 is unlimited)")
	fs.StringVarP(&cfile, "config", "c", "", "Read settings from config file `C`")
	fs.BoolVarP(&version, "version", "v", false, "Show version and exit")
	fs.Usage = func() {
		fmt.Print(usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if version {
		fmt.Printf("%s version %s\n", Z, Version)
		os.Exit(0)
	}

	if len(cfile) > 0 {
		if err := readConfigFile(cfg, cfile, fs); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfigFile fills in every setting from 'fn' that wasn't given on
// the command line. Keys are the long flag names.
func readConfigFile(cfg *hashdb.Config, fn string, fs *flag.FlagSet) error {
	v := viper.New()
	v.SetConfigFile(fn)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config %s: %w", fn, err)
	}

	str := func(key string, p *string) {
		if !fs.Changed(key) && v.IsSet(key) {
			*p = v.GetString(key)
		}
	}
	num := func(key string, p *int) {
		if !fs.Changed(key) && v.IsSet(key) {
			*p = v.GetInt(key)
		}
	}
	boolean := func(key string, p *bool) {
		if !fs.Changed(key) && v.IsSet(key) {
			*p = v.GetBool(key)
		}
	}

	str("host", &cfg.Host)
	num("port", &cfg.Port)
	str("hash-file", &cfg.HashFile)
	str("changes-dir", &cfg.ChangesDir)
	boolean("merge", &cfg.Merge)
	boolean("backup", &cfg.Backup)
	str("log-level", &cfg.LogLevel)
	str("digest", &cfg.Digest)
	num("cache-size", &cfg.CacheSize)
	num("max-conns", &cfg.MaxConns)
	return nil
}
