// config.go -- resolved startup configuration
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

package hashdb

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Default configuration values
const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 1337
	DefaultChangesDir = ".change-files"
	DefaultLogLevel   = "info"
	DefaultCacheSize  = 0
)

// Config is the fully resolved configuration of a server process. It is
// filled in by the command line front end; nothing in this package
// parses flags.
type Config struct {
	Host       string
	Port       int
	HashFile   string
	ChangesDir string

	// Fold the change logs into HashFile before serving
	Merge bool

	// Keep the pre-merge hash file as <HashFile>.bak
	Backup bool

	// If non-empty, look up this digest and exit
	Test string

	LogLevel string

	// Digest algorithm when HashFile is empty: md5, sha1, sha256, sha512
	Digest string

	// Number of base lookups to cache; 0 disables the cache
	CacheSize int

	// Max concurrent connections; 0 is unlimited
	MaxConns int
}

// DefaultConfig returns a config with every default filled in
func DefaultConfig() *Config {
	c := &Config{
		Host:       DefaultHost,
		Port:       DefaultPort,
		ChangesDir: DefaultChangesDir,
		LogLevel:   DefaultLogLevel,
		Digest:     "md5",
		CacheSize:  DefaultCacheSize,
	}
	return c
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the config and reports every problem found
func (c *Config) Validate() error {
	var errs []error

	if c.HashFile == "" {
		errs = append(errs, fmt.Errorf("hash file not specified"))
	}
	if c.ChangesDir == "" {
		errs = append(errs, fmt.Errorf("changes dir not specified"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := SizeOf(c.Digest); err != nil {
		errs = append(errs, err)
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache size %d is negative", c.CacheSize))
	}
	if c.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("max connections %d is negative", c.MaxConns))
	}
	if c.Test != "" {
		if _, err := ParseDigest(c.Test); err != nil {
			errs = append(errs, fmt.Errorf("test hash '%s': %w", c.Test, err))
		}
	}
	return errors.Join(errs...)
}

// Options returns the DB options implied by the config
func (c *Config) Options() *Options {
	o := &Options{
		ChangesDir: c.ChangesDir,
		CacheSize:  c.CacheSize,
		Digest:     c.Digest,
		ReadOnly:   c.Test != "",
	}
	return o
}
