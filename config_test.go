// config_test.go -- tests for config validation and logging setup
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
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestConfig(t *testing.T) {
	assert := newAsserter(t)

	c := DefaultConfig()
	assert(c.Addr() == "127.0.0.1:1337", "addr %s", c.Addr())

	err := c.Validate()
	assert(err != nil && strings.Contains(err.Error(), "hash file"), "missing hash file: %v", err)

	c.HashFile = "hashes.txt"
	assert(c.Validate() == nil, "valid config: %v", c.Validate())
	assert(!c.Options().ReadOnly, "serving config is read-only")

	c.Test = "D41D8CD98F00B204E9800998ECF8427E"
	assert(c.Validate() == nil, "test hash: %v", c.Validate())
	assert(c.Options().ReadOnly, "test config not read-only")

	// every problem is reported at once
	c.Port = 0
	c.LogLevel = "loud"
	c.Test = "xyz"
	err = c.Validate()
	assert(err != nil, "bad config accepted")
	for _, s := range []string{"port", "log level", "test hash"} {
		assert(strings.Contains(err.Error(), s), "missing '%s' in %s", s, err)
	}
}

func TestParseLevel(t *testing.T) {
	assert := newAsserter(t)

	exp := map[string]zapcore.Level{
		"trace": zapcore.DebugLevel,
		"debug": zapcore.DebugLevel,
		"INFO":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for s, l := range exp {
		v, err := ParseLevel(s)
		assert(err == nil, "%s: %s", s, err)
		assert(v == l, "%s: exp %s, saw %s", s, l, v)
	}

	_, err := ParseLevel("chatty")
	assert(err != nil, "bad level accepted")

	log, err := NewLogger("warn")
	assert(err == nil, "logger: %s", err)
	assert(!log.Desugar().Core().Enabled(zapcore.InfoLevel), "info enabled at warn")
}
