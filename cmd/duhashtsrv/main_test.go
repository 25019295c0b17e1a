// main_test.go -- tests for the --test lookup
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
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencoff/go-hashdb"
)

func md5digest(s string) hashdb.Digest {
	h := md5.Sum([]byte(s))
	return hashdb.Digest(h[:])
}

func TestLookup(t *testing.T) {
	tmp := t.TempDir()

	base := make([]hashdb.Digest, 5)
	for i := range base {
		base[i] = md5digest(fmt.Sprintf("base-%d", i))
	}
	slices.Sort(base)

	var b strings.Builder
	for _, d := range base {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}
	fn := filepath.Join(tmp, "hashes.txt")
	require.NoError(t, os.WriteFile(fn, []byte(b.String()), 0600))

	db, err := hashdb.Open(fn, &hashdb.Options{ChangesDir: filepath.Join(tmp, "changes")})
	require.NoError(t, err)
	defer db.Close()

	added := md5digest("added")
	require.NoError(t, db.Apply(hashdb.OpAdd, added))
	require.NoError(t, db.Apply(hashdb.OpRemove, base[1]))

	for i, d := range base {
		res, err := lookup(db, strings.ToLower(d.String()))
		require.NoError(t, err)
		if i == 1 {
			require.Equal(t, "test hash not found", res)
		} else {
			require.Equal(t, fmt.Sprintf("test hash found at position %d", i+1), res)
		}
	}

	res, err := lookup(db, added.String())
	require.NoError(t, err)
	require.Equal(t, "test hash found in the change logs", res)

	res, err = lookup(db, md5digest("absent").String())
	require.NoError(t, err)
	require.Equal(t, "test hash not found", res)

	_, err = lookup(db, "not-hex")
	require.Error(t, err)

	h := sha1.Sum([]byte("x"))
	_, err = lookup(db, hashdb.Digest(h[:]).String())
	require.ErrorIs(t, err, hashdb.ErrDigestSize)
}
