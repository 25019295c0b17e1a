// archive.go -- compress consumed change logs into the archive dir
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
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dsnet/compress/bzip2"
)

// archiveLog moves the change log 'fn' to <dir>/archive/<name>.bz2. The
// original is removed only after the compressed copy is on disk. An
// existing archive of the same name is kept and the new one is given a
// numbered name. Returns the name of the archive file.
func archiveLog(dir, fn string) (string, error) {
	adir := filepath.Join(dir, _ArchiveDir)
	if err := os.MkdirAll(adir, 0700); err != nil {
		return "", err
	}

	afn, err := compressFile(filepath.Join(adir, filepath.Base(fn)+".bz2"), fn)
	if err != nil {
		return "", err
	}

	if err := os.Remove(fn); err != nil {
		return "", err
	}
	return afn, syncDir(dir)
}

// compressFile writes a bzip2 copy of 'src' to 'dst' and returns the
// name it was stored under.
func compressFile(dst, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}

	defer in.Close()

	sf, err := createSafe(dst, 64*1024)
	if err != nil {
		return "", err
	}

	defer sf.Abort()

	zw, err := bzip2.NewWriter(sf, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return "", fmt.Errorf("%s: bzip2: %w", dst, err)
	}

	if _, err := io.Copy(zw, in); err != nil {
		return "", fmt.Errorf("%s: %w", dst, err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("%s: bzip2: %w", dst, err)
	}
	return sf.Commit(false)
}
