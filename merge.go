// merge.go -- fold change logs into a new sorted hash file
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
	"os"
	"slices"
	"time"

	"go.uber.org/zap"
)

// MergeReport summarizes a completed merge
type MergeReport struct {
	Base    int // digests in the original hash file
	Added   int // digests in the folded added set
	Removed int // digests in the folded removed set
	Total   int // digests written to the new hash file
	Logs    []string
	Elapsed time.Duration
}

// MergeOptions control a merge; the zero value is usable.
type MergeOptions struct {
	// Keep the replaced hash file as a hardlink named <output>.bak
	Backup bool

	Logger *zap.SugaredLogger
}

// Merge builds a new hash file from the base file 'base' and every change
// log in 'dir': (base + added) - removed, where the most recent operation
// on a digest wins. The result is written to a temporary file next to
// 'out' and renamed over it; any failure before the rename leaves 'out'
// untouched. Consumed logs are then compressed into <dir>/archive.
// When 'out' is a different file from 'base' it is always written, even
// if there are no logs to fold in.
func Merge(base, dir, out string, opt *MergeOptions) (rep *MergeReport, err error) {
	if opt == nil {
		opt = &MergeOptions{}
	}

	log := opt.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	start := time.Now()
	lk, err := lockDir(dir)
	if err != nil {
		return nil, err
	}

	defer lk.unlock()

	bi, err := LoadBase(base)
	if err != nil {
		return nil, err
	}

	log.Infof("merge: loaded %d digests from %s", bi.Len(), base)

	fns, err := ListLogs(dir)
	if err != nil {
		return nil, err
	}

	cs := NewChangeSet()
	for _, fn := range fns {
		if err := replayInto(cs, fn, log); err != nil {
			return nil, err
		}
	}

	added := cs.Added()
	removed := cs.Removed()

	size := bi.Size()
	for _, d := range added {
		if size == 0 {
			size = d.Size()
		}
		if d.Size() != size {
			return nil, fmt.Errorf("merge: %s: %w: exp %d bytes", d, ErrDigestSize, size)
		}
	}

	rep = &MergeReport{
		Base:    bi.Len(),
		Added:   len(added),
		Removed: len(removed),
		Logs:    fns,
	}

	if len(fns) == 0 && sameFile(base, out) {
		log.Infof("merge: no change logs in %s; nothing to do", dir)
		rep.Total = bi.Len()
		rep.Elapsed = time.Since(start)
		return rep, nil
	}

	rep.Total, err = writeMerged(out, bi, added, removed, opt.Backup)
	if err != nil {
		return nil, err
	}

	log.Infof("merge: wrote %d digests to %s (+%d -%d)", rep.Total, out, len(added), len(removed))

	for _, fn := range fns {
		afn, err := archiveLog(dir, fn)
		if err != nil {
			// the new hash file is already in place; the logs are
			// idempotent against it.
			return rep, fmt.Errorf("merge: can't archive %s: %w", fn, err)
		}
		log.Debugf("merge: archived %s to %s", fn, afn)
	}

	rep.Elapsed = time.Since(start)
	return rep, nil
}

// WriteHashFile writes 'ds' in the hash file format to 'fn', replacing
// it atomically. 'ds' is sorted and de-duplicated in place; every digest
// must have the same width. Returns the number of digests written.
func WriteHashFile(fn string, ds []Digest) (int, error) {
	slices.Sort(ds)
	ds = slices.Compact(ds)

	for _, d := range ds {
		if d.Size() != ds[0].Size() {
			return 0, fmt.Errorf("%s: %s: %w: exp %d bytes", fn, d, ErrDigestSize, ds[0].Size())
		}
	}
	return writeMerged(fn, &BaseIndex{fn: fn}, ds, nil, false)
}

// replay the log 'fn' into 'cs'; a damaged tail is logged and skipped
func replayInto(cs *ChangeSet, fn string, log *zap.SugaredLogger) error {
	rp, err := ReplayLog(fn, func(e Entry) error {
		cs.Apply(e.Op, e.Digest)
		return nil
	})
	if err != nil {
		return err
	}

	if rp.Stopped != nil {
		log.Warnf("replay: %s: stopped after %d records: %s", fn, rp.Entries, rp.Stopped)
	} else {
		log.Debugf("replay: %s: %d records", fn, rp.Entries)
	}
	return nil
}

// writeMerged streams the sorted union of 'bi' and 'added', less 'removed',
// to a temp file and renames it to 'out'.
func writeMerged(out string, bi *BaseIndex, added, removed []Digest, backup bool) (n int, err error) {
	sf, err := createSafe(out, 1024*1024)
	if err != nil {
		return 0, err
	}

	defer sf.Abort()

	line := make([]byte, 0, 2*SizeSHA512+1)
	emit := func(d Digest) {
		line = append(d.AppendText(line[:0]), '\n')
		sf.Write(line)
		n++
	}

	// three sorted inputs; 'removed' filters the output of the
	// two-way merge of base and added.
	var i, j, k int
	for i < bi.Len() || j < len(added) {
		var d Digest

		switch {
		case j == len(added):
			d = bi.At(i)
			i++
		case i == bi.Len():
			d = added[j]
			j++
		default:
			b, a := bi.At(i), added[j]
			switch {
			case b < a:
				d = b
				i++
			case a < b:
				d = a
				j++
			default:
				d = b
				i++
				j++
			}
		}

		for k < len(removed) && removed[k] < d {
			k++
		}
		if k < len(removed) && removed[k] == d {
			continue
		}
		emit(d)
	}

	if backup {
		if err = linkBackup(out); err != nil {
			return 0, err
		}
	}

	if _, err = sf.Commit(true); err != nil {
		return 0, err
	}
	return n, nil
}

// sameFile is true if 'a' and 'b' name the same existing file
func sameFile(a, b string) bool {
	fa, err := os.Stat(a)
	if err != nil {
		return false
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(fa, fb)
}

// linkBackup keeps the current 'fn' reachable as fn.bak across the rename
func linkBackup(fn string) error {
	bak := fn + ".bak"
	if err := os.Remove(bak); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Link(fn, bak); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("can't backup %s: %w", fn, err)
	}
	return nil
}
