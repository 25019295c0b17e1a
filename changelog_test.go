// changelog_test.go -- tests for change log append and replay
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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLog(t *testing.T, dir string, ops []Op, ds []Digest) string {
	assert := newAsserter(t)

	l, err := CreateLog(dir)
	assert(err == nil, "create: %s", err)

	for i, d := range ds {
		err := l.Append(ops[i%len(ops)], d)
		assert(err == nil, "append %d: %s", i, err)
	}
	assert(l.Seq() == uint64(len(ds)), "seq: exp %d, saw %d", len(ds), l.Seq())

	err = l.Close()
	assert(err == nil, "close: %s", err)
	return l.Filename()
}

func collect(t *testing.T, fn string) ([]Entry, Replay) {
	var es []Entry

	rp, err := ReplayLog(fn, func(e Entry) error {
		es = append(es, e)
		return nil
	})
	if err != nil {
		t.Fatalf("replay %s: %s", fn, err)
	}
	return es, rp
}

func TestChangeLogReplay(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(21, keyw, SizeSHA1)
	fn := writeLog(t, dir, []Op{OpAdd, OpAdd, OpRemove}, ds)

	assert(strings.HasSuffix(fn, _LogSuffix), "log name %s", fn)

	es, rp := collect(t, fn)
	assert(rp.Stopped == nil, "stopped: %s", rp.Stopped)
	assert(!rp.Legacy, "v1 log seen as legacy")
	assert(rp.Entries == len(ds), "entries: exp %d, saw %d", len(ds), rp.Entries)

	for i, e := range es {
		op := OpAdd
		if i%3 == 2 {
			op = OpRemove
		}
		assert(e.Seq == uint64(i+1), "%d: seq %d", i, e.Seq)
		assert(e.Op == op, "%d: op %s", i, e.Op)
		assert(e.Digest == ds[i], "%d: digest: exp %s, saw %s", i, ds[i], e.Digest)
	}
}

func TestChangeLogBatch(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(22, keyw, SizeMD5)

	l, err := CreateLog(dir)
	assert(err == nil, "create: %s", err)

	err = l.Append(OpAdd, ds...)
	assert(err == nil, "append: %s", err)
	err = l.Append(OpRemove, ds[:3]...)
	assert(err == nil, "append: %s", err)

	err = l.Append(Op('X'), ds[0])
	assert(errors.Is(err, ErrBadOp), "bad op: %v", err)

	l.Close()
	err = l.Append(OpAdd, ds[0])
	assert(errors.Is(err, ErrClosed), "append after close: %v", err)

	cs := NewChangeSet()
	rp, err := ReplayLog(l.Filename(), func(e Entry) error {
		cs.Apply(e.Op, e.Digest)
		return nil
	})
	assert(err == nil, "replay: %s", err)
	assert(rp.Entries == len(ds)+3, "entries: %d", rp.Entries)

	a, r := cs.Len()
	assert(a == len(ds)-3 && r == 3, "changeset: %d, %d", a, r)
}

func TestChangeLogTornTail(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(23, keyw, SizeMD5)
	fn := writeLog(t, dir, []Op{OpAdd}, ds[:5])

	buf, err := os.ReadFile(fn)
	assert(err == nil, "read: %s", err)

	// chop the last record in half
	torn := buf[:len(buf)-10]
	err = os.WriteFile(fn, torn, 0600)
	assert(err == nil, "write: %s", err)

	es, rp := collect(t, fn)
	assert(len(es) == 4, "entries: exp 4, saw %d", len(es))
	assert(rp.Stopped != nil, "torn record not reported")
	assert(rp.Stopped.Line == 6, "stopped at line %d", rp.Stopped.Line)
}

func TestChangeLogCorrupt(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(24, keyw, SizeMD5)
	fn := writeLog(t, dir, []Op{OpAdd}, ds[:5])

	buf, err := os.ReadFile(fn)
	assert(err == nil, "read: %s", err)

	// flip one hex digit of the digest in record 3 (line 4)
	lines := bytes.SplitAfter(buf, []byte("\n"))
	rec := lines[3]
	i := bytes.IndexByte(rec, ' ') + 3
	if rec[i] == '0' {
		rec[i] = '1'
	} else {
		rec[i] = '0'
	}
	err = os.WriteFile(fn, bytes.Join(lines, nil), 0600)
	assert(err == nil, "write: %s", err)

	es, rp := collect(t, fn)
	assert(len(es) == 2, "entries: exp 2, saw %d", len(es))
	assert(rp.Stopped != nil, "corruption not reported")
	assert(errors.Is(rp.Stopped, ErrChecksum), "exp checksum error, saw %s", rp.Stopped)
	assert(rp.Stopped.Line == 4, "stopped at line %d", rp.Stopped.Line)
}

func TestChangeLogSeqGap(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(25, keyw, SizeMD5)
	fn := writeLog(t, dir, []Op{OpAdd}, ds[:4])

	buf, err := os.ReadFile(fn)
	assert(err == nil, "read: %s", err)

	// drop record 2; 3 and 4 are intact but out of sequence
	lines := bytes.SplitAfter(buf, []byte("\n"))
	lines = append(lines[:2], lines[3:]...)
	err = os.WriteFile(fn, bytes.Join(lines, nil), 0600)
	assert(err == nil, "write: %s", err)

	es, rp := collect(t, fn)
	assert(len(es) == 1, "entries: exp 1, saw %d", len(es))
	assert(rp.Stopped != nil, "gap not reported")
}

func TestChangeLogLegacy(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(26, keyw, SizeMD5)

	fn := filepath.Join(dir, "1700000000.123456789.txt")
	err := os.WriteFile(fn, hashText(ds[:6]), 0600)
	assert(err == nil, "write: %s", err)

	es, rp := collect(t, fn)
	assert(rp.Legacy, "not detected as legacy")
	assert(rp.Stopped == nil, "stopped: %s", rp.Stopped)
	assert(len(es) == 6, "entries: %d", len(es))
	for i, e := range es {
		assert(e.Op == OpAdd, "%d: op %s", i, e.Op)
		assert(e.Digest == ds[i], "%d: digest %s", i, e.Digest)
	}
}

func TestListLogs(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(27, keyw, SizeMD5)

	a := writeLog(t, dir, []Op{OpAdd}, ds[:2])
	b := writeLog(t, dir, []Op{OpRemove}, ds[:1])

	legacy := filepath.Join(dir, "1700000000.1.txt")
	err := os.WriteFile(legacy, hashText(ds[2:3]), 0600)
	assert(err == nil, "write: %s", err)

	// noise
	os.WriteFile(filepath.Join(dir, ".lock"), nil, 0600)
	os.WriteFile(filepath.Join(dir, "README"), nil, 0600)
	os.Mkdir(filepath.Join(dir, _ArchiveDir), 0700)

	fns, err := ListLogs(dir)
	assert(err == nil, "list: %s", err)
	assert(len(fns) == 3, "logs: %v", fns)
	assert(fns[0] == legacy, "legacy not first: %v", fns)
	assert(fns[1] == a && fns[2] == b, "logs out of order: %v", fns)

	fns, err = ListLogs(filepath.Join(dir, "nope"))
	assert(err == nil && len(fns) == 0, "missing dir: %v, %v", fns, err)
}

func TestArchiveReplay(t *testing.T) {
	assert := newAsserter(t)

	dir := t.TempDir()
	ds := mkdigests(28, keyw, SizeSHA256)
	fn := writeLog(t, dir, []Op{OpAdd, OpRemove}, ds)

	want, _ := collect(t, fn)

	afn, err := archiveLog(dir, fn)
	assert(err == nil, "archive: %s", err)
	assert(strings.HasSuffix(afn, ".bz2"), "archive name %s", afn)
	assert(filepath.Dir(afn) == filepath.Join(dir, _ArchiveDir), "archive dir %s", afn)

	_, err = os.Stat(fn)
	assert(errors.Is(err, os.ErrNotExist), "log not removed: %v", err)

	got, rp := collect(t, afn)
	assert(rp.Stopped == nil, "stopped: %s", rp.Stopped)
	assert(len(got) == len(want), "entries: exp %d, saw %d", len(want), len(got))
	for i := range got {
		assert(got[i] == want[i], "%d: exp %s, saw %s", i, want[i], got[i])
	}

	fns, err := ListLogs(dir)
	assert(err == nil && len(fns) == 0, "archived log still listed: %v", fns)
}
