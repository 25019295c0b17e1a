// db.go -- the process wide hash database: base index + overlay + log
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
	"sync"
	"time"

	"go.uber.org/zap"
)

// Options control how a DB is opened; the zero value is usable.
type Options struct {
	// Directory holding the change logs; default DefaultChangesDir
	ChangesDir string

	// Number of base lookups to cache; 0 disables the cache
	CacheSize int

	// Digest algorithm used when the hash file is empty
	Digest string

	// Don't lock the changes dir or accept mutations. Existing change
	// logs are still replayed.
	ReadOnly bool

	Logger *zap.SugaredLogger
}

// DB is the query engine: an immutable base index with a ChangeSet on
// top. Every mutation is appended to a change log and synced before it
// becomes visible. A DB is safe for concurrent use.
type DB struct {
	base *BaseIndex
	cs   *ChangeSet
	view *Layered

	// serializes log appends with the overlay update so that the log
	// order and the in-memory order agree
	wmu  sync.Mutex
	wal  *ChangeLog
	lock *dirLock
	dir  string

	size     int
	readonly bool
	closed   bool
	log      *zap.SugaredLogger
}

// Open loads the hash file 'fn' and replays any change logs in the
// changes dir. Unless opt.ReadOnly is set the changes dir is locked for
// the life of the DB and a new change log is started on the first
// mutation.
func Open(fn string, opt *Options) (*DB, error) {
	if opt == nil {
		opt = &Options{}
	}

	log := opt.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	dir := opt.ChangesDir
	if dir == "" {
		dir = DefaultChangesDir
	}

	db := &DB{
		cs:       NewChangeSet(),
		dir:      dir,
		readonly: opt.ReadOnly,
		log:      log,
	}

	if !opt.ReadOnly {
		lk, err := lockDir(dir)
		if err != nil {
			return nil, err
		}
		db.lock = lk
	}

	if err := db.load(fn, opt); err != nil {
		if db.lock != nil {
			db.lock.unlock()
		}
		return nil, err
	}
	return db, nil
}

func (db *DB) load(fn string, opt *Options) error {
	start := time.Now()

	base, err := LoadBase(fn)
	if err != nil {
		return err
	}

	db.base = base
	db.size = base.Size()
	if db.size == 0 {
		if db.size, err = SizeOf(opt.Digest); err != nil {
			return err
		}
	}

	db.log.Infof("loaded %d digests (%d bytes each) from %s in %s",
		base.Len(), db.size, fn, time.Since(start).Truncate(time.Millisecond))

	var ix Index = base
	if opt.CacheSize > 0 {
		if ix, err = NewCachedIndex(base, opt.CacheSize); err != nil {
			return err
		}
	}
	db.view = NewLayered(ix, db.cs)

	fns, err := ListLogs(db.dir)
	if err != nil {
		return err
	}

	for _, lf := range fns {
		if err := replayInto(db.cs, lf, db.log); err != nil {
			return err
		}
	}

	if len(fns) > 0 {
		a, r := db.cs.Len()
		db.log.Infof("replayed %d change logs from %s: %d added, %d removed", len(fns), db.dir, a, r)
		db.log.Warnf("change logs are not merged into %s; restart with --merge to fold them in", fn)
	}
	return nil
}

// Size returns the width in bytes of digests in this DB
func (db *DB) Size() int {
	return db.size
}

// Base returns the immutable base index
func (db *DB) Base() *BaseIndex {
	return db.base
}

// ChangeSet returns the overlay of runtime mutations
func (db *DB) ChangeSet() *ChangeSet {
	return db.cs
}

// Len returns the number of digests present
func (db *DB) Len() int {
	return db.view.Len()
}

// Exists returns true if 'd' is present
func (db *DB) Exists(d Digest) bool {
	return db.view.Exists(d)
}

// ExistsBatch answers Exists() for each of 'ds' in order, appending to 'res'
func (db *DB) ExistsBatch(ds []Digest, res []bool) []bool {
	return db.view.ExistsBatch(ds, res)
}

// Apply makes 'op' on each of 'ds' durable in the change log and then
// visible to queries. If Apply returns an error none of 'ds' were
// applied.
func (db *DB) Apply(op Op, ds ...Digest) error {
	if !op.Valid() {
		return ErrBadOp
	}
	for _, d := range ds {
		if d.Size() != db.size {
			return fmt.Errorf("%s: %w: exp %d bytes", d, ErrDigestSize, db.size)
		}
	}

	db.wmu.Lock()
	defer db.wmu.Unlock()

	if db.closed {
		return ErrClosed
	}
	if db.readonly {
		return fmt.Errorf("db opened read-only")
	}
	if len(ds) == 0 {
		return nil
	}

	if db.wal == nil {
		wal, err := CreateLog(db.dir)
		if err != nil {
			return err
		}
		db.log.Infof("started change log %s", wal.Filename())
		db.wal = wal
	}

	if err := db.wal.Append(op, ds...); err != nil {
		return err
	}

	n := db.cs.Apply(op, ds...)
	db.log.Debugf("%s: %d digests, %d changed", op, len(ds), n)
	return nil
}

// Close closes the change log and releases the changes dir
func (db *DB) Close() error {
	db.wmu.Lock()
	defer db.wmu.Unlock()

	if db.closed {
		return ErrClosed
	}
	db.closed = true

	var err error
	if db.wal != nil {
		err = db.wal.Close()
	}
	if db.lock != nil {
		if e := db.lock.unlock(); err == nil {
			err = e
		}
	}
	return err
}
