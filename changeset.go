// changeset.go -- in-memory overlay of runtime additions and removals
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
	"slices"
	"sync"
)

// Op is a mutation applied to the ChangeSet
type Op byte

const (
	OpAdd    Op = 'A'
	OpRemove Op = 'R'
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	}
	return fmt.Sprintf("op<%#x>", byte(o))
}

// Valid returns true if 'o' is a known operation
func (o Op) Valid() bool {
	return o == OpAdd || o == OpRemove
}

// ChangeSet holds two disjoint sorted sets of digests: those added and
// those removed since the base index was loaded. The most recent
// operation on a digest wins. Any number of readers may proceed
// concurrently; Apply is exclusive.
type ChangeSet struct {
	sync.RWMutex

	added   []Digest
	removed []Digest
}

// NewChangeSet returns an empty overlay
func NewChangeSet() *ChangeSet {
	return &ChangeSet{}
}

// Apply records 'op' for every digest in 'ds'. A digest is first taken
// out of the opposing set. Applying the same op twice is a no-op.
// Returns the number of digests that changed state.
func (c *ChangeSet) Apply(op Op, ds ...Digest) int {
	var n int

	c.Lock()
	for _, d := range ds {
		if c.apply(op, d) {
			n++
		}
	}
	c.Unlock()
	return n
}

func (c *ChangeSet) apply(op Op, d Digest) bool {
	var a, b bool

	switch op {
	case OpAdd:
		c.removed, a = remove(c.removed, d)
		c.added, b = insert(c.added, d)
	case OpRemove:
		c.added, a = remove(c.added, d)
		c.removed, b = insert(c.removed, d)
	}
	return a || b
}

// ContainsAdded returns true if 'd' was added
func (c *ChangeSet) ContainsAdded(d Digest) bool {
	c.RLock()
	_, ok := slices.BinarySearch(c.added, d)
	c.RUnlock()
	return ok
}

// ContainsRemoved returns true if 'd' was removed
func (c *ChangeSet) ContainsRemoved(d Digest) bool {
	c.RLock()
	_, ok := slices.BinarySearch(c.removed, d)
	c.RUnlock()
	return ok
}

// Shadow reports whether the overlay decides the membership of 'd'. If
// 'ok' is true, 'present' is the answer and the base must not be
// consulted. Removed shadows Added; both shadow the base.
func (c *ChangeSet) Shadow(d Digest) (present bool, ok bool) {
	c.RLock()
	defer c.RUnlock()

	if _, rm := slices.BinarySearch(c.removed, d); rm {
		return false, true
	}
	if _, add := slices.BinarySearch(c.added, d); add {
		return true, true
	}
	return false, false
}

// Len returns the sizes of the added and removed sets
func (c *ChangeSet) Len() (added int, removed int) {
	c.RLock()
	added, removed = len(c.added), len(c.removed)
	c.RUnlock()
	return
}

// Added returns a sorted copy of the added set
func (c *ChangeSet) Added() []Digest {
	c.RLock()
	defer c.RUnlock()
	return slices.Clone(c.added)
}

// Removed returns a sorted copy of the removed set
func (c *ChangeSet) Removed() []Digest {
	c.RLock()
	defer c.RUnlock()
	return slices.Clone(c.removed)
}

func insert(s []Digest, d Digest) ([]Digest, bool) {
	i, ok := slices.BinarySearch(s, d)
	if ok {
		return s, false
	}
	return slices.Insert(s, i, d), true
}

func remove(s []Digest, d Digest) ([]Digest, bool) {
	i, ok := slices.BinarySearch(s, d)
	if !ok {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}
