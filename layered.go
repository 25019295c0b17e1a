// layered.go -- a ChangeSet overlay on top of an immutable index
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

// Layered answers membership queries for a base index as modified by a
// ChangeSet: a removed digest is always absent, an added digest is
// always present, everything else is decided by the base.
type Layered struct {
	base Index
	cs   *ChangeSet
}

// NewLayered stacks 'cs' on top of 'base'
func NewLayered(base Index, cs *ChangeSet) *Layered {
	l := &Layered{
		base: base,
		cs:   cs,
	}
	return l
}

// Exists returns true if 'd' is in the combined set
func (l *Layered) Exists(d Digest) bool {
	if present, ok := l.cs.Shadow(d); ok {
		return present
	}
	return l.base.Exists(d)
}

// ExistsBatch answers Exists() for each digest in 'ds', in order. The
// answers are appended to 'res' and the extended slice is returned.
func (l *Layered) ExistsBatch(ds []Digest, res []bool) []bool {
	for _, d := range ds {
		res = append(res, l.Exists(d))
	}
	return res
}

// Len returns the number of digests in the combined set
func (l *Layered) Len() int {
	n := l.base.Len()
	for _, d := range l.cs.Added() {
		if !l.base.Exists(d) {
			n++
		}
	}
	for _, d := range l.cs.Removed() {
		if l.base.Exists(d) {
			n--
		}
	}
	return n
}
