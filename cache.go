// cache.go -- ARC cache of lookups against an immutable index
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
	"github.com/hashicorp/golang-lru/arc/v2"
)

// cachedIndex remembers the answers of recent lookups. It must only
// wrap an index that never changes; the cache is never invalidated.
type cachedIndex struct {
	Index

	cache *arc.ARCCache[Digest, bool]
}

// NewCachedIndex returns an Index that answers repeated queries for hot
// digests from an ARC cache of 'n' entries. 'ix' must be immutable.
func NewCachedIndex(ix Index, n int) (Index, error) {
	c, err := arc.NewARC[Digest, bool](n)
	if err != nil {
		return nil, err
	}

	ci := &cachedIndex{
		Index: ix,
		cache: c,
	}
	return ci, nil
}

func (c *cachedIndex) Exists(d Digest) bool {
	if v, ok := c.cache.Get(d); ok {
		return v
	}

	v := c.Index.Exists(d)
	c.cache.Add(d, v)
	return v
}
