// doc.go - top level documentation
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

// Package hashdb implements an in-memory membership database for very
// large sets of cryptographic digests (eg the NSRL reference data set).
//
// The base set is a sorted text file of uppercase hex digests, one per
// line. It is loaded once into a compact, immutable, sorted array
// ('BaseIndex') and queried with binary search. Runtime additions and
// removals go into a small in-memory overlay ('ChangeSet') which shadows
// the base; every mutation is first made durable in an append-only
// change log ('ChangeLog') under a changes directory. The change logs are
// folded back into the base file by an explicit Merge() which writes a
// new sorted file and atomically renames it over the original.
//
// The primary user interface is 'DB': it owns the base index, the
// overlay and the current change log, and answers Exists() queries and
// Apply() mutations from any number of goroutines. The 'server'
// sub-package exposes a DB over a compact binary TCP protocol.
package hashdb
