package patch

import "github.com/deltasync/gsync/internal/delta"

// refCache indexes every Copy element in a delta.Map by the block slot its
// source bytes fall in (spec.md §4.5.2), so the patcher can tell, before
// destructively writing slot i, whether any not-yet-serviced Copy still
// needs to read from a position that write would clobber.
//
// A Copy's source window is BlockSize bytes starting at LocalOffset; it is
// bucketed purely by slot = LocalOffset/BlockSize. Because LocalOffset need
// not be block-aligned, a write to slot i can overlap a source bucketed
// under slot i-1 or i+1 as well as i itself, so overlapping(i) always
// checks all three.
type refCache struct {
	blockSize int64
	buckets   map[int64][]*delta.Element
}

func newRefCache(m *delta.Map, blockSize int64) *refCache {
	rc := &refCache{
		blockSize: blockSize,
		buckets:   make(map[int64][]*delta.Element),
	}
	for i := range m.Blocks {
		e := &m.Blocks[i]
		if e.LocalOffset == delta.NoMatch || e.LocalOffset == e.BlockOffset {
			continue // Download or Done; nothing to preserve from the source
		}
		slot := e.LocalOffset / blockSize
		rc.buckets[slot] = append(rc.buckets[slot], e)
	}
	return rc
}

// overlapping returns every still-pending Copy element whose source window
// overlaps the destination block at index i, by checking the three
// adjacent slots {i-1, i, i+1} per spec.md §4.5.2.
func (rc *refCache) overlapping(i int64) []*delta.Element {
	writeOffset := i * rc.blockSize
	var out []*delta.Element
	for _, slot := range [3]int64{i - 1, i, i + 1} {
		for _, e := range rc.buckets[slot] {
			if e.BlockIndex < 0 {
				continue // already serviced, tombstoned
			}
			diff := e.LocalOffset - writeOffset
			if diff < 0 {
				diff = -diff
			}
			if diff < rc.blockSize {
				out = append(out, e)
			}
		}
	}
	return out
}
