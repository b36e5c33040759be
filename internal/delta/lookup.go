package delta

import "github.com/deltasync/gsync/internal/block"

// lookupTable maps a weak checksum to the strong hashes (as raw byte
// strings) sharing it, each pointing back at its remote block index. A
// weak-checksum hit is only promoted to a match once the strong hash also
// agrees (C4's two-stage verification).
type lookupTable map[uint32]map[string]int64

// buildLookup indexes manifest for O(1) weak-hash lookups and groups
// remote blocks sharing identical content (SPEC_FULL.md [SUPPLEMENT] item
// 1), the way libzinc's DeltaResolver constructor does: only groups with
// two or more members are kept, since a singleton has nothing to
// coalesce against.
func buildLookup(manifest block.Manifest) (lookupTable, map[int64][]int64) {
	lut := make(lookupTable, len(manifest))
	groups := make(map[string][]int64)

	for i, h := range manifest {
		key := string(h.Strong)
		inner, ok := lut[h.Weak]
		if !ok {
			inner = make(map[string]int64)
			lut[h.Weak] = inner
		}
		if _, exists := inner[key]; !exists {
			inner[key] = int64(i)
		}
		groups[key] = append(groups[key], int64(i))
	}

	identical := make(map[int64][]int64)
	for _, idxs := range groups {
		if len(idxs) < 2 {
			continue
		}
		for _, i := range idxs {
			peers := make([]int64, 0, len(idxs)-1)
			for _, j := range idxs {
				if j != i {
					peers = append(peers, j)
				}
			}
			identical[i] = peers
		}
	}
	return lut, identical
}
