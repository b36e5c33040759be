// Package patch implements C5, the in-place patcher: it drains a
// delta.Map against a local file, fetching remote bytes for Download
// elements and rearranging local bytes for Copy elements, until the file
// holds the sync target's exact content.
package patch

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/deltasync/gsync/internal/delta"
	"github.com/deltasync/gsync/internal/gsyncerr"
	"github.com/deltasync/gsync/internal/randio"
	"github.com/deltasync/gsync/internal/task"
)

// FetchFunc retrieves the bytes of remote block blockIndex (blockSize
// bytes, except possibly a shorter final block) from wherever remote
// content is served.
type FetchFunc func(blockIndex, blockSize int64) ([]byte, error)

// ProgressFunc reports (bytes just written, bytes written so far, final
// file size). Returning false requests cancellation.
type ProgressFunc func(doneDelta, doneTotal, fileTotal int64) bool

func blockLen(blockOffset, blockSize, finalSize int64) int64 {
	if blockOffset+blockSize > finalSize {
		return finalSize - blockOffset
	}
	return blockSize
}

func roundUp(size, blockSize int64) int64 {
	if size%blockSize == 0 {
		return size
	}
	return (size/blockSize + 1) * blockSize
}

// File drains dm against local, writing the final content in place so
// that afterward local holds exactly finalSize bytes of the sync target.
//
// Traversal follows spec.md §4.5.1: block index descending, highest to
// zero. Under descending order a Copy whose source lies at a higher
// offset than its destination is always safe — all still-pending writes
// land at lower offsets, so the source can't have been touched yet. The
// hard case, a source at a lower offset that a later (lower-index) write
// would clobber, is handled by the reference cache (§4.5.2): before
// every destructive write to slot i, any not-yet-serviced Copy whose
// source overlaps slot i is preserved into a refcounted block cache and
// pushed onto a priority stack (§4.5.3), which the main loop drains
// ahead of the descending cursor (§4.5.4) so each cached entry has as
// short a lifetime as possible.
func File(ctx context.Context, local randio.RandomAccess, finalSize, blockSize int64, dm *delta.Map, fetch FetchFunc, progress ProgressFunc) error {
	if local == nil {
		return errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: local file is required")
	}
	if blockSize <= 0 {
		return errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: block size must be positive")
	}
	if finalSize <= 0 {
		return errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: final size must be positive")
	}
	if fetch == nil {
		return errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: fetch function is required")
	}

	n := int64(len(dm.Blocks))
	if n == 0 {
		return local.Truncate(finalSize)
	}

	// §4.5.7: extend local storage ahead of the main loop so every write,
	// including ones that land past the caller-supplied local size, lands
	// in allocated storage, then verify the result is block-aligned.
	localSize, err := local.Size()
	if err != nil {
		return errors.Wrap(err, "gsync: failed to size local file")
	}
	workingSize := roundUp(localSize, blockSize)
	if byBlocks := blockSize * n; byBlocks > workingSize {
		workingSize = byBlocks
	}
	if workingSize%blockSize != 0 {
		return errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: computed working size is not a multiple of the block size")
	}
	if workingSize > localSize {
		if err := local.Truncate(workingSize); err != nil {
			return errors.Wrap(err, "gsync: failed to pre-extend local file")
		}
	}

	cache, err := newBlockCache(int(n))
	if err != nil {
		return errors.Wrap(err, "gsync: failed to allocate patch cache")
	}
	rc := newRefCache(dm, blockSize)
	base := task.NewBase(ctx, finalSize)

	var stack []int64
	onStack := make(map[int64]bool, 8)

	push := func(idx int64) {
		if idx < 0 || idx >= n || onStack[idx] {
			return
		}
		if dm.Blocks[idx].BlockIndex < 0 {
			return
		}
		stack = append(stack, idx)
		onStack[idx] = true
	}
	pop := func() (int64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		delete(onStack, idx)
		return idx, true
	}

	cursor := n - 1
	var written int64

	for cursor >= 0 || len(stack) > 0 {
		select {
		case <-ctx.Done():
			return errors.Wrap(gsyncerr.ErrCancelled, "gsync: patch cancelled")
		default:
		}

		// §4.5.4: the priority stack always drains before the descending
		// cursor advances.
		idx, ok := pop()
		if !ok {
			idx = cursor
			cursor--
		}

		e := &dm.Blocks[idx]
		if e.BlockIndex < 0 {
			continue // already serviced via coalescing or an earlier stack pop
		}

		if err := preserveOverlap(local, cache, rc, e, idx, blockSize, push); err != nil {
			return err
		}

		n2, err := serviceBlock(local, dm, cache, e, finalSize, blockSize, fetch)
		if err != nil {
			return err
		}
		e.BlockIndex = -1

		written += n2
		done, total := base.AddBytes(n2)
		if progress != nil && !progress(n2, done, total) {
			return errors.Wrap(gsyncerr.ErrCancelled, "gsync: patch cancelled by progress callback")
		}
	}

	base.MarkDone()
	return local.Truncate(finalSize)
}

// preserveOverlap caches, ahead of a destructive write to slot idx, any
// not-yet-serviced Copy source that write would clobber, then promotes
// those Copy blocks onto the priority stack so their cached bytes have a
// short lifetime (spec.md §4.5.2-§4.5.3).
func preserveOverlap(local randio.RandomAccess, cache *blockCache, rc *refCache, e *delta.Element, idx, blockSize int64, push func(int64)) error {
	overlap := rc.overlapping(idx)
	if len(overlap) == 0 {
		return nil
	}
	if len(overlap) == 1 && overlap[0] == e {
		// The single overlapping source is the block about to be
		// written itself: this very iteration handles it, so caching
		// it first would be wasted work (spec.md §4.5.3 optimization).
		return nil
	}
	for _, other := range overlap {
		if other == e {
			continue
		}
		if entry, cached := cache.get(other.LocalOffset); cached {
			entry.refcount++
			continue
		}
		buf := make([]byte, blockSize)
		if _, err := local.ReadAt(buf, other.LocalOffset); err != nil && err != io.EOF {
			return errors.Wrapf(err, "gsync: failed preserving source bytes at %d", other.LocalOffset)
		}
		entry := cache.store(other.LocalOffset, buf)
		entry.refcount = 1
		push(other.BlockIndex)
	}
	return nil
}

// serviceBlock writes e's final content to local and returns the number
// of bytes written.
func serviceBlock(local randio.RandomAccess, dm *delta.Map, cache *blockCache, e *delta.Element, finalSize, blockSize int64, fetch FetchFunc) (int64, error) {
	size := blockLen(e.BlockOffset, blockSize, finalSize)

	switch {
	case e.LocalOffset == e.BlockOffset:
		return 0, nil // already correct in place

	case e.LocalOffset == delta.NoMatch:
		data, err := fetch(e.BlockIndex, blockSize)
		if err != nil {
			return 0, errors.Wrapf(err, "gsync: fetch failed for block %d", e.BlockIndex)
		}
		if int64(len(data)) > blockSize {
			return 0, errors.Wrapf(gsyncerr.ErrShortFetch, "gsync: fetched block %d oversized (%d > %d)", e.BlockIndex, len(data), blockSize)
		}
		if int64(len(data)) < size {
			return 0, errors.Wrapf(gsyncerr.ErrShortFetch, "gsync: fetched block %d short (%d < %d)", e.BlockIndex, len(data), size)
		}
		if _, err := local.WriteAt(data[:size], e.BlockOffset); err != nil {
			return 0, errors.Wrapf(err, "gsync: failed writing block %d", e.BlockIndex)
		}
		promoteIdenticalPeers(dm, e.BlockIndex, e.BlockOffset)
		return size, nil

	default:
		var src []byte
		if entry, cached := cache.get(e.LocalOffset); cached {
			src = entry.data
			cache.release(e.LocalOffset)
		} else {
			src = make([]byte, blockSize)
			if _, err := local.ReadAt(src, e.LocalOffset); err != nil && err != io.EOF {
				return 0, errors.Wrapf(err, "gsync: failed reading copy source at %d", e.LocalOffset)
			}
		}
		if _, err := local.WriteAt(src[:size], e.BlockOffset); err != nil {
			return 0, errors.Wrapf(err, "gsync: failed writing block %d", e.BlockIndex)
		}
		return size, nil
	}
}

// promoteIdenticalPeers implements spec.md §4.5.5: once blockIndex's
// content has been fetched and written to destOffset, every not-yet-
// resolved peer sharing that content is rewritten as a Copy reading from
// destOffset, rather than issuing its own fetch. Because traversal is
// descending and blockIndex is necessarily the highest-index unresolved
// member of its identical_blocks group to be reached, every promoted
// peer has a lower index and is still ahead of the cursor — its Copy
// source (destOffset) is always at a higher, already-finalized offset
// the traversal will never write to again, so no caching is needed for
// it.
func promoteIdenticalPeers(dm *delta.Map, blockIndex, destOffset int64) {
	for _, p := range dm.IdenticalBlocks[blockIndex] {
		peer := &dm.Blocks[p]
		if peer.BlockIndex < 0 || peer.LocalOffset != delta.NoMatch {
			continue // already serviced, or independently resolved by C4
		}
		peer.LocalOffset = destOffset
	}
}
