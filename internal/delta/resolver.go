// Package delta implements C4, the delta resolver: given a remote manifest
// and a local file, it finds, for every remote block, whether the local
// file already holds that block's bytes somewhere (and where), producing a
// DeltaMap that C5 later drains into an in-place patch.
package delta

import (
	"bytes"
	"context"
	"io"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/deltasync/gsync/internal/block"
	"github.com/deltasync/gsync/internal/gsyncerr"
	"github.com/deltasync/gsync/internal/randio"
	"github.com/deltasync/gsync/internal/rolling"
	"github.com/deltasync/gsync/internal/strong"
	"github.com/deltasync/gsync/internal/task"
)

// NoMatch is the LocalOffset sentinel meaning "download this block, no
// usable local data was found" (spec.md §3).
const NoMatch int64 = -1

// minThreadChunk is the empirical minimum amount of file given to each
// resolver worker before adding more threads stops paying for itself.
const minThreadChunk = 10 * 1024 * 1024

// Element is one remote block's resolution state. LocalOffset == -1 means
// Download; LocalOffset == BlockOffset means Done (already in place);
// any other non-negative value means Copy from that local offset.
type Element struct {
	BlockIndex  int64
	BlockOffset int64
	LocalOffset int64
}

// Map is the full delta resolution plan: one Element per remote block,
// plus the identical-content groupings used for download coalescing.
// C5 mutates and drains this structure; after patching it no longer
// represents a usable plan.
type Map struct {
	Blocks          []Element
	IdenticalBlocks map[int64][]int64
}

// Options configures a delta resolution pass.
type Options struct {
	BlockSize int64
	Threads   int
	Strong    strong.Kind
}

// Validate applies the ozzo-validation rule for Options.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.BlockSize, validation.Required, validation.Min(int64(1))),
	)
}

// ProgressFunc reports (bytes just scanned, bytes scanned so far, total
// bytes). Returning false requests cancellation.
type ProgressFunc func(doneDelta, doneTotal, fileTotal int64) bool

// Task tracks an in-flight delta resolution.
type Task struct {
	*task.Base
	result *Map
	err    error
}

// Result blocks until resolution finishes and returns the Map, or the
// error that stopped it.
func (t *Task) Result() (*Map, error) {
	t.Wait()
	if !t.Success() {
		if t.err != nil {
			return nil, t.err
		}
		return nil, errors.Wrap(gsyncerr.ErrCancelled, "gsync: delta resolution did not complete")
	}
	return t.result, nil
}

func effectiveThreads(requested int, fileSize int64) int {
	if requested <= 0 {
		requested = 1
	}
	byChunk := int(fileSize / minThreadChunk)
	if byChunk < 1 {
		byChunk = 1
	}
	if requested > byChunk {
		requested = byChunk
	}
	if requested < 1 {
		requested = 1
	}
	return requested
}

func buildInitialMap(manifest block.Manifest, blockSize int64) Map {
	blocks := make([]Element, len(manifest))
	for i := range manifest {
		blocks[i] = Element{
			BlockIndex:  int64(i),
			BlockOffset: int64(i) * blockSize,
			LocalOffset: NoMatch,
		}
	}
	return Map{Blocks: blocks}
}

// Resolve scans r (fileSize bytes) against manifest and produces a Task
// whose Result is the resolution Map. Work is split across
// opts.Threads strips; each strip owns an extra BlockSize-1 bytes of
// overlap into the preceding strip so windows straddling a strip boundary
// are still tested by somebody (spec.md §5).
func Resolve(ctx context.Context, r io.ReaderAt, fileSize int64, manifest block.Manifest, opts Options, progress ProgressFunc) (*Task, error) {
	if r == nil {
		return nil, errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: reader is required")
	}
	if fileSize < 0 {
		return nil, errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: file size must not be negative")
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(gsyncerr.ErrInvalidArgument, err.Error())
	}

	result := buildInitialMap(manifest, opts.BlockSize)
	lut, identical := buildLookup(manifest)
	result.IdenticalBlocks = identical

	// A final partial block never fills a whole scan window, so it is
	// compared in place instead, zero-padded like the manifest's own
	// final block.
	if tail := fileSize % opts.BlockSize; tail != 0 {
		last := fileSize / opts.BlockSize
		if last < int64(len(manifest)) {
			buf := make([]byte, opts.BlockSize)
			if _, err := r.ReadAt(buf[:tail], last*opts.BlockSize); err != nil && err != io.EOF {
				return nil, errors.Wrapf(err, "gsync: failed reading local file at %d", last*opts.BlockSize)
			}
			if bytes.Equal(strong.New(opts.Strong).Sum(buf), manifest[last].Strong) {
				result.Blocks[last].LocalOffset = result.Blocks[last].BlockOffset
			}
		}
	}

	base := task.NewBase(ctx, fileSize)
	t := &Task{Base: base, result: &result}

	threads := effectiveThreads(opts.Threads, fileSize)
	hasher := strong.New(opts.Strong)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(base.Context())

	if fileSize >= opts.BlockSize {
		stripLen := (fileSize + int64(threads) - 1) / int64(threads)
		for w := 0; w < threads; w++ {
			start := int64(w) * stripLen
			if start >= fileSize {
				break
			}
			end := start + stripLen
			if end > fileSize {
				end = fileSize
			}
			scanStart := start
			if w > 0 {
				scanStart = start - (opts.BlockSize - 1)
				if scanStart < 0 {
					scanStart = 0
				}
			}
			g.Go(func() error {
				return scanStrip(gctx, r, fileSize, opts.BlockSize, lut, hasher, &result, &mu, scanStart, end, base, progress)
			})
		}
	}

	go func() {
		if err := g.Wait(); err != nil {
			t.err = err
			base.Fail()
		}
		base.MarkDone()
	}()

	return t, nil
}

func scanStrip(ctx context.Context, r io.ReaderAt, fileSize, blockSize int64, lut lookupTable, hasher strong.Hasher, m *Map, mu *sync.Mutex, scanStart, stripEnd int64, base *task.Base, progress ProgressFunc) error {
	if scanStart+blockSize > fileSize {
		return nil
	}

	win := make([]byte, blockSize)
	if _, err := r.ReadAt(win, scanStart); err != nil && err != io.EOF {
		return errors.Wrapf(err, "gsync: failed reading local file at %d", scanStart)
	}

	var rc rolling.Checksum
	rc.Reset(win)

	ra := randio.NewReadAhead(r, fileSize, 1<<20)
	destCache := make(map[int64][]byte)

	pos := scanStart
	lastReported := scanStart
	var lastFailedWeak uint32
	lastFailed := false

	for pos < stripEnd && pos+blockSize <= fileSize {
		select {
		case <-ctx.Done():
			return errors.Wrap(gsyncerr.ErrCancelled, "gsync: delta resolution cancelled")
		default:
		}

		weak := rc.Digest()
		matched := false

		if !(lastFailed && weak == lastFailedWeak) {
			if inner, ok := lut[weak]; ok {
				sh := hasher.Sum(win)
				if idx, ok2 := inner[string(sh)]; ok2 {
					matched = true
					blockOffset := idx * blockSize

					switch {
					case pos == blockOffset:
						installMatch(mu, m, idx, blockOffset)
					default:
						destData, ok3 := destCache[blockOffset]
						if !ok3 {
							destData = make([]byte, blockSize)
							if _, err := r.ReadAt(destData, blockOffset); err != nil && err != io.EOF {
								return errors.Wrapf(err, "gsync: failed reading destination block at %d", blockOffset)
							}
							destCache[blockOffset] = destData
						}
						if bytes.Equal(hasher.Sum(destData), sh) {
							// Destination already holds this
							// block's content; no copy needed.
							installMatch(mu, m, idx, blockOffset)
						} else {
							installMatch(mu, m, idx, pos)
						}
					}
				}
			}
			if !matched {
				lastFailed, lastFailedWeak = true, weak
			} else {
				lastFailed = false
			}
		}

		if matched {
			pos += blockSize
			if pos+blockSize > fileSize {
				break
			}
			if _, err := r.ReadAt(win, pos); err != nil && err != io.EOF {
				return errors.Wrapf(err, "gsync: failed reading local file at %d", pos)
			}
			rc.Reset(win)
		} else {
			outByte := win[0]
			inByte, err := ra.ByteAt(pos + blockSize)
			if err != nil && err != io.EOF {
				glog.Warningf("gsync: delta resolver failed reading ahead at %d: %v", pos+blockSize, err)
				return errors.Wrap(err, "gsync: failed reading local file during scan")
			}
			rc.Rotate(outByte, inByte)
			copy(win, win[1:])
			win[blockSize-1] = inByte
			pos++
		}

		if pos-lastReported >= blockSize {
			done, total := base.AddBytes(blockSize)
			lastReported = pos
			if progress != nil && !progress(blockSize, done, total) {
				base.Cancel()
				return errors.Wrap(gsyncerr.ErrCancelled, "gsync: delta resolution cancelled by progress callback")
			}
		}
	}
	return nil
}

// installMatch sets blocks[idx].LocalOffset the first time it is
// discovered; later, redundant discoveries of the same block (benign
// ties, spec.md §5) are no-ops.
func installMatch(mu *sync.Mutex, m *Map, idx, localOffset int64) {
	mu.Lock()
	if m.Blocks[idx].LocalOffset == NoMatch {
		m.Blocks[idx].LocalOffset = localOffset
	}
	mu.Unlock()
}
