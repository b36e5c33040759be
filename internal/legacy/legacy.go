// Package legacy is the module's original single-level rsync
// implementation, kept as a historical baseline: one weak-hash lookup
// level, a single hard-coded strong hash (murmur3), and no block cache,
// no download coalescing, no priority-index patcher. internal/block,
// internal/delta and internal/patch superseded it; it is kept and
// exercised here as a simpler reference the newer engine's output can be
// checked against on the cases it can still handle (fixed content
// shuffles, no crossing-write hazards).
package legacy

import (
	"bytes"
	"context"
	"io"

	"github.com/golang/glog"
	"github.com/huichen/murmur"
	"github.com/pkg/errors"

	"github.com/deltasync/gsync/internal/rolling"
)

// DefaultBlockSize is the block size this package operates with; unlike
// the newer engine it is not configurable per call.
const DefaultBlockSize = 1024 * 6

// BlockChecksum contains file block checksums as specified in rsync thesis.
type BlockChecksum struct {
	// Index is the block index.
	Index uint64
	// Strong is the murmur3 digest, encoded big-endian.
	Strong []byte
	// Weak is the rolling checksum.
	Weak uint32
	// Error reports a checksum read failure.
	Error error
}

// BlockOperation represents a file re-construction instruction.
type BlockOperation struct {
	// Index is the destination block index.
	Index uint64
	// IndexB is the source block index to copy from the remote's own
	// cache, when Data is empty.
	IndexB uint64
	// HasCopy reports whether IndexB is meaningful; without it there is
	// no way to distinguish "copy block 0" from an unset zero value.
	HasCopy bool
	// Data carries literal bytes when no remote block matched.
	Data []byte
	// Error reports a failure produced while streaming operations.
	Error error
}

func strongSum(block []byte) []byte {
	sum := murmur.Murmur3(block)
	return []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
}

// Checksums reads fixed blocks from r and streams their weak/strong
// checksums until r is exhausted.
func Checksums(ctx context.Context, r io.Reader) <-chan BlockChecksum {
	c := make(chan BlockChecksum)

	go func() {
		defer close(c)
		var index uint64
		buffer := make([]byte, DefaultBlockSize)

		for {
			select {
			case <-ctx.Done():
				c <- BlockChecksum{Error: ctx.Err()}
				return
			default:
			}

			n, err := io.ReadFull(r, buffer)
			if n == 0 {
				return
			}

			blk := buffer[:n]
			var rc rolling.Checksum
			rc.Reset(blk)

			c <- BlockChecksum{Index: index, Weak: rc.Digest(), Strong: strongSum(blk)}
			index++

			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				c <- BlockChecksum{Index: index, Error: errors.Wrap(err, "gsync/legacy: failed reading block")}
				return
			}
		}
	}()

	return c
}

// Sync builds a lookup table from c and streams operations reconstructing
// r against it: a matched block becomes a cache reference, everything
// else literal data. The caller must close c or cancel ctx to unblock the
// build phase; the returned channel closes once r is exhausted.
func Sync(ctx context.Context, r io.Reader, c <-chan BlockChecksum) <-chan BlockOperation {
	table := make(map[uint32][]BlockChecksum)
	for sum := range c {
		if sum.Error != nil {
			glog.Warningf("gsync/legacy: block checksum error: %v", sum.Error)
			continue
		}
		table[sum.Weak] = append(table[sum.Weak], sum)
	}

	o := make(chan BlockOperation)

	go func() {
		defer close(o)
		var index uint64
		buffer := make([]byte, DefaultBlockSize)

		for {
			select {
			case <-ctx.Done():
				o <- BlockOperation{Error: ctx.Err()}
				return
			default:
			}

			n, err := io.ReadFull(r, buffer)
			if n == 0 {
				return
			}

			blk := buffer[:n]
			op := BlockOperation{Index: index}

			if candidates, ok := table[weakOf(blk)]; ok {
				strong := strongSum(blk)
				for _, b := range candidates {
					if bytes.Equal(strong, b.Strong) {
						op.IndexB = b.Index
						op.HasCopy = true
						break
					}
				}
			}
			if !op.HasCopy {
				// buffer is reused for the next read, so the literal
				// must own a copy of its bytes.
				op.Data = append([]byte(nil), blk...)
			}

			o <- op
			index++

			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				o <- BlockOperation{Index: index, Error: errors.Wrap(err, "gsync/legacy: failed reading file")}
				return
			}
		}
	}()

	return o
}

func weakOf(block []byte) uint32 {
	var rc rolling.Checksum
	rc.Reset(block)
	return rc.Digest()
}

// Apply reconstructs a file given a set of operations against dst, using
// cache to resolve IndexB references.
func Apply(ctx context.Context, dst io.WriterAt, cache io.ReaderAt, ops <-chan BlockOperation) error {
	buffer := make([]byte, DefaultBlockSize)

	for o := range ops {
		if o.Error != nil {
			return errors.Wrap(o.Error, "gsync/legacy: upstream operation error")
		}

		var blk []byte
		if o.HasCopy {
			n, err := cache.ReadAt(buffer, int64(o.IndexB)*DefaultBlockSize)
			if err != nil && err != io.EOF {
				return errors.Wrap(err, "gsync/legacy: failed reading cached block")
			}
			blk = buffer[:n]
		} else {
			blk = o.Data
		}

		if _, err := dst.WriteAt(blk, int64(o.Index)*DefaultBlockSize); err != nil {
			return errors.Wrap(err, "gsync/legacy: failed writing block")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}
