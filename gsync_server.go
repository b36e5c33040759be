package gsync

import (
	"context"
	"hash"
	"io"

	"github.com/pkg/errors"

	"github.com/deltasync/gsync/internal/rolling"
)

// Checksums reads fixed-size blocks from r and streams back their weak and
// strong checksums, closing the returned channel when r is exhausted or
// ctx is cancelled. It does not block; the read loop runs in its own
// goroutine.
func Checksums(ctx context.Context, r io.Reader, shash hash.Hash) <-chan BlockSignature {
	var index uint64
	c := make(chan BlockSignature)

	go func() {
		defer close(c)

		buffer := make([]byte, DefaultBlockSize)
		for {
			select {
			case <-ctx.Done():
				c <- BlockSignature{Error: ctx.Err()}
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

			shash.Reset()
			shash.Write(blk)

			c <- BlockSignature{
				Index:  index,
				Weak:   rc.Digest(),
				Strong: shash.Sum(nil),
			}
			index++

			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			if err != nil {
				c <- BlockSignature{Index: index, Error: errors.Wrap(err, "gsync: failed reading block")}
				return
			}
		}
	}()

	return c
}

// Apply reconstructs a file given a sequence of operations, writing to
// dst in the order ops arrive: a literal operation appends o.Data, a
// cache-reference operation appends the block at o.Index read from cache.
// Apply returns once the ops channel is closed, an operation carries an
// error, or ctx is found cancelled after a write; ctx is not watched while
// Apply waits for the next operation, so the caller must close ops when
// done or Apply blocks forever.
func Apply(ctx context.Context, dst io.WriterAt, cache io.ReaderAt, ops <-chan BlockOperation) error {
	buffer := make([]byte, DefaultBlockSize)
	var offset int64

	for o := range ops {
		if o.Error != nil {
			return errors.Wrap(o.Error, "gsync: upstream operation error")
		}

		var blk []byte
		if len(o.Data) > 0 {
			blk = o.Data
		} else {
			n, err := cache.ReadAt(buffer, int64(o.Index)*DefaultBlockSize)
			if err != nil && err != io.EOF {
				return errors.Wrap(err, "gsync: failed reading cached block")
			}
			blk = buffer[:n]
		}

		if _, err := dst.WriteAt(blk, offset); err != nil {
			return errors.Wrap(err, "gsync: failed writing block")
		}
		offset += int64(len(blk))

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}
