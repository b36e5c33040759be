// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gsync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"hash"
	"io"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/deltasync/gsync/internal/gsyncerr"
	"github.com/deltasync/gsync/internal/rolling"
)

// LookUpTable reads block signatures and builds a lookup table for the
// client to search when deciding whether to send literal data or a cache
// reference for a given block.
func LookUpTable(ctx context.Context, bc <-chan BlockSignature) (map[uint32][]BlockSignature, error) {
	table := make(map[uint32][]BlockSignature)
	for c := range bc {
		select {
		case <-ctx.Done():
			return table, errors.Wrap(ctx.Err(), "gsync: failed building lookup table")
		default:
		}

		if c.Error != nil {
			glog.Warningf("gsync: checksum error: %v", c.Error)
			continue
		}
		table[c.Weak] = append(table[c.Weak], c)
	}

	return table, nil
}

// Sync compares r against the remote block signatures, emitting literal
// data for unmatched regions and cache-reference operations for regions
// that already exist in the remote's cache, so the remote end can
// reconstruct r's content without receiving all of it over the wire.
// This function does not block and returns immediately; the caller must
// drain the returned channel. The remote map is read without a mutex, so
// Sync assumes it is fully populated and not mutated concurrently.
func Sync(ctx context.Context, r io.ReaderAt, shash hash.Hash, remote map[uint32][]BlockSignature) (<-chan BlockOperation, error) {
	if r == nil {
		return nil, errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: reader required")
	}
	if shash == nil {
		shash = sha256.New()
	}

	o := make(chan BlockOperation)

	go func() {
		defer close(o)

		var currentOffset, lastMatchOffset int64
		newData := false

		for {
			select {
			case <-ctx.Done():
				o <- BlockOperation{Error: ctx.Err()}
				return
			default:
			}

			buffer := make([]byte, DefaultBlockSize)
			n, err := r.ReadAt(buffer, currentOffset)
			if err != nil && err != io.EOF {
				o <- BlockOperation{Error: errors.Wrap(err, "gsync: failed reading data block")}
				return
			}

			blk := buffer[:n]
			if n == 0 {
				if newData {
					sendLiteral(ctx, r, o, lastMatchOffset, currentOffset)
				}
				return
			}

			if len(remote) == 0 {
				newData = true
				currentOffset += int64(n)
				if err == io.EOF {
					sendLiteral(ctx, r, o, lastMatchOffset, currentOffset)
					return
				}
				continue
			}

			var rc rolling.Checksum
			rc.Reset(blk)
			weak := rc.Digest()

			matchFound := false
			if sigs, ok := remote[weak]; ok {
				shash.Reset()
				shash.Write(blk)
				sum := shash.Sum(nil)

				for _, sig := range sigs {
					if !bytes.Equal(sum, sig.Strong) {
						continue
					}
					matchFound = true

					if newData {
						sendLiteral(ctx, r, o, lastMatchOffset, currentOffset)
						newData = false
					}

					currentOffset += int64(n)
					lastMatchOffset = currentOffset
					o <- BlockOperation{Index: sig.Index}
					break
				}
			}

			if !matchFound {
				newData = true
				currentOffset++
			}

			if err == io.EOF {
				if newData {
					sendLiteral(ctx, r, o, lastMatchOffset, currentOffset)
				}
				return
			}
		}
	}()

	return o, nil
}

// sendLiteral streams r's bytes from lastMatchOffset up to currentOffset
// as one or more literal BlockOperations.
func sendLiteral(ctx context.Context, r io.ReaderAt, o chan<- BlockOperation, offset, end int64) {
	for offset < end {
		select {
		case <-ctx.Done():
			o <- BlockOperation{Error: ctx.Err()}
			return
		default:
		}

		want := DefaultBlockSize
		if remaining := end - offset; remaining < int64(want) {
			want = int(remaining)
		}

		buffer := make([]byte, want)
		n, err := r.ReadAt(buffer, offset)
		if err != nil && err != io.EOF {
			o <- BlockOperation{Error: errors.Wrap(err, "gsync: failed reading literal data")}
			return
		}

		o <- BlockOperation{Data: buffer[:n]}
		offset += int64(n)

		if n == 0 {
			return
		}
	}
}
