// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package gsync

import (
	"context"
	"io"

	"github.com/deltasync/gsync/internal/block"
	"github.com/deltasync/gsync/internal/delta"
	"github.com/deltasync/gsync/internal/patch"
	"github.com/deltasync/gsync/internal/randio"
	"github.com/deltasync/gsync/internal/strong"
)

// Options configures every stage of a sync: how big a block is, how many
// worker threads C3/C4 may use, and which strong hash backs the manifest.
type Options struct {
	BlockSize int64
	Threads   int
	Strong    strong.Kind
}

func (o Options) blockOptions() block.Options {
	return block.Options{BlockSize: o.BlockSize, Threads: o.Threads, Strong: o.Strong}
}

func (o Options) deltaOptions() delta.Options {
	return delta.Options{BlockSize: o.BlockSize, Threads: o.Threads, Strong: o.Strong}
}

// BlockSignature contains file block checksums as specified in rsync
// thesis. It is the unit exchanged by the streaming Checksums/LookUpTable/
// Sync/Apply surface below.
type BlockSignature struct {
	// Index is the block index.
	Index uint64
	// Strong refers to the strong checksum, it need not to be cryptographic.
	Strong []byte
	// Weak refers to the fast rsync rolling checksum.
	Weak uint32
	// Error is used to report the error reading the file or calculating checksums.
	Error error
}

// BlockOperation represents a file re-construction instruction for the
// streaming Sync/Apply surface.
type BlockOperation struct {
	// Index is the block index involved.
	Index uint64
	// Data is the delta to be applied to the remote file. No data means
	// the client found a matching checksum for this block, which means
	// that the remote end proceeds to copy the block data from its local
	// copy instead.
	Data []byte
	// Error is used to report any error while sending operations.
	Error error
}

// HashFile builds r's block manifest. fileSize must be r's exact size.
func HashFile(ctx context.Context, r io.ReaderAt, fileSize int64, opts Options, progress block.ProgressFunc) (block.Manifest, error) {
	task, err := block.HashFile(ctx, r, fileSize, opts.blockOptions(), progress)
	if err != nil {
		return nil, err
	}
	return task.Result()
}

// ResolveDelta scans a local file against a remote manifest, producing the
// delta map C5 needs to patch it in place.
func ResolveDelta(ctx context.Context, r io.ReaderAt, fileSize int64, manifest block.Manifest, opts Options, progress delta.ProgressFunc) (*delta.Map, error) {
	task, err := delta.Resolve(ctx, r, fileSize, manifest, opts.deltaOptions(), progress)
	if err != nil {
		return nil, err
	}
	return task.Result()
}

// Patch drains dm against local, fetching remote bytes through fetch for
// every Download element, until local holds exactly finalSize bytes of
// the sync target's content.
func Patch(ctx context.Context, local randio.RandomAccess, finalSize, blockSize int64, dm *delta.Map, fetch patch.FetchFunc, progress patch.ProgressFunc) error {
	return patch.File(ctx, local, finalSize, blockSize, dm, fetch, progress)
}
