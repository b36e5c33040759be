// Package block implements C3, the manifest builder: it walks a file once,
// block by block, and produces the ordered (weak, strong) signature list a
// remote peer publishes and a delta resolver later consumes.
package block

import (
	"context"
	"io"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/deltasync/gsync/internal/gsyncerr"
	"github.com/deltasync/gsync/internal/rolling"
	"github.com/deltasync/gsync/internal/strong"
	"github.com/deltasync/gsync/internal/task"
)

const (
	// DefaultBlockSize matches gsync.go's original constant.
	DefaultBlockSize = 6 * 1024

	minSuggested   = 5 * 1024
	maxSuggested   = 4 * 1024 * 1024
	suggestDivisor = 512
)

// SuggestSize implements the manifest-builder sizing heuristic reinstated
// from original_source/ (SPEC_FULL.md [SUPPLEMENT] item 3):
// clamp(file_size/512, 5KiB, 4MiB).
func SuggestSize(fileSize int64) int64 {
	size := fileSize / suggestDivisor
	if size < minSuggested {
		size = minSuggested
	}
	if size > maxSuggested {
		size = maxSuggested
	}
	return size
}

// Hash is one block's weak/strong signature pair.
type Hash struct {
	Weak   uint32
	Strong []byte
}

// Manifest is the ordered per-block signature list for a whole file.
type Manifest []Hash

// Options configures a manifest build.
type Options struct {
	BlockSize int64
	Threads   int
	Strong    strong.Kind
}

// Validate applies the ozzo-validation rules for Options; only BlockSize
// carries a hard constraint, mirroring gsync.go's own single
// DefaultBlockSize invariant.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.BlockSize, validation.Required, validation.Min(int64(1))),
	)
}

// ProgressFunc reports (bytes just completed, bytes done so far, total
// bytes). Returning false requests cancellation.
type ProgressFunc func(doneDelta, doneTotal, fileTotal int64) bool

// Task tracks an in-flight manifest build.
type Task struct {
	*task.Base
	manifest Manifest
	err      error
}

// Result blocks until the build finishes and returns the manifest, or the
// error that stopped it.
func (t *Task) Result() (Manifest, error) {
	t.Wait()
	if !t.Success() {
		if t.err != nil {
			return nil, t.err
		}
		return nil, errors.Wrap(gsyncerr.ErrCancelled, "gsync: block hashing did not complete")
	}
	return t.manifest, nil
}

func numBlocks(fileSize, blockSize int64) int64 {
	n := fileSize / blockSize
	if fileSize%blockSize != 0 {
		n++
	}
	if n == 0 {
		// A zero-length file still gets one (zero-padded) block, as a
		// sub-block-size file already does through the remainder above,
		// per spec.md's "accept and zero-pad" resolution for files
		// smaller than one block.
		n = 1
	}
	return n
}

// HashFile builds the manifest for r, which must have exactly fileSize
// readable bytes. Work is split into opts.Threads strips of contiguous
// blocks, each hashed by its own worker via an errgroup.Group.
func HashFile(ctx context.Context, r io.ReaderAt, fileSize int64, opts Options, progress ProgressFunc) (*Task, error) {
	if r == nil {
		return nil, errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: reader is required")
	}
	if fileSize < 0 {
		return nil, errors.Wrap(gsyncerr.ErrInvalidArgument, "gsync: file size must not be negative")
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(gsyncerr.ErrInvalidArgument, err.Error())
	}

	n := numBlocks(fileSize, opts.BlockSize)
	threads := opts.Threads
	if threads <= 0 {
		threads = 1
	}
	if int64(threads) > n {
		threads = int(n)
	}

	base := task.NewBase(ctx, fileSize)
	t := &Task{Base: base, manifest: make(Manifest, n)}

	stripLen := (n + int64(threads) - 1) / int64(threads)
	hasher := strong.New(opts.Strong)

	g, gctx := errgroup.WithContext(base.Context())
	for w := 0; w < threads; w++ {
		start := int64(w) * stripLen
		if start >= n {
			break
		}
		end := start + stripLen
		if end > n {
			end = n
		}
		g.Go(func() error {
			return hashStrip(gctx, r, fileSize, opts.BlockSize, hasher, t.manifest, start, end, base, progress)
		})
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

func hashStrip(ctx context.Context, r io.ReaderAt, fileSize, blockSize int64, hasher strong.Hasher, manifest Manifest, start, end int64, base *task.Base, progress ProgressFunc) error {
	buf := make([]byte, blockSize)
	for i := start; i < end; i++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(gsyncerr.ErrCancelled, "gsync: hashing cancelled")
		default:
		}

		offset := i * blockSize
		for j := range buf {
			buf[j] = 0
		}
		remaining := fileSize - offset
		readLen := blockSize
		if remaining < readLen {
			readLen = remaining
		}
		if readLen > 0 {
			if _, err := r.ReadAt(buf[:readLen], offset); err != nil && err != io.EOF {
				return errors.Wrapf(err, "gsync: failed reading block %d", i)
			}
		}

		var rc rolling.Checksum
		rc.Reset(buf)
		manifest[i] = Hash{Weak: rc.Digest(), Strong: hasher.Sum(buf)}

		done, total := base.AddBytes(blockSize)
		if progress != nil && !progress(blockSize, done, total) {
			base.Cancel()
			return errors.Wrap(gsyncerr.ErrCancelled, "gsync: hashing cancelled by progress callback")
		}
	}
	return nil
}
