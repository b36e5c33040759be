// Package task provides the progress/cancel/wait/result contract shared by
// the block hasher (C3) and delta resolver (C4): both are long-running,
// parallelized operations that a caller wants to watch, cancel, and collect
// a result from. It builds on context.Context for cancellation, the same
// mechanism gsync_client.go and gsync_server.go already use throughout via
// their ctx.Done() checks.
package task

import (
	"context"
	"sync/atomic"
)

// Base is embedded by the block and delta task types to provide the
// common progress/cancel/wait machinery.
type Base struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	total     int64
	bytesDone atomic.Int64
	failed    atomic.Bool
}

// NewBase derives a cancellable child context from parent and returns a
// Base tracking total bytes of work.
func NewBase(parent context.Context, total int64) *Base {
	ctx, cancel := context.WithCancel(parent)
	return &Base{ctx: ctx, cancel: cancel, done: make(chan struct{}), total: total}
}

// Context returns the task's derived context; workers should select on
// Context().Done() to detect cancellation, exactly like gsync_client.go's
// existing goroutines already do against their own ctx.
func (b *Base) Context() context.Context { return b.ctx }

// Cancel requests that the task stop as soon as workers next poll.
func (b *Base) Cancel() { b.cancel() }

// Cancelled reports whether Cancel was called or the parent context ended.
func (b *Base) Cancelled() bool { return b.ctx.Err() != nil }

// Fail marks the task as having failed and cancels outstanding work.
func (b *Base) Fail() {
	b.failed.Store(true)
	b.cancel()
}

// MarkDone signals that all workers have finished (successfully, with an
// error, or cancelled). Safe to call exactly once.
func (b *Base) MarkDone() { close(b.done) }

// Wait blocks until MarkDone is called.
func (b *Base) Wait() { <-b.done }

// IsDone reports whether MarkDone has already been called, without
// blocking.
func (b *Base) IsDone() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// AddBytes atomically records n additional bytes of completed work and
// returns the new done/total pair for a progress callback.
func (b *Base) AddBytes(n int64) (done, total int64) {
	return b.bytesDone.Add(n), b.total
}

// Progress reports the current done/total counters without mutating them.
func (b *Base) Progress() (done, total int64) {
	return b.bytesDone.Load(), b.total
}

// Success reports whether the task finished without cancellation or
// failure. Only meaningful after Wait returns.
func (b *Base) Success() bool {
	return b.IsDone() && b.ctx.Err() == nil && !b.failed.Load()
}
