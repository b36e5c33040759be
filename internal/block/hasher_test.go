package block

import (
	"context"
	"fmt"
	"testing"

	"github.com/deltasync/gsync/internal/randio"
	"github.com/hooklift/assert"
)

func TestHashFileSequentialVsParallel(t *testing.T) {
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i % 251)
	}
	mem := randio.NewMemFile(data)

	opts1 := Options{BlockSize: 512, Threads: 1}
	seq, err := HashFile(context.Background(), mem, int64(len(data)), opts1, nil)
	assert.Ok(t, err)
	m1, err := seq.Result()
	assert.Ok(t, err)

	opts4 := opts1
	opts4.Threads = 4
	par, err := HashFile(context.Background(), mem, int64(len(data)), opts4, nil)
	assert.Ok(t, err)
	m2, err := par.Result()
	assert.Ok(t, err)

	assert.Cond(t, len(m1) == len(m2), fmt.Sprintf("manifest length mismatch: %d vs %d", len(m1), len(m2)))
	for i := range m1 {
		assert.Cond(t, m1[i].Weak == m2[i].Weak, fmt.Sprintf("block %d weak mismatch", i))
		assert.Cond(t, string(m1[i].Strong) == string(m2[i].Strong), fmt.Sprintf("block %d strong mismatch", i))
	}
}

func TestHashFileLastBlockPadding(t *testing.T) {
	mem := randio.NewMemFile([]byte("abcdefg")) // 7 bytes, block size 5 -> 2 blocks
	task, err := HashFile(context.Background(), mem, 7, Options{BlockSize: 5, Threads: 2}, nil)
	assert.Ok(t, err)
	m, err := task.Result()
	assert.Ok(t, err)
	assert.Cond(t, len(m) == 2, fmt.Sprintf("expected 2 blocks, got %d", len(m)))
}

func TestHashFileSmallerThanOneBlock(t *testing.T) {
	mem := randio.NewMemFile([]byte("ab"))
	task, err := HashFile(context.Background(), mem, 2, Options{BlockSize: 10}, nil)
	assert.Ok(t, err)
	m, err := task.Result()
	assert.Ok(t, err)
	assert.Cond(t, len(m) == 1, fmt.Sprintf("expected 1 padded block, got %d", len(m)))
}

func TestHashFileCancellation(t *testing.T) {
	data := make([]byte, 100000)
	mem := randio.NewMemFile(data)
	calls := 0
	progress := func(delta, done, total int64) bool {
		calls++
		return calls < 3
	}
	task, err := HashFile(context.Background(), mem, int64(len(data)), Options{BlockSize: 10, Threads: 1}, progress)
	assert.Ok(t, err)
	_, err = task.Result()
	assert.Cond(t, err != nil, "expected cancellation error")
}

func TestSuggestSize(t *testing.T) {
	if got := SuggestSize(0); got != minSuggested {
		t.Errorf("SuggestSize(0) = %d, want floor %d", got, minSuggested)
	}
	if got := SuggestSize(1 << 40); got != maxSuggested {
		t.Errorf("SuggestSize(huge) = %d, want ceiling %d", got, maxSuggested)
	}
	if got := SuggestSize(512 * 100000); got != 100000 {
		t.Errorf("SuggestSize(mid) = %d, want %d", got, 100000)
	}
}

func TestInvalidOptions(t *testing.T) {
	mem := randio.NewMemFile([]byte("abc"))
	_, err := HashFile(context.Background(), mem, 3, Options{BlockSize: 0}, nil)
	assert.Cond(t, err != nil, "expected error for zero block size")
}
