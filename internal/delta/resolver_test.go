package delta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltasync/gsync/internal/block"
	"github.com/deltasync/gsync/internal/randio"
)

func buildManifest(t *testing.T, data []byte, blockSize int64) block.Manifest {
	t.Helper()
	mem := randio.NewMemFile(data)
	task, err := block.HashFile(context.Background(), mem, int64(len(data)), block.Options{BlockSize: blockSize}, nil)
	require.NoError(t, err)
	m, err := task.Result()
	require.NoError(t, err)
	return m
}

func resolve(t *testing.T, local []byte, manifest block.Manifest, blockSize int64, threads int) *Map {
	t.Helper()
	mem := randio.NewMemFile(local)
	task, err := Resolve(context.Background(), mem, int64(len(local)), manifest, Options{BlockSize: blockSize, Threads: threads}, nil)
	require.NoError(t, err)
	m, err := task.Result()
	require.NoError(t, err)
	return m
}

func TestResolveIdenticalFileIsAllDone(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz01234")
	manifest := buildManifest(t, data, 8)
	m := resolve(t, data, manifest, 8, 1)

	for i, e := range m.Blocks {
		assert.Equal(t, e.BlockOffset, e.LocalOffset, "block %d expected Done", i)
	}
}

func TestResolveEmptyLocalFileIsAllDownload(t *testing.T) {
	remote := []byte("some remote content here!!")
	manifest := buildManifest(t, remote, 6)
	m := resolve(t, nil, manifest, 6, 1)

	for i, e := range m.Blocks {
		assert.Equal(t, NoMatch, e.LocalOffset, "block %d expected Download", i)
	}
}

func TestResolveShiftedContentFindsCopies(t *testing.T) {
	remote := []byte("abcdeabcdeXYZfghij")
	local := []byte("ZZZZZabcdeabcdeXYZfghij")
	manifest := buildManifest(t, remote, 5)
	m := resolve(t, local, manifest, 5, 2)

	// Blocks 0 and 1 share content, so the lookup table resolves both to
	// block 0 and only block 0 gets the copy source; block 1 is left for
	// download coalescing. The final block ("hij" zero-padded) never fills
	// a whole window at a shifted position, so it is a download too.
	require.Len(t, m.Blocks, 4)
	assert.Equal(t, int64(5), m.Blocks[0].LocalOffset, "block 0 should copy from local offset 5")
	assert.Equal(t, NoMatch, m.Blocks[1].LocalOffset, "block 1 duplicates block 0 and is not resolved separately")
	assert.Equal(t, int64(15), m.Blocks[2].LocalOffset, "block 2 should copy from local offset 15")
	assert.Equal(t, NoMatch, m.Blocks[3].LocalOffset, "the shifted final partial block is a download")
}

func TestResolveThreadCountDoesNotChangeOutcome(t *testing.T) {
	remote := make([]byte, 200)
	for i := range remote {
		remote[i] = byte('a' + i%26)
	}
	local := append(append([]byte{}, remote[50:]...), remote[:50]...) // rotated
	manifest := buildManifest(t, remote, 10)

	single := resolve(t, local, manifest, 10, 1)
	multi := resolve(t, local, manifest, 10, 4)

	require.Equal(t, len(single.Blocks), len(multi.Blocks))
	for i := range single.Blocks {
		assert.Equal(t, single.Blocks[i].LocalOffset != NoMatch, multi.Blocks[i].LocalOffset != NoMatch,
			"block %d download-vs-found status differs across thread counts", i)
	}
}

func TestIdenticalBlocksGrouping(t *testing.T) {
	// Two remote blocks share identical content ("XXXXX").
	remote := []byte("XXXXXabcdeXXXXX")
	manifest := buildManifest(t, remote, 5)
	_, identical := buildLookup(manifest)

	require.Contains(t, identical, int64(0))
	require.Contains(t, identical, int64(2))
	assert.Equal(t, []int64{2}, identical[0])
	assert.Equal(t, []int64{0}, identical[2])
	assert.NotContains(t, identical, int64(1))
}
