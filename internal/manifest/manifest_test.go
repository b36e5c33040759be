package manifest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltasync/gsync/internal/block"
	"github.com/deltasync/gsync/internal/randio"
)

func TestRoundTripThroughJSON(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly")
	mem := randio.NewMemFile(data)
	task, err := block.HashFile(context.Background(), mem, int64(len(data)), block.Options{BlockSize: 8}, nil)
	require.NoError(t, err)
	bm, err := task.Result()
	require.NoError(t, err)

	wire := FromBlockManifest(int64(len(data)), 8, bm)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, wire))

	decoded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, wire.FileSize, decoded.FileSize)
	assert.Equal(t, wire.BlockSize, decoded.BlockSize)
	require.Len(t, decoded.Blocks, len(bm))

	back, err := decoded.ToBlockManifest()
	require.NoError(t, err)
	require.Len(t, back, len(bm))
	for i := range bm {
		assert.Equal(t, bm[i].Weak, back[i].Weak)
		assert.Equal(t, bm[i].Strong, back[i].Strong)
	}
}

func TestDecodeRejectsMalformedBlock(t *testing.T) {
	bad := bytes.NewBufferString(`{"fileSize":10,"blockSize":5,"blocks":[["not-a-number","aa"]]}`)
	_, err := Decode(bad)
	assert.Error(t, err)
}
