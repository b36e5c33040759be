package legacy

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/deltasync/gsync/internal/randio"
	"github.com/hooklift/assert"
)

func srand(seed int64, size int) []byte {
	buf := make([]byte, size)
	r := rand.New(rand.NewSource(seed))
	for i := range buf {
		buf[i] = byte(r.Intn(256))
	}
	return buf
}

func TestSyncRoundTrip(t *testing.T) {
	tests := []struct {
		desc   string
		source []byte
		cache  []byte
	}{
		{"no cache, small file", srand(1, DefaultBlockSize*3), nil},
		{"cache is exact prefix", srand(2, DefaultBlockSize*5), srand(2, DefaultBlockSize*2)},
		{"identical file", srand(3, DefaultBlockSize*2), srand(3, DefaultBlockSize*2)},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			ctx := context.Background()

			sums := Checksums(ctx, bytes.NewReader(tt.cache))
			ops := Sync(ctx, bytes.NewReader(tt.source), sums)

			target := randio.NewMemFile(nil)
			err := Apply(ctx, target, bytes.NewReader(tt.cache), ops)
			assert.Ok(t, err)

			// Apply writes at block-aligned offsets; pad target for the
			// final comparison the same way the source would be if it
			// were block-aligned.
			got := target.Bytes()
			if len(got) < len(tt.source) {
				t.Fatalf("reconstructed file too short: got %d, want %d", len(got), len(tt.source))
			}
			assert.Equals(t, tt.source, got[:len(tt.source)])
		})
	}
}
