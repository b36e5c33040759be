package strong

import (
	"testing"
	"testing/quick"
)

func TestDeterministic(t *testing.T) {
	for _, k := range []Kind{FNV1a64, SHA1, Murmur3, SHA256} {
		k := k
		t.Run(k.String(), func(t *testing.T) {
			f := func(data []byte) bool {
				h := New(k)
				return string(h.Sum(data)) == string(New(k).Sum(data))
			}
			if err := quick.Check(f, nil); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSizeMatchesSum(t *testing.T) {
	for _, k := range []Kind{FNV1a64, SHA1, Murmur3, SHA256} {
		h := New(k)
		if got := len(h.Sum([]byte("some data"))); got != h.Size() {
			t.Errorf("%s: Sum returned %d bytes, Size() says %d", k, got, h.Size())
		}
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{FNV1a64, SHA1, Murmur3, SHA256} {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := ParseKind("bogus"); got != FNV1a64 {
		t.Errorf("ParseKind(bogus) = %v, want FNV1a64 default", got)
	}
}

func TestDifferentInputsUsuallyDiffer(t *testing.T) {
	h := New(FNV1a64)
	a := h.Sum([]byte("hello"))
	b := h.Sum([]byte("world"))
	if string(a) == string(b) {
		t.Fatal("expected distinct hashes for distinct inputs")
	}
}
