package rolling

import (
	"testing"
	"testing/quick"
)

func TestResetMatchesRotate(t *testing.T) {
	data := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	const window = 5

	var rolled Checksum
	rolled.Reset(data[:window])

	for i := 0; i+window < len(data); i++ {
		var fresh Checksum
		fresh.Reset(data[i : i+window])
		if fresh.Digest() != rolled.Digest() {
			t.Fatalf("at offset %d: reset digest %d != rolled digest %d", i, fresh.Digest(), rolled.Digest())
		}
		rolled.Rotate(data[i], data[i+window])
	}
}

// TestUpdateLaw checks the update law from spec §8: rolling one byte
// forward must always agree with recomputing the window from scratch.
func TestUpdateLaw(t *testing.T) {
	law := func(window []byte, in byte) bool {
		if len(window) == 0 {
			return true
		}
		var rc Checksum
		rc.Reset(window)
		out := window[0]
		rc.Rotate(out, in)

		shifted := append(append([]byte{}, window[1:]...), in)

		var want Checksum
		want.Reset(shifted)
		return rc.Digest() == want.Digest()
	}

	cases := []struct {
		window []byte
		in     byte
	}{
		{[]byte("a"), 'z'},
		{[]byte("ab"), 'c'},
		{[]byte("hello"), '!'},
		{[]byte("0123456789"), 'x'},
		{[]byte("the quick brown fox"), 'Q'},
	}
	for _, c := range cases {
		if !law(c.window, c.in) {
			t.Fatalf("update law failed for window %q + %q", c.window, c.in)
		}
	}
}

func TestDigestDeterministic(t *testing.T) {
	f := func(data []byte) bool {
		if len(data) == 0 {
			return true
		}
		var a, b Checksum
		a.Reset(data)
		b.Reset(data)
		return a.Digest() == b.Digest()
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestEmptyChecksum(t *testing.T) {
	var c Checksum
	if !c.IsEmpty() {
		t.Fatal("zero value Checksum should be empty")
	}
	c.Reset([]byte("abcde"))
	if c.IsEmpty() {
		t.Fatal("checksum should not be empty after Reset")
	}
	c.Clear()
	if !c.IsEmpty() {
		t.Fatal("checksum should be empty after Clear")
	}
}
