// Package rolling implements the Adler-32-style weak checksum used by the
// delta resolver to slide over the local file one byte at a time without
// re-summing the whole window.
package rolling

// Checksum is a two-half-sum rolling checksum over a fixed-size window.
// The zero value is an empty checksum with no window loaded.
type Checksum struct {
	a, b uint32
	n    uint32
}

// Reset computes the checksum of window from scratch, replacing whatever
// window was previously loaded. This is O(len(window)) and is only meant
// to be called once per strip (or block), not per byte.
func (c *Checksum) Reset(window []byte) {
	var a, b uint32
	n := uint32(len(window))
	for i, v := range window {
		a += uint32(v)
		b += (n - uint32(i)) * uint32(v)
	}
	c.a, c.b, c.n = a, b, n
}

// Rotate advances the window by one byte: out leaves the window on the
// left, in enters it on the right. This is the O(1) update that makes the
// rolling scan practical.
func (c *Checksum) Rotate(out, in byte) {
	a := c.a - uint32(out) + uint32(in)
	b := c.b - c.n*uint32(out) + a
	c.a, c.b = a, b
}

// Digest packs the two half-sums into a single 32-bit value.
func (c *Checksum) Digest() uint32 {
	return (c.b&0xFFFF)<<16 | (c.a & 0xFFFF)
}

// Len reports the size of the currently loaded window.
func (c *Checksum) Len() uint32 { return c.n }

// Clear resets the checksum to its empty zero value.
func (c *Checksum) Clear() { c.a, c.b, c.n = 0, 0, 0 }

// IsEmpty reports whether no window has been loaded.
func (c *Checksum) IsEmpty() bool { return c.n == 0 }
