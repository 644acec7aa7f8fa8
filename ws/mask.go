package ws

// ApplyMask XORs data in place against the repeating 4-byte mask, which is
// its own inverse: ApplyMask(ApplyMask(p, m), m) == p. A mask of all zero
// bytes is a legal (if useless) mask and must still be transmitted on the
// wire rather than special-cased away, per spec.md's testable property 2.
func ApplyMask(data []byte, mask [4]byte) {
	for i := range data {
		data[i] ^= mask[i%4]
	}
}
