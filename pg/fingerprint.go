package pg

import "hash/maphash"

// fingerprinter computes the 64-bit statement fingerprints the cache keys
// on. spec.md calls for "a random-state hasher seeded at construction": one
// maphash.Seed per Conn means two executors hash identical SQL text to
// different fingerprints, so cache behavior can never be probed or
// collision-engineered across connections.
type fingerprinter struct {
	seed maphash.Seed
}

func newFingerprinter() fingerprinter {
	return fingerprinter{seed: maphash.MakeSeed()}
}

func (f fingerprinter) hash(sql string) uint64 {
	var h maphash.Hash
	h.SetSeed(f.seed)
	_, _ = h.WriteString(sql)
	return h.Sum64()
}
