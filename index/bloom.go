package index

import (
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// BloomFilter is a conservative per-chunk membership summary (spec §3,
// §4.3): Test never false-negatives, but may false-positive, letting a Scan
// operator skip a chunk only when Test is certain the value is absent. The
// pack carries no importable bloom-filter library — holiman/bloomfilter
// appears only as an erigon `replace` target for a different module, not
// reachable from this module's go.mod — so k hash functions are derived by
// double-hashing a single cespare/xxhash/v2 digest (Kirsch-Mitzenmacher),
// the same hash dependency storage/badgerindex.go and index/hash.go already
// use, rather than adding a dedicated bloom library or hand-rolling a hash.
type BloomFilter struct {
	mu   sync.RWMutex
	bits []uint64
	m    uint64 // bit count
	k    int    // hash function count
}

// NewBloomFilter sizes a filter for n expected elements at the given false
// positive rate p, using the standard optimal-m/k formulas.
func NewBloomFilter(n int, p float64) *BloomFilter {
	if n < 1 {
		n = 1
	}
	if p <= 0 || p >= 1 {
		p = 0.01
	}
	m := uint64(math.Ceil(-1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m < 64 {
		m = 64
	}
	k := int(math.Round(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	words := (m + 63) / 64
	return &BloomFilter{bits: make([]uint64, words), m: m, k: k}
}

// locations derives the k bit positions for key via Kirsch-Mitzenmacher
// double hashing: h_i(x) = h1(x) + i*h2(x) mod m, from one xxhash64 split
// into two 32-bit halves.
func (b *BloomFilter) locations(key []byte) []uint64 {
	sum := xxhash.Sum64(key)
	h1 := sum >> 32
	h2 := sum & 0xffffffff
	if h2 == 0 {
		h2 = 1
	}
	out := make([]uint64, b.k)
	for i := 0; i < b.k; i++ {
		out[i] = (h1 + uint64(i)*h2) % b.m
	}
	return out
}

// Add records key's presence.
func (b *BloomFilter) Add(key []byte) {
	locs := b.locations(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, loc := range locs {
		b.bits[loc/64] |= 1 << (loc % 64)
	}
}

// Test reports whether key may be present. false is a definitive answer;
// true means "maybe" (subject to the configured false-positive rate).
func (b *BloomFilter) Test(key []byte) bool {
	locs := b.locations(key)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, loc := range locs {
		if b.bits[loc/64]&(1<<(loc%64)) == 0 {
			return false
		}
	}
	return true
}
