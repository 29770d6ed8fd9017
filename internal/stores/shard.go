package stores

import (
	"github.com/spaolacci/murmur3"
)

const DefaultShards = 64

func normalizeShards(n int) int {
	if n <= 0 {
		return DefaultShards
	}
	return n
}

// shardFor maps a key onto one of n lock stripes. Distinct principals land on
// independent stripes with high probability, so they do not contend.
func shardFor(n int, principal string, kind uint8) int {
	h := murmur3.New32()
	_, _ = h.Write([]byte(principal))
	_, _ = h.Write([]byte{0, kind})
	return int(h.Sum32() % uint32(n))
}
