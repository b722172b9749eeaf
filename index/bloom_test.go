package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBloomFilterNeverFalseNegative(t *testing.T) {
	b := NewBloomFilter(1000, 0.01)
	var keys [][]byte
	for i := 0; i < 1000; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		keys = append(keys, k)
		b.Add(k)
	}
	for _, k := range keys {
		assert.True(t, b.Test(k), "every added key must test positive")
	}
}

func TestBloomFilterFalsePositiveRateStaysNearTarget(t *testing.T) {
	const n = 2000
	const target = 0.01
	b := NewBloomFilter(n, target)
	for i := 0; i < n; i++ {
		b.Add([]byte(fmt.Sprintf("present-%d", i)))
	}

	falsePositives := 0
	trials := 5000
	for i := 0; i < trials; i++ {
		if b.Test([]byte(fmt.Sprintf("absent-%d", i))) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	assert.Less(t, rate, target*5, "false positive rate must stay within a small multiple of the configured target")
}

func TestBloomFilterEmptyRejectsEverything(t *testing.T) {
	b := NewBloomFilter(10, 0.01)
	assert.False(t, b.Test([]byte("never-added")))
}

func TestNewBloomFilterClampsDegenerateInputs(t *testing.T) {
	b := NewBloomFilter(0, 2.0)
	b.Add([]byte("x"))
	assert.True(t, b.Test([]byte("x")))
}
