package lsm

import (
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	bloom "github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter wraps bits-and-blooms/bloom for per-SSTable set
// membership. Sizing comes straight from the library's
// NewWithEstimates, which implements the standard m = ceil(-n*ln(fp)/
// (ln2)^2), k = round((m/n)*ln2) sizing formulas. The on-disk wire
// format below (m|k|num_bytes|bit_vector) is this package's own, not
// the library's native WriteTo encoding, so the on-disk SSTable bloom
// region is stable across bloom library versions.
type BloomFilter struct {
	filter *bloom.BloomFilter
}

// NewBloomFilter sizes a filter for n expected keys at false positive
// rate fp.
func NewBloomFilter(n int, fp float64) *BloomFilter {
	if n < 1 {
		n = 1
	}
	if fp <= 0 || fp >= 1 {
		fp = defaultBloomFPRate
	}
	return &BloomFilter{filter: bloom.NewWithEstimates(uint(n), fp)}
}

// Add records key as a member. No false negative is ever introduced
// for a key that has been Added.
func (b *BloomFilter) Add(key []byte) {
	b.filter.Add(key)
}

// MayContain reports whether key could be a member; false positives
// occur at approximately the filter's configured rate.
func (b *BloomFilter) MayContain(key []byte) bool {
	return b.filter.Test(key)
}

// Serialize writes the filter as m(8) | k(8) | num_bytes(8) |
// bit_vector, all fields little-endian.
func (b *BloomFilter) Serialize() []byte {
	m := uint64(b.filter.Cap())
	k := uint64(b.filter.K())
	bits := b.filter.BitSet()
	numBytes := (m + 7) / 8
	buf := make([]byte, 24+numBytes)
	binary.LittleEndian.PutUint64(buf[0:8], m)
	binary.LittleEndian.PutUint64(buf[8:16], k)
	binary.LittleEndian.PutUint64(buf[16:24], numBytes)
	packBits(buf[24:], bits, m)
	return buf
}

// DeserializeBloomFilter parses the format written by Serialize.
func DeserializeBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("lsm: bloom filter header truncated: %d bytes", len(data))
	}
	m := binary.LittleEndian.Uint64(data[0:8])
	k := binary.LittleEndian.Uint64(data[8:16])
	numBytes := binary.LittleEndian.Uint64(data[16:24])
	if uint64(len(data)-24) < numBytes {
		return nil, fmt.Errorf("lsm: bloom filter body truncated: want %d have %d", numBytes, len(data)-24)
	}
	f := bloom.New(uint(m), uint(k))
	unpackBits(f.BitSet(), data[24:24+numBytes])
	return &BloomFilter{filter: f}, nil
}

func packBits(dst []byte, bits *bitset.BitSet, m uint64) {
	for i := uint64(0); i < m; i++ {
		if bits.Test(uint(i)) {
			dst[i/8] |= 1 << (i % 8)
		}
	}
}

func unpackBits(bits *bitset.BitSet, data []byte) {
	for i, byteVal := range data {
		if byteVal == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if byteVal&(1<<bit) != 0 {
				bits.Set(uint(i*8 + bit))
			}
		}
	}
}
