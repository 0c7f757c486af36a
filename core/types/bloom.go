package types

import "math/big"

// Bloom represents a 2048-bit log bloom filter.
type Bloom [BloomLength]byte

// bloom9 returns the three bit indices the given data sets in the filter.
// Per the Yellow Paper, the low 11 bits of each of the first three 16-bit
// words of keccak256(data) select a bit in the 2048-bit filter.
func bloom9(data []byte) [3]uint {
	h := keccak256(data)
	var idx [3]uint
	for i := 0; i < 3; i++ {
		idx[i] = (uint(h[2*i])<<8 | uint(h[2*i+1])) & 0x7ff
	}
	return idx
}

// Add sets the bits corresponding to data in the filter.
func (b *Bloom) Add(data []byte) {
	for _, idx := range bloom9(data) {
		byteIdx := BloomLength - 1 - idx/8
		b[byteIdx] |= 1 << (idx % 8)
	}
}

// Test reports whether all bits corresponding to data are set.
func (b Bloom) Test(data []byte) bool {
	for _, idx := range bloom9(data) {
		byteIdx := BloomLength - 1 - idx/8
		if b[byteIdx]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// Big returns the bloom as a big integer.
func (b Bloom) Big() *big.Int {
	return new(big.Int).SetBytes(b[:])
}

// Bytes returns the backing byte slice.
func (b Bloom) Bytes() []byte { return b[:] }

// Or merges another bloom into this one.
func (b *Bloom) Or(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

// LogsBloom computes the bloom filter over a list of logs: each log
// contributes its address and every topic.
func LogsBloom(logs []*Log) Bloom {
	var bloom Bloom
	for _, l := range logs {
		bloom.Add(l.Address.Bytes())
		for _, topic := range l.Topics {
			bloom.Add(topic.Bytes())
		}
	}
	return bloom
}

// CreateBloom computes the combined bloom over all receipts in a block.
func CreateBloom(receipts []*Receipt) Bloom {
	var bloom Bloom
	for _, r := range receipts {
		bloom.Or(LogsBloom(r.Logs))
	}
	return bloom
}
