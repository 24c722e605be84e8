package node

import "math/bits"

// bitset holds one changed flag per field index.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) set(i int) {
	b[i/64] |= 1 << (uint(i) % 64)
}

func (b bitset) has(i int) bool {
	if i < 0 || i/64 >= len(b) {
		return false
	}
	return b[i/64]&(1<<(uint(i)%64)) != 0
}

func (b bitset) reset() {
	clear(b)
}

func (b bitset) indices() []int {
	var out []int
	for w, word := range b {
		for word != 0 {
			tz := bits.TrailingZeros64(word)
			out = append(out, w*64+tz)
			word &^= 1 << uint(tz)
		}
	}
	return out
}
