// Implements BCH error coding and even parity for 32-bit codewords.
package bch

import (
	"fmt"
	mathbits "math/bits"
)

// POCSAG generator polynomial x^10+x^9+x^8+x^6+x^5+x^3+1, aligned with the
// most significant bit of a 32-bit word.
const GenPoly = 0xED200000

// BCH signs codewords whose DataLen top bits carry data and whose remaining
// low bits are check bits plus a trailing parity bit.
type BCH struct {
	GenPoly uint32
	DataLen uint
}

// Given a generator polynomial and data length, construct a signer for
// 32-bit codewords.
func NewBCH(poly uint32, dataLen uint) (bch BCH) {
	bch.GenPoly = poly
	bch.DataLen = dataLen
	return
}

func (bch BCH) String() string {
	return fmt.Sprintf("{GenPoly:%X DataLen:%d}", bch.GenPoly, bch.DataLen)
}

// Syndrome computes the polynomial remainder of the codeword's data bits,
// returned in the check-bit positions of the word.
func (bch BCH) Syndrome(cw uint32) uint32 {
	for bit := uint(0); bit < bch.DataLen; bit++ {
		if cw&(1<<31) != 0 {
			cw ^= bch.GenPoly
		}
		cw <<= 1
	}
	return cw >> bch.DataLen
}

// Sign fills the check bits and the even-parity bit of a codeword whose low
// 32-DataLen bits are zero.
func (bch BCH) Sign(cw uint32) uint32 {
	cw |= bch.Syndrome(cw)
	if mathbits.OnesCount32(cw)&1 == 1 {
		cw |= 1
	}
	return cw
}

// Check reports whether cw carries valid check bits and even parity over
// all 32 bits.
func (bch BCH) Check(cw uint32) bool {
	mask := uint32(1)<<(32-bch.DataLen) - 1
	return bch.Sign(cw&^mask) == cw
}
