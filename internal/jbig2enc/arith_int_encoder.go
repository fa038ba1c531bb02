package jbig2enc

import (
	"math"

	"github.com/pkg/errors"
)

// IntKind selects one of the thirteen 512-entry context banks used by the
// arithmetic integer coding procedure. Each semantic field coded in a symbol
// dictionary or text region gets its own bank.
type IntKind int

const (
	KindIADH IntKind = iota
	KindIADW
	KindIAEX
	KindIAAI
	KindIADT
	KindIAFS
	KindIADS
	KindIAIT
	KindIARI
	KindIARDW
	KindIARDH
	KindIARDX
	KindIARDY
	numIntKinds
)

type arithIntClass struct {
	upper  int // exclusive magnitude bound for this class
	bits   int
	base   int
	prefix int // prefix bits, coded MSB-first in prefixLen bits
	length int
}

var arithIntClasses = []arithIntClass{
	{4, 2, 0, 0x0, 1},
	{20, 4, 4, 0x2, 2},
	{84, 6, 20, 0x6, 3},
	{340, 8, 84, 0xE, 4},
	{4436, 12, 340, 0x1E, 5},
	{math.MaxInt32, 32, 4436, 0x1F, 5}, // upper unused, catch-all class
}

// EncodeInt codes a signed integer with the bank selected by kind: a sign
// bit, a unary-style class prefix, then the magnitude remainder MSB-first.
// Each bit's context is a 9-bit sliding window of the bits coded so far
// within this integer.
func (e *Coder) EncodeInt(kind IntKind, value int) error {
	if value > math.MaxInt32 || value < -math.MaxInt32 {
		return errors.Errorf("jbig2enc: integer %d outside codable range", value)
	}
	bank := e.intBank(kind)

	prev := uint32(1)
	s, v := 0, value
	if v < 0 {
		s, v = 1, -v
	}
	e.encodeIntBit(bank, &prev, s, false)

	class := arithIntClasses[len(arithIntClasses)-1]
	for _, c := range arithIntClasses[:len(arithIntClasses)-1] {
		if v < c.upper {
			class = c
			break
		}
	}
	for i := class.length - 1; i >= 0; i-- {
		e.encodeIntBit(bank, &prev, (class.prefix>>i)&1, false)
	}
	v -= class.base
	for i := class.bits - 1; i >= 0; i-- {
		e.encodeIntBit(bank, &prev, (v>>i)&1, true)
	}
	return nil
}

// EncodeOOB codes the out-of-band value in the bank selected by kind. The
// decoder recognizes it as "sign bit set, magnitude zero" and uses it to
// terminate variable-length runs.
func (e *Coder) EncodeOOB(kind IntKind) {
	bank := e.intBank(kind)
	prev := uint32(1)
	e.encodeIntBit(bank, &prev, 1, false) // sign
	e.encodeIntBit(bank, &prev, 0, false) // smallest class
	e.encodeIntBit(bank, &prev, 0, true)
	e.encodeIntBit(bank, &prev, 0, true)
}

// EncodeIAID codes a symbol ID in exactly codeLen bits MSB-first, using the
// binary-tree context scheme: the context index is the path taken so far.
func (e *Coder) EncodeIAID(codeLen uint8, value uint32) {
	if e.iaid == nil || e.iaidLen != codeLen {
		e.iaid = make([]byte, 1<<codeLen)
		e.iaidLen = codeLen
	}
	prev := uint32(1)
	for i := int(codeLen) - 1; i >= 0; i-- {
		bit := int((value >> i) & 1)
		e.EncodeBit(e.iaid, prev, bit)
		prev = (prev << 1) | uint32(bit)
	}
}

// SymCodeLen returns the fixed ID width for a dictionary of n symbols: the
// smallest k with 1<<k >= n.
func SymCodeLen(n int) uint8 {
	codeLen := uint8(0)
	for (1 << codeLen) < n {
		codeLen++
	}
	return codeLen
}

func (e *Coder) intBank(kind IntKind) []byte {
	if e.intBanks[kind] == nil {
		e.intBanks[kind] = make([]byte, intContextSize)
	}
	return e.intBanks[kind]
}

// encodeIntBit codes one bit of an integer and advances the context window.
// Magnitude bits clamp the window to 9 bits with the top bit held, mirroring
// the decode procedure.
func (e *Coder) encodeIntBit(bank []byte, prev *uint32, bit int, magnitude bool) {
	e.EncodeBit(bank, *prev, bit)
	*prev = (*prev << 1) | uint32(bit)
	if magnitude && *prev >= 256 {
		*prev = (*prev & 0x1FF) | 0x100
	}
}
