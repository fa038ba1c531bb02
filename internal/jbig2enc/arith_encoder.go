package jbig2enc

// arithQe matches the probability table entries mandated for the JBIG2
// arithmetic coder. Each logical state also carries an MPS polarity, stored
// as the high bit of a context byte, so the 47 rows cover 94 states.
type arithQe struct {
	qe      uint16
	nmps    uint8
	nlps    uint8
	switchM bool
}

var arithQeTable = [...]arithQe{
	{0x5601, 1, 1, true}, {0x3401, 2, 6, false}, {0x1801, 3, 9, false},
	{0x0AC1, 4, 12, false}, {0x0521, 5, 29, false}, {0x0221, 38, 33, false},
	{0x5601, 7, 6, true}, {0x5401, 8, 14, false}, {0x4801, 9, 14, false},
	{0x3801, 10, 14, false}, {0x3001, 11, 17, false}, {0x2401, 12, 18, false},
	{0x1C01, 13, 20, false}, {0x1601, 29, 21, false}, {0x5601, 15, 14, true},
	{0x5401, 16, 14, false}, {0x5101, 17, 15, false}, {0x4801, 18, 16, false},
	{0x3801, 19, 17, false}, {0x3401, 20, 18, false}, {0x3001, 21, 19, false},
	{0x2801, 22, 19, false}, {0x2401, 23, 20, false}, {0x2201, 24, 21, false},
	{0x1C01, 25, 22, false}, {0x1801, 26, 23, false}, {0x1601, 27, 24, false},
	{0x1401, 28, 25, false}, {0x1201, 29, 26, false}, {0x1101, 30, 27, false},
	{0x0AC1, 31, 28, false}, {0x09C1, 32, 29, false}, {0x08A1, 33, 30, false},
	{0x0521, 34, 31, false}, {0x0441, 35, 32, false}, {0x02A1, 36, 33, false},
	{0x0221, 37, 34, false}, {0x0141, 38, 35, false}, {0x0111, 39, 36, false},
	{0x0085, 40, 37, false}, {0x0049, 41, 38, false}, {0x0025, 42, 39, false},
	{0x0015, 43, 40, false}, {0x0009, 44, 41, false}, {0x0005, 45, 42, false},
	{0x0001, 45, 43, false}, {0x5601, 46, 46, false},
}

const (
	defaultAValue = 0x8000

	// genericContextSize is the bank size for the 16-bit generic region
	// template; refineContextSize covers the 13-bit refinement template.
	genericContextSize = 1 << 16
	refineContextSize  = 1 << 13
	intContextSize     = 512

	// outputChunkSize bounds the size of any single output allocation.
	outputChunkSize = 1 << 14
)

// A context byte stores the probability-state index in its low 7 bits and
// the current more-probable-symbol polarity in the high bit.
const contextMPSBit = 0x80

// Coder is the stateful MQ-style binary arithmetic encoder. One Coder is
// created per payload (generic region, symbol dictionary, or text region),
// finalized exactly once, and then drained into the segment stream.
type Coder struct {
	c  uint32
	a  uint32
	ct uint32
	b  uint8
	bp int // bytes produced so far; b is pending until the next byteout

	chunks [][]byte
	cur    []byte

	finalized bool

	generic  []byte
	refine   []byte
	intBanks [numIntKinds][]byte
	iaid     []byte
	iaidLen  uint8
}

// NewCoder returns an initialized encoder session with all context banks in
// their default state.
func NewCoder() *Coder {
	return &Coder{
		a:   defaultAValue,
		ct:  12,
		bp:  -1,
		cur: make([]byte, 0, outputChunkSize),
	}
}

// GenericContexts returns the 65,536-entry bank used by the generic region
// template, allocating it on first use.
func (e *Coder) GenericContexts() []byte {
	if e.generic == nil {
		e.generic = make([]byte, genericContextSize)
	}
	return e.generic
}

// RefineContexts returns the bank used by the refinement region template.
func (e *Coder) RefineContexts() []byte {
	if e.refine == nil {
		e.refine = make([]byte, refineContextSize)
	}
	return e.refine
}

// EncodeBit codes one bit in the given context bank at index ctx. The caller
// owns the choice of bank; an out-of-range index is a programming error and
// panics via the slice bounds check.
func (e *Coder) EncodeBit(bank []byte, ctx uint32, bit int) {
	state := bank[ctx] &^ contextMPSBit
	mps := int(bank[ctx] >> 7)
	qe := uint32(arithQeTable[state].qe)

	if bit == mps {
		// CODEMPS
		e.a -= qe
		if e.a&defaultAValue != 0 {
			e.c += qe
			return
		}
		if e.a < qe {
			e.a = qe
		} else {
			e.c += qe
		}
		bank[ctx] = arithQeTable[state].nmps | uint8(mps)<<7
		e.renorm()
		return
	}

	// CODELPS
	e.a -= qe
	if e.a < qe {
		e.c += qe
	} else {
		e.a = qe
	}
	if arithQeTable[state].switchM {
		mps = 1 - mps
	}
	bank[ctx] = arithQeTable[state].nlps | uint8(mps)<<7
	e.renorm()
}

// Flush finalizes the session: SETBITS, two flush byteouts, the pending
// byte, and the 0xFF 0xAC terminator. It must be called exactly once.
func (e *Coder) Flush() {
	if e.finalized {
		return
	}
	e.finalized = true

	// SETBITS
	tempC := e.c + e.a
	e.c |= 0xFFFF
	if e.c >= tempC {
		e.c -= defaultAValue
	}

	e.c <<= e.ct
	e.byteout()
	e.c <<= e.ct
	e.byteout()
	if e.bp >= 0 {
		e.emit(e.b)
	}
	e.emit(0xFF)
	e.emit(0xAC)
}

// Size returns the number of output bytes produced so far. It is only
// meaningful after Flush.
func (e *Coder) Size() int {
	n := len(e.cur)
	for _, chunk := range e.chunks {
		n += len(chunk)
	}
	return n
}

// Bytes drains the session's output chunks into a single slice. Ownership of
// the chunk storage moves to the returned buffer; the session must not be
// used afterwards.
func (e *Coder) Bytes() []byte {
	if len(e.chunks) == 0 {
		out := e.cur
		e.cur = nil
		return out
	}
	out := make([]byte, 0, e.Size())
	for _, chunk := range e.chunks {
		out = append(out, chunk...)
	}
	out = append(out, e.cur...)
	e.chunks = nil
	e.cur = nil
	return out
}

func (e *Coder) renorm() {
	for {
		e.a <<= 1
		e.c <<= 1
		e.ct--
		if e.ct == 0 {
			e.byteout()
		}
		if e.a&defaultAValue != 0 {
			return
		}
	}
}

// byteout moves the top of the C register into the pending byte, propagating
// a carry into the previously produced byte and applying the standard's
// 0xFF lookahead so that 0xFF is never followed by a byte >= 0x90.
func (e *Coder) byteout() {
	if e.b == 0xFF {
		e.byteoutStuffed()
		return
	}
	if e.c < 0x8000000 {
		e.byteoutPlain()
		return
	}
	e.b++
	if e.b == 0xFF {
		e.c &= 0x7FFFFFF
		e.byteoutStuffed()
		return
	}
	e.byteoutPlain()
}

func (e *Coder) byteoutStuffed() {
	if e.bp >= 0 {
		e.emit(e.b)
	}
	e.b = uint8(e.c >> 20)
	e.bp++
	e.c &= 0xFFFFF
	e.ct = 7
}

func (e *Coder) byteoutPlain() {
	if e.bp >= 0 {
		e.emit(e.b)
	}
	e.b = uint8(e.c >> 19)
	e.bp++
	e.c &= 0x7FFFF
	e.ct = 8
}

func (e *Coder) emit(b byte) {
	if len(e.cur) == outputChunkSize {
		e.chunks = append(e.chunks, e.cur)
		e.cur = make([]byte, 0, outputChunkSize)
	}
	e.cur = append(e.cur, b)
}
