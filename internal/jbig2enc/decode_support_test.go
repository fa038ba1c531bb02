package jbig2enc

// Conformance checking for the encoders: a compact arithmetic decoder and
// the region/dictionary decode procedures built on it, enough to round-trip
// every payload this package produces.

import (
	"errors"
	"math"

	"github.com/binimage/gojbig2enc/internal/bitmap"
)

type testArithContext struct {
	mps bool
	i   uint8
}

func (ctx *testArithContext) mpsBit() int {
	if ctx.mps {
		return 1
	}
	return 0
}

type testArithDecoder struct {
	data     []byte
	pos      int
	complete bool
	marker   int
	b        uint8
	c        uint32
	a        uint32
	ct       uint32
}

func newTestArithDecoder(data []byte) *testArithDecoder {
	dec := &testArithDecoder{data: data}
	dec.b = dec.curByte()
	dec.c = uint32(dec.b^0xFF) << 16
	dec.byteIn()
	dec.c <<= 7
	if dec.ct >= 7 {
		dec.ct -= 7
	} else {
		dec.ct = 0
	}
	dec.a = defaultAValue
	return dec
}

func (dec *testArithDecoder) curByte() uint8 {
	if dec.pos < len(dec.data) {
		return dec.data[dec.pos]
	}
	return 0xFF
}

func (dec *testArithDecoder) nextByte() uint8 {
	if dec.pos+1 < len(dec.data) {
		return dec.data[dec.pos+1]
	}
	return 0xFF
}

func (dec *testArithDecoder) byteIn() {
	if dec.b == 0xFF {
		if dec.nextByte() > 0x8F {
			dec.ct = 8
			dec.marker++
			if dec.marker > 2 {
				dec.complete = true
			}
		} else {
			dec.pos++
			dec.b = dec.curByte()
			dec.c = dec.c + 0xFE00 - (uint32(dec.b) << 9)
			dec.ct = 7
		}
	} else {
		dec.pos++
		dec.b = dec.curByte()
		dec.c = dec.c + 0xFF00 - (uint32(dec.b) << 8)
		dec.ct = 8
	}
	if dec.pos >= len(dec.data) {
		dec.complete = true
	}
}

func (dec *testArithDecoder) decode(ctx *testArithContext) (int, error) {
	if dec.complete {
		return 0, errors.New("arithmetic decoder exhausted")
	}
	qe := arithQeTable[ctx.i]
	dec.a -= uint32(qe.qe)
	if (dec.c >> 16) < dec.a {
		if dec.a&defaultAValue != 0 {
			return ctx.mpsBit(), nil
		}
		var d int
		if dec.a < uint32(qe.qe) {
			d = dec.decodeNLPS(ctx, qe)
		} else {
			d = dec.decodeNMPS(ctx, qe)
		}
		dec.renorm()
		return d, nil
	}

	dec.c -= dec.a << 16
	var d int
	if dec.a < uint32(qe.qe) {
		d = dec.decodeNMPS(ctx, qe)
	} else {
		d = dec.decodeNLPS(ctx, qe)
	}
	dec.a = uint32(qe.qe)
	dec.renorm()
	return d, nil
}

func (dec *testArithDecoder) decodeNMPS(ctx *testArithContext, qe arithQe) int {
	ctx.i = qe.nmps
	return ctx.mpsBit()
}

func (dec *testArithDecoder) decodeNLPS(ctx *testArithContext, qe arithQe) int {
	d := 1
	if ctx.mps {
		d = 0
	}
	if qe.switchM {
		ctx.mps = !ctx.mps
	}
	ctx.i = qe.nlps
	return d
}

func (dec *testArithDecoder) renorm() {
	for {
		if dec.ct == 0 {
			dec.byteIn()
		}
		dec.a <<= 1
		dec.c <<= 1
		dec.ct--
		if dec.a&defaultAValue != 0 {
			return
		}
	}
}

// testIntDecoder mirrors the integer decoding procedure: one 512-context
// bank per integer kind.
type testIntDecoder struct {
	ctx []testArithContext
}

func newTestIntDecoder() *testIntDecoder {
	return &testIntDecoder{ctx: make([]testArithContext, 512)}
}

var testIntClasses = []struct {
	needBits int
	base     int
}{
	{2, 0}, {4, 4}, {6, 20}, {8, 84}, {12, 340}, {32, 4436},
}

func (d *testIntDecoder) decode(arith *testArithDecoder) (int, bool, error) {
	prev := 1
	s, err := arith.decode(&d.ctx[prev])
	if err != nil {
		return 0, false, err
	}
	prev = (prev << 1) | s

	depth := 0
	for depth < len(testIntClasses)-1 {
		bit, err := arith.decode(&d.ctx[prev])
		if err != nil {
			return 0, false, err
		}
		prev = (prev << 1) | bit
		if bit == 0 {
			break
		}
		depth++
	}

	temp := 0
	for i := 0; i < testIntClasses[depth].needBits; i++ {
		bit, err := arith.decode(&d.ctx[prev])
		if err != nil {
			return 0, false, err
		}
		prev = (prev << 1) | bit
		if prev >= 256 {
			prev = (prev & 0x1FF) | 0x100
		}
		temp = (temp << 1) | bit
	}

	value := int64(testIntClasses[depth].base) + int64(temp)
	if value < math.MinInt32 || value > math.MaxInt32 {
		return 0, false, nil
	}
	result := int(value)
	if s == 1 && result > 0 {
		result = -result
	}
	return result, !(s == 1 && result == 0), nil
}

type testIaidDecoder struct {
	ctx []testArithContext
	len uint8
}

func newTestIaidDecoder(codeLen uint8) *testIaidDecoder {
	return &testIaidDecoder{ctx: make([]testArithContext, 1<<codeLen), len: codeLen}
}

func (d *testIaidDecoder) decode(arith *testArithDecoder) (uint32, error) {
	prev := 1
	for i := uint8(0); i < d.len; i++ {
		bit, err := arith.decode(&d.ctx[prev])
		if err != nil {
			return 0, err
		}
		prev = (prev << 1) | bit
	}
	return uint32(prev - (1 << d.len)), nil
}

// decodeGenericRegion mirrors the template-0 generic region decode
// procedure with the nominal adaptive pixels.
func decodeGenericRegion(dec *testArithDecoder, contexts []testArithContext, width, height int, tpgdon bool) (*bitmap.Bitmap, error) {
	img := bitmap.New(width, height)
	ltp := 0
	for h := 0; h < height; h++ {
		if tpgdon {
			bit, err := dec.decode(&contexts[tpgdContext])
			if err != nil {
				return nil, err
			}
			ltp ^= bit
			if ltp != 0 {
				// Copy the previous row (all zero above row 0).
				for w := 0; w < width; w++ {
					img.SetPixel(w, h, img.GetPixel(w, h-1))
				}
				continue
			}
		}

		line1 := uint32(img.GetPixel(1, h-2))
		line1 |= uint32(img.GetPixel(0, h-2)) << 1
		line2 := uint32(img.GetPixel(2, h-1))
		line2 |= uint32(img.GetPixel(1, h-1)) << 1
		line2 |= uint32(img.GetPixel(0, h-1)) << 2
		line3 := uint32(0)

		for w := 0; w < width; w++ {
			ctx := line3
			ctx |= uint32(img.GetPixel(w+int(genericATPixels[0]), h+int(genericATPixels[1]))) << 4
			ctx |= line2 << 5
			ctx |= uint32(img.GetPixel(w+int(genericATPixels[2]), h+int(genericATPixels[3]))) << 10
			ctx |= uint32(img.GetPixel(w+int(genericATPixels[4]), h+int(genericATPixels[5]))) << 11
			ctx |= line1 << 12
			ctx |= uint32(img.GetPixel(w+int(genericATPixels[6]), h+int(genericATPixels[7]))) << 15

			bit, err := dec.decode(&contexts[ctx])
			if err != nil {
				return nil, err
			}
			img.SetPixel(w, h, bit)

			line1 = ((line1 << 1) | uint32(img.GetPixel(w+2, h-2))) & 0x0007
			line2 = ((line2 << 1) | uint32(img.GetPixel(w+3, h-1))) & 0x001F
			line3 = ((line3 << 1) | uint32(bit)) & 0x000F
		}
	}
	return img, nil
}

// decodeRefineRegion mirrors the template-0 refinement decode procedure.
func decodeRefineRegion(dec *testArithDecoder, contexts []testArithContext, ref *bitmap.Bitmap, width, height, refDX, refDY int) (*bitmap.Bitmap, error) {
	img := bitmap.New(width, height)
	for y := 0; y < height; y++ {
		var lines [5]uint32
		lines[0] = uint32(img.GetPixel(1, y-1))
		lines[0] |= uint32(img.GetPixel(0, y-1)) << 1
		lines[1] = 0
		lines[2] = uint32(ref.GetPixel(1-refDX, y-refDY-1))
		lines[2] |= uint32(ref.GetPixel(-refDX, y-refDY-1)) << 1
		lines[3] = uint32(ref.GetPixel(1-refDX, y-refDY))
		lines[3] |= uint32(ref.GetPixel(-refDX, y-refDY)) << 1
		lines[3] |= uint32(ref.GetPixel(-refDX-1, y-refDY)) << 2
		lines[4] = uint32(ref.GetPixel(1-refDX, y-refDY+1))
		lines[4] |= uint32(ref.GetPixel(-refDX, y-refDY+1)) << 1
		lines[4] |= uint32(ref.GetPixel(-refDX-1, y-refDY+1)) << 2

		for x := 0; x < width; x++ {
			ctx := lines[4]
			ctx |= lines[3] << 3
			ctx |= lines[2] << 6
			ctx |= uint32(ref.GetPixel(x+int(refineATPixels[2])-refDX, y+int(refineATPixels[3])-refDY)) << 8
			ctx |= lines[1] << 9
			ctx |= lines[0] << 10
			ctx |= uint32(img.GetPixel(x+int(refineATPixels[0]), y+int(refineATPixels[1]))) << 12

			bit, err := dec.decode(&contexts[ctx])
			if err != nil {
				return nil, err
			}
			img.SetPixel(x, y, bit)

			lines[0] = ((lines[0] << 1) | uint32(img.GetPixel(x+2, y-1))) & 0x03
			lines[1] = ((lines[1] << 1) | uint32(bit)) & 0x01
			lines[2] = ((lines[2] << 1) | uint32(ref.GetPixel(x-refDX+2, y-refDY-1))) & 0x03
			lines[3] = ((lines[3] << 1) | uint32(ref.GetPixel(x-refDX+2, y-refDY))) & 0x07
			lines[4] = ((lines[4] << 1) | uint32(ref.GetPixel(x-refDX+2, y-refDY+1))) & 0x07
		}
	}
	return img, nil
}

// decodeSymbolDict mirrors the symbol dictionary decode procedure without
// refinement or aggregation, returning symbols in decode order.
func decodeSymbolDict(data []byte, numNew int) ([]*bitmap.Bitmap, error) {
	dec := newTestArithDecoder(data)
	gbContexts := make([]testArithContext, genericContextSize)
	iadh := newTestIntDecoder()
	iadw := newTestIntDecoder()
	iaex := newTestIntDecoder()

	symbols := make([]*bitmap.Bitmap, 0, numNew)
	height := 0
	for len(symbols) < numNew {
		delta, inBand, err := iadh.decode(dec)
		if err != nil {
			return nil, err
		}
		if !inBand {
			return nil, errors.New("unexpected OOB in height class")
		}
		height += delta

		width := 0
		for {
			delta, inBand, err := iadw.decode(dec)
			if err != nil {
				return nil, err
			}
			if !inBand {
				break
			}
			width += delta
			sym, err := decodeGenericRegion(dec, gbContexts, width, height, false)
			if err != nil {
				return nil, err
			}
			symbols = append(symbols, sym)
		}
	}

	// Export runs must cover the set exactly once, all exported.
	run0, inBand, err := iaex.decode(dec)
	if err != nil {
		return nil, err
	}
	if !inBand || run0 != 0 {
		return nil, errors.New("unexpected initial export run")
	}
	runAll, inBand, err := iaex.decode(dec)
	if err != nil {
		return nil, err
	}
	if !inBand || runAll != len(symbols) {
		return nil, errors.New("export run does not cover symbol set")
	}
	return symbols, nil
}

// decodeTextRegionPayload mirrors the text region decode procedure for the
// top-left reference corner without transposition, composing glyphs onto a
// page of the given size.
func decodeTextRegionPayload(data []byte, syms []*bitmap.Bitmap, width, height, numInstances, stripHeight int, refine bool) (*bitmap.Bitmap, error) {
	dec := newTestArithDecoder(data)
	grContexts := make([]testArithContext, refineContextSize)
	iadt := newTestIntDecoder()
	iafs := newTestIntDecoder()
	iads := newTestIntDecoder()
	iait := newTestIntDecoder()
	iari := newTestIntDecoder()
	iardw := newTestIntDecoder()
	iardh := newTestIntDecoder()
	iardx := newTestIntDecoder()
	iardy := newTestIntDecoder()
	iaid := newTestIaidDecoder(SymCodeLen(len(syms)))

	img := bitmap.New(width, height)

	stript, inBand, err := iadt.decode(dec)
	if err != nil {
		return nil, err
	}
	if !inBand {
		return nil, errors.New("initial DT OOB")
	}
	stripPosition := -stript * stripHeight
	firstS := 0
	instances := 0

	for instances < numInstances {
		dt, inBand, err := iadt.decode(dec)
		if err != nil {
			return nil, err
		}
		if !inBand {
			return nil, errors.New("DT OOB")
		}
		stripPosition += dt * stripHeight
		curs := 0
		first := true
		for {
			if first {
				dfs, inBand, err := iafs.decode(dec)
				if err != nil {
					return nil, err
				}
				if !inBand {
					return nil, errors.New("DFS OOB")
				}
				firstS += dfs
				curs = firstS
				first = false
			} else {
				ids, inBand, err := iads.decode(dec)
				if err != nil {
					return nil, err
				}
				if !inBand {
					break
				}
				curs += ids
			}
			if instances >= numInstances {
				break
			}

			curt := 0
			if stripHeight != 1 {
				val, inBand, err := iait.decode(dec)
				if err != nil {
					return nil, err
				}
				if !inBand {
					return nil, errors.New("IT OOB")
				}
				curt = val
			}
			ti := stripPosition + curt

			symID, err := iaid.decode(dec)
			if err != nil {
				return nil, err
			}
			if int(symID) >= len(syms) {
				return nil, errors.New("symbol id out of range")
			}
			glyph := syms[symID]

			if refine {
				ri, inBand, err := iari.decode(dec)
				if err != nil {
					return nil, err
				}
				if !inBand {
					return nil, errors.New("RI OOB")
				}
				if ri != 0 {
					rdw, _, err := iardw.decode(dec)
					if err != nil {
						return nil, err
					}
					rdh, _, err := iardh.decode(dec)
					if err != nil {
						return nil, err
					}
					rdx, _, err := iardx.decode(dec)
					if err != nil {
						return nil, err
					}
					rdy, _, err := iardy.decode(dec)
					if err != nil {
						return nil, err
					}
					refined, err := decodeRefineRegion(dec, grContexts, glyph,
						glyph.Width()+rdw, glyph.Height()+rdh,
						rdx+(rdw>>1), rdy+(rdh>>1))
					if err != nil {
						return nil, err
					}
					glyph = refined
				}
			}

			img.Blit(glyph, curs, ti)
			curs += glyph.Width() - 1
			instances++
		}
	}
	return img, nil
}
