package jbig2enc

import (
	"github.com/pkg/errors"

	"github.com/binimage/gojbig2enc/internal/bitmap"
)

// Generic region coding uses template 0 with the nominal adaptive-template
// pixels. The context layout matches the decode procedure bit for bit:
// four current-row neighbors in the low bits, the row above (with AT1) in
// the middle, two-rows-above (with AT3/AT4) on top.
var genericATPixels = [8]int8{3, -1, -3, -1, 2, -2, -2, -2}

// tpgdContext is the fixed context index for the per-row typical-prediction
// bit under template 0.
const tpgdContext = 0x9B25

// EncodeGeneric codes bm pixel by pixel into the session's generic context
// bank. When tpgdon is set, a row identical to its predecessor is coded as a
// single "typical" bit and its pixels are skipped. Pad bits past the row
// width must be zero; that precondition is checked here because a violation
// corrupts the context stream without any downstream error.
func (e *Coder) EncodeGeneric(bm *bitmap.Bitmap, tpgdon bool) error {
	if bm == nil {
		return errors.New("jbig2enc: nil bitmap for generic region")
	}
	if err := bm.ValidatePadBits(); err != nil {
		return errors.Wrap(err, "jbig2enc: generic region input")
	}

	contexts := e.GenericContexts()
	width, height := bm.Width(), bm.Height()
	ltp := 0

	for h := 0; h < height; h++ {
		if tpgdon {
			typical := 0
			if bm.RowsEqual(h, h-1) {
				typical = 1
			}
			e.EncodeBit(contexts, tpgdContext, typical^ltp)
			ltp = typical
			if ltp != 0 {
				continue
			}
		}

		line1 := uint32(bm.GetPixel(1, h-2))
		line1 |= uint32(bm.GetPixel(0, h-2)) << 1
		line2 := uint32(bm.GetPixel(2, h-1))
		line2 |= uint32(bm.GetPixel(1, h-1)) << 1
		line2 |= uint32(bm.GetPixel(0, h-1)) << 2
		line3 := uint32(0)

		for w := 0; w < width; w++ {
			ctx := line3
			ctx |= uint32(bm.GetPixel(w+int(genericATPixels[0]), h+int(genericATPixels[1]))) << 4
			ctx |= line2 << 5
			ctx |= uint32(bm.GetPixel(w+int(genericATPixels[2]), h+int(genericATPixels[3]))) << 10
			ctx |= uint32(bm.GetPixel(w+int(genericATPixels[4]), h+int(genericATPixels[5]))) << 11
			ctx |= line1 << 12
			ctx |= uint32(bm.GetPixel(w+int(genericATPixels[6]), h+int(genericATPixels[7]))) << 15

			bit := bm.GetPixel(w, h)
			e.EncodeBit(contexts, ctx, bit)

			line1 = ((line1 << 1) | uint32(bm.GetPixel(w+2, h-2))) & 0x0007
			line2 = ((line2 << 1) | uint32(bm.GetPixel(w+3, h-1))) & 0x001F
			line3 = ((line3 << 1) | uint32(bit)) & 0x000F
		}
	}
	return nil
}
