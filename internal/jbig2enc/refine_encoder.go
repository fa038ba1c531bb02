package jbig2enc

import (
	"github.com/pkg/errors"

	"github.com/binimage/gojbig2enc/internal/bitmap"
)

// Refinement coding uses template 0 with the nominal adaptive pixels and no
// typical prediction. The context layout matches the refinement decode
// procedure: three reference-image rows in the low bits, the current row and
// row above of the image being coded on top, plus the two adaptive pixels.
var refineATPixels = [4]int8{-1, -1, -1, -1}

// EncodeRefine codes bm relative to ref, shifted by (refDX, refDY), into the
// session's refinement context bank.
func (e *Coder) EncodeRefine(bm, ref *bitmap.Bitmap, refDX, refDY int) error {
	if bm == nil || ref == nil {
		return errors.New("jbig2enc: nil bitmap for refinement region")
	}

	contexts := e.RefineContexts()
	width, height := bm.Width(), bm.Height()

	for y := 0; y < height; y++ {
		var lines [5]uint32
		lines[0] = uint32(bm.GetPixel(1, y-1))
		lines[0] |= uint32(bm.GetPixel(0, y-1)) << 1
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
			ctx |= uint32(bm.GetPixel(x+int(refineATPixels[0]), y+int(refineATPixels[1]))) << 12

			bit := bm.GetPixel(x, y)
			e.EncodeBit(contexts, ctx, bit)

			lines[0] = ((lines[0] << 1) | uint32(bm.GetPixel(x+2, y-1))) & 0x03
			lines[1] = ((lines[1] << 1) | uint32(bit)) & 0x01
			lines[2] = ((lines[2] << 1) | uint32(ref.GetPixel(x-refDX+2, y-refDY-1))) & 0x03
			lines[3] = ((lines[3] << 1) | uint32(ref.GetPixel(x-refDX+2, y-refDY))) & 0x07
			lines[4] = ((lines[4] << 1) | uint32(ref.GetPixel(x-refDX+2, y-refDY+1))) & 0x07
		}
	}
	return nil
}
