package bitmap

import (
	"math/bits"

	"github.com/pkg/errors"
)

const (
	maxPixels = int(^uint32(0)>>1) - 31
	maxBytes  = maxPixels / 8
)

// Bitmap is a packed bilevel image. Rows are packed MSB-first into bytes and
// padded to a whole number of 32-bit words; a set bit is a foreground (ink)
// pixel. Pad bits past the image width are kept zero by every operation in
// this package, which the arithmetic region coders rely on.
type Bitmap struct {
	width  int
	height int
	stride int // bytes per line, always word aligned
	data   []byte
}

// New allocates a zeroed bitmap with the stride aligned to 32 bits.
// Zero or negative dimensions yield an empty bitmap.
func New(w, h int) *Bitmap {
	bm := &Bitmap{}
	if w <= 0 || h <= 0 || w > maxPixels {
		return bm
	}
	stridePixels := alignTo32(w)
	if h > maxPixels/stridePixels {
		return bm
	}
	bm.width = w
	bm.height = h
	bm.stride = stridePixels / 8
	bm.data = make([]byte, bm.stride*h)
	return bm
}

// NewFromData wraps an existing packed buffer without copying it.
func NewFromData(w, h, stride int, data []byte) (*Bitmap, error) {
	if w < 0 || h < 0 {
		return nil, errors.New("bitmap: negative dimensions")
	}
	if stride < 0 || stride > maxBytes || stride%4 != 0 {
		return nil, errors.New("bitmap: invalid stride")
	}
	if stride*8 < w {
		return nil, errors.New("bitmap: stride smaller than width")
	}
	if stride*h > len(data) {
		return nil, errors.New("bitmap: buffer too small")
	}
	return &Bitmap{width: w, height: h, stride: stride, data: data[:stride*h]}, nil
}

// Width returns the image width in pixels.
func (bm *Bitmap) Width() int { return bm.width }

// Height returns the image height in pixels.
func (bm *Bitmap) Height() int { return bm.height }

// Stride returns the number of bytes per scanline.
func (bm *Bitmap) Stride() int { return bm.stride }

// Data exposes the underlying backing buffer.
func (bm *Bitmap) Data() []byte { return bm.data }

// GetPixel returns the bit value at the requested coordinate, or 0 when the
// coordinate lies outside the image.
func (bm *Bitmap) GetPixel(x, y int) int {
	if bm == nil || bm.data == nil {
		return 0
	}
	if x < 0 || x >= bm.width {
		return 0
	}
	line := bm.line(y)
	if line == nil {
		return 0
	}
	return int((line[x>>3] >> (7 - (x & 7))) & 1)
}

// SetPixel mutates the pixel at the requested coordinate; out-of-bounds
// writes are no-ops.
func (bm *Bitmap) SetPixel(x, y, v int) {
	if bm == nil || bm.data == nil {
		return
	}
	if x < 0 || x >= bm.width {
		return
	}
	line := bm.line(y)
	if line == nil {
		return
	}
	mask := byte(1 << (7 - (x & 7)))
	if v != 0 {
		line[x>>3] |= mask
	} else {
		line[x>>3] &^= mask
	}
}

// Clone returns an owned deep copy.
func (bm *Bitmap) Clone() *Bitmap {
	if bm == nil {
		return nil
	}
	clone := &Bitmap{width: bm.width, height: bm.height, stride: bm.stride}
	if bm.data != nil {
		clone.data = append([]byte(nil), bm.data...)
	}
	return clone
}

// Equal reports whether two bitmaps have identical dimensions and pixels.
func (bm *Bitmap) Equal(other *Bitmap) bool {
	if bm == nil || other == nil {
		return bm == other
	}
	if bm.width != other.width || bm.height != other.height {
		return false
	}
	for y := 0; y < bm.height; y++ {
		a := bm.line(y)
		b := other.line(y)
		n := (bm.width + 7) >> 3
		for i := 0; i < n; i++ {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}

// RowsEqual reports whether two scanlines hold identical pixel data.
// A row index outside the image compares as an all-zero row.
func (bm *Bitmap) RowsEqual(y1, y2 int) bool {
	a := bm.line(y1)
	b := bm.line(y2)
	n := (bm.width + 7) >> 3
	switch {
	case a == nil && b == nil:
		return true
	case a == nil:
		return rowZero(b[:n])
	case b == nil:
		return rowZero(a[:n])
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CountPixels returns the number of foreground pixels.
func (bm *Bitmap) CountPixels() int {
	if bm == nil || bm.data == nil {
		return 0
	}
	count := 0
	for y := 0; y < bm.height; y++ {
		line := bm.line(y)
		n := (bm.width + 7) >> 3
		for i := 0; i < n; i++ {
			count += bits.OnesCount8(line[i])
		}
	}
	return count
}

// Centroid returns the mean foreground coordinate. The second return value is
// false when the bitmap holds no foreground pixels.
func (bm *Bitmap) Centroid() (cx, cy float64, ok bool) {
	if bm == nil || bm.data == nil {
		return 0, 0, false
	}
	var sumX, sumY, count int64
	for y := 0; y < bm.height; y++ {
		line := bm.line(y)
		for x := 0; x < bm.width; x++ {
			if line[x>>3]&(1<<(7-(x&7))) != 0 {
				sumX += int64(x)
				sumY += int64(y)
				count++
			}
		}
	}
	if count == 0 {
		return 0, 0, false
	}
	return float64(sumX) / float64(count), float64(sumY) / float64(count), true
}

// SubBitmap returns a newly allocated copy of the requested rectangle.
// Pixels outside the source read as zero.
func (bm *Bitmap) SubBitmap(x, y, w, h int) *Bitmap {
	result := New(w, h)
	if result.data == nil || bm == nil || bm.data == nil {
		return result
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if bm.GetPixel(x+col, y+row) != 0 {
				result.SetPixel(col, row, 1)
			}
		}
	}
	return result
}

// AddBorder returns a copy grown by n zero pixels on every side.
func (bm *Bitmap) AddBorder(n int) *Bitmap {
	if bm == nil || n < 0 {
		return nil
	}
	result := New(bm.width+2*n, bm.height+2*n)
	if result.data == nil {
		return result
	}
	for y := 0; y < bm.height; y++ {
		for x := 0; x < bm.width; x++ {
			if bm.GetPixel(x, y) != 0 {
				result.SetPixel(x+n, y+n, 1)
			}
		}
	}
	return result
}

// AndCountShift counts foreground pixels of tpl whose shifted position
// (x+dx, y+dy) is also foreground in img. Pixels shifted outside img count
// as mismatches.
func AndCountShift(tpl, img *Bitmap, dx, dy int) int {
	if tpl == nil || img == nil {
		return 0
	}
	count := 0
	for y := 0; y < tpl.height; y++ {
		for x := 0; x < tpl.width; x++ {
			if tpl.GetPixel(x, y) != 0 && img.GetPixel(x+dx, y+dy) != 0 {
				count++
			}
		}
	}
	return count
}

// XorCountAt counts mismatching pixels between tpl and the img rectangle
// whose top-left corner is (px, py). Out-of-range img pixels read as zero.
func XorCountAt(tpl, img *Bitmap, px, py int) int {
	if tpl == nil || img == nil {
		return 0
	}
	count := 0
	for y := 0; y < tpl.height; y++ {
		for x := 0; x < tpl.width; x++ {
			if tpl.GetPixel(x, y) != img.GetPixel(px+x, py+y) {
				count++
			}
		}
	}
	return count
}

// Blit ORs src onto bm with its top-left corner at (x, y), clipping at the
// destination boundary.
func (bm *Bitmap) Blit(src *Bitmap, x, y int) {
	if bm == nil || src == nil {
		return
	}
	for row := 0; row < src.height; row++ {
		for col := 0; col < src.width; col++ {
			if src.GetPixel(col, row) != 0 {
				bm.SetPixel(x+col, y+row, 1)
			}
		}
	}
}

// ValidatePadBits confirms that every bit past the image width is zero.
// The arithmetic coders build contexts from raw words, so a stray pad bit
// silently corrupts the output stream rather than failing loudly.
func (bm *Bitmap) ValidatePadBits() error {
	if bm == nil || bm.data == nil {
		return nil
	}
	for y := 0; y < bm.height; y++ {
		line := bm.line(y)
		for x := bm.width; x < bm.stride*8; x++ {
			if line[x>>3]&(1<<(7-(x&7))) != 0 {
				return errors.Errorf("bitmap: nonzero pad bit at row %d", y)
			}
		}
	}
	return nil
}

func (bm *Bitmap) line(y int) []byte {
	if bm == nil || bm.data == nil || y < 0 || y >= bm.height {
		return nil
	}
	start := y * bm.stride
	return bm.data[start : start+bm.stride]
}

func rowZero(row []byte) bool {
	for _, b := range row {
		if b != 0 {
			return false
		}
	}
	return true
}

func alignTo32(v int) int {
	return (v + 31) / 32 * 32
}
