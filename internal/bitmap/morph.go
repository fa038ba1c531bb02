package bitmap

// Dilate returns bm dilated by a square structuring element of half-width
// radius: an output pixel is set when any input pixel within Chebyshev
// distance radius is set. The result keeps the input dimensions, so callers
// that must not clip should pad first (AddBorder).
func (bm *Bitmap) Dilate(radius int) *Bitmap {
	if bm == nil || bm.data == nil || radius < 0 {
		return nil
	}
	if radius == 0 {
		return bm.Clone()
	}
	result := New(bm.width, bm.height)
	if result.data == nil {
		return result
	}
	for y := 0; y < bm.height; y++ {
		for x := 0; x < bm.width; x++ {
			if bm.GetPixel(x, y) == 0 {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					result.SetPixel(x+dx, y+dy, 1)
				}
			}
		}
	}
	return result
}

// UncoveredCount counts foreground pixels of bm at positions where cover,
// sampled with the given shift, is background. It is the erosion-style
// containment measure used by the rank Hausdorff comparison.
func UncoveredCount(bm, cover *Bitmap, dx, dy int) int {
	if bm == nil {
		return 0
	}
	count := 0
	for y := 0; y < bm.height; y++ {
		for x := 0; x < bm.width; x++ {
			if bm.GetPixel(x, y) != 0 && cover.GetPixel(x+dx, y+dy) == 0 {
				count++
			}
		}
	}
	return count
}
