package bitmap

// Box is a pixel-aligned bounding rectangle.
type Box struct {
	X, Y, W, H int
}

// Component is one 8-connected cluster of foreground pixels, cut out of its
// source page: Bitmap holds just the cluster's pixels, Box locates it on the
// page.
type Component struct {
	Bitmap *Bitmap
	Box    Box
}

// ConnComp extracts the 8-connected components of bm in raster order of each
// component's first (topmost, then leftmost) pixel. A page without foreground
// pixels yields an empty slice.
func ConnComp(bm *Bitmap) []*Component {
	if bm == nil || bm.data == nil {
		return nil
	}
	w, h := bm.width, bm.height
	visited := make([]bool, w*h)
	var comps []*Component

	type point struct{ x, y int }
	var stack []point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if visited[y*w+x] || bm.GetPixel(x, y) == 0 {
				continue
			}
			minX, minY, maxX, maxY := x, y, x, y
			var cluster []point
			stack = append(stack[:0], point{x, y})
			visited[y*w+x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				cluster = append(cluster, p)
				if p.x < minX {
					minX = p.x
				}
				if p.x > maxX {
					maxX = p.x
				}
				if p.y < minY {
					minY = p.y
				}
				if p.y > maxY {
					maxY = p.y
				}
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.x+dx, p.y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							continue
						}
						if visited[ny*w+nx] || bm.GetPixel(nx, ny) == 0 {
							continue
						}
						visited[ny*w+nx] = true
						stack = append(stack, point{nx, ny})
					}
				}
			}
			box := Box{X: minX, Y: minY, W: maxX - minX + 1, H: maxY - minY + 1}
			comp := New(box.W, box.H)
			for _, p := range cluster {
				comp.SetPixel(p.x-box.X, p.y-box.Y, 1)
			}
			comps = append(comps, &Component{Bitmap: comp, Box: box})
		}
	}
	return comps
}
