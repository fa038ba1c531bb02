package jbig2enc

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/binimage/gojbig2enc/internal/bitmap"
)

// classBorder is the zero pad kept around every exemplar so that dilation
// during comparison never clips.
const classBorder = 6

// ClassifierOptions selects the similarity test and its thresholds.
type ClassifierOptions struct {
	// Threshold is the base correlation acceptance level, valid 0.4 to 0.98.
	Threshold float64
	// WeightFactor in [0, 1] raises the acceptance bar for heavy ink
	// coverage: effective = Threshold + WeightFactor*(1-Threshold)*coverage.
	WeightFactor float64

	// RankHausdorff switches from the correlation test to a rank-thresholded
	// dilation containment test.
	RankHausdorff bool
	// HausdorffRadius is the structuring-element half width, 1 to classBorder.
	HausdorffRadius int
	// HausdorffRank is the fraction of pixels that must be covered both
	// ways, valid (0, 1].
	HausdorffRank float64
}

// DefaultClassifierOptions returns the correlation test at its customary
// operating point.
func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{Threshold: 0.85, WeightFactor: 0.5}
}

// SymbolClass is one shape cluster: the representative glyph, its padded
// exemplar, and the shape statistics used during matching.
type SymbolClass struct {
	Glyph    *bitmap.Bitmap
	Exemplar *bitmap.Bitmap
	Area     int
	cx, cy   float64
}

// Placement assigns one connected component to a class and fixes the aligned
// top-left page position where the class glyph stands in for it. Box is the
// component's original bounding box, kept for pixel-exact refinement.
type Placement struct {
	Class int
	X, Y  int
	Box   bitmap.Box
}

// Classifier clusters connected components into symbol classes across pages.
// The class set grows monotonically; placements are recorded per page.
type Classifier struct {
	opts    ClassifierOptions
	classes []*SymbolClass
	buckets map[int][]int // width*height of the glyph -> class indices
	pages   [][]Placement
}

// NewClassifier validates opts and returns an empty classifier.
func NewClassifier(opts ClassifierOptions) (*Classifier, error) {
	if opts.RankHausdorff {
		if opts.HausdorffRadius < 1 || opts.HausdorffRadius > classBorder {
			return nil, errors.Errorf("jbig2enc: hausdorff radius %d out of range [1, %d]", opts.HausdorffRadius, classBorder)
		}
		if opts.HausdorffRank <= 0 || opts.HausdorffRank > 1 {
			return nil, errors.Errorf("jbig2enc: hausdorff rank %v out of range (0, 1]", opts.HausdorffRank)
		}
	} else {
		if opts.Threshold < 0.4 || opts.Threshold > 0.98 {
			return nil, errors.Errorf("jbig2enc: classification threshold %v out of range [0.4, 0.98]", opts.Threshold)
		}
		if opts.WeightFactor < 0 || opts.WeightFactor > 1 {
			return nil, errors.Errorf("jbig2enc: weight factor %v out of range [0, 1]", opts.WeightFactor)
		}
	}
	return &Classifier{opts: opts, buckets: make(map[int][]int)}, nil
}

// Classes returns the accumulated class set in creation order.
func (c *Classifier) Classes() []*SymbolClass { return c.classes }

// Pages returns the number of classified pages.
func (c *Classifier) Pages() int { return len(c.pages) }

// Page returns the placements recorded for page i, in component raster order.
func (c *Classifier) Page(i int) []Placement { return c.pages[i] }

// AddPage extracts the page's connected components and classifies each one,
// growing the class set as needed. It returns the page's placements, which
// are also retained for later serialization. A page without foreground
// pixels yields an empty placement list.
func (c *Classifier) AddPage(page *bitmap.Bitmap) ([]Placement, error) {
	if page == nil {
		return nil, errors.New("jbig2enc: nil page bitmap")
	}
	if err := page.ValidatePadBits(); err != nil {
		return nil, errors.Wrap(err, "jbig2enc: classifier input")
	}

	comps := bitmap.ConnComp(page)
	placements := make([]Placement, 0, len(comps))
	for _, comp := range comps {
		placements = append(placements, c.classify(comp, page))
	}
	c.pages = append(c.pages, placements)
	return placements, nil
}

func (c *Classifier) classify(comp *bitmap.Component, page *bitmap.Bitmap) Placement {
	w, h := comp.Bitmap.Width(), comp.Bitmap.Height()
	area := comp.Bitmap.CountPixels()
	cx, cy, _ := comp.Bitmap.Centroid()

	for _, probe := range probeOrder(w, h) {
		for _, idx := range c.buckets[probe.w*probe.h] {
			cls := c.classes[idx]
			if cls.Glyph.Width() != probe.w || cls.Glyph.Height() != probe.h {
				continue
			}
			dx := int(math.Round(cx - cls.cx))
			dy := int(math.Round(cy - cls.cy))
			if !c.similar(cls, comp.Bitmap, area, dx, dy) {
				continue
			}
			px, py := alignPlacement(cls.Glyph, page, comp.Box.X+dx, comp.Box.Y+dy)
			return Placement{Class: idx, X: px, Y: py, Box: comp.Box}
		}
	}

	idx := len(c.classes)
	cls := &SymbolClass{
		Glyph:    comp.Bitmap.Clone(),
		Exemplar: comp.Bitmap.AddBorder(classBorder),
		Area:     area,
		cx:       cx,
		cy:       cy,
	}
	c.classes = append(c.classes, cls)
	c.buckets[w*h] = append(c.buckets[w*h], idx)
	return Placement{Class: idx, X: comp.Box.X, Y: comp.Box.Y, Box: comp.Box}
}

// similar runs the configured similarity test between a candidate class and
// an instance bitmap, with the class shifted by (dx, dy) into instance
// coordinates.
func (c *Classifier) similar(cls *SymbolClass, inst *bitmap.Bitmap, instArea, dx, dy int) bool {
	if cls.Area == 0 || instArea == 0 {
		return false
	}
	if c.opts.RankHausdorff {
		return c.rankHausdorff(cls, inst, instArea, dx, dy)
	}
	and := bitmap.AndCountShift(cls.Glyph, inst, dx, dy)
	score := float64(and) / math.Sqrt(float64(cls.Area)*float64(instArea))
	coverage := float64(cls.Area) / float64(cls.Glyph.Width()*cls.Glyph.Height())
	effective := c.opts.Threshold + c.opts.WeightFactor*(1-c.opts.Threshold)*coverage
	return score >= effective
}

// rankHausdorff accepts when each shape, dilated by the configured radius,
// covers at least the rank fraction of the other shape's pixels.
func (c *Classifier) rankHausdorff(cls *SymbolClass, inst *bitmap.Bitmap, instArea, dx, dy int) bool {
	r := c.opts.HausdorffRadius
	allow := 1 - c.opts.HausdorffRank

	dilCls := cls.Exemplar.Dilate(r)
	if float64(bitmap.UncoveredCount(inst, dilCls, classBorder-dx, classBorder-dy)) > allow*float64(instArea) {
		return false
	}
	dilInst := inst.AddBorder(r).Dilate(r)
	return float64(bitmap.UncoveredCount(cls.Glyph, dilInst, dx+r, dy+r)) <= allow*float64(cls.Area)
}

// alignPlacement refines the centroid-derived position (x0, y0) by an
// exhaustive one-pixel search, minimizing the XOR mismatch between the glyph
// and the page. Ties keep the first offset in raster order of the search.
func alignPlacement(glyph, page *bitmap.Bitmap, x0, y0 int) (int, int) {
	bestX, bestY := x0-1, y0-1
	best := bitmap.XorCountAt(glyph, page, bestX, bestY)
	for ddy := -1; ddy <= 1; ddy++ {
		for ddx := -1; ddx <= 1; ddx++ {
			if ddy == -1 && ddx == -1 {
				continue
			}
			n := bitmap.XorCountAt(glyph, page, x0+ddx, y0+ddy)
			if n < best {
				best = n
				bestX, bestY = x0+ddx, y0+ddy
			}
		}
	}
	return bestX, bestY
}

type probe struct{ w, h int }

// probeOrder lists the candidate glyph dimensions within two pixels of
// (w, h), smallest candidate area first, ties in raster order of the offset
// pair. The first class passing the similarity test in this order wins, even
// if a later candidate would score higher.
func probeOrder(w, h int) []probe {
	type entry struct {
		probe
		dw, dh int
	}
	entries := make([]entry, 0, 25)
	for dh := -2; dh <= 2; dh++ {
		for dw := -2; dw <= 2; dw++ {
			pw, ph := w+dw, h+dh
			if pw < 1 || ph < 1 {
				continue
			}
			entries = append(entries, entry{probe{pw, ph}, dw, dh})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].w*entries[i].h < entries[j].w*entries[j].h
	})
	probes := make([]probe, len(entries))
	for i, e := range entries {
		probes[i] = e.probe
	}
	return probes
}
