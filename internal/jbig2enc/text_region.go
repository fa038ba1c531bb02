package jbig2enc

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/binimage/gojbig2enc/internal/bitmap"
)

// TextRegionOptions controls strip layout and per-instance refinement.
type TextRegionOptions struct {
	// StripHeight groups instances into horizontal bands; must be 1, 2, 4
	// or 8.
	StripHeight int
	// Refine enables per-instance refinement against the source pixels.
	Refine bool
	// RefineThreshold is the minimum XOR mismatch, in pixels, worth spending
	// a refinement payload on.
	RefineThreshold int
}

// TextRegion is an encoded text region payload plus the header facts the
// segment writer needs.
type TextRegion struct {
	payload      []byte
	numInstances int
	stripHeight  int
	refine       bool
}

// Payload returns the arithmetic-coded text region stream.
func (t *TextRegion) Payload() []byte { return t.payload }

// NumInstances returns the number of placed symbol instances.
func (t *TextRegion) NumInstances() int { return t.numInstances }

// StripHeight returns the strip height the region was encoded with.
func (t *TextRegion) StripHeight() int { return t.stripHeight }

// Refine reports whether the stream carries refinement flags.
func (t *TextRegion) Refine() bool { return t.refine }

// textInstance is one placement resolved to stream terms: strip top, S and T
// coordinates, dictionary ID, width consumed along the strip, and the
// optional refinement payload inputs.
type textInstance struct {
	stripTop int
	s, t     int
	id       int
	width    int

	refine       bool
	glyph        *bitmap.Bitmap
	target       *bitmap.Bitmap
	rdw, rdh     int
	refDX, refDY int
}

// EncodeTextRegion serializes the page's placements as strips of symbol
// references against dict. When refinement is enabled, an instance whose
// glyph still mismatches the page by at least RefineThreshold pixels, and
// whose reference offset is within one pixel horizontally, additionally
// carries a refinement region coding its true source pixels.
func EncodeTextRegion(placements []Placement, classes []*SymbolClass, dict *SymbolDict, page *bitmap.Bitmap, opts TextRegionOptions) (*TextRegion, error) {
	switch opts.StripHeight {
	case 1, 2, 4, 8:
	default:
		return nil, errors.Errorf("jbig2enc: strip height %d, want 1, 2, 4 or 8", opts.StripHeight)
	}
	if dict == nil {
		return nil, errors.New("jbig2enc: nil symbol dictionary for text region")
	}

	insts := make([]textInstance, 0, len(placements))
	for _, p := range placements {
		if p.Class < 0 || p.Class >= len(classes) {
			return nil, errors.Errorf("jbig2enc: placement references unknown class %d", p.Class)
		}
		id, err := dict.ExportIndex(p.Class)
		if err != nil {
			return nil, err
		}
		glyph := classes[p.Class].Glyph
		inst := textInstance{s: p.X, t: p.Y, id: id, width: glyph.Width()}

		if opts.Refine && page != nil {
			refDX := p.X - p.Box.X
			mismatch := bitmap.XorCountAt(glyph, page, p.X, p.Y)
			if refDX >= -1 && refDX <= 1 && mismatch >= opts.RefineThreshold {
				inst.refine = true
				inst.glyph = glyph
				inst.target = page.SubBitmap(p.Box.X, p.Box.Y, p.Box.W, p.Box.H)
				inst.rdw = p.Box.W - glyph.Width()
				inst.rdh = p.Box.H - glyph.Height()
				inst.refDX = refDX
				inst.refDY = p.Y - p.Box.Y
				inst.s, inst.t = p.Box.X, p.Box.Y
				inst.width = p.Box.W
			}
		}
		inst.stripTop = inst.t / opts.StripHeight * opts.StripHeight
		insts = append(insts, inst)
	}
	sort.SliceStable(insts, func(a, b int) bool {
		if insts[a].stripTop != insts[b].stripTop {
			return insts[a].stripTop < insts[b].stripTop
		}
		return insts[a].s < insts[b].s
	})

	coder := NewCoder()
	codeLen := dict.SymCodeLen()
	if err := coder.EncodeInt(KindIADT, 0); err != nil {
		return nil, err
	}

	prevStripTop := 0
	firstS := 0
	i := 0
	for i < len(insts) {
		stripTop := insts[i].stripTop
		if err := coder.EncodeInt(KindIADT, (stripTop-prevStripTop)/opts.StripHeight); err != nil {
			return nil, err
		}
		prevStripTop = stripTop

		curs := 0
		for first := true; i < len(insts) && insts[i].stripTop == stripTop; i++ {
			inst := &insts[i]
			if first {
				if err := coder.EncodeInt(KindIAFS, inst.s-firstS); err != nil {
					return nil, err
				}
				firstS = inst.s
				first = false
			} else {
				// The decoder advances past each glyph before reading the
				// next delta, so the delta is measured from the previous
				// instance's right edge.
				if err := coder.EncodeInt(KindIADS, inst.s-curs); err != nil {
					return nil, err
				}
			}
			if opts.StripHeight != 1 {
				if err := coder.EncodeInt(KindIAIT, inst.t-stripTop); err != nil {
					return nil, err
				}
			}
			coder.EncodeIAID(codeLen, uint32(inst.id))
			if opts.Refine {
				if err := encodeInstanceRefinement(coder, inst); err != nil {
					return nil, err
				}
			}
			curs = inst.s + inst.width - 1
		}
		coder.EncodeOOB(KindIADS)
	}
	coder.Flush()

	return &TextRegion{
		payload:      coder.Bytes(),
		numInstances: len(insts),
		stripHeight:  opts.StripHeight,
		refine:       opts.Refine,
	}, nil
}

func encodeInstanceRefinement(coder *Coder, inst *textInstance) error {
	if !inst.refine {
		return coder.EncodeInt(KindIARI, 0)
	}
	if err := coder.EncodeInt(KindIARI, 1); err != nil {
		return err
	}
	if err := coder.EncodeInt(KindIARDW, inst.rdw); err != nil {
		return err
	}
	if err := coder.EncodeInt(KindIARDH, inst.rdh); err != nil {
		return err
	}
	// The decoder reconstructs the reference offset as rdx + rdw/2 with
	// flooring division, so the halved deltas are subtracted out here.
	if err := coder.EncodeInt(KindIARDX, inst.refDX-floorHalf(inst.rdw)); err != nil {
		return err
	}
	if err := coder.EncodeInt(KindIARDY, inst.refDY-floorHalf(inst.rdh)); err != nil {
		return err
	}
	return coder.EncodeRefine(inst.target, inst.glyph, inst.refDX, inst.refDY)
}

func floorHalf(v int) int {
	return v >> 1
}
