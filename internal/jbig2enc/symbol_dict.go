package jbig2enc

import (
	"sort"

	"github.com/pkg/errors"
)

// SymbolDict holds an encoded symbol dictionary payload together with the
// class-to-export-order mapping the text region encoder needs to emit IDs.
type SymbolDict struct {
	payload []byte
	// exportOrder maps a classifier class index to the symbol's position in
	// the dictionary's decode order.
	exportOrder []int
	numSymbols  int
}

// Payload returns the arithmetic-coded dictionary stream.
func (d *SymbolDict) Payload() []byte { return d.payload }

// NumSymbols returns the number of exported symbols.
func (d *SymbolDict) NumSymbols() int { return d.numSymbols }

// ExportIndex returns the dictionary position of the given class index.
func (d *SymbolDict) ExportIndex(class int) (int, error) {
	if class < 0 || class >= len(d.exportOrder) {
		return 0, errors.Errorf("jbig2enc: class %d not in dictionary of %d symbols", class, len(d.exportOrder))
	}
	return d.exportOrder[class], nil
}

// SymCodeLen returns the fixed ID bit width for this dictionary.
func (d *SymbolDict) SymCodeLen() uint8 { return SymCodeLen(d.numSymbols) }

// EncodeSymbolDict serializes the class set as a dictionary of height
// classes: exemplars sorted by height then width (stable, so equal shapes
// keep creation order), one height delta per class, one width delta plus
// generic-coded bitmap per symbol, an out-of-band marker closing each height
// class, and a trailing export-all run pair.
func EncodeSymbolDict(classes []*SymbolClass) (*SymbolDict, error) {
	if len(classes) == 0 {
		return nil, errors.New("jbig2enc: empty class set for symbol dictionary")
	}

	order := make([]int, len(classes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := classes[order[a]], classes[order[b]]
		if ca.Glyph.Height() != cb.Glyph.Height() {
			return ca.Glyph.Height() < cb.Glyph.Height()
		}
		return ca.Glyph.Width() < cb.Glyph.Width()
	})

	coder := NewCoder()
	prevHeight := 0
	pos := 0
	for pos < len(order) {
		height := classes[order[pos]].Glyph.Height()
		if err := coder.EncodeInt(KindIADH, height-prevHeight); err != nil {
			return nil, err
		}
		prevHeight = height

		prevWidth := 0
		for pos < len(order) && classes[order[pos]].Glyph.Height() == height {
			glyph := classes[order[pos]].Glyph
			if err := coder.EncodeInt(KindIADW, glyph.Width()-prevWidth); err != nil {
				return nil, err
			}
			prevWidth = glyph.Width()
			if err := coder.EncodeGeneric(glyph, false); err != nil {
				return nil, err
			}
			pos++
		}
		coder.EncodeOOB(KindIADW)
	}

	// Export every symbol: a zero-length not-exported run, then one run
	// covering the whole set.
	if err := coder.EncodeInt(KindIAEX, 0); err != nil {
		return nil, err
	}
	if err := coder.EncodeInt(KindIAEX, len(order)); err != nil {
		return nil, err
	}
	coder.Flush()

	exportOrder := make([]int, len(classes))
	for exported, class := range order {
		exportOrder[class] = exported
	}
	return &SymbolDict{
		payload:     coder.Bytes(),
		exportOrder: exportOrder,
		numSymbols:  len(order),
	}, nil
}
