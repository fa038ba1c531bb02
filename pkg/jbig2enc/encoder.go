// Package jbig2enc compresses bilevel document images into JBIG2 streams,
// either as standalone files or as globals/page pairs for PDF embedding.
package jbig2enc

import (
	"github.com/pkg/errors"

	"github.com/binimage/gojbig2enc/internal/bitmap"
	enc "github.com/binimage/gojbig2enc/internal/jbig2enc"
)

// Options configures JBIG2 encoding behavior. The zero value is completed
// with the customary defaults by New.
type Options struct {
	// Threshold is the symbol classification threshold, valid 0.4 to 0.9.
	Threshold float64
	// WeightFactor biases classification for heavy ink coverage, 0 to 1.
	WeightFactor float64
	// RankHausdorff selects the rank Hausdorff similarity test instead of
	// correlation.
	RankHausdorff bool
	// HausdorffRadius is the dilation radius for the rank Hausdorff test.
	HausdorffRadius int
	// HausdorffRank is the required coverage fraction for the rank
	// Hausdorff test.
	HausdorffRank float64

	// StripHeight groups text region instances into bands of 1, 2, 4 or 8
	// rows.
	StripHeight int
	// Refine encodes pixel-exact corrections for placements that still
	// mismatch the source.
	Refine bool
	// RefineThreshold is the minimum mismatch pixel count worth refining.
	RefineThreshold int

	// DupLineRemoval enables typical prediction in generic regions.
	DupLineRemoval bool
	// PDFMode produces headerless globals and per-page streams for PDF
	// embedding instead of a standalone file.
	PDFMode bool
	// FullHeaders wraps output in a JBIG2 file header and end-of-file
	// segment. Mutually exclusive with PDFMode.
	FullHeaders bool

	// XRes and YRes are recorded in the page info segments, in dpi.
	XRes, YRes int
}

// Encoder accumulates pages, classifies their symbols into one shared
// dictionary, and serializes the result. Pages are encoded in the order they
// were added; the same input sequence yields byte-identical output.
type Encoder struct {
	opts       Options
	classifier *enc.Classifier
	pages      []*bitmap.Bitmap
	built      bool
	dict       *enc.SymbolDict
	globals    []byte
	dictSeg    uint32
	nextSeg    uint32
}

// New validates opts and returns an empty encoder.
func New(opts Options) (*Encoder, error) {
	if opts.PDFMode && opts.FullHeaders {
		return nil, errors.New("jbig2enc: PDFMode and FullHeaders are mutually exclusive")
	}
	if opts.Threshold == 0 {
		opts.Threshold = 0.85
	}
	if opts.Threshold < 0.4 || opts.Threshold > 0.9 {
		return nil, errors.Errorf("jbig2enc: threshold %v out of range [0.4, 0.9]", opts.Threshold)
	}
	if opts.WeightFactor == 0 {
		opts.WeightFactor = 0.5
	}
	if opts.RankHausdorff {
		if opts.HausdorffRadius == 0 {
			opts.HausdorffRadius = 1
		}
		if opts.HausdorffRank == 0 {
			opts.HausdorffRank = 0.97
		}
	}
	if opts.StripHeight == 0 {
		opts.StripHeight = 1
	}
	if opts.Refine && opts.RefineThreshold == 0 {
		opts.RefineThreshold = 10
	}

	classifier, err := enc.NewClassifier(enc.ClassifierOptions{
		Threshold:       opts.Threshold,
		WeightFactor:    opts.WeightFactor,
		RankHausdorff:   opts.RankHausdorff,
		HausdorffRadius: opts.HausdorffRadius,
		HausdorffRank:   opts.HausdorffRank,
	})
	if err != nil {
		return nil, err
	}
	return &Encoder{opts: opts, classifier: classifier}, nil
}

// AddPage classifies one page's connected components into the shared class
// set. The bitmap is retained until the encoder is serialized.
func (e *Encoder) AddPage(bm *bitmap.Bitmap) error {
	if e.built {
		return errors.New("jbig2enc: cannot add pages after encoding")
	}
	if _, err := e.classifier.AddPage(bm); err != nil {
		return err
	}
	e.pages = append(e.pages, bm)
	return nil
}

// NumPages returns the number of pages added so far.
func (e *Encoder) NumPages() int { return len(e.pages) }

// Encode serializes all added pages as one standalone symbol-coded stream:
// the shared symbol dictionary followed by a page info and text region pair
// per page. With FullHeaders set the stream carries a file header and
// end-of-page and end-of-file segments.
func (e *Encoder) Encode() ([]byte, error) {
	if e.opts.PDFMode {
		return nil, errors.New("jbig2enc: use Globals and Page in PDF mode")
	}
	if len(e.pages) == 0 {
		return nil, errors.New("jbig2enc: no pages added")
	}
	if err := e.build(); err != nil {
		return nil, err
	}

	w := enc.NewSegmentWriter(1)
	if e.opts.FullHeaders {
		w.WriteFileHeader(len(e.pages))
	}
	var dictSeg uint32
	if e.dict != nil {
		dictSeg = w.WriteSymbolDict(0, e.dict)
	}
	for i, page := range e.pages {
		pageNum := uint32(i + 1)
		w.WritePageInfo(pageNum, page.Width(), page.Height(), e.opts.XRes, e.opts.YRes, false)
		if e.dict != nil {
			region, err := e.encodePageText(i)
			if err != nil {
				return nil, err
			}
			w.WriteTextRegion(pageNum, region, page.Width(), page.Height(), 0, 0, dictSeg)
		}
		if e.opts.FullHeaders {
			w.WriteEndOfPage(pageNum)
		}
	}
	if e.opts.FullHeaders {
		w.WriteEndOfFile()
	}
	return w.Bytes(), nil
}

// Globals returns the shared symbol dictionary stream for PDF embedding.
func (e *Encoder) Globals() ([]byte, error) {
	if !e.opts.PDFMode {
		return nil, errors.New("jbig2enc: Globals requires PDFMode")
	}
	if err := e.build(); err != nil {
		return nil, err
	}
	return e.globals, nil
}

// Page returns the headerless stream for page i, referring to the globals
// dictionary. Segment numbers continue across the globals and page streams.
func (e *Encoder) Page(i int) ([]byte, error) {
	if !e.opts.PDFMode {
		return nil, errors.New("jbig2enc: Page requires PDFMode")
	}
	if i < 0 || i >= len(e.pages) {
		return nil, errors.Errorf("jbig2enc: page %d out of range", i)
	}
	if err := e.build(); err != nil {
		return nil, err
	}

	page := e.pages[i]
	w := enc.NewSegmentWriter(e.nextSeg + uint32(i)*2)
	pageNum := uint32(i + 1)
	w.WritePageInfo(pageNum, page.Width(), page.Height(), e.opts.XRes, e.opts.YRes, false)
	if e.dict != nil {
		region, err := e.encodePageText(i)
		if err != nil {
			return nil, err
		}
		w.WriteTextRegion(pageNum, region, page.Width(), page.Height(), 0, 0, e.dictSeg)
	}
	return w.Bytes(), nil
}

// EncodeGeneric serializes a single page as one lossless generic region,
// bypassing classification. The encoder's page set is not touched.
func (e *Encoder) EncodeGeneric(bm *bitmap.Bitmap) ([]byte, error) {
	if bm == nil {
		return nil, errors.New("jbig2enc: nil bitmap")
	}
	coder := enc.NewCoder()
	if err := coder.EncodeGeneric(bm, e.opts.DupLineRemoval); err != nil {
		return nil, err
	}
	coder.Flush()

	w := enc.NewSegmentWriter(1)
	if e.opts.FullHeaders {
		w.WriteFileHeader(1)
	}
	w.WritePageInfo(1, bm.Width(), bm.Height(), e.opts.XRes, e.opts.YRes, true)
	w.WriteGenericRegion(1, bm.Width(), bm.Height(), 0, 0, e.opts.DupLineRemoval, coder.Bytes())
	if e.opts.FullHeaders {
		w.WriteEndOfPage(1)
		w.WriteEndOfFile()
	}
	return w.Bytes(), nil
}

// build encodes the shared dictionary once all pages are classified.
func (e *Encoder) build() error {
	if e.built {
		return nil
	}
	classes := e.classifier.Classes()
	if len(classes) > 0 {
		dict, err := enc.EncodeSymbolDict(classes)
		if err != nil {
			return err
		}
		e.dict = dict
	}
	if e.opts.PDFMode {
		w := enc.NewSegmentWriter(1)
		if e.dict != nil {
			e.dictSeg = w.WriteSymbolDict(0, e.dict)
		}
		e.globals = w.Bytes()
		e.nextSeg = w.NextNumber()
	}
	e.built = true
	return nil
}

func (e *Encoder) encodePageText(i int) (*enc.TextRegion, error) {
	return enc.EncodeTextRegion(e.classifier.Page(i), e.classifier.Classes(), e.dict, e.pages[i], enc.TextRegionOptions{
		StripHeight:     e.opts.StripHeight,
		Refine:          e.opts.Refine,
		RefineThreshold: e.opts.RefineThreshold,
	})
}
