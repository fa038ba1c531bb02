package jbig2enc

import (
	"testing"

	"github.com/binimage/gojbig2enc/internal/bitmap"
)

func randomBitmap(w, h int, seed uint32) *bitmap.Bitmap {
	bm := bitmap.New(w, h)
	rng := seed
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			rng = rng*1664525 + 1013904223
			if rng>>16&7 == 0 {
				bm.SetPixel(x, y, 1)
			}
		}
	}
	return bm
}

func roundTripGeneric(t *testing.T, bm *bitmap.Bitmap, tpgdon bool) {
	t.Helper()
	e := NewCoder()
	if err := e.EncodeGeneric(bm, tpgdon); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	e.Flush()

	dec := newTestArithDecoder(e.Bytes())
	contexts := make([]testArithContext, genericContextSize)
	got, err := decodeGenericRegion(dec, contexts, bm.Width(), bm.Height(), tpgdon)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.Equal(bm) {
		t.Fatalf("Decoded %dx%d bitmap differs from source (tpgdon=%v)", bm.Width(), bm.Height(), tpgdon)
	}
}

func TestGenericRoundTrip(t *testing.T) {
	sizes := []struct{ w, h int }{
		{1, 1}, {8, 8}, {13, 7}, {31, 9}, {32, 32}, {33, 5}, {64, 20}, {100, 3},
	}
	for i, s := range sizes {
		roundTripGeneric(t, randomBitmap(s.w, s.h, uint32(i+1)), false)
	}
}

func TestGenericRoundTripTPGDON(t *testing.T) {
	// Runs of identical rows exercise the typical prediction path.
	bm := bitmap.New(40, 24)
	for y := 0; y < 24; y++ {
		if y/4%2 == 0 {
			for x := 3; x < 30; x += 2 {
				bm.SetPixel(x, y, 1)
			}
		}
	}
	roundTripGeneric(t, bm, true)
	roundTripGeneric(t, randomBitmap(40, 24, 99), true)
}

func TestGenericEmpty(t *testing.T) {
	e := NewCoder()
	if err := e.EncodeGeneric(bitmap.New(0, 0), false); err != nil {
		t.Fatalf("Expected empty bitmap to encode, got %v", err)
	}
	e.Flush()
	if e.Size() == 0 {
		t.Error("Expected a terminated stream even for an empty region")
	}
}

func TestGenericRejectsDirtyPadBits(t *testing.T) {
	bm := bitmap.New(9, 2)
	bm.SetPixel(0, 0, 1)
	bm.Data()[1] |= 0x40
	e := NewCoder()
	if err := e.EncodeGeneric(bm, false); err == nil {
		t.Error("Expected an error for dirty pad bits")
	}
}

func TestRefineRoundTrip(t *testing.T) {
	ref := bitmap.New(6, 6)
	for i := 1; i < 5; i++ {
		ref.SetPixel(i, 1, 1)
		ref.SetPixel(i, 4, 1)
		ref.SetPixel(1, i, 1)
	}
	cases := []struct{ refDX, refDY int }{{0, 0}, {1, 0}, {-1, 1}, {0, -1}}
	for _, c := range cases {
		target := ref.Clone()
		target.SetPixel(3, 3, 1)
		target.SetPixel(4, 4, 0)

		e := NewCoder()
		if err := e.EncodeRefine(target, ref, c.refDX, c.refDY); err != nil {
			t.Fatalf("refDX=%d refDY=%d: encode failed: %v", c.refDX, c.refDY, err)
		}
		e.Flush()

		dec := newTestArithDecoder(e.Bytes())
		contexts := make([]testArithContext, refineContextSize)
		got, err := decodeRefineRegion(dec, contexts, ref, target.Width(), target.Height(), c.refDX, c.refDY)
		if err != nil {
			t.Fatalf("refDX=%d refDY=%d: decode failed: %v", c.refDX, c.refDY, err)
		}
		if !got.Equal(target) {
			t.Fatalf("refDX=%d refDY=%d: decoded bitmap differs from target", c.refDX, c.refDY)
		}
	}
}

func TestRefineLargerTarget(t *testing.T) {
	// Reference narrower and shorter than the target, as produced when a
	// symbol instance outgrows its class exemplar.
	ref := randomBitmap(7, 5, 7)
	target := bitmap.New(9, 7)
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			target.SetPixel(x+1, y+1, int(ref.GetPixel(x, y)))
		}
	}
	target.SetPixel(0, 0, 1)
	target.SetPixel(8, 6, 1)

	e := NewCoder()
	if err := e.EncodeRefine(target, ref, 1, 1); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	e.Flush()

	dec := newTestArithDecoder(e.Bytes())
	contexts := make([]testArithContext, refineContextSize)
	got, err := decodeRefineRegion(dec, contexts, ref, 9, 7, 1, 1)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.Equal(target) {
		t.Fatal("Decoded bitmap differs from target")
	}
}
