package jbig2enc

import (
	"bytes"
	"encoding/binary"
)

// Segment types emitted by the encoder.
const (
	segmentTypeSymbolDict             = 0
	segmentTypeTextRegionImmediate    = 4
	segmentTypeGenericRegionImmediate = 38
	segmentTypePageInfo               = 48
	segmentTypeEndOfPage              = 49
	segmentTypeEndOfFile              = 51
)

const segmentFlagLongPageAssociation = 0x40

var fileSignature = []byte{0x97, 0x4a, 0x42, 0x32, 0x0d, 0x0a, 0x1a, 0x0a}

// SegmentWriter serializes segment headers and payloads in file order.
// All multi-byte header fields are big-endian.
type SegmentWriter struct {
	buf  bytes.Buffer
	next uint32
}

// NewSegmentWriter returns a writer whose first segment gets the given
// number. Sharing one running number across the globals and page streams
// keeps cross-stream references valid in PDF mode.
func NewSegmentWriter(firstNumber uint32) *SegmentWriter {
	return &SegmentWriter{next: firstNumber}
}

// Bytes returns the serialized stream.
func (w *SegmentWriter) Bytes() []byte { return w.buf.Bytes() }

// NextNumber returns the number the next written segment will get.
func (w *SegmentWriter) NextNumber() uint32 { return w.next }

// WriteFileHeader emits the fixed signature, the sequential-organization
// flag byte, and the page count.
func (w *SegmentWriter) WriteFileHeader(numPages int) {
	w.buf.Write(fileSignature)
	w.buf.WriteByte(0x01)
	w.writeUint32(uint32(numPages))
}

// writeHeader emits one segment header and returns the segment's number.
func (w *SegmentWriter) writeHeader(typ uint8, page uint32, refs []uint32, dataLength int) uint32 {
	number := w.next
	w.next++

	w.writeUint32(number)
	flags := typ
	if page > 0xff {
		flags |= segmentFlagLongPageAssociation
	}
	w.buf.WriteByte(flags)
	w.buf.WriteByte(byte(len(refs)) << 5)
	for _, ref := range refs {
		switch {
		case number > 65536:
			w.writeUint32(ref)
		case number > 256:
			w.writeUint16(uint16(ref))
		default:
			w.buf.WriteByte(byte(ref))
		}
	}
	if page > 0xff {
		w.writeUint32(page)
	} else {
		w.buf.WriteByte(byte(page))
	}
	w.writeUint32(uint32(dataLength))
	return number
}

// WritePageInfo opens a page: dimensions, resolution, the lossless flag and
// an unstriped stripe field.
func (w *SegmentWriter) WritePageInfo(page uint32, width, height, xres, yres int, lossless bool) uint32 {
	const payloadLen = 4*4 + 1 + 2
	number := w.writeHeader(segmentTypePageInfo, page, nil, payloadLen)
	w.writeUint32(uint32(width))
	w.writeUint32(uint32(height))
	w.writeUint32(uint32(xres))
	w.writeUint32(uint32(yres))
	var flags byte
	if lossless {
		flags |= 0x01
	}
	w.buf.WriteByte(flags)
	w.writeUint16(0)
	return number
}

// WriteGenericRegion emits an immediate generic region composed onto the
// page at (x, y): region info, the template-0 flag byte, the adaptive
// template offsets, and the arithmetic-coded bitstream.
func (w *SegmentWriter) WriteGenericRegion(page uint32, width, height, x, y int, tpgdon bool, payload []byte) uint32 {
	dataLen := 17 + 1 + len(genericATPixels) + len(payload)
	number := w.writeHeader(segmentTypeGenericRegionImmediate, page, nil, dataLen)
	w.writeRegionInfo(width, height, x, y)
	var flags byte
	if tpgdon {
		flags |= 0x08
	}
	w.buf.WriteByte(flags)
	for _, at := range genericATPixels {
		w.buf.WriteByte(byte(at))
	}
	w.buf.Write(payload)
	return number
}

// WriteSymbolDict emits a symbol dictionary segment and returns its number
// for later reference by text regions.
func (w *SegmentWriter) WriteSymbolDict(page uint32, dict *SymbolDict) uint32 {
	payload := dict.Payload()
	dataLen := 2 + len(genericATPixels) + 4 + 4 + len(payload)
	number := w.writeHeader(segmentTypeSymbolDict, page, nil, dataLen)
	w.writeUint16(0) // arithmetic, template 0, no refinement
	for _, at := range genericATPixels {
		w.buf.WriteByte(byte(at))
	}
	w.writeUint32(uint32(dict.NumSymbols()))
	w.writeUint32(uint32(dict.NumSymbols()))
	w.buf.Write(payload)
	return number
}

// WriteTextRegion emits an immediate text region referring to dictSeg.
func (w *SegmentWriter) WriteTextRegion(page uint32, region *TextRegion, width, height, x, y int, dictSeg uint32) uint32 {
	payload := region.Payload()
	dataLen := 17 + 2 + 4 + len(payload)
	if region.Refine() {
		dataLen += len(refineATPixels)
	}
	number := w.writeHeader(segmentTypeTextRegionImmediate, page, []uint32{dictSeg}, dataLen)
	w.writeRegionInfo(width, height, x, y)

	var flags uint16
	if region.Refine() {
		flags |= 0x0002
	}
	flags |= uint16(log2Strips(region.StripHeight())) << 2
	flags |= 1 << 4 // reference corner TOPLEFT
	w.writeUint16(flags)
	if region.Refine() {
		for _, at := range refineATPixels {
			w.buf.WriteByte(byte(at))
		}
	}
	w.writeUint32(uint32(region.NumInstances()))
	w.buf.Write(payload)
	return number
}

// WriteEndOfPage closes a page.
func (w *SegmentWriter) WriteEndOfPage(page uint32) uint32 {
	return w.writeHeader(segmentTypeEndOfPage, page, nil, 0)
}

// WriteEndOfFile closes the file.
func (w *SegmentWriter) WriteEndOfFile() uint32 {
	return w.writeHeader(segmentTypeEndOfFile, 0, nil, 0)
}

func (w *SegmentWriter) writeRegionInfo(width, height, x, y int) {
	w.writeUint32(uint32(width))
	w.writeUint32(uint32(height))
	w.writeUint32(uint32(x))
	w.writeUint32(uint32(y))
	w.buf.WriteByte(0) // external combination operator OR
}

func (w *SegmentWriter) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *SegmentWriter) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func log2Strips(stripHeight int) int {
	n := 0
	for 1<<n < stripHeight {
		n++
	}
	return n
}
