package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/binimage/gojbig2enc/internal/bitmap"
	"github.com/binimage/gojbig2enc/pkg/jbig2enc"
)

const (
	exitBadUsage    = 1
	exitUnreadable  = 2
	exitUnsupported = 3
)

func main() {
	var (
		basename  = flag.String("b", "output", "Output file basename")
		dupLine   = flag.Bool("d", false, "Remove duplicate lines (typical prediction)")
		pdfMode   = flag.Bool("p", false, "Produce PDF-ready output (globals + per-page files)")
		symMode   = flag.Bool("s", false, "Symbol classification mode")
		threshold = flag.Float64("t", 0.85, "Symbol classification threshold (0.4-0.9)")
		bwThresh  = flag.Int("T", 188, "Binarization threshold (0-255)")
		up2       = flag.Bool("2", false, "Upsample 2x before thresholding")
		up4       = flag.Bool("4", false, "Upsample 4x before thresholding")
		jpegOut   = flag.Bool("j", false, "Save mixed-content companion images as JPEG instead of PNG")
		verbose   = flag.Bool("v", false, "Verbose per-page statistics")
	)
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("jbig2enc: ")

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: jbig2enc [options] file...")
		flag.PrintDefaults()
		os.Exit(exitBadUsage)
	}
	if *up2 && *up4 {
		log.Print("-2 and -4 are mutually exclusive")
		os.Exit(exitBadUsage)
	}
	if *threshold < 0.4 || *threshold > 0.9 {
		log.Printf("threshold %v out of range [0.4, 0.9]", *threshold)
		os.Exit(exitBadUsage)
	}
	if *bwThresh < 0 || *bwThresh > 255 {
		log.Printf("binarization threshold %d out of range [0, 255]", *bwThresh)
		os.Exit(exitBadUsage)
	}
	if *pdfMode && !*symMode {
		log.Print("-p requires -s")
		os.Exit(exitBadUsage)
	}

	encoder, err := jbig2enc.New(jbig2enc.Options{
		Threshold:      *threshold,
		DupLineRemoval: *dupLine,
		PDFMode:        *pdfMode,
		FullHeaders:    !*pdfMode,
	})
	if err != nil {
		log.Print(err)
		os.Exit(exitBadUsage)
	}

	scale := 1
	if *up2 {
		scale = 2
	}
	if *up4 {
		scale = 4
	}

	var pages []*bitmap.Bitmap
	for i, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			log.Printf("cannot read %s: %v", name, err)
			os.Exit(exitUnreadable)
		}
		src, format, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			log.Printf("cannot decode %s: %v", name, err)
			os.Exit(exitUnsupported)
		}

		gray := toGray(src, scale)
		bm := binarize(gray, uint8(*bwThresh))
		pages = append(pages, bm)

		if !bilevel(src) {
			if err := saveCompanion(src, *basename, i, *jpegOut); err != nil {
				log.Printf("cannot save companion image: %v", err)
				os.Exit(exitUnreadable)
			}
		}
		if *verbose {
			log.Printf("%s: %s %dx%d, binarized at %d", name, format, bm.Width(), bm.Height(), *bwThresh)
		}
	}

	if *symMode {
		encodeSymbolMode(encoder, pages, *basename, *pdfMode, *verbose)
		return
	}
	for i, bm := range pages {
		out, err := encoder.EncodeGeneric(bm)
		if err != nil {
			log.Print(err)
			os.Exit(exitUnreadable)
		}
		name := fmt.Sprintf("%s.%04d.jb2", *basename, i)
		if err := os.WriteFile(name, out, 0644); err != nil {
			log.Printf("cannot write %s: %v", name, err)
			os.Exit(exitUnreadable)
		}
		if *verbose {
			log.Printf("%s: %d bytes", name, len(out))
		}
	}
}

func encodeSymbolMode(encoder *jbig2enc.Encoder, pages []*bitmap.Bitmap, basename string, pdfMode, verbose bool) {
	for _, bm := range pages {
		if err := encoder.AddPage(bm); err != nil {
			log.Print(err)
			os.Exit(exitUnreadable)
		}
	}

	if !pdfMode {
		out, err := encoder.Encode()
		if err != nil {
			log.Print(err)
			os.Exit(exitUnreadable)
		}
		name := basename + ".jb2"
		if err := os.WriteFile(name, out, 0644); err != nil {
			log.Printf("cannot write %s: %v", name, err)
			os.Exit(exitUnreadable)
		}
		if verbose {
			log.Printf("%s: %d pages, %d bytes", name, len(pages), len(out))
		}
		return
	}

	globals, err := encoder.Globals()
	if err != nil {
		log.Print(err)
		os.Exit(exitUnreadable)
	}
	if err := os.WriteFile(basename+".sym", globals, 0644); err != nil {
		log.Printf("cannot write %s.sym: %v", basename, err)
		os.Exit(exitUnreadable)
	}
	for i := range pages {
		out, err := encoder.Page(i)
		if err != nil {
			log.Print(err)
			os.Exit(exitUnreadable)
		}
		name := fmt.Sprintf("%s.%04d", basename, i)
		if err := os.WriteFile(name, out, 0644); err != nil {
			log.Printf("cannot write %s: %v", name, err)
			os.Exit(exitUnreadable)
		}
		if verbose {
			log.Printf("%s: %d bytes", name, len(out))
		}
	}
	if verbose {
		log.Printf("%s.sym: %d bytes globals", basename, len(globals))
	}
}

// toGray converts src to 8-bit grayscale, upsampling by scale first so the
// binarization threshold acts on interpolated detail.
func toGray(src image.Image, scale int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx()*scale, b.Dy()*scale
	gray := image.NewGray(image.Rect(0, 0, w, h))
	if scale == 1 {
		draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
		return gray
	}
	draw.CatmullRom.Scale(gray, gray.Bounds(), src, b, draw.Src, nil)
	return gray
}

// binarize maps pixels darker than thresh to ink.
func binarize(gray *image.Gray, thresh uint8) *bitmap.Bitmap {
	b := gray.Bounds()
	bm := bitmap.New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y < thresh {
				bm.SetPixel(x, y, 1)
			}
		}
	}
	return bm
}

// bilevel reports whether src holds only black and white pixels.
func bilevel(src image.Image) bool {
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			if r != g || g != bl {
				return false
			}
			if r != 0 && r != 0xffff {
				return false
			}
		}
	}
	return true
}

// saveCompanion keeps the continuous-tone source next to the bilevel output
// for mixed-content pages.
func saveCompanion(src image.Image, basename string, index int, asJPEG bool) error {
	ext := ".png"
	if asJPEG {
		ext = ".jpg"
	}
	f, err := os.Create(fmt.Sprintf("%s.%04d%s", basename, index, ext))
	if err != nil {
		return err
	}
	defer f.Close()
	if asJPEG {
		return jpeg.Encode(f, src, &jpeg.Options{Quality: 85})
	}
	return png.Encode(f, src)
}
