// Command fixturegen builds RGB555 golden-reference fixtures for the
// Graphics ucode's scaling tests. It decodes a PNG, produces two
// independently-computed reference resizes of it (one via nfnt/resize's
// Lanczos3, one via x/image/draw's CatmullRom), and writes both as raw
// RGB555 pixel dumps so a scaling test can compare
// the ucode's own bilinear/bicubic output against an external baseline
// rather than only against itself.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/nfnt/resize"
)

func main() {
	src := flag.String("src", "", "source PNG image")
	out := flag.String("out", "fixture", "output file prefix")
	width := flag.Uint("width", 64, "target width")
	height := flag.Uint("height", 64, "target height")
	flag.Parse()

	if *src == "" {
		fmt.Fprintln(os.Stderr, "fixturegen: -src is required")
		os.Exit(1)
	}

	img, err := decodePNG(*src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fixturegen: %v\n", err)
		os.Exit(1)
	}

	lanczos := resize.Resize(*width, *height, img, resize.Lanczos3)
	catmull := scaleCatmullRom(img, int(*width), int(*height))

	if err := writeRGB555(*out+".lanczos3.rgb555", lanczos); err != nil {
		fmt.Fprintf(os.Stderr, "fixturegen: %v\n", err)
		os.Exit(1)
	}
	if err := writeRGB555(*out+".catmullrom.rgb555", catmull); err != nil {
		fmt.Fprintf(os.Stderr, "fixturegen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s.lanczos3.rgb555 and %s.catmullrom.rgb555 (%dx%d)\n", *out, *out, *width, *height)
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func scaleCatmullRom(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// writeRGB555 packs img's pixels into the same R-in-LSB 16-bit layout
// the Graphics ucode's scalers use and writes a tiny width/height header
// ahead of the raw pixel words.
func writeRGB555(path string, img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var header [4]byte
	binary.LittleEndian.PutUint16(header[0:2], uint16(w))
	binary.LittleEndian.PutUint16(header[2:4], uint16(h))
	if _, err := f.Write(header[:]); err != nil {
		return err
	}

	buf := make([]byte, 2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := uint16(0x8000 | (r>>11)&0x1F | ((g>>11)&0x1F)<<5 | ((bl>>11)&0x1F)<<10)
			binary.LittleEndian.PutUint16(buf, px)
			if _, err := f.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}
