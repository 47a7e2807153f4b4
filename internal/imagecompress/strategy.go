package imagecompress

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
)

// Format is an encoded image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// FormatOf maps a file extension to its format. ok is false for formats the
// compressor leaves alone (gif, svg, ...).
func FormatOf(ext string) (Format, bool) {
	switch strings.ToLower(ext) {
	case ".png":
		return FormatPNG, true
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".webp":
		return FormatWebP, true
	}
	return "", false
}

// Extension is the extension written for a format that replaces another.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// Strategy is one encode attempt.
type Strategy struct {
	Name   string
	Format Format
	Encode func(image.Image) ([]byte, error)
}

// Strategies returns the attempts for a source format in the order tried.
// Dimensions are never changed. Dithering to a fixed palette is the last PNG
// attempt since it degrades color the most.
func Strategies(src Format) []Strategy {
	switch src {
	case FormatPNG:
		return []Strategy{
			pngStrategy(),
			webpStrategy(80),
			jpegStrategy(85),
			palettedStrategy(),
		}
	case FormatJPEG:
		return []Strategy{
			jpegStrategy(85), jpegStrategy(75), jpegStrategy(65), jpegStrategy(55),
			webpStrategy(60),
		}
	case FormatWebP:
		return []Strategy{
			webpStrategy(80), webpStrategy(70), webpStrategy(60), webpStrategy(50),
			jpegStrategy(55),
		}
	}
	return nil
}

// Decode reads an image of the given format.
func Decode(r io.Reader, f Format) (image.Image, error) {
	switch f {
	case FormatPNG:
		return png.Decode(r)
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	}
	return nil, fmt.Errorf("unsupported format %q", f)
}

func pngStrategy() Strategy {
	return Strategy{Name: "png-best", Format: FormatPNG, Encode: func(img image.Image) ([]byte, error) {
		return encodePNG(img)
	}}
}

func palettedStrategy() Strategy {
	return Strategy{Name: "png-paletted", Format: FormatPNG, Encode: func(img image.Image) ([]byte, error) {
		b := img.Bounds()
		dst := image.NewPaletted(b, palette.Plan9)
		draw.FloydSteinberg.Draw(dst, b, flatten(img), b.Min)
		return encodePNG(dst)
	}}
}

func webpStrategy(quality float32) Strategy {
	return Strategy{Name: fmt.Sprintf("webp-q%.0f", quality), Format: FormatWebP, Encode: func(img image.Image) ([]byte, error) {
		var buf bytes.Buffer
		if err := webp.Encode(&buf, img, &webp.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}}
}

func jpegStrategy(quality int) Strategy {
	return Strategy{Name: fmt.Sprintf("jpeg-q%d", quality), Format: FormatJPEG, Encode: func(img image.Image) ([]byte, error) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// flatten composites img over white so formats without alpha do not turn
// transparent areas black.
func flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
