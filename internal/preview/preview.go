// Package preview renders one slice of a series as a labelled 8-bit image.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	// ErrNoPixelData is returned for datasets without a decodable frame.
	ErrNoPixelData = errors.New("preview: no pixel data")
	// ErrEncapsulated is returned for compressed transfer syntaxes.
	ErrEncapsulated = errors.New("preview: encapsulated pixel data is not supported")
)

// Render converts the first frame of ds to grayscale, stretching the stored
// value range to 0-255, scales it to width pixels (0 keeps the native size)
// and draws label in the top-left corner when it is not empty.
func Render(ds dicom.Dataset, width int, label string) (*image.RGBA, error) {
	rows, cols, err := dimensions(ds)
	if err != nil {
		return nil, err
	}

	elem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, ErrNoPixelData
	}
	info, ok := elem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 || info.Frames[0] == nil {
		return nil, ErrNoPixelData
	}
	f := info.Frames[0]
	if f.Encapsulated {
		return nil, ErrEncapsulated
	}

	samples := samplesPerPixel(ds)
	var gray *image.Gray
	switch nf := f.NativeData.(type) {
	case *frame.NativeFrame[uint8]:
		gray, err = toGray(nf.RawData, cols, rows, samples)
	case *frame.NativeFrame[uint16]:
		gray, err = toGray(nf.RawData, cols, rows, samples)
	case *frame.NativeFrame[uint32]:
		gray, err = toGray(nf.RawData, cols, rows, samples)
	default:
		return nil, fmt.Errorf("preview: unsupported frame type %T", f.NativeData)
	}
	if err != nil {
		return nil, err
	}

	if width <= 0 {
		width = cols
	}
	height := max(1, rows*width/cols)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	if label != "" {
		drawLabel(dst, label)
	}
	return dst, nil
}

// WritePNG encodes img as PNG.
func WritePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func dimensions(ds dicom.Dataset) (rows, cols int, err error) {
	rows = intValue(ds, tag.Rows)
	cols = intValue(ds, tag.Columns)
	if rows <= 0 || cols <= 0 {
		return 0, 0, fmt.Errorf("%w: missing rows or columns", ErrNoPixelData)
	}
	return rows, cols, nil
}

func samplesPerPixel(ds dicom.Dataset) int {
	if n := intValue(ds, tag.SamplesPerPixel); n > 0 {
		return n
	}
	return 1
}

func intValue(ds dicom.Dataset, t tag.Tag) int {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0
	}
	values, ok := elem.Value.GetValue().([]int)
	if !ok || len(values) == 0 {
		return 0
	}
	return values[0]
}

// toGray averages the samples of each pixel and stretches the min-max range of
// the frame to 0-255.
func toGray[I uint8 | uint16 | uint32](raw []I, width, height, samples int) (*image.Gray, error) {
	n := width * height
	if len(raw) < n*samples {
		return nil, fmt.Errorf("%w: frame holds %d samples, want %d", ErrNoPixelData, len(raw), n*samples)
	}

	values := make([]uint64, n)
	lo, hi := ^uint64(0), uint64(0)
	for i := 0; i < n; i++ {
		var sum uint64
		for s := 0; s < samples; s++ {
			sum += uint64(raw[i*samples+s])
		}
		v := sum / uint64(samples)
		values[i] = v
		lo = min(lo, v)
		hi = max(hi, v)
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	span := hi - lo
	for i, v := range values {
		if span == 0 {
			img.Pix[i] = 0
			continue
		}
		img.Pix[i] = uint8((v - lo) * 255 / span)
	}
	return img, nil
}

// drawLabel renders text at twice the base font size, white with a black
// outline, in the top-left corner of img.
func drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	baseWidth := font.MeasureString(face, text).Ceil()
	baseHeight := 13

	textImg := image.NewRGBA(image.Rect(0, 0, baseWidth, baseHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.RGBA{255, 255, 255, 255}),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(11)},
	}
	drawer.DrawString(text)

	scale := 2
	if img.Bounds().Dx() < baseWidth*scale+8 {
		scale = 1
	}
	scaled := image.NewRGBA(image.Rect(0, 0, baseWidth*scale, baseHeight*scale))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), textImg, textImg.Bounds(), draw.Over, nil)

	const margin, outline = 4, 1
	bounds := img.Bounds()
	black := color.RGBA{0, 0, 0, 255}
	white := color.RGBA{255, 255, 255, 255}
	set := func(x, y int, c color.RGBA) {
		if image.Pt(x, y).In(bounds) {
			img.SetRGBA(x, y, c)
		}
	}

	sb := scaled.Bounds()
	for sy := 0; sy < sb.Dy(); sy++ {
		for sx := 0; sx < sb.Dx(); sx++ {
			if scaled.RGBAAt(sx, sy).A == 0 {
				continue
			}
			for dx := -outline; dx <= outline; dx++ {
				for dy := -outline; dy <= outline; dy++ {
					set(margin+sx+dx, margin+sy+dy, black)
				}
			}
		}
	}
	for sy := 0; sy < sb.Dy(); sy++ {
		for sx := 0; sx < sb.Dx(); sx++ {
			if scaled.RGBAAt(sx, sy).A > 0 {
				set(margin+sx, margin+sy, white)
			}
		}
	}
}
