package quant

import (
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
)

// MedianCut reduces a pixel population with a median-cut quantizer. It is
// deterministic: the same population and k always produce the same palette.
type MedianCut struct{}

func (MedianCut) Reduce(pixels []RGB, k int) ([]RGB, error) {
	if len(pixels) == 0 || k < 1 {
		return nil, ErrEmptyPalette
	}

	// The quantizer walks an image, so lay the population out as a single
	// row. Bucketing ignores geometry entirely.
	img := image.NewRGBA(image.Rect(0, 0, len(pixels), 1))
	for i, px := range pixels {
		img.SetRGBA(i, 0, color.RGBA{R: px.R, G: px.G, B: px.B, A: 0xff})
	}

	q := quantize.MedianCutQuantizer{}
	reduced := q.Quantize(make([]color.Color, 0, k), img)
	if len(reduced) == 0 {
		return nil, ErrEmptyPalette
	}

	palette := make([]RGB, 0, len(reduced))
	for _, c := range reduced {
		rgba := color.RGBAModel.Convert(c).(color.RGBA)
		palette = append(palette, RGB{R: rgba.R, G: rgba.G, B: rgba.B})
	}
	palette = dedupe(palette)
	sortPalette(palette)
	return palette, nil
}
