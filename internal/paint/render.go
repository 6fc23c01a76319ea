package paint

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"paintnum/internal/quant"
)

const (
	// swatchBox is the side length of each palette box in pixels.
	swatchBox = 64
	// swatchPad is the white gutter around and between boxes.
	swatchPad = 8
)

var white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// renderQuantized composites the quantized pixel buffer onto a white
// background at the original dimensions.
func renderQuantized(width, height int, palette []quant.RGB, indexes []int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := palette[indexes[i]]
			img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
			i++
		}
	}
	return img
}

// renderSwatch draws a horizontal strip of fixed-size boxes on a white
// background, one box per palette entry in palette order, each labeled with
// its 1-based number.
func renderSwatch(palette []quant.RGB) *image.NRGBA {
	w := swatchPad + len(palette)*(swatchBox+swatchPad)
	h := swatchBox + 2*swatchPad
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)
	for i, c := range palette {
		x0 := swatchPad + i*(swatchBox+swatchPad)
		box := image.Rect(x0, swatchPad, x0+swatchBox, swatchPad+swatchBox)
		fill := color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
		draw.Draw(img, box, image.NewUniform(fill), image.Point{}, draw.Src)
		drawLabel(img, i, c, x0)
	}
	return img
}

// drawLabel writes the 1-based palette number into a box, black on light
// colors and white on dark ones.
func drawLabel(img *image.NRGBA, i int, c quant.RGB, x0 int) {
	label := color.NRGBA{A: 0xff} // black
	if quant.Luminance(c) < 0.35 {
		label = white
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(label),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x0+6, swatchPad+swatchBox-6),
	}
	d.DrawString(strconv.Itoa(i + 1))
}
