// Package quant reduces a pixel population to a small representative
// palette and remaps every pixel to its nearest palette entry.
package quant

import (
	"errors"
	"slices"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrEmptyPalette is returned when the pixel population is empty or the
// reducer yields no colors.
var ErrEmptyPalette = errors.New("quant: empty palette")

// RGB is a single opaque pixel color.
type RGB struct {
	R, G, B uint8
}

// Reducer produces a palette of at most k representative colors for a pixel
// population. Implementations return fewer than k colors only when the input
// holds fewer than k distinct colors.
type Reducer interface {
	Reduce(pixels []RGB, k int) ([]RGB, error)
}

// Assign maps every pixel to the index of its nearest palette entry by
// Euclidean distance in RGB space. Ties go to the lowest palette index.
// The scan is linear in the palette, so cost grows with len(pixels)*len(palette).
func Assign(pixels []RGB, palette []RGB) ([]int, error) {
	if len(palette) == 0 {
		return nil, ErrEmptyPalette
	}
	indexes := make([]int, len(pixels))
	for i, px := range pixels {
		best := 0
		bestDist := distSq(px, palette[0])
		for j := 1; j < len(palette); j++ {
			if d := distSq(px, palette[j]); d < bestDist {
				best = j
				bestDist = d
			}
		}
		indexes[i] = best
	}
	return indexes, nil
}

func distSq(a, b RGB) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}

// Luminance reports the relative luminance of a color in linear RGB.
func Luminance(c RGB) float64 {
	r, g, b := toColorful(c).LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// Hex formats a color as a #rrggbb string.
func Hex(c RGB) string {
	return toColorful(c).Hex()
}

func toColorful(c RGB) colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

// sortPalette orders colors darkest to brightest so palette ordering is
// stable across runs. Equal-luminance colors fall back to channel order.
func sortPalette(palette []RGB) {
	slices.SortFunc(palette, func(a, b RGB) int {
		la, lb := Luminance(a), Luminance(b)
		if la < lb {
			return -1
		}
		if la > lb {
			return 1
		}
		if c := int(a.R) - int(b.R); c != 0 {
			return c
		}
		if c := int(a.G) - int(b.G); c != 0 {
			return c
		}
		return int(a.B) - int(b.B)
	})
}

func dedupe(palette []RGB) []RGB {
	seen := make(map[RGB]struct{}, len(palette))
	out := palette[:0]
	for _, c := range palette {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
