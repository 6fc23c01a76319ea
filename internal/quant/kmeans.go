package quant

import (
	"math"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// maxKMeansSamples caps the observation count so clustering stays tractable
// on full-resolution inputs.
const maxKMeansSamples = 12000

// KMeans reduces a pixel population with k-means clustering. Cluster
// initialization is random, so palettes vary between runs on the same input.
type KMeans struct{}

func (KMeans) Reduce(pixels []RGB, k int) ([]RGB, error) {
	if len(pixels) == 0 || k < 1 {
		return nil, ErrEmptyPalette
	}

	distinct := countDistinct(pixels, k)
	if distinct < k {
		k = distinct
	}

	// Subsample large populations before clustering.
	step := 1
	if len(pixels) > maxKMeansSamples {
		step = int(math.Sqrt(float64(len(pixels))/float64(maxKMeansSamples))) + 1
	}
	dataset := make(clusters.Observations, 0, min(len(pixels), maxKMeansSamples))
	for i := 0; i < len(pixels); i += step {
		px := pixels[i]
		dataset = append(dataset, clusters.Coordinates{
			float64(px.R) / 255.0,
			float64(px.G) / 255.0,
			float64(px.B) / 255.0,
		})
	}
	if k > len(dataset) {
		k = len(dataset)
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil || len(cc) == 0 {
		return nil, ErrEmptyPalette
	}

	palette := make([]RGB, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 {
			continue
		}
		palette = append(palette, RGB{
			R: clamp8(c.Center[0] * 255.0),
			G: clamp8(c.Center[1] * 255.0),
			B: clamp8(c.Center[2] * 255.0),
		})
	}
	palette = dedupe(palette)
	if len(palette) == 0 {
		return nil, ErrEmptyPalette
	}
	sortPalette(palette)
	return palette, nil
}

// countDistinct counts distinct colors, stopping once the count reaches
// limit since anything beyond that no longer matters.
func countDistinct(pixels []RGB, limit int) int {
	seen := make(map[RGB]struct{}, limit)
	for _, px := range pixels {
		seen[px] = struct{}{}
		if len(seen) >= limit {
			break
		}
	}
	return len(seen)
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(math.Round(v))
}
