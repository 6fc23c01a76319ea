// Package paint runs the paint-by-numbers pipeline: stylize, resize, tone
// adjust, quantize, re-render, and bundle the results.
package paint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"paintnum/internal/quant"
	"paintnum/pkg/zip"
)

var (
	// ErrSourceNotFound is returned when the input image path does not
	// exist. Surfaced as a client error at the HTTP boundary.
	ErrSourceNotFound = errors.New("paint: source image not found")

	// ErrArchive marks an I/O failure while bundling the run's outputs.
	ErrArchive = errors.New("paint: archive assembly failed")
)

// processedURLPrefix is where the static file server exposes outputs.
const processedURLPrefix = "/processed"

// Stylizer transforms raw image bytes through the external stylization
// service.
type Stylizer interface {
	Apply(ctx context.Context, imageBytes []byte) ([]byte, error)
}

// TonePreset is the style preset applied between resizing and quantization.
// The order is fixed (saturation/brightness, then linear contrast, then
// gamma) because each stage operates on the previous stage's output; the
// constants themselves are tunable.
type TonePreset struct {
	Saturation     float64 // percentage, 5 means +5%
	Brightness     float64 // percentage, 5 means +5%
	ContrastSlope  float64
	ContrastOffset float64 // added in 8-bit channel units
	Gamma          float64
}

// DefaultTone mirrors the soft boost the original deployment used.
func DefaultTone() TonePreset {
	return TonePreset{
		Saturation:     5,
		Brightness:     5,
		ContrastSlope:  1.0,
		ContrastOffset: 0,
		Gamma:          1.2,
	}
}

type Config struct {
	OutputDir      string
	StylizeEnabled bool
	MaxDimension   int
	Tone           TonePreset
}

// Pipeline produces the quantized rendering, palette swatch, and archive
// for a source image. All collaborators are injected so the pipeline runs
// against fakes in tests.
type Pipeline struct {
	cfg      Config
	stylizer Stylizer
	reducer  quant.Reducer
	logger   zerolog.Logger
}

func New(cfg Config, stylizer Stylizer, reducer quant.Reducer, logger zerolog.Logger) *Pipeline {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 1024
	}
	if cfg.Tone == (TonePreset{}) {
		cfg.Tone = DefaultTone()
	}
	return &Pipeline{cfg: cfg, stylizer: stylizer, reducer: reducer, logger: logger}
}

// Result carries the URLs of the three files a successful run writes, plus
// the palette itself for callers that want to report it.
type Result struct {
	ProcessedImageURL string
	PaletteImageURL   string
	ArchiveURL        string
	Palette           []quant.RGB
}

// Process runs the full pipeline for sourcePath and writes three files
// under the output directory, named by outputName. Every step is a hard
// failure point; nothing is retried and no partial archive is left behind.
func (p *Pipeline) Process(ctx context.Context, sourcePath string, numColors int, outputName string) (*Result, error) {
	if _, err := os.Stat(sourcePath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, sourcePath)
	}
	if err := os.MkdirAll(p.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output dir: %w", err)
	}

	working, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	if p.cfg.StylizeEnabled {
		styled, err := p.stylizer.Apply(ctx, working)
		if err != nil {
			return nil, err
		}
		working = styled
		p.logger.Debug().Str("source", sourcePath).Int("bytes", len(working)).Msg("stylization applied")
	}

	img, err := imaging.Decode(bytes.NewReader(working))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = p.resize(img)
	img = p.adjustTone(img)

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	pixels := flatten(img)

	palette, err := p.reducer.Reduce(pixels, numColors)
	if err != nil {
		return nil, err
	}
	indexes, err := quant.Assign(pixels, palette)
	if err != nil {
		return nil, err
	}
	p.logger.Info().
		Str("output", outputName).
		Int("width", width).
		Int("height", height).
		Int("colors", len(palette)).
		Msg("image quantized")

	rendered := renderQuantized(width, height, palette, indexes)
	primaryPath := filepath.Join(p.cfg.OutputDir, outputName+".png")
	if err := imaging.Save(rendered, primaryPath); err != nil {
		return nil, fmt.Errorf("save processed image: %w", err)
	}

	swatch := renderSwatch(palette)
	swatchPath := filepath.Join(p.cfg.OutputDir, outputName+"-palette.png")
	if err := imaging.Save(swatch, swatchPath); err != nil {
		return nil, fmt.Errorf("save palette image: %w", err)
	}

	if err := p.writeArchive(outputName, primaryPath, swatchPath, palette); err != nil {
		return nil, err
	}

	return &Result{
		ProcessedImageURL: processedURLPrefix + "/" + outputName + ".png",
		PaletteImageURL:   processedURLPrefix + "/" + outputName + "-palette.png",
		ArchiveURL:        processedURLPrefix + "/" + outputName + ".zip",
		Palette:           palette,
	}, nil
}

// resize caps the longest side at MaxDimension, preserving aspect ratio.
// Smaller images pass through untouched.
func (p *Pipeline) resize(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= p.cfg.MaxDimension && b.Dy() <= p.cfg.MaxDimension {
		return img
	}
	return imaging.Fit(img, p.cfg.MaxDimension, p.cfg.MaxDimension, imaging.Lanczos)
}

func (p *Pipeline) adjustTone(img image.Image) image.Image {
	tone := p.cfg.Tone
	out := imaging.AdjustSaturation(img, tone.Saturation)
	out = imaging.AdjustBrightness(out, tone.Brightness)
	out = applyLinear(out, tone.ContrastSlope, tone.ContrastOffset)
	if tone.Gamma > 0 && tone.Gamma != 1.0 {
		out = imaging.AdjustGamma(out, tone.Gamma)
	}
	return out
}

// applyLinear runs the channel transform out = slope*in + offset.
func applyLinear(img image.Image, slope, offset float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clampChannel(slope*float64(c.R) + offset),
			G: clampChannel(slope*float64(c.G) + offset),
			B: clampChannel(slope*float64(c.B) + offset),
			A: c.A,
		}
	})
}

func clampChannel(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// flatten produces the RGB pixel population, compositing any alpha over
// white before the channel is discarded.
func flatten(img image.Image) []quant.RGB {
	b := img.Bounds()
	pixels := make([]quant.RGB, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, a := img.At(x, y).RGBA()
			pixels = append(pixels, quant.RGB{
				R: overWhite(r, a),
				G: overWhite(g, a),
				B: overWhite(bb, a),
			})
		}
	}
	return pixels
}

// overWhite blends a premultiplied 16-bit channel over a white background
// and narrows it to 8 bits.
func overWhite(ch, alpha uint32) uint8 {
	v := ch + (0xffff - alpha)
	if v > 0xffff {
		v = 0xffff
	}
	return uint8(v >> 8)
}

func (p *Pipeline) writeArchive(outputName, primaryPath, swatchPath string, palette []quant.RGB) error {
	primary, err := os.ReadFile(primaryPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	swatchData, err := os.ReadFile(swatchPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	assets := []zip.Asset{
		{Filename: outputName + ".png", Data: primary},
		{Filename: outputName + "-palette.png", Data: swatchData},
		{Filename: "README.txt", Data: []byte(readmeText(outputName, palette))},
	}
	archivePath := filepath.Join(p.cfg.OutputDir, outputName+".zip")
	if err := zip.WriteArchive(archivePath, assets); err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	return nil
}

func readmeText(outputName string, palette []quant.RGB) string {
	var sb bytes.Buffer
	fmt.Fprintf(&sb, "Paint by numbers kit: %s\n\n", outputName)
	sb.WriteString("Contents:\n")
	fmt.Fprintf(&sb, "  %s.png          quantized rendering\n", outputName)
	fmt.Fprintf(&sb, "  %s-palette.png  numbered palette swatch\n\n", outputName)
	sb.WriteString("Palette:\n")
	for i, c := range palette {
		fmt.Fprintf(&sb, "  %2d  %s\n", i+1, quant.Hex(c))
	}
	return sb.String()
}
