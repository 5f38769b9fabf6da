// Package annotate renders a defect marker onto a board image and appends
// an information panel describing the defect.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
)

// Format is an output image encoding.
type Format string

const (
	PNG  Format = "PNG"
	JPEG Format = "JPEG"
	BMP  Format = "BMP"
)

// Defaults applied by Render.
const (
	DefaultTextAreaWidth = 300
	DefaultQuality       = 95
	DefaultFormat        = PNG
	DefaultFontSize      = 13
)

var markerColor = color.NRGBA{R: 255, A: 255}

// Options controls Render output.
type Options struct {
	OutputDir     string
	Filename      string // without extension; empty derives {source}_marked_{timestamp}
	Format        Format
	MaxSize       Size // bound on the board image, not counting the text panel
	Quality       int  // JPEG only, 1-100
	TextAreaWidth int

	// FontFile is a TrueType or OpenType font for the panel text. Empty
	// uses the built-in 7x13 bitmap font and ignores FontSize.
	FontFile string
	FontSize float64 // points at 72 DPI
}

func (o *Options) withDefaults() {
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	o.Format = Format(strings.ToUpper(string(o.Format)))
	if o.Format == "JPG" {
		o.Format = JPEG
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.TextAreaWidth <= 0 {
		o.TextAreaWidth = DefaultTextAreaWidth
	}
	if o.FontSize <= 0 {
		o.FontSize = DefaultFontSize
	}
}

// loadFace opens the panel font. The caller closes the returned face.
func (o *Options) loadFace() (font.Face, error) {
	if o.FontFile == "" {
		return basicfont.Face7x13, nil
	}
	data, err := os.ReadFile(o.FontFile)
	if err != nil {
		return nil, errors.FileError(err, o.FontFile)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fontError(o.FontFile, err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    o.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fontError(o.FontFile, err)
	}
	return face, nil
}

func fontError(path string, err error) error {
	return errors.New(fmt.Errorf("font %s: %w", filepath.Base(path), err)).
		Component("annotate").
		Category(errors.CategoryConfiguration).
		FileContext(path).
		Build()
}

func (f Format) ext() (string, error) {
	switch f {
	case PNG:
		return ".png", nil
	case JPEG:
		return ".jpeg", nil
	case BMP:
		return ".bmp", nil
	}
	return "", errors.Newf("unsupported image format %q", string(f)).
		Component("annotate").
		Category(errors.CategoryValidation).
		Build()
}

// Render draws a marker at the defect position of imagePath, appends the
// text panel on the right and writes the result into opts.OutputDir.
// It returns the written path.
func Render(d *entities.Defect, imagePath string, opts Options) (string, error) {
	opts.withDefaults()
	ext, err := opts.Format.ext()
	if err != nil {
		return "", err
	}
	if opts.MaxSize.Width < 0 || opts.MaxSize.Height < 0 {
		return "", invalidSize(opts.MaxSize.String(), "width and height must be positive")
	}

	face, err := opts.loadFace()
	if err != nil {
		return "", err
	}
	defer face.Close()

	src, err := imaging.Open(imagePath)
	if err != nil {
		if _, statErr := os.Stat(imagePath); statErr != nil {
			return "", errors.FileError(statErr, imagePath)
		}
		return "", errors.New(fmt.Errorf("decode %s: %w", filepath.Base(imagePath), err)).
			Component("annotate").
			Category(errors.CategoryImage).
			FileContext(imagePath).
			Build()
	}

	board := src
	if !opts.MaxSize.IsZero() {
		board = imaging.Fit(src, opts.MaxSize.Width, opts.MaxSize.Height, imaging.Lanczos)
	}
	bw, bh := board.Bounds().Dx(), board.Bounds().Dy()

	canvas := imaging.New(bw+opts.TextAreaWidth, bh, color.White)
	canvas = imaging.Paste(canvas, board, image.Pt(0, 0))

	drawMarker(canvas, int(d.X*float64(bw)), int(d.Y*float64(bh)), markerRadius(bw, bh))
	drawPanel(canvas, face, bw, panelLines(d))

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", errors.FileError(err, opts.OutputDir)
	}

	name := opts.Filename
	if name == "" {
		stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
		name = fmt.Sprintf("%s_marked_%s", stem, time.Now().Format("20060102_150405"))
	}
	out := filepath.Join(opts.OutputDir, name+ext)

	if err := imaging.Save(canvas, out, imaging.JPEGQuality(opts.Quality)); err != nil {
		return "", errors.New(err).
			Component("annotate").
			Category(errors.CategoryImage).
			FileContext(out).
			Build()
	}
	return out, nil
}

func markerRadius(w, h int) int {
	return max(8, min(w, h)/40)
}

// drawMarker draws a ring with a crosshair centred on (cx, cy).
func drawMarker(img *image.NRGBA, cx, cy, r int) {
	const thickness = 3
	b := img.Bounds()
	set := func(x, y int) {
		if image.Pt(x, y).In(b) {
			img.SetNRGBA(x, y, markerColor)
		}
	}

	outer, inner := r*r, (r-thickness)*(r-thickness)
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if d := x*x + y*y; d <= outer && d >= inner {
				set(cx+x, cy+y)
			}
		}
	}

	arm := r + r/2
	for i := -arm; i <= arm; i++ {
		for t := -1; t <= 1; t++ {
			set(cx+i, cy+t)
			set(cx+t, cy+i)
		}
	}
}

func panelLines(d *entities.Defect) []string {
	return []string{
		"Lot: " + d.LotNumber,
		"Model: " + d.ModelCode,
		"Board: " + d.BoardNumberLabel,
		fmt.Sprintf("Defect No: %d", d.DefectNumber),
		"Reference: " + d.Reference,
		"Defect: " + d.DefectName,
		"Serial: " + d.Serial,
		fmt.Sprintf("Position: (%.3f, %.3f)", d.X, d.Y),
		"Inspector: " + d.AOIUser,
	}
}

// drawPanel writes lines into the white area starting at x = left.
func drawPanel(img *image.NRGBA, face font.Face, left int, lines []string) {
	m := face.Metrics()
	lineHeight := m.Height.Ceil() + 6
	top := 10 + m.Ascent.Ceil()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	for i, line := range lines {
		y := top + i*lineHeight
		if y > img.Bounds().Dy() {
			break
		}
		drawer.Dot = fixed.P(left+10, y)
		drawer.DrawString(line)
	}
}
