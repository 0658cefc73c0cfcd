// Package plot renders sweep records as a Bode plot image: gain against
// frequency on log-log axes above phase in degrees on semilog axes.
package plot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/roman-kulish/bodeplot/internal/analysis"
	"github.com/roman-kulish/bodeplot/internal/sweep"
)

const (
	defaultWidth    = 1200
	defaultHeight   = 900
	defaultFontSize = 10.0
	defaultPanelGap = 50

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	minPanelSize = 50
	maxPhaseTick = 8
	lineWidth    = 2.0
	markerSize   = 5
)

var (
	ErrNoData = errors.New("no plottable records")

	GainColor  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	PhaseColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	GridColor  = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	MinorColor = color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}
)

// BorderConfig defines the sizes of white space around the panels
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for gain and phase scales
	Bottom int // Space for information bar
	Right  int // Right padding
}

// Config holds the rendering options. Zero values take defaults.
type Config struct {
	Width    int     // Image width in pixels
	Height   int     // Image height in pixels
	FontSize float64 // Font size in points
	Title    string  // Drawn above the gain panel

	BorderConfig BorderConfig
}

// Renderer draws Bode plots
type Renderer struct {
	config Config
}

// NewRenderer creates a new renderer with the given configuration
func NewRenderer(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = defaultFontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	r := Renderer{config: config}

	if w, h := r.panelSize(); w < minPanelSize || h < minPanelSize {
		return nil, fmt.Errorf("image %dx%d is too small for the plot", config.Width, config.Height)
	}
	if config.FontSize < 0 {
		return nil, fmt.Errorf("invalid font size: %v", config.FontSize)
	}

	return &r, nil
}

func (r *Renderer) panelSize() (int, int) {
	b := r.config.BorderConfig
	return r.config.Width - b.Left - b.Right, (r.config.Height - b.Top - b.Bottom - defaultPanelGap) / 2
}

// panels returns the gain and phase plot areas
func (r *Renderer) panels() (image.Rectangle, image.Rectangle) {
	b := r.config.BorderConfig
	w, h := r.panelSize()

	gain := image.Rect(b.Left, b.Top, b.Left+w, b.Top+h)
	phase := gain.Add(image.Pt(0, h+defaultPanelGap))

	return gain, phase
}

// bode is the plottable subset of a sweep
type bode struct {
	frequency []float64
	gain      []float64 // NaN where not plottable on a log axis
	phase     []float64 // Unwrapped, degrees

	freqAxis  axis
	gainAxis  axis
	phaseAxis axis
}

func newBode(records []sweep.Record) (*bode, error) {
	var b bode
	var radians []float64

	for _, rec := range records {
		if !(rec.Frequency > 0) || math.IsInf(rec.Frequency, 0) || math.IsNaN(rec.PhaseDiff) || math.IsInf(rec.PhaseDiff, 0) {
			continue
		}

		gain := rec.Gain
		if !(gain > 0) || math.IsInf(gain, 0) {
			gain = math.NaN()
		}

		b.frequency = append(b.frequency, rec.Frequency)
		b.gain = append(b.gain, gain)
		radians = append(radians, rec.PhaseDiff)
	}
	if len(b.frequency) == 0 {
		return nil, ErrNoData
	}

	for _, p := range analysis.UnwrapPhase(radians) {
		b.phase = append(b.phase, p*180/math.Pi)
	}

	fMin, fMax := minMax(b.frequency)
	b.freqAxis = decadeAxis(fMin, fMax)

	gMin, gMax := minMax(b.gain)
	if math.IsNaN(gMin) {
		gMin, gMax = 1, 1
	}
	b.gainAxis = decadeAxis(gMin, gMax)

	pMin, pMax := minMax(b.phase)
	b.phaseAxis = linearAxis(pMin, pMax, maxPhaseTick)

	return &b, nil
}

// minMax ignores NaNs; both results are NaN when every value is
func minMax(values []float64) (float64, float64) {
	lo, hi := math.NaN(), math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Render creates an image of the records with annotations
func (r *Renderer) Render(records []sweep.Record) (*image.RGBA, error) {
	data, err := newBode(records)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	gainArea, phaseArea := r.panels()

	drawGrid(img, gainArea, data.freqAxis, data.gainAxis)
	drawGrid(img, phaseArea, data.freqAxis, data.phaseAxis)

	drawSeries(img, gainArea, data.freqAxis, data.gainAxis, data.frequency, data.gain, GainColor)
	drawSeries(img, phaseArea, data.freqAxis, data.phaseAxis, data.frequency, data.phase, PhaseColor)

	drawFrame(img, gainArea)
	drawFrame(img, phaseArea)

	ann, err := newAnnotator(annotatorConfig{
		FontSize: r.config.FontSize,
		Title:    r.config.Title,
		Borders:  r.config.BorderConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, gainArea, phaseArea, data); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

// point maps a data point into area
func point(area image.Rectangle, x, y axis, xv, yv float64) (float32, float32) {
	px := x.fraction(xv) * float64(area.Dx()-1)
	py := float64(area.Dy()-1) * (1 - y.fraction(yv))
	return float32(px), float32(py)
}

func drawGrid(img *image.RGBA, area image.Rectangle, x, y axis) {
	for _, v := range x.minorTicks() {
		px, _ := point(area, x, y, v, y.min)
		vline(img, area, area.Min.X+int(px), MinorColor)
	}
	for _, v := range y.minorTicks() {
		_, py := point(area, x, y, x.min, v)
		hline(img, area, area.Min.Y+int(py), MinorColor)
	}
	for _, v := range x.majorTicks() {
		px, _ := point(area, x, y, v, y.min)
		vline(img, area, area.Min.X+int(px), GridColor)
	}
	for _, v := range y.majorTicks() {
		_, py := point(area, x, y, x.min, v)
		hline(img, area, area.Min.Y+int(py), GridColor)
	}
}

func vline(img *image.RGBA, area image.Rectangle, x int, c color.Color) {
	for y := area.Min.Y; y < area.Max.Y; y++ {
		img.Set(x, y, c)
	}
}

func hline(img *image.RGBA, area image.Rectangle, y int, c color.Color) {
	for x := area.Min.X; x < area.Max.X; x++ {
		img.Set(x, y, c)
	}
}

func drawFrame(img *image.RGBA, area image.Rectangle) {
	hline(img, area, area.Min.Y, color.Black)
	hline(img, area, area.Max.Y-1, color.Black)
	vline(img, area, area.Min.X, color.Black)
	vline(img, area, area.Max.X-1, color.Black)
}

// drawSeries strokes the polyline through the points and marks each one.
// NaN values break the line.
func drawSeries(img *image.RGBA, area image.Rectangle, x, y axis, xs, ys []float64, c color.Color) {
	src := image.NewUniform(c)
	z := vector.NewRasterizer(area.Dx(), area.Dy())

	hasPrev := false
	var prevX, prevY float32

	for i := range xs {
		if math.IsNaN(ys[i]) {
			hasPrev = false
			continue
		}

		px, py := point(area, x, y, xs[i], ys[i])
		if hasPrev {
			segment(z, prevX, prevY, px, py, lineWidth)
		}
		prevX, prevY, hasPrev = px, py, true

		m := image.Rect(int(px)-markerSize/2, int(py)-markerSize/2, int(px)+markerSize/2+1, int(py)+markerSize/2+1)
		draw.Draw(img, m.Add(area.Min).Intersect(area), src, image.Point{}, draw.Over)
	}

	z.Draw(img, area, src, image.Point{})
}

// segment adds a filled quad of the given width around the line a-b. All
// quads share one orientation so overlaps do not cancel out.
func segment(z *vector.Rasterizer, ax, ay, bx, by, width float32) {
	dx, dy := bx-ax, by-ay
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		return
	}

	nx, ny := -dy/l*width/2, dx/l*width/2

	z.MoveTo(ax+nx, ay+ny)
	z.LineTo(bx+nx, by+ny)
	z.LineTo(bx-nx, by-ny)
	z.LineTo(ax-nx, ay-ny)
	z.ClosePath()
}
