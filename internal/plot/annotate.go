package plot

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 120.0
	tickMarkLength = 5
	labelMargin    = 4
)

type annotatorConfig struct {
	FontSize float64
	Title    string
	Borders  BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, gainArea, phaseArea image.Rectangle, data *bode) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing title", func() error { return a.drawTitle(gainArea) }},
		{"drawing gain frequency scale", func() error { return a.drawFrequencyScale(img, gainArea, data.freqAxis) }},
		{"drawing phase frequency scale", func() error { return a.drawFrequencyScale(img, phaseArea, data.freqAxis) }},
		{"drawing gain scale", func() error { return a.drawValueScale(img, gainArea, data.gainAxis, formatGain) }},
		{"drawing phase scale", func() error { return a.drawValueScale(img, phaseArea, data.phaseAxis, formatDegrees) }},
		{"drawing panel labels", func() error { return a.drawPanelLabels(gainArea, phaseArea) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, data) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawString(label string, x, y int) error {
	_, err := a.context.DrawString(label, freetype.Pt(x, y))
	return err
}

func (a *annotator) drawTitle(area image.Rectangle) error {
	if a.config.Title == "" {
		return nil
	}
	textY := a.config.Borders.Top/2 + a.fontHeight()/2
	return a.drawString(a.config.Title, area.Min.X, textY)
}

// drawFrequencyScale labels the decades below area
func (a *annotator) drawFrequencyScale(img *image.RGBA, area image.Rectangle, x axis) error {
	textY := area.Max.Y + tickMarkLength + labelMargin + a.fontHeight()

	for _, freq := range x.majorTicks() {
		px := area.Min.X + int(x.fraction(freq)*float64(area.Dx()-1))

		for y := area.Max.Y; y < area.Max.Y+tickMarkLength; y++ {
			img.Set(px, y, color.Black)
		}

		label := formatFrequency(freq)
		width := font.MeasureString(a.fontFace, label).Round()
		if err := a.drawString(label, px-width/2, textY); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

// drawValueScale labels the major ticks left of area
func (a *annotator) drawValueScale(img *image.RGBA, area image.Rectangle, y axis, format func(float64) string) error {
	metrics := a.fontFace.Metrics()

	for _, v := range y.majorTicks() {
		py := area.Min.Y + int(float64(area.Dy()-1)*(1-y.fraction(v)))

		for x := area.Min.X - tickMarkLength; x < area.Min.X; x++ {
			img.Set(x, py, color.Black)
		}

		label := format(v)
		width := font.MeasureString(a.fontFace, label).Round()
		textY := py + a.fontHeight()/2 - metrics.Descent.Round()
		if err := a.drawString(label, area.Min.X-tickMarkLength-labelMargin-width, textY); err != nil {
			return fmt.Errorf("drawing scale label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawPanelLabels(gainArea, phaseArea image.Rectangle) error {
	offset := labelMargin + a.fontHeight()

	if err := a.drawString("Gain (Ch1/Ch2)", gainArea.Min.X+labelMargin, gainArea.Min.Y+offset); err != nil {
		return err
	}
	return a.drawString("Phase (deg)", phaseArea.Min.X+labelMargin, phaseArea.Min.Y+offset)
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *bode) error {
	fMin, fMax := minMax(data.frequency)

	info := fmt.Sprintf("Freq: %s - %s; %d points", formatFrequency(fMin), formatFrequency(fMax), len(data.frequency))

	metrics := a.fontFace.Metrics()

	// Center text vertically in bottom border
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if err := a.drawString(info, a.config.Borders.Left, textY); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

func formatFrequency(hz float64) string {
	return humanize.SIWithDigits(hz, 2, "Hz")
}

func formatGain(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "°"
}
