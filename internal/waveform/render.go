package waveform

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/audio"
)

// DataURIPrefix precedes the base64 PNG returned by Render.
const DataURIPrefix = "data:image/png;base64,"

// Errors returned by the renderer.
var (
	ErrEmptyBuffer = errors.New("audio buffer is empty")
	ErrNotPNGURI   = errors.New("not a PNG data URI")
)

var (
	figureBackground = color.NRGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff}
	plotBackground   = color.NRGBA{R: 0x37, G: 0x41, B: 0x51, A: 0xff}
	waveLine         = color.NRGBA{R: 0x4f, G: 0x46, B: 0xe5, A: 204} // alpha 0.8
	waveFill         = color.NRGBA{R: 0x4f, G: 0x46, B: 0xe5, A: 77}  // alpha 0.3
	markerColor      = color.NRGBA{R: 0xef, G: 0x44, B: 0x44, A: 204} // alpha 0.8
	markerLabel      = color.NRGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
	gridColor        = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 77}
)

// Renderer draws a buffer as a PNG waveform with optional split markers.
type Renderer struct {
	width  vg.Length
	height vg.Length
	dpi    int
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithSize sets the figure size in inches.
func WithSize(widthIn, heightIn float64) RendererOption {
	return func(r *Renderer) {
		r.width = vg.Length(widthIn) * vg.Inch
		r.height = vg.Length(heightIn) * vg.Inch
	}
}

// WithDPI sets the output resolution.
func WithDPI(dpi int) RendererOption {
	return func(r *Renderer) {
		if dpi > 0 {
			r.dpi = dpi
		}
	}
}

// NewRenderer creates a Renderer producing 12x4 inch figures at 150 DPI.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{width: 12 * vg.Inch, height: 4 * vg.Inch, dpi: 150}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PixelSize returns the output image dimensions.
func (r *Renderer) PixelSize() (int, int) {
	w := int(math.Round(float64(r.width/vg.Inch) * float64(r.dpi)))
	h := int(math.Round(float64(r.height/vg.Inch) * float64(r.dpi)))
	return w, h
}

// Render returns the waveform as a PNG data URI.
func (r *Renderer) Render(buf *audio.Buffer, splitPoints []float64) (string, error) {
	png, err := r.RenderPNG(buf, splitPoints)
	if err != nil {
		return "", err
	}
	return DataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// DecodeDataURI returns the PNG bytes of a URI produced by Render.
func DecodeDataURI(uri string) ([]byte, error) {
	payload, ok := strings.CutPrefix(uri, DataURIPrefix)
	if !ok {
		return nil, ErrNotPNGURI
	}
	png, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return png, nil
}

// RenderPNG returns the encoded PNG bytes.
//
// Split points inside [0, duration] are drawn as vertical markers labelled
// with their 1-based position in splitPoints. Points outside the range are
// skipped.
func (r *Renderer) RenderPNG(buf *audio.Buffer, splitPoints []float64) ([]byte, error) {
	if buf == nil || buf.Len() == 0 || buf.SampleRate <= 0 {
		return nil, apperr.Wrap(apperr.ErrRender, "render waveform", ErrEmptyBuffer)
	}

	p, err := r.buildPlot(buf, splitPoints)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrRender, "render waveform", err)
	}

	canvas := vgimg.PngCanvas{Canvas: vgimg.NewWith(vgimg.UseWH(r.width, r.height), vgimg.UseDPI(r.dpi))}
	p.Draw(draw.New(canvas))

	var out bytes.Buffer
	if _, err := canvas.WriteTo(&out); err != nil {
		return nil, apperr.Wrap(apperr.ErrRender, "encode png", err)
	}
	return out.Bytes(), nil
}

func (r *Renderer) buildPlot(buf *audio.Buffer, splitPoints []float64) (*plot.Plot, error) {
	duration := buf.Duration()

	p := plot.New()
	p.BackgroundColor = figureBackground
	styleAxis(&p.X, "Time (seconds)")
	styleAxis(&p.Y, "Amplitude")

	area, err := plotter.NewPolygon(plotter.XYs{{X: 0, Y: -1}, {X: duration, Y: -1}, {X: duration, Y: 1}, {X: 0, Y: 1}})
	if err != nil {
		return nil, fmt.Errorf("plot area: %w", err)
	}
	area.Color = plotBackground
	area.LineStyle.Width = 0

	grid := plotter.NewGrid()
	grid.Vertical.Color = gridColor
	grid.Horizontal.Color = gridColor

	width, _ := r.PixelSize()
	linePts, fillPts := trace(buf.Samples, duration, 2*width)

	fill, err := plotter.NewPolygon(fillPts)
	if err != nil {
		return nil, fmt.Errorf("waveform fill: %w", err)
	}
	fill.Color = waveFill
	fill.LineStyle.Width = 0

	line := &strokes{
		pairs: linePts,
		style: draw.LineStyle{Color: waveLine, Width: vg.Points(0.8)},
	}

	p.Add(area, grid, fill, line)

	if err := addMarkers(p, splitPoints, duration, buf.Peak()*0.8); err != nil {
		return nil, err
	}

	p.X.Min, p.X.Max = 0, duration
	p.Y.Min, p.Y.Max = -1, 1
	return p, nil
}

// marker is a split point drawn on the image.
type marker struct {
	X     float64
	Label string
}

// markers returns the split points inside [0, duration]. Labels keep the
// caller's numbering, so a skipped point leaves a gap.
func markers(splitPoints []float64, duration float64) []marker {
	out := make([]marker, 0, len(splitPoints))
	for i, sp := range splitPoints {
		if math.IsNaN(sp) || sp < 0 || sp > duration {
			continue
		}
		out = append(out, marker{X: sp, Label: strconv.Itoa(i + 1)})
	}
	return out
}

func addMarkers(p *plot.Plot, splitPoints []float64, duration, labelY float64) error {
	for _, m := range markers(splitPoints, duration) {
		line, err := plotter.NewLine(plotter.XYs{{X: m.X, Y: -1}, {X: m.X, Y: 1}})
		if err != nil {
			return fmt.Errorf("marker %s: %w", m.Label, err)
		}
		line.LineStyle.Color = markerColor
		line.LineStyle.Width = vg.Points(2)

		label, err := plotter.NewLabels(plotter.XYLabels{
			XYs:    plotter.XYs{{X: m.X, Y: labelY}},
			Labels: []string{m.Label},
		})
		if err != nil {
			return fmt.Errorf("marker label %s: %w", m.Label, err)
		}
		for i := range label.TextStyle {
			label.TextStyle[i].Color = markerLabel
			label.TextStyle[i].Font.Size = vg.Points(10)
		}

		p.Add(line, label)
	}
	return nil
}

func styleAxis(a *plot.Axis, label string) {
	a.Label.Text = label
	a.Label.TextStyle.Color = color.White
	a.LineStyle.Color = color.White
	a.Tick.Label.Color = color.White
	a.Tick.LineStyle.Color = color.White
}

// trace builds the waveform strokes and the fill region between the
// waveform and zero. line holds point pairs, one short stroke each. Inputs
// longer than columns are reduced to one min/max stroke per column so every
// peak stays visible.
func trace(samples []float64, duration float64, columns int) (line, fill plotter.XYs) {
	n := len(samples)
	if columns < 1 || n <= columns {
		line = make(plotter.XYs, 0, 2*n)
		upper := make(plotter.XYs, n)
		lower := make(plotter.XYs, n)
		for i, s := range samples {
			x := timeAt(i, n, duration)
			if i > 0 {
				line = append(line, plotter.XY{X: timeAt(i-1, n, duration), Y: samples[i-1]}, plotter.XY{X: x, Y: s})
			}
			upper[i] = plotter.XY{X: x, Y: math.Max(s, 0)}
			lower[i] = plotter.XY{X: x, Y: math.Min(s, 0)}
		}
		return line, closeFill(upper, lower)
	}

	line = make(plotter.XYs, 0, 2*columns)
	upper := make(plotter.XYs, 0, columns)
	lower := make(plotter.XYs, 0, columns)
	for c := range columns {
		from := c * n / columns
		to := (c + 1) * n / columns
		lo, hi := samples[from], samples[from]
		for _, s := range samples[from+1 : to] {
			lo = math.Min(lo, s)
			hi = math.Max(hi, s)
		}
		x := timeAt((from+to-1)/2, n, duration)
		line = append(line, plotter.XY{X: x, Y: lo}, plotter.XY{X: x, Y: hi})
		upper = append(upper, plotter.XY{X: x, Y: math.Max(hi, 0)})
		lower = append(lower, plotter.XY{X: x, Y: math.Min(lo, 0)})
	}
	return line, closeFill(upper, lower)
}

// strokes draws each consecutive pair of points as its own line.
type strokes struct {
	pairs plotter.XYs
	style draw.LineStyle
}

var _ plot.Plotter = (*strokes)(nil)

// Plot implements plot.Plotter.
func (s *strokes) Plot(c draw.Canvas, p *plot.Plot) {
	trX, trY := p.Transforms(&c)
	for i := 0; i+1 < len(s.pairs); i += 2 {
		a, b := s.pairs[i], s.pairs[i+1]
		c.StrokeLine2(s.style, trX(a.X), trY(a.Y), trX(b.X), trY(b.Y))
	}
}

// closeFill walks upper forward and lower backward into one ring.
func closeFill(upper, lower plotter.XYs) plotter.XYs {
	ring := make(plotter.XYs, 0, len(upper)+len(lower))
	ring = append(ring, upper...)
	for i := len(lower) - 1; i >= 0; i-- {
		ring = append(ring, lower[i])
	}
	return ring
}
