// Package plot renders ephemeris charts to PNG for clients without a browser
// canvas: the CLI and the plot.png endpoint.
package plot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
)

// Chart names one of the three element plots.
type Chart string

const (
	ChartSMALongitude Chart = "sma-lon"
	ChartExEy         Chart = "ex-ey"
	ChartHxHy         Chart = "hx-hy"
)

// Charts lists every chart in display order.
var Charts = []Chart{ChartSMALongitude, ChartExEy, ChartHxHy}

var ErrNoData = errors.New("no samples to plot")

// ParseChart parses a chart name. Empty selects sma-lon.
func ParseChart(s string) (Chart, error) {
	switch c := Chart(s); c {
	case "":
		return ChartSMALongitude, nil
	case ChartSMALongitude, ChartExEy, ChartHxHy:
		return c, nil
	default:
		return "", fmt.Errorf("unknown chart %q (want sma-lon, ex-ey or hx-hy)", s)
	}
}

type axis struct {
	column string
	label  string
	format func(float64) string
	// wrap is the period of a cyclic axis; consecutive points further apart
	// than half of it are not joined.
	wrap float64
}

type series struct {
	title string
	x, y  axis
}

func (c Chart) series() series {
	switch c {
	case ChartExEy:
		return series{title: "ex ey", x: axis{column: "ex", label: "ex", format: formatPlain}, y: axis{column: "ey", label: "ey", format: formatPlain}}
	case ChartHxHy:
		return series{title: "hx hy", x: axis{column: "hx", label: "hx", format: formatPlain}, y: axis{column: "hy", label: "hy", format: formatPlain}}
	default:
		return series{
			title: "SMA vs longitude",
			x:     axis{column: "longitude", label: "longitude", format: formatDegrees, wrap: 360},
			y:     axis{column: "a", label: "a", format: formatMeters},
		}
	}
}

func formatPlain(v float64) string   { return strconv.FormatFloat(v, 'g', 3, 64) }
func formatDegrees(v float64) string { return strconv.FormatFloat(v, 'f', 0, 64) + "°" }
func formatMeters(v float64) string  { return humanize.SIWithDigits(v, 3, "m") }

const (
	dpi          = 72.0
	tickLength   = 5
	labelSpacing = 70 // pixels per axis label, roughly
)

// Config sets the image size.
type Config struct {
	Width    int     // default 800
	Height   int     // default 600
	FontSize float64 // points, default 12
}

// Renderer draws charts. Safe for concurrent use; each Render call builds
// its own drawing context.
type Renderer struct {
	config Config
	font   *truetype.Font
}

// NewRenderer parses the embedded Go font.
func NewRenderer(config Config) (*Renderer, error) {
	if config.Width <= 0 {
		config.Width = 800
	}
	if config.Height <= 0 {
		config.Height = 600
	}
	if config.FontSize <= 0 {
		config.FontSize = 12
	}
	f, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	return &Renderer{config: config, font: f}, nil
}

var (
	lineColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	gridColor = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
)

// Render draws chart from cols. subtitle is printed under the title, for
// example a satellite name.
func (r *Renderer) Render(cols *ephemeris.Columns, chart Chart, subtitle string) (*image.RGBA, error) {
	s := chart.series()
	xs, ys := cols.Column(s.x.column), cols.Column(s.y.column)
	if len(xs) == 0 || len(xs) != len(ys) {
		return nil, ErrNoData
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(r.font)
	ctx.SetFontSize(r.config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	face := truetype.NewFace(r.font, &truetype.Options{Size: r.config.FontSize, DPI: dpi})
	defer face.Close()
	lineHeight := (face.Metrics().Ascent + face.Metrics().Descent).Round()

	area := image.Rect(90, 2*lineHeight+20, r.config.Width-30, r.config.Height-2*lineHeight-20)
	if area.Dx() < 50 || area.Dy() < 50 {
		return nil, fmt.Errorf("image %dx%d too small for a chart", r.config.Width, r.config.Height)
	}

	xr, yr := span(xs), span(ys)
	toPx := func(x, y float64) (int, int) {
		px := area.Min.X + int(math.Round((x-xr.lo)/(xr.hi-xr.lo)*float64(area.Dx()-1)))
		py := area.Max.Y - 1 - int(math.Round((y-yr.lo)/(yr.hi-yr.lo)*float64(area.Dy()-1)))
		return px, py
	}

	// Grid, ticks and labels.
	xStep := niceStep(xr.hi-xr.lo, area.Dx()/labelSpacing)
	for v := math.Ceil(xr.lo/xStep) * xStep; v <= xr.hi; v += xStep {
		px, _ := toPx(v, yr.lo)
		vline(img, px, area.Min.Y, area.Max.Y, gridColor)
		vline(img, px, area.Max.Y, area.Max.Y+tickLength, color.Black)
		label := s.x.format(v)
		w := font.MeasureString(face, label).Round()
		if _, err := ctx.DrawString(label, freetype.Pt(px-w/2, area.Max.Y+tickLength+lineHeight)); err != nil {
			return nil, fmt.Errorf("drawing x label: %w", err)
		}
	}
	yStep := niceStep(yr.hi-yr.lo, area.Dy()/labelSpacing)
	for v := math.Ceil(yr.lo/yStep) * yStep; v <= yr.hi; v += yStep {
		_, py := toPx(xr.lo, v)
		hline(img, area.Min.X, area.Max.X, py, gridColor)
		hline(img, area.Min.X-tickLength, area.Min.X, py, color.Black)
		label := s.y.format(v)
		w := font.MeasureString(face, label).Round()
		if _, err := ctx.DrawString(label, freetype.Pt(area.Min.X-tickLength-3-w, py+lineHeight/3)); err != nil {
			return nil, fmt.Errorf("drawing y label: %w", err)
		}
	}

	// Frame.
	hline(img, area.Min.X, area.Max.X, area.Min.Y, color.Black)
	hline(img, area.Min.X, area.Max.X, area.Max.Y, color.Black)
	vline(img, area.Min.X, area.Min.Y, area.Max.Y, color.Black)
	vline(img, area.Max.X, area.Min.Y, area.Max.Y+1, color.Black)

	// Data.
	x0, y0 := toPx(xs[0], ys[0])
	img.Set(x0, y0, lineColor)
	for k := 1; k < len(xs); k++ {
		x1, y1 := toPx(xs[k], ys[k])
		if s.x.wrap == 0 || math.Abs(xs[k]-xs[k-1]) < s.x.wrap/2 {
			line(img, x0, y0, x1, y1, lineColor)
		}
		x0, y0 = x1, y1
	}

	// Titles.
	header := []string{s.title}
	if subtitle != "" {
		header = append(header, subtitle)
	}
	pt := freetype.Pt(area.Min.X, lineHeight+4)
	for _, h := range header {
		if _, err := ctx.DrawString(h, pt); err != nil {
			return nil, fmt.Errorf("drawing title: %w", err)
		}
		pt.Y += ctx.PointToFixed(r.config.FontSize * 1.2)
	}
	axes := fmt.Sprintf("x: %s   y: %s   %s samples", s.x.label, s.y.label, humanize.Comma(int64(len(xs))))
	if _, err := ctx.DrawString(axes, freetype.Pt(area.Min.X, r.config.Height-lineHeight/2-2)); err != nil {
		return nil, fmt.Errorf("drawing axis legend: %w", err)
	}

	return img, nil
}

// WritePNG renders chart and encodes it to w.
func (r *Renderer) WritePNG(w io.Writer, cols *ephemeris.Columns, chart Chart, subtitle string) error {
	img, err := r.Render(cols, chart, subtitle)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}

type bounds struct{ lo, hi float64 }

// span returns the data range padded by 5%, widened when flat.
func span(v []float64) bounds {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}
	if lo > hi {
		return bounds{-1, 1}
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*1e-3, 1e-9)
	}
	return bounds{lo - pad, hi + pad}
}

// niceStep returns a 1, 2 or 5 times power-of-ten step giving about n
// intervals over width.
func niceStep(width float64, n int) float64 {
	if n < 1 {
		n = 1
	}
	raw := width / float64(n)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	switch f := raw / mag; {
	case f <= 1:
		return mag
	case f <= 2:
		return 2 * mag
	case f <= 5:
		return 5 * mag
	default:
		return 10 * mag
	}
}

func hline(img *image.RGBA, x0, x1, y int, c color.Color) {
	for x := x0; x < x1; x++ {
		img.Set(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.Color) {
	for y := y0; y < y1; y++ {
		img.Set(x, y, c)
	}
}

// line draws a segment with Bresenham's algorithm.
func line(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
