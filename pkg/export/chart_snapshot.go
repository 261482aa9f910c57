package export

import (
	"fmt"
	"image/color"
	"io"

	"git.sr.ht/~sbinet/gg"
	svg "github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/bmo/pkg/analysis"
)

// --- layout computation ----------------------------------------------------

const (
	chartWidth   = 760
	chartHeader  = 96
	chartRowH    = 56
	chartPad     = 24
	chartLabelW  = 260
	chartValueW  = 120
	chartSparkW  = chartWidth - 2*chartPad - chartLabelW - chartValueW - 24
	chartSparkH  = 32.0
	chartMinRows = 1
)

type chartRow struct {
	Label  string
	Value  string
	Trend  string
	Alert  bool
	Y      float64
	Points [][2]float64 // sparkline vertices in canvas coordinates
}

type chartLayout struct {
	Width    int
	Height   int
	Title    string
	Subtitle string
	Rows     []chartRow
}

func buildChartLayout(b Bundle) chartLayout {
	l := chartLayout{
		Width:    chartWidth,
		Height:   chartHeader + chartPad + max(len(b.KPIs), chartMinRows)*chartRowH,
		Title:    fmt.Sprintf("%s KPIs", b.Module.Title()),
		Subtitle: fmt.Sprintf("generated %s · %d records · %d insights", b.GeneratedAt.Format("2006-01-02 15:04 MST"), len(b.Records), len(b.Insights)),
	}
	if b.Stale {
		l.Subtitle += " · stale"
	}
	sparkX := float64(chartPad + chartLabelW + chartValueW + 24)
	for i, k := range b.KPIs {
		y := float64(chartHeader + chartPad + i*chartRowH)
		l.Rows = append(l.Rows, chartRow{
			Label:  truncate(k.Label, 36),
			Value:  formatKPI(k),
			Trend:  trendText(k.Trend),
			Alert:  k.Alert,
			Y:      y,
			Points: sparkPoints(k, sparkX, y+chartRowH/2-chartSparkH/2),
		})
	}
	return l
}

// sparkPoints scales a KPI series into a chartSparkW x chartSparkH box at
// (x, y). A flat series is drawn through the middle of the box.
func sparkPoints(k analysis.KPI, x, y float64) [][2]float64 {
	if len(k.Series) == 0 {
		return nil
	}
	lo, hi := k.Series[0], k.Series[0]
	for _, v := range k.Series {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	step := 0.0
	if len(k.Series) > 1 {
		step = float64(chartSparkW) / float64(len(k.Series)-1)
	}
	pts := make([][2]float64, len(k.Series))
	for i, v := range k.Series {
		py := y + chartSparkH/2
		if hi > lo {
			py = y + chartSparkH - (v-lo)/(hi-lo)*chartSparkH
		}
		pts[i] = [2]float64{x + float64(i)*step, py}
	}
	return pts
}

// --- rendering -------------------------------------------------------------

var (
	colorText     = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle   = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBackdrop = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
	colorRowBG    = color.RGBA{0xee, 0xee, 0xee, 0xff}
	colorLine     = color.RGBA{0x6b, 0x80, 0xbf, 0xff}
	colorAlert    = color.RGBA{0xd3, 0x2f, 0x2f, 0xff}
)

// WritePNGChart renders the KPI chart of b as PNG.
func WritePNGChart(w io.Writer, b Bundle) error {
	l := buildChartLayout(b)
	dc := gg.NewContext(l.Width, l.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(16, 16, float64(l.Width)-32, chartHeader-24, 10)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(l.Title, 32, 44, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(l.Subtitle, 32, 66, 0, 0.5)

	if len(l.Rows) == 0 {
		dc.DrawStringAnchored("No KPI", chartPad, chartHeader+chartPad+chartRowH/2, 0, 0.5)
	}
	for _, r := range l.Rows {
		dc.SetColor(colorRowBG)
		dc.DrawRoundedRectangle(chartPad-8, r.Y+4, float64(l.Width-2*chartPad+16), chartRowH-8, 6)
		dc.Fill()

		mid := r.Y + chartRowH/2
		dc.SetColor(colorText)
		dc.DrawStringAnchored(r.Label, chartPad, mid, 0, 0.5)
		if r.Alert {
			dc.SetColor(colorAlert)
		}
		dc.DrawStringAnchored(r.Value, chartPad+chartLabelW, mid-7, 0, 0.5)
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(r.Trend, chartPad+chartLabelW, mid+9, 0, 0.5)

		if len(r.Points) > 1 {
			dc.SetColor(colorLine)
			dc.SetLineWidth(2)
			dc.MoveTo(r.Points[0][0], r.Points[0][1])
			for _, p := range r.Points[1:] {
				dc.LineTo(p[0], p[1])
			}
			dc.Stroke()
		}
		if n := len(r.Points); n > 0 {
			last := r.Points[n-1]
			dc.SetColor(colorLine)
			dc.DrawCircle(last[0], last[1], 3)
			dc.Fill()
		}
	}
	return dc.EncodePNG(w)
}

// WriteSVGChart renders the KPI chart of b as SVG.
func WriteSVGChart(w io.Writer, b Bundle) error {
	l := buildChartLayout(b)
	canvas := svg.New(w)
	canvas.Start(l.Width, l.Height)
	canvas.Rect(0, 0, l.Width, l.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(16, 16, l.Width-32, chartHeader-24, 10, 10, fmt.Sprintf("fill:%s", css(colorHeaderBG)))
	canvas.Text(32, 44, l.Title, fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(32, 66, l.Subtitle, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))

	if len(l.Rows) == 0 {
		canvas.Text(chartPad, chartHeader+chartPad+chartRowH/2, "No KPI", fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))
	}
	for _, r := range l.Rows {
		y := int(r.Y)
		mid := y + chartRowH/2
		canvas.Roundrect(chartPad-8, y+4, l.Width-2*chartPad+16, chartRowH-8, 6, 6, fmt.Sprintf("fill:%s", css(colorRowBG)))
		canvas.Text(chartPad, mid+4, r.Label, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorText)))
		valueColor := colorText
		if r.Alert {
			valueColor = colorAlert
		}
		canvas.Text(chartPad+chartLabelW, mid-3, r.Value, fmt.Sprintf("fill:%s;font-size:14px;font-family:monospace;font-weight:bold", css(valueColor)))
		canvas.Text(chartPad+chartLabelW, mid+13, r.Trend, fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace", css(colorSubtle)))

		if len(r.Points) > 1 {
			xs := make([]int, len(r.Points))
			ys := make([]int, len(r.Points))
			for i, p := range r.Points {
				xs[i], ys[i] = int(p[0]), int(p[1])
			}
			canvas.Polyline(xs, ys, fmt.Sprintf("fill:none;stroke:%s;stroke-width:2", css(colorLine)))
		}
		if n := len(r.Points); n > 0 {
			last := r.Points[n-1]
			canvas.Circle(int(last[0]), int(last[1]), 3, fmt.Sprintf("fill:%s", css(colorLine)))
		}
	}
	canvas.End()
	return nil
}

// --- helpers ---------------------------------------------------------------

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
