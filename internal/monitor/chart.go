package monitor

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

// RenderScanChart writes an HTML page with two charts for d: range against
// index for each pipeline stage, and the processed sweep in vehicle XY with
// the target highlighted.
func RenderScanChart(w io.Writer, d followgap.Decision) error {
	if len(d.Processed) == 0 {
		return fmt.Errorf("decision %d carries no range arrays", d.Seq)
	}

	page := components.NewPage()
	page.PageTitle = "Gap follower scan"
	page.AddCharts(rangeChart(d), xyChart(d))
	return page.Render(w)
}

func rangeChart(d followgap.Decision) *charts.Line {
	xs := make([]string, len(d.Processed))
	for i := range xs {
		xs[i] = strconv.Itoa(i)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "450px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Sweep %d", d.Seq),
			Subtitle: fmt.Sprintf("target=%d steer=%.3f rad speed=%.2f m/s fallback=%s gaps=%d", d.TargetIndex, d.Command.SteeringAngle, d.Command.Speed, d.Fallback, len(d.Gaps)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "range (m)"}),
	)
	line.SetXAxis(xs)
	lineOpts := charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})
	line.AddSeries("raw", lineData(d.Raw), lineOpts)
	line.AddSeries("smoothed", lineData(d.Smoothed), lineOpts)
	line.AddSeries("processed", lineData(d.Processed), lineOpts,
		charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{Name: "target", XAxis: strconv.Itoa(d.TargetIndex)}))
	return line
}

func lineData(ys []float64) []opts.LineData {
	out := make([]opts.LineData, len(ys))
	for i, y := range ys {
		out[i] = opts.LineData{Value: y}
	}
	return out
}

func xyChart(d followgap.Decision) *charts.Scatter {
	pts := make([]opts.ScatterData, 0, len(d.Processed))
	maxAbs := 1.0
	for i, r := range d.Processed {
		theta := d.AngleMin + float64(i)*d.AngleIncrement
		x, y := r*math.Cos(theta), r*math.Sin(theta)
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(x), math.Abs(y)))
		pts = append(pts, opts.ScatterData{Value: []interface{}{x, y}})
	}
	pad := maxAbs * 1.05

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "700px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Processed sweep (vehicle frame)"}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)"}),
	)
	scatter.AddSeries("processed", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#2ca02c"}))
	scatter.AddSeries("target",
		[]opts.ScatterData{{Value: []interface{}{d.TargetPoint.X, d.TargetPoint.Y}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#d62728"}))
	return scatter
}
