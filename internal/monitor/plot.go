package monitor

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/gapfollow/internal/followgap"
)

var (
	rawColor       = color.RGBA{R: 160, G: 160, B: 160, A: 255}
	smoothedColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	processedColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	targetColor    = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PlotDecision draws range against sample index for the raw, smoothed and
// processed arrays, the safe threshold and the chosen target.
func PlotDecision(d followgap.Decision, safeThreshold float64) (*plot.Plot, error) {
	if len(d.Processed) == 0 {
		return nil, fmt.Errorf("decision %d carries no range arrays", d.Seq)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("seq %d: target %d steer %.3f rad speed %.2f m/s (%s)",
		d.Seq, d.TargetIndex, d.Command.SteeringAngle, d.Command.Speed, d.Fallback)
	p.X.Label.Text = "sample index"
	p.Y.Label.Text = "range (m)"
	p.Add(plotter.NewGrid())

	for _, s := range []struct {
		name  string
		ys    []float64
		color color.Color
		width vg.Length
	}{
		{"raw", d.Raw, rawColor, vg.Points(0.5)},
		{"smoothed", d.Smoothed, smoothedColor, vg.Points(1)},
		{"processed", d.Processed, processedColor, vg.Points(1.5)},
	} {
		if len(s.ys) == 0 {
			continue
		}
		line, err := plotter.NewLine(indexXYs(s.ys))
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = s.width
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	if safeThreshold > 0 {
		n := float64(len(d.Processed) - 1)
		safe, err := plotter.NewLine(plotter.XYs{{X: 0, Y: safeThreshold}, {X: n, Y: safeThreshold}})
		if err != nil {
			return nil, err
		}
		safe.Color = color.Black
		safe.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(safe)
		p.Legend.Add("safe threshold", safe)
	}

	target, err := plotter.NewScatter(plotter.XYs{{X: float64(d.TargetIndex), Y: d.Processed[d.TargetIndex]}})
	if err != nil {
		return nil, err
	}
	target.GlyphStyle.Color = targetColor
	target.GlyphStyle.Radius = vg.Points(4)
	target.GlyphStyle.Shape = draw.CrossGlyph{}
	p.Add(target)
	p.Legend.Add("target", target)
	p.Legend.Top = true

	return p, nil
}

func indexXYs(ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(ys))
	for i, y := range ys {
		pts[i] = plotter.XY{X: float64(i), Y: y}
	}
	return pts
}

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// WriteDecisionPNG renders PlotDecision as PNG to w.
func WriteDecisionPNG(w io.Writer, d followgap.Decision, safeThreshold float64) error {
	p, err := PlotDecision(d, safeThreshold)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SaveDecisionPNG writes the plot to path.
func SaveDecisionPNG(path string, d followgap.Decision, safeThreshold float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteDecisionPNG(f, d, safeThreshold); err != nil {
		f.Close()
		return fmt.Errorf("plot %s: %w", path, err)
	}
	return f.Close()
}
