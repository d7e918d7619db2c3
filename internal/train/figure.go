package train

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotHistory writes the train/val accuracy curve to path.
func PlotHistory(h *History, path string) error {
	if h == nil || len(h.Epoch) == 0 {
		return fmt.Errorf("no history to plot")
	}
	p := plot.New()
	p.Title.Text = "Training Curve"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Accuracy"

	series := []struct {
		name  string
		vals  []float64
		color color.Color
	}{
		{"train_acc", h.TrainAccuracy, color.RGBA{R: 31, G: 119, B: 180, A: 255}},
		{"val_acc", h.ValAccuracy, color.RGBA{R: 255, G: 127, B: 14, A: 255}},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(h.Epoch))
		for i, e := range h.Epoch {
			pts[i].X = float64(e)
			pts[i].Y = s.vals[i]
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		l.Color = s.color
		l.LineStyle.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(s.name, l)
	}
	p.Legend.Top = false
	p.Legend.Left = false

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := p.Save(6.5*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("cannot save training curve %s: %w", path, err)
	}
	return nil
}
