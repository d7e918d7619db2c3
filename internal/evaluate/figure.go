package evaluate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// confusionGrid adapts a confusion matrix to plotter.GridXYZ. Row 0 of the
// matrix is drawn at the top.
type confusionGrid struct {
	cm [][]int
}

func (g confusionGrid) Dims() (c, r int)   { return len(g.cm), len(g.cm) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }
func (g confusionGrid) Z(c, r int) float64 { return float64(g.cm[len(g.cm)-1-r][c]) }

// PlotConfusion writes a heat map of cm with per-cell counts to path.
func PlotConfusion(cm [][]int, classNames []string, title, path string) error {
	k := len(cm)
	if k == 0 || len(classNames) != k {
		return fmt.Errorf("confusion matrix is %dx%d but %d class names were given", k, k, len(classNames))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Actual"

	grid := confusionGrid{cm: cm}
	h := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	if h.Max == h.Min {
		h.Max = h.Min + 1
	}
	p.Add(h)

	var cells plotter.XYLabels
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			cells.XYs = append(cells.XYs, plotter.XY{X: float64(j), Y: float64(k - 1 - i)})
			cells.Labels = append(cells.Labels, strconv.Itoa(cm[i][j]))
		}
	}
	labels, err := plotter.NewLabels(cells)
	if err != nil {
		return err
	}
	p.Add(labels)

	xt := make([]plot.Tick, k)
	yt := make([]plot.Tick, k)
	for i, name := range classNames {
		xt[i] = plot.Tick{Value: float64(i), Label: name}
		yt[i] = plot.Tick{Value: float64(k - 1 - i), Label: name}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xt)
	p.Y.Tick.Marker = plot.ConstantTicks(yt)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := p.Save(4.5*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("cannot save confusion matrix %s: %w", path, err)
	}
	return nil
}
