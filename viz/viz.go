// Package viz renders basis functions and tuning curves to image files
// with gonum/plot. The format follows the file extension (.png, .svg, .pdf).
package viz

import (
	"fmt"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/glmgo/basis"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// 出力サイズ
const (
	width  = 6 * vg.Inch
	height = 4 * vg.Inch
)

// PlotBasis evaluates b on an n-point grid and draws one line per basis
// function. Only one-input bases can be drawn.
func PlotBasis(b basis.Basis, n int, path string) error {
	if b.NInputs() != 1 {
		return errors.NewValueError("viz.PlotBasis", fmt.Sprintf("can only plot one-input bases, got %d inputs", b.NInputs()))
	}
	grid, values, err := b.EvaluateOnGrid(n)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = b.Label()
	p.X.Label.Text = "x"
	p.Y.Label.Text = "basis value"

	rows, cols := values.Dims()
	for j := 0; j < cols; j++ {
		xys := make(plotter.XYs, rows)
		for i := 0; i < rows; i++ {
			xys[i].X = grid[0][i]
			xys[i].Y = values.At(i, j)
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "basis function %d", j)
		}
		line.Color = plotutil.Color(j)
		p.Add(line)
	}
	return save(p, path)
}

// PlotTuning draws observed values as points and predictions as a line
// sorted along x.
func PlotTuning(x, yTrue, yPred []float64, path string) error {
	if len(x) == 0 {
		return errors.NewValueError("viz.PlotTuning", "empty input")
	}
	if len(yTrue) != len(x) {
		return errors.NewDimensionError("viz.PlotTuning", len(x), len(yTrue), 0)
	}
	if len(yPred) != len(x) {
		return errors.NewDimensionError("viz.PlotTuning", len(x), len(yPred), 0)
	}

	observed := make(plotter.XYs, len(x))
	predicted := make(plotter.XYs, len(x))
	for i := range x {
		observed[i] = plotter.XY{X: x[i], Y: yTrue[i]}
		predicted[i] = plotter.XY{X: x[i], Y: yPred[i]}
	}
	sortXYs(predicted)

	p := plot.New()
	p.Title.Text = "tuning curve"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "rate"

	scatter, err := plotter.NewScatter(observed)
	if err != nil {
		return errors.Wrap(err, "observed")
	}
	scatter.GlyphStyle.Radius = vg.Points(1)
	scatter.GlyphStyle.Color = plotutil.Color(1)

	line, err := plotter.NewLine(predicted)
	if err != nil {
		return errors.Wrap(err, "predicted")
	}
	line.Color = plotutil.Color(0)
	line.Width = vg.Points(2)

	p.Add(scatter, line)
	p.Legend.Add("observed", scatter)
	p.Legend.Add("predicted", line)
	return save(p, path)
}

func sortXYs(xys plotter.XYs) {
	sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(width, height, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
