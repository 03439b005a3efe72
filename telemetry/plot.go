package telemetry

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/pthm-cable/envelope/envelope"
)

// heatLevels is the number of palette colours in heat maps.
const heatLevels = 64

// sliceGrid exposes the trailing two axes of a grid-ordered array, with every
// leading axis fixed at index 0, as a plotter.GridXYZ. In grid order that
// slice is the first n² entries: row r is axis D-2, column c is axis D-1.
type sliceGrid struct {
	axis   []float64
	values []float64
}

func (g sliceGrid) Dims() (c, r int) { return len(g.axis), len(g.axis) }
func (g sliceGrid) Z(c, r int) float64 { return g.values[r*len(g.axis)+c] }
func (g sliceGrid) X(c int) float64 { return g.axis[c] }
func (g sliceGrid) Y(r int) float64 { return g.axis[r] }

// WritePlots renders the run as PNG files in the output directory and returns
// their paths. A 1-D run gets line plots of field against reconstruction and
// of the error. Higher dimensions get heat maps of the trailing 2-D slice.
// width and height are in inches.
func (om *OutputManager) WritePlots(res *envelope.Result, label string, width, height float64) ([]string, error) {
	if om == nil {
		return nil, nil
	}
	w, h := vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch

	var plots map[string]*plot.Plot
	var err error
	if res.Grid.Dims() == 1 {
		plots, err = linePlots(res, label)
	} else {
		plots, err = heatPlots(res, label)
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, name := range []string{"field", "reconstructed", "error"} {
		p, ok := plots[name]
		if !ok {
			continue
		}
		path := filepath.Join(om.dir, name+".png")
		if err := p.Save(w, h, path); err != nil {
			return paths, fmt.Errorf("saving %s plot: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func xys(axis, ys []float64) plotter.XYs {
	pts := make(plotter.XYs, len(axis))
	for i := range axis {
		pts[i] = plotter.XY{X: axis[i], Y: ys[i]}
	}
	return pts
}

func linePlots(res *envelope.Result, label string) (map[string]*plot.Plot, error) {
	axis := res.Grid.Axis()

	pField := plot.New()
	pField.Title.Text = label
	pField.X.Label.Text = "x"
	pField.Y.Label.Text = "value"
	for i, series := range []struct {
		name string
		ys   []float64
	}{
		{"field", res.Field},
		{"reconstructed", res.Reconstructed},
	} {
		line, err := plotter.NewLine(xys(axis, series.ys))
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", series.name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		pField.Add(line)
		pField.Legend.Add(series.name, line)
	}
	pField.Legend.Top = true

	pErr := plot.New()
	pErr.Title.Text = label + " error"
	pErr.X.Label.Text = "x"
	pErr.Y.Label.Text = "reconstructed - field"
	line, err := plotter.NewLine(xys(axis, res.Error))
	if err != nil {
		return nil, fmt.Errorf("error line: %w", err)
	}
	line.Color = plotutil.Color(2)
	pErr.Add(line, plotter.NewGrid())

	return map[string]*plot.Plot{"field": pField, "error": pErr}, nil
}

func heatPlots(res *envelope.Result, label string) (map[string]*plot.Plot, error) {
	axis := res.Grid.Axis()
	dims := res.Grid.Dims()
	plots := make(map[string]*plot.Plot, 3)

	for _, series := range []struct {
		name   string
		values []float64
	}{
		{"field", res.Field},
		{"reconstructed", res.Reconstructed},
		{"error", res.Error},
	} {
		cm := moreland.SmoothBlueRed()
		hm := plotter.NewHeatMap(sliceGrid{axis: axis, values: series.values}, cm.Palette(heatLevels))
		if hm.Min == hm.Max {
			// A constant slice would divide by a zero range.
			hm.Min -= 0.5
			hm.Max += 0.5
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s %s", label, series.name)
		p.X.Label.Text = fmt.Sprintf("x%d", dims-1)
		p.Y.Label.Text = fmt.Sprintf("x%d", dims-2)
		p.Add(hm)
		plots[series.name] = p
	}
	return plots, nil
}
