package viz

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/motionkit/motionplan"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// PlotPath draws every joint of a path against the normalized path parameter, one line per joint. Each extra
// path is drawn dashed for comparison, typically the path before shortening.
func PlotPath(title string, jointNames []string, path *motionplan.Path, extra ...*motionplan.Path) (*plot.Plot, error) {
	if path.Len() == 0 {
		return nil, errors.New("cannot plot an empty path")
	}
	dim := len(path.Point(0))
	if len(jointNames) != 0 && len(jointNames) != dim {
		return nil, errors.Errorf("got %d joint names for a path of dimension %d", len(jointNames), dim)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "path parameter"
	p.Y.Label.Text = "joint value"
	p.Add(plotter.NewGrid())

	add := func(path *motionplan.Path, dashed bool) error {
		if path.Len() == 0 {
			return nil
		}
		params := pathParameters(path)
		for j := 0; j < dim; j++ {
			pts := make(plotter.XYs, path.Len())
			for i := range pts {
				c := path.Point(i)
				if len(c) != dim {
					return errors.Errorf("point %d of path %q has dimension %d, expected %d", i, path.Name(), len(c), dim)
				}
				pts[i].X = params[i]
				pts[i].Y = c[j]
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return err
			}
			line.Color = plotutil.Color(j)
			if dashed {
				line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			} else {
				p.Legend.Add(jointLabel(jointNames, j), line)
			}
			p.Add(line)
		}
		return nil
	}
	if err := add(path, false); err != nil {
		return nil, err
	}
	for _, e := range extra {
		if err := add(e, true); err != nil {
			return nil, err
		}
	}
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// WritePathPNG plots a path and writes it as PNG.
func WritePathPNG(w io.Writer, title string, jointNames []string, path *motionplan.Path, extra ...*motionplan.Path) error {
	p, err := PlotPath(title, jointNames, path, extra...)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// pathParameters returns the cumulative arc length fraction at every point of path.
func pathParameters(path *motionplan.Path) []float64 {
	params := make([]float64, path.Len())
	total := path.Length()
	acc := 0.
	for i := 1; i < path.Len(); i++ {
		acc += motionplan.NewPath("", path.Point(i-1), path.Point(i)).Length()
		if total > 0 {
			params[i] = acc / total
		}
	}
	if total == 0 && path.Len() > 1 {
		for i := range params {
			params[i] = float64(i) / float64(path.Len()-1)
		}
	}
	return params
}

func jointLabel(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return fmt.Sprintf("q%d", j)
}
