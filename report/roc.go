package report

import (
	"strconv"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/blight/metrics"
	"github.com/YuminosukeSato/blight/pkg/errors"
)

// ErrSingleClass is returned by PlotROC when the labels hold only one class.
var ErrSingleClass = errors.New("roc curve needs both classes")

// Curve is one model's positive-class scores.
type Curve struct {
	Name   string
	Scores []float64
}

// PlotROC draws the ROC curve of every curve against labels and saves it to
// path. The image format follows the file extension (png, svg, pdf, ...).
func PlotROC(path string, labels []float64, curves []Curve) error {
	if len(labels) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "no validation labels")
	}
	var pos int
	for _, l := range labels {
		if l == 1 {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return ErrSingleClass
	}

	p := plot.New()
	p.Title.Text = "ROC curve (validation)"
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	yTrue := mat.NewVecDense(len(labels), append([]float64(nil), labels...))
	var lines []interface{}
	for _, c := range curves {
		if len(c.Scores) != len(labels) {
			return errors.NewDimensionError("PlotROC", len(labels), len(c.Scores), 0)
		}
		fpr, tpr, _, err := metrics.ROCCurve(yTrue, mat.NewVecDense(len(c.Scores), append([]float64(nil), c.Scores...)))
		if err != nil {
			return errors.Wrapf(err, "roc curve of %s", c.Name)
		}
		auc := metrics.TrapezoidArea(fpr, tpr)
		pts := make(plotter.XYs, len(fpr))
		for i := range fpr {
			pts[i].X, pts[i].Y = fpr[i], tpr[i]
		}
		lines = append(lines, c.Name+" (AUC "+formatAUC(auc)+")", pts)
	}
	lines = append(lines, "chance", plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})

	if err := plotutil.AddLines(p, lines...); err != nil {
		return errors.Wrap(err, "add roc lines")
	}
	p.Legend.Top = false
	p.Legend.Left = false

	if err := p.Save(5*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save roc plot %s", path)
	}
	return nil
}

func formatAUC(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
