package dataset

import (
	"math"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// Shape is the row and column count of a frame.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// ShapeOf returns the shape of df.
func ShapeOf(df dataframe.DataFrame) Shape {
	return Shape{Rows: df.Nrow(), Cols: df.Ncol()}
}

// Describe returns gota summary statistics (mean, median, std, min, max and
// quartiles) of the numeric columns cols.
func Describe(df dataframe.DataFrame, table string, cols []string) (dataframe.DataFrame, error) {
	numeric, err := numericFrame(df, table, cols)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	summary := numeric.Describe()
	if summary.Err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(summary.Err, "describe %s", table)
	}
	return summary, nil
}

// Correlation is the Pearson correlation of one feature with the target.
// Defined is false when either column is constant; Value is then 0.
type Correlation struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// Correlations returns the Pearson correlation of every feature with target,
// in feature order.
func Correlations(df dataframe.DataFrame, table string, features []string, target string) ([]Correlation, error) {
	y, err := TargetVector(df, table, target)
	if err != nil {
		return nil, err
	}
	yv := mat.Col(nil, 0, y)

	out := make([]Correlation, 0, len(features))
	for _, f := range features {
		x, err := parseColumn(df, table, f)
		if err != nil {
			return nil, err
		}
		r := stat.Correlation(x, yv, nil)
		c := Correlation{Feature: f}
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			c.Value = r
			c.Defined = true
		}
		out = append(out, c)
	}
	return out, nil
}

func numericFrame(df dataframe.DataFrame, table string, cols []string) (dataframe.DataFrame, error) {
	if err := RequireColumns(df, table, cols); err != nil {
		return dataframe.DataFrame{}, err
	}
	if df.Nrow() == 0 {
		return dataframe.DataFrame{}, errors.Wrapf(errors.ErrEmptyData, "%s has no rows", table)
	}
	columns := make([]series.Series, 0, len(cols))
	for _, c := range cols {
		values, err := parseColumn(df, table, c)
		if err != nil {
			return dataframe.DataFrame{}, err
		}
		columns = append(columns, series.New(values, series.Float, c))
	}
	out := dataframe.New(columns...)
	if out.Err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(out.Err, "numeric view of %s", table)
	}
	return out, nil
}
