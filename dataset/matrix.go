package dataset

import (
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// FeatureMatrix converts the features columns of df into a dense matrix with
// one row per frame row and one column per feature, in order.
// A missing or non-numeric cell is a SchemaError.
func FeatureMatrix(df dataframe.DataFrame, table string, features []string) (*mat.Dense, error) {
	if len(features) == 0 {
		return nil, errors.NewValueError("FeatureMatrix", "no features declared")
	}
	if err := RequireColumns(df, table, features); err != nil {
		return nil, err
	}
	rows := df.Nrow()
	if rows == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s has no rows", table)
	}

	data := make([]float64, rows*len(features))
	for j, col := range features {
		values, err := parseColumn(df, table, col)
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			data[i*len(features)+j] = v
		}
	}
	return mat.NewDense(rows, len(features), data), nil
}

// TargetVector returns the target column as an n×1 matrix.
func TargetVector(df dataframe.DataFrame, table, target string) (*mat.Dense, error) {
	if err := RequireColumns(df, table, []string{target}); err != nil {
		return nil, err
	}
	values, err := parseColumn(df, table, target)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s has no rows", table)
	}
	return mat.NewDense(len(values), 1, values), nil
}

// TicketIDs returns the ticket_id column as integers.
func TicketIDs(df dataframe.DataFrame, table string) ([]int64, error) {
	if err := RequireColumns(df, table, []string{ColTicketID}); err != nil {
		return nil, err
	}
	s := df.Col(ColTicketID)
	nas := s.IsNaN()
	ids := make([]int64, s.Len())
	for i, v := range s.Records() {
		if nas[i] {
			return nil, errors.NewSchemaErrorf(table, ColTicketID, "missing value at row %d", i)
		}
		v = strings.TrimSpace(v)
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			// "12345.0" のような浮動小数表記も許す
			f, ferr := strconv.ParseFloat(v, 64)
			if ferr != nil || f != float64(int64(f)) {
				return nil, errors.NewSchemaErrorf(table, ColTicketID, "non-integer value %q at row %d", v, i)
			}
			id = int64(f)
		}
		ids[i] = id
	}
	return ids, nil
}

func parseColumn(df dataframe.DataFrame, table, col string) ([]float64, error) {
	s := df.Col(col)
	nas := s.IsNaN()
	out := make([]float64, s.Len())
	for i, v := range s.Records() {
		if nas[i] {
			return nil, errors.NewSchemaErrorf(table, col, "missing value at row %d", i)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errors.NewSchemaErrorf(table, col, "non-numeric value %q at row %d", v, i)
		}
		out[i] = f
	}
	return out, nil
}
