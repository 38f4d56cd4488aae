package dataset

import (
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// FilterCompliance keeps the training rows whose compliance is 0 or 1 and
// rewrites the column as "0"/"1". Rows with a missing or other value
// (tickets not found responsible) are dropped.
func FilterCompliance(train dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := RequireColumns(train, TableTrain, []string{ColCompliance}); err != nil {
		return dataframe.DataFrame{}, err
	}

	s := train.Col(ColCompliance)
	nas := s.IsNaN()
	var keep []int
	var labels []string
	for i, v := range s.Records() {
		if nas[i] {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || (f != 0 && f != 1) {
			continue
		}
		keep = append(keep, i)
		labels = append(labels, strconv.Itoa(int(f)))
	}
	if len(keep) == 0 {
		return dataframe.DataFrame{}, errors.Wrap(errors.ErrEmptyData, "no training row has compliance 0 or 1")
	}

	out := train.Subset(keep).Mutate(series.New(labels, series.String, ColCompliance))
	if out.Err != nil {
		return dataframe.DataFrame{}, errors.Wrap(out.Err, "filter compliance")
	}
	return out, nil
}

// DropColumns removes cols from df. Every column must exist.
func DropColumns(df dataframe.DataFrame, table string, cols []string) (dataframe.DataFrame, error) {
	if err := RequireColumns(df, table, cols); err != nil {
		return dataframe.DataFrame{}, err
	}

	// 重複指定は一度だけ落とす
	seen := make(map[string]bool, len(cols))
	var unique []string
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}

	out := df.Drop(unique)
	if out.Err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(out.Err, "drop columns from %s", table)
	}
	return out, nil
}

// DropMissingGeo removes rows with a missing lat or lon and reports how many
// were removed.
func DropMissingGeo(df dataframe.DataFrame, table string) (dataframe.DataFrame, int, error) {
	if err := RequireColumns(df, table, []string{ColLat, ColLon}); err != nil {
		return dataframe.DataFrame{}, 0, err
	}

	latNA := df.Col(ColLat).IsNaN()
	lonNA := df.Col(ColLon).IsNaN()
	var keep []int
	for i := range latNA {
		if !latNA[i] && !lonNA[i] {
			keep = append(keep, i)
		}
	}

	dropped := df.Nrow() - len(keep)
	if len(keep) == 0 {
		return dataframe.DataFrame{}, dropped, errors.Wrapf(errors.ErrEmptyData, "every %s row is missing lat or lon", table)
	}
	if dropped == 0 {
		return df, 0, nil
	}

	out := df.Subset(keep)
	if out.Err != nil {
		return dataframe.DataFrame{}, dropped, errors.Wrap(out.Err, "drop missing geo")
	}
	return out, dropped, nil
}

// ImputeGeoMean replaces missing lat and lon values with the column mean of
// the same table. It returns the number of imputed cells per column.
func ImputeGeoMean(df dataframe.DataFrame, table string) (dataframe.DataFrame, map[string]int, error) {
	if err := RequireColumns(df, table, []string{ColLat, ColLon}); err != nil {
		return dataframe.DataFrame{}, nil, err
	}

	imputed := make(map[string]int, 2)
	out := df
	for _, col := range []string{ColLat, ColLon} {
		s := out.Col(col)
		nas := s.IsNaN()
		records := s.Records()

		var present []float64
		for i, v := range records {
			if nas[i] {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return dataframe.DataFrame{}, nil, errors.NewSchemaErrorf(table, col, "non-numeric value %q at row %d", v, i)
			}
			present = append(present, f)
		}
		if len(present) == 0 {
			return dataframe.DataFrame{}, nil, errors.NewValueError("ImputeGeoMean", "every "+table+" value of "+col+" is missing")
		}
		if len(present) == len(records) {
			imputed[col] = 0
			continue
		}

		mean := strconv.FormatFloat(stat.Mean(present, nil), 'g', -1, 64)
		filled := make([]string, len(records))
		for i, v := range records {
			if nas[i] {
				filled[i] = mean
				imputed[col]++
			} else {
				filled[i] = v
			}
		}
		out = out.Mutate(series.New(filled, series.String, col))
		if out.Err != nil {
			return dataframe.DataFrame{}, nil, errors.Wrapf(out.Err, "impute %s", col)
		}
	}
	return out, imputed, nil
}

// NullCounts returns the number of missing cells per column.
func NullCounts(df dataframe.DataFrame) map[string]int {
	counts := make(map[string]int, df.Ncol())
	for _, name := range df.Names() {
		n := 0
		for _, na := range df.Col(name).IsNaN() {
			if na {
				n++
			}
		}
		counts[name] = n
	}
	return counts
}
