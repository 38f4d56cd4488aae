package dataset

import (
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// Supported file encodings.
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "iso-8859-1"
)

// MissingValues are the cell values parsed as missing.
var MissingValues = []string{"", "NA", "NaN", "nan"}

// Paths locates the four input tables.
type Paths struct {
	Train         string
	Test          string
	Addresses     string
	LatLons       string
	TrainEncoding string
	TestEncoding  string
}

// Inputs holds the raw tables.
type Inputs struct {
	Train     dataframe.DataFrame
	Test      dataframe.DataFrame
	Addresses dataframe.DataFrame
	LatLons   dataframe.DataFrame
}

// decoder wraps r so that it yields UTF-8.
func decoder(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingUTF8, "utf8":
		return r, nil
	case EncodingLatin1, "latin1", "latin-1":
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, errors.NewValidationError("encoding", "must be 'utf-8' or 'iso-8859-1'", encoding)
	}
}

// ReadCSV parses CSV from r with every column as a string and MissingValues
// as missing.
func ReadCSV(r io.Reader, encoding string) (dataframe.DataFrame, error) {
	dec, err := decoder(r, encoding)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	df := dataframe.ReadCSV(dec,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(MissingValues),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, errors.Wrap(df.Err, "parse csv")
	}
	return df, nil
}

// ReadTable reads one input table and checks the schema's required columns.
func ReadTable(path, table, encoding string, schema Schema) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "open %s table", table)
	}
	defer f.Close()

	df, err := ReadCSV(f, encoding)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "read %s table %s", table, path)
	}
	if err := RequireColumns(df, table, schema.RequiredColumns(table)); err != nil {
		return dataframe.DataFrame{}, err
	}
	return df, nil
}

// LoadInputs reads the four tables and checks their key uniqueness.
func LoadInputs(paths Paths, schema Schema) (*Inputs, error) {
	train, err := ReadTable(paths.Train, TableTrain, paths.TrainEncoding, schema)
	if err != nil {
		return nil, err
	}
	test, err := ReadTable(paths.Test, TableTest, paths.TestEncoding, schema)
	if err != nil {
		return nil, err
	}
	addresses, err := ReadTable(paths.Addresses, TableAddresses, EncodingUTF8, schema)
	if err != nil {
		return nil, err
	}
	latlons, err := ReadTable(paths.LatLons, TableLatLons, EncodingUTF8, schema)
	if err != nil {
		return nil, err
	}

	keys := []struct {
		df         dataframe.DataFrame
		table, col string
	}{
		{train, TableTrain, ColTicketID},
		{test, TableTest, ColTicketID},
		{addresses, TableAddresses, ColTicketID},
		{latlons, TableLatLons, ColAddress},
	}
	for _, k := range keys {
		if err := RequireUnique(k.df, k.table, k.col); err != nil {
			return nil, err
		}
	}

	return &Inputs{Train: train, Test: test, Addresses: addresses, LatLons: latlons}, nil
}

// RequireColumns returns a SchemaError naming the first missing column.
func RequireColumns(df dataframe.DataFrame, table string, cols []string) error {
	have := make(map[string]bool, df.Ncol())
	for _, n := range df.Names() {
		have[n] = true
	}
	for _, c := range cols {
		if !have[c] {
			return errors.NewSchemaError(table, c, "required column is missing")
		}
	}
	return nil
}

// RequireUnique returns a SchemaError if col has a repeated or missing value.
func RequireUnique(df dataframe.DataFrame, table, col string) error {
	if err := RequireColumns(df, table, []string{col}); err != nil {
		return err
	}
	s := df.Col(col)
	nas := s.IsNaN()
	seen := make(map[string]int, s.Len())
	for i, v := range s.Records() {
		if nas[i] {
			return errors.NewSchemaErrorf(table, col, "missing key value at row %d", i)
		}
		if prev, ok := seen[v]; ok {
			return errors.NewSchemaErrorf(table, col, "duplicate key value %q at rows %d and %d", v, prev, i)
		}
		seen[v] = i
	}
	return nil
}
