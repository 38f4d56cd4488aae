package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// readFrame parses an in-memory UTF-8 CSV fixture.
func readFrame(t *testing.T, text string) dataframe.DataFrame {
	t.Helper()
	df, err := ReadCSV(strings.NewReader(text), EncodingUTF8)
	require.NoError(t, err)
	return df
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadCSV(t *testing.T) {
	df := readFrame(t, "ticket_id,lat,note\n1,42.1,a\n2,,NA\n3,NaN,nan\n")

	assert.Equal(t, 3, df.Nrow())
	assert.Equal(t, []string{"ticket_id", "lat", "note"}, df.Names())
	assert.Equal(t, []bool{false, true, true}, df.Col("lat").IsNaN())
	assert.Equal(t, []bool{false, true, true}, df.Col("note").IsNaN())
	// 型推定はしない
	assert.Equal(t, "1", df.Col("ticket_id").Records()[0])
}

func TestReadCSV_Latin1(t *testing.T) {
	raw := "ticket_id,violator_name\n1,caf\xe9\n"

	df, err := ReadCSV(strings.NewReader(raw), EncodingLatin1)
	require.NoError(t, err)
	assert.Equal(t, "café", df.Col("violator_name").Records()[0])

	df, err = ReadCSV(strings.NewReader(raw), "LATIN1")
	require.NoError(t, err)
	assert.Equal(t, "café", df.Col("violator_name").Records()[0])
}

func TestReadCSV_UnknownEncoding(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a\n1\n"), "ebcdic")
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestReadTable(t *testing.T) {
	dir := t.TempDir()
	schema := DefaultSchema()

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadTable(filepath.Join(dir, "nope.csv"), TableLatLons, EncodingUTF8, schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open latlons table")
	})

	t.Run("missing column", func(t *testing.T) {
		path := writeFile(t, dir, "latlons.csv", "address,lat\nx,1\n")
		_, err := ReadTable(path, TableLatLons, EncodingUTF8, schema)
		var schemaErr *errors.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, TableLatLons, schemaErr.Table)
		assert.Equal(t, ColLon, schemaErr.Column)
	})

	t.Run("ok", func(t *testing.T) {
		path := writeFile(t, dir, "addresses.csv", "ticket_id,address\n1,a st\n2,b st\n")
		df, err := ReadTable(path, TableAddresses, EncodingUTF8, schema)
		require.NoError(t, err)
		assert.Equal(t, 2, df.Nrow())
	})
}

func TestRequireUnique(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "unique", text: "k\n1\n2\n3\n"},
		{name: "duplicate", text: "k\n1\n2\n1\n", wantErr: true},
		{name: "missing", text: "k\n1\nNA\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireUnique(readFrame(t, tt.text), "t", "k")
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var schemaErr *errors.SchemaError
			assert.True(t, errors.As(err, &schemaErr))
		})
	}

	err := RequireUnique(readFrame(t, "k\n1\n"), "t", "other")
	var schemaErr *errors.SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}
