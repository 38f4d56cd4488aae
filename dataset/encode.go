package dataset

import (
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/preprocessing"
)

// VocabularyMode selects which tables a categorical encoder is fitted on.
type VocabularyMode string

const (
	// VocabularyUnion fits on train and test values together. Every value of
	// either table gets a code, at the price of test categories leaking into
	// the encoder.
	VocabularyUnion VocabularyMode = "union"
	// VocabularyTrain fits on training values only; unseen test values map to
	// preprocessing.UnknownCode.
	VocabularyTrain VocabularyMode = "train"
)

// Valid reports whether m is a known mode.
func (m VocabularyMode) Valid() bool {
	return m == VocabularyUnion || m == VocabularyTrain
}

// Encoded is the result of EncodeCategoricals.
type Encoded struct {
	Train dataframe.DataFrame
	Test  dataframe.DataFrame
	// Encoders holds the fitted encoder per column.
	Encoders map[string]*preprocessing.LabelEncoder
	// Unknown counts test values mapped to UnknownCode per column.
	Unknown map[string]int
}

// VocabularySizes returns the number of learned classes per column.
func (e *Encoded) VocabularySizes() map[string]int {
	sizes := make(map[string]int, len(e.Encoders))
	for col, enc := range e.Encoders {
		sizes[col] = enc.Len()
	}
	return sizes
}

// EncodeCategoricals replaces each column in columns with integer codes in
// both tables. The same encoder, and therefore the same code for a value, is
// used for train and test. Missing cells encode as the value "NaN".
func EncodeCategoricals(train, test dataframe.DataFrame, columns []string, mode VocabularyMode) (*Encoded, error) {
	if !mode.Valid() {
		return nil, errors.NewValidationError("vocabulary", "must be 'union' or 'train'", string(mode))
	}
	if err := RequireColumns(train, TableTrain, columns); err != nil {
		return nil, err
	}
	if err := RequireColumns(test, TableTest, columns); err != nil {
		return nil, err
	}

	out := &Encoded{
		Train:    train,
		Test:     test,
		Encoders: make(map[string]*preprocessing.LabelEncoder, len(columns)),
		Unknown:  make(map[string]int, len(columns)),
	}

	for _, col := range columns {
		trainValues := train.Col(col).Records()
		testValues := test.Col(col).Records()

		var enc *preprocessing.LabelEncoder
		var err error
		switch mode {
		case VocabularyUnion:
			enc = preprocessing.NewLabelEncoder()
			err = enc.Fit(trainValues, testValues)
		case VocabularyTrain:
			enc = preprocessing.NewLabelEncoder(preprocessing.WithUnknownCode())
			err = enc.Fit(trainValues)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "fit encoder for %s", col)
		}

		trainCodes, err := enc.Transform(trainValues)
		if err != nil {
			return nil, errors.Wrapf(err, "encode train %s", col)
		}
		testCodes, err := enc.Transform(testValues)
		if err != nil {
			return nil, errors.Wrapf(err, "encode test %s", col)
		}
		for _, c := range testCodes {
			if c == preprocessing.UnknownCode {
				out.Unknown[col]++
			}
		}

		out.Train = out.Train.Mutate(series.New(trainCodes, series.Int, col))
		out.Test = out.Test.Mutate(series.New(testCodes, series.Int, col))
		if out.Train.Err != nil {
			return nil, errors.Wrapf(out.Train.Err, "replace train %s", col)
		}
		if out.Test.Err != nil {
			return nil, errors.Wrapf(out.Test.Err, "replace test %s", col)
		}
		out.Encoders[col] = enc
	}
	return out, nil
}
