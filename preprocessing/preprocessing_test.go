package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	scaler := NewStandardScalerDefault()
	Xs, err := scaler.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, scaler.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), scaler.Scale[0], 1e-12)
	// 定数列のスケールは1
	assert.Equal(t, 1.0, scaler.Scale[1])

	var colSum float64
	for i := 0; i < 4; i++ {
		colSum += Xs.At(i, 0)
		assert.Equal(t, 0.0, Xs.At(i, 1))
	}
	assert.InDelta(t, 0, colSum, 1e-12)

	back, err := scaler.InverseTransform(Xs)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))
}

func TestStandardScaler_Errors(t *testing.T) {
	scaler := NewStandardScalerDefault()

	_, err := scaler.Transform(mat.NewDense(1, 2, nil))
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	require.NoError(t, scaler.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = scaler.Transform(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Got)

	assert.Error(t, scaler.Fit(&mat.Dense{}))
}

func TestLabelEncoder_UnionVocabulary(t *testing.T) {
	train := []string{"Responsible by Default", "Responsible by Admission", "Responsible by Default"}
	test := []string{"Responsible (Fine Waived) by Deter", "Responsible by Admission"}

	enc := NewLabelEncoder()
	require.NoError(t, enc.Fit(train, test))

	assert.Equal(t, []string{
		"Responsible (Fine Waived) by Deter",
		"Responsible by Admission",
		"Responsible by Default",
	}, enc.Classes())

	trainCodes, err := enc.Transform(train)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 2}, trainCodes)

	testCodes, err := enc.Transform(test)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, testCodes)

	decoded, err := enc.InverseTransform(testCodes)
	require.NoError(t, err)
	assert.Equal(t, test, decoded)
}

func TestLabelEncoder_Deterministic(t *testing.T) {
	a := NewLabelEncoder()
	b := NewLabelEncoder()
	require.NoError(t, a.Fit([]string{"c", "a", "b"}))
	require.NoError(t, b.Fit([]string{"b"}, []string{"a", "c", "a"}))
	assert.Equal(t, a.Classes(), b.Classes())
}

func TestLabelEncoder_Unknown(t *testing.T) {
	tests := []struct {
		name    string
		opts    []LabelEncoderOption
		want    []int
		wantErr bool
	}{
		{name: "strict", wantErr: true},
		{name: "unknown code", opts: []LabelEncoderOption{WithUnknownCode()}, want: []int{0, UnknownCode}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := NewLabelEncoder(tt.opts...)
			require.NoError(t, enc.Fit([]string{"9-1-36(a)", "22-2-88"}))

			got, err := enc.Transform([]string{"22-2-88", "61-63.0600"})
			if tt.wantErr {
				var valErr *errors.ValueError
				assert.True(t, errors.As(err, &valErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLabelEncoder_Errors(t *testing.T) {
	enc := NewLabelEncoder()

	_, err := enc.Transform([]string{"x"})
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	assert.Error(t, enc.Fit())
	assert.Error(t, enc.Fit([]string{}))

	require.NoError(t, enc.Fit([]string{"x"}))
	_, err = enc.InverseTransform([]int{UnknownCode})
	assert.Error(t, err)
}
