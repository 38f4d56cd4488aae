// Package model_selection provides data splitters and hyper-parameter search
// in the style of scikit-learn's sklearn.model_selection.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// TrainTestIndices returns a seeded random partition of [0, nSamples).
// The test part holds ceil(testSize·nSamples) indices; both parts keep the
// permutation order, so the same seed always yields the same membership.
func TrainTestIndices(nSamples int, testSize float64, seed uint64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}

	nTest := int(math.Ceil(testSize * float64(nSamples)))
	nTrain := nSamples - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%g the resulting train set would be empty", nSamples, testSize))
	}

	r := rand.New(rand.NewPCG(seed, seed))
	perm := r.Perm(nSamples)
	return perm[nTest:], perm[:nTest], nil
}

// TrainTestSplit splits X and y into random train and test subsets.
//
//	XTrain, XTest, yTrain, yTest, err := model_selection.TrainTestSplit(X, y, 0.25, 0)
func TrainTestSplit(X, y mat.Matrix, testSize float64, seed uint64) (XTrain, XTest, yTrain, yTest *mat.Dense, err error) {
	nSamples, _ := X.Dims()
	yRows, _ := y.Dims()
	if yRows != nSamples {
		return nil, nil, nil, nil, errors.NewDimensionError("TrainTestSplit", nSamples, yRows, 0)
	}

	train, test, err := TrainTestIndices(nSamples, testSize, seed)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return TakeRows(X, train), TakeRows(X, test), TakeRows(y, train), TakeRows(y, test), nil
}

// TakeRows copies the given rows of m, in the given order, into a new matrix.
func TakeRows(m mat.Matrix, indices []int) *mat.Dense {
	_, cols := m.Dims()
	if len(indices) == 0 {
		return &mat.Dense{}
	}

	out := mat.NewDense(len(indices), cols, nil)
	row := make([]float64, cols)
	for i, idx := range indices {
		mat.Row(row, idx, m)
		out.SetRow(i, row)
	}
	return out
}
