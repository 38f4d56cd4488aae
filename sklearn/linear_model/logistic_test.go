package linear_model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
)

// TestLogisticRegression_FitPredict_Binary tests binary classification
func TestLogisticRegression_FitPredict_Binary(t *testing.T) {
	// Create simple linearly separable data
	// Class 0: points around (1, 1)
	// Class 1: points around (3, 3)
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})

	y := mat.NewDense(6, 1, []float64{
		0, 0, 0, // Class 0
		1, 1, 1, // Class 1
	})

	// Create and train model
	lr := NewLogisticRegression(
		WithLRMaxIter(1000),
		WithLRTol(1e-4),
	)

	err := lr.Fit(X, y)
	if err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	// Test predictions on training data
	predictions, err := lr.Predict(X)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}

	// Check predictions
	for i := 0; i < 6; i++ {
		pred := predictions.At(i, 0)
		actual := y.At(i, 0)
		if pred != actual {
			t.Errorf("Sample %d: expected %v, got %v", i, actual, pred)
		}
	}

	// Test on new data
	XTest := mat.NewDense(2, 2, []float64{
		1.0, 1.0, // Should be class 0
		3.0, 3.0, // Should be class 1
	})

	testPreds, err := lr.Predict(XTest)
	if err != nil {
		t.Fatalf("Failed to predict on test data: %v", err)
	}

	if testPreds.At(0, 0) != 0 {
		t.Errorf("Test point (1,1) should be class 0, got %v", testPreds.At(0, 0))
	}

	if testPreds.At(1, 0) != 1 {
		t.Errorf("Test point (3,3) should be class 1, got %v", testPreds.At(1, 0))
	}
}

// TestLogisticRegression_KnownSolution checks the optimum against a Newton
// solve of the same regularised objective.
func TestLogisticRegression_KnownSolution(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 0.5, 2.5})
	y := mat.NewDense(6, 1, []float64{0, 0, 1, 1, 1, 0})

	lr := NewLogisticRegression(WithLRTol(1e-8), WithLRMaxIter(1000))
	require.NoError(t, lr.Fit(X, y))

	assert.InDelta(t, 0.368143, lr.Coef()[0][0], 1e-4)
	assert.InDelta(t, -0.552215, lr.Intercept()[0], 1e-4)

	// 対称なデータなので x=1.5 が決定境界
	proba, err := lr.PredictProba(mat.NewDense(1, 1, []float64{1.5}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, proba.At(0, 1), 1e-4)
}

// TestLogisticRegression_PredictProba tests probability predictions
func TestLogisticRegression_PredictProba(t *testing.T) {
	// Simple data
	X := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
	})

	y := mat.NewDense(4, 1, []float64{
		0, 0, 1, 1,
	})

	lr := NewLogisticRegression(
		WithLRMaxIter(500),
	)

	err := lr.Fit(X, y)
	if err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	probas, err := lr.PredictProba(X)
	if err != nil {
		t.Fatalf("Failed to predict probabilities: %v", err)
	}

	rows, cols := probas.Dims()
	if rows != 4 || cols != 2 {
		t.Errorf("Expected probas shape (4, 2), got (%d, %d)", rows, cols)
	}

	// Check that probabilities sum to 1
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			prob := probas.At(i, j)
			if prob < 0 || prob > 1 {
				t.Errorf("Invalid probability at (%d, %d): %v", i, j, prob)
			}
			sum += prob
		}
		if math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("Probabilities for sample %d don't sum to 1: %v", i, sum)
		}
	}

	// Check that higher probability corresponds to predicted class
	predictions, _ := lr.Predict(X)
	for i := 0; i < rows; i++ {
		pred := int(predictions.At(i, 0))
		prob0 := probas.At(i, 0)
		prob1 := probas.At(i, 1)

		if pred == 0 && prob0 <= prob1 {
			t.Errorf("Sample %d: predicted class 0 but P(0)=%v <= P(1)=%v", i, prob0, prob1)
		}
		if pred == 1 && prob1 <= prob0 {
			t.Errorf("Sample %d: predicted class 1 but P(1)=%v <= P(0)=%v", i, prob1, prob0)
		}
	}

	// 決定関数の符号と確率の対応
	scores, err := lr.DecisionFunction(X)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		assert.Equal(t, scores.At(i, 0) > 0, probas.At(i, 1) > 0.5)
	}
}

// TestLogisticRegression_Score tests accuracy calculation
func TestLogisticRegression_Score(t *testing.T) {
	X := mat.NewDense(8, 3, []float64{
		0, 0, 0,
		0, 0, 1,
		0, 1, 0,
		0, 1, 1,
		1, 0, 0,
		1, 0, 1,
		1, 1, 0,
		1, 1, 1,
	})

	// Simple pattern: class 1 if sum of features > 1.5
	y := mat.NewDense(8, 1, []float64{
		0, 0, 0, 1, 0, 1, 1, 1,
	})

	lr := NewLogisticRegression(
		WithLRMaxIter(1000),
		WithLRC(10.0), // Less regularization for better fit
	)

	err := lr.Fit(X, y)
	if err != nil {
		t.Fatalf("Failed to fit model: %v", err)
	}

	score := lr.Score(X, y)
	if score < 0.75 { // Should achieve at least 75% accuracy
		t.Errorf("Score too low: %v", score)
	}

	// Perfect classification test with better separated data
	XSimple := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		3, 3,
		3, 4,
		4, 3,
	})
	ySimple := mat.NewDense(6, 1, []float64{
		0, 0, 0, // Class 0 (lower values)
		1, 1, 1, // Class 1 (higher values)
	})

	lr2 := NewLogisticRegression(
		WithLRMaxIter(1000),
		WithLRC(10.0), // Less regularization for better fit
	)
	require.NoError(t, lr2.Fit(XSimple, ySimple))

	scoreSimple := lr2.Score(XSimple, ySimple)
	if scoreSimple != 1.0 {
		t.Errorf("Expected perfect score for linearly separable data, got %v", scoreSimple)
	}
}

// TestLogisticRegression_Regularization tests L2 regularization
func TestLogisticRegression_Regularization(t *testing.T) {
	// Create data with many features (prone to overfitting)
	X := mat.NewDense(10, 5, []float64{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
		1, 1, 0, 0, 0,
		0, 1, 1, 0, 0,
		0, 0, 1, 1, 0,
		0, 0, 0, 1, 1,
		1, 0, 0, 0, 1,
	})

	y := mat.NewDense(10, 1, []float64{
		0, 0, 0, 1, 1, 0, 0, 1, 1, 1,
	})

	// Train with strong regularization
	lrStrong := NewLogisticRegression(
		WithLRC(0.01), // Strong regularization (small C)
		WithLRMaxIter(1000),
	)
	require.NoError(t, lrStrong.Fit(X, y))

	// Train with weak regularization
	lrWeak := NewLogisticRegression(
		WithLRC(100.0), // Weak regularization (large C)
		WithLRMaxIter(1000),
	)
	require.NoError(t, lrWeak.Fit(X, y))

	// Check that strong regularization produces smaller weights
	strongNorm := 0.0
	weakNorm := 0.0

	for j := 0; j < 5; j++ {
		strongNorm += lrStrong.coef_[0][j] * lrStrong.coef_[0][j]
		weakNorm += lrWeak.coef_[0][j] * lrWeak.coef_[0][j]
	}

	strongNorm = math.Sqrt(strongNorm)
	weakNorm = math.Sqrt(weakNorm)

	if strongNorm >= weakNorm {
		t.Errorf("Strong regularization should produce smaller weights: strong=%v, weak=%v",
			strongNorm, weakNorm)
	}
}

// TestLogisticRegression_Multiclass tests multiclass classification
func TestLogisticRegression_Multiclass(t *testing.T) {
	// Create 3-class data
	X := mat.NewDense(9, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
		4, 4,
		4, 5,
		5, 4,
	})

	y := mat.NewDense(9, 1, []float64{
		0, 0, 0, // Class 0
		1, 1, 1, // Class 1
		2, 2, 2, // Class 2
	})

	lr := NewLogisticRegression(
		WithLRMaxIter(1000),
		WithLRC(10.0),
	)

	err := lr.Fit(X, y)
	if err != nil {
		t.Fatalf("Failed to fit multiclass model: %v", err)
	}

	// Check that we have 3 classes
	if lr.nClasses_ != 3 {
		t.Errorf("Expected 3 classes, got %d", lr.nClasses_)
	}
	assert.Len(t, lr.Coef(), 3)

	// Check predictions
	predictions, err := lr.Predict(X)
	if err != nil {
		t.Fatalf("Failed to predict: %v", err)
	}

	correct := 0
	for i := 0; i < 9; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}

	accuracy := float64(correct) / 9.0
	if accuracy < 0.89 { // Should achieve at least 89% accuracy (8/9)
		t.Errorf("Multiclass accuracy too low: %v", accuracy)
	}

	// Test probability predictions
	probas, err := lr.PredictProba(X)
	if err != nil {
		t.Fatalf("Failed to predict probabilities: %v", err)
	}

	rows, cols := probas.Dims()
	if cols != 3 {
		t.Errorf("Expected 3 probability columns, got %d", cols)
	}

	// Check probability constraints
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			prob := probas.At(i, j)
			if prob < 0 || prob > 1 {
				t.Errorf("Invalid probability at (%d, %d): %v", i, j, prob)
			}
			sum += prob
		}
		if math.Abs(sum-1.0) > 1e-6 {
			t.Errorf("Probabilities for sample %d don't sum to 1: %v", i, sum)
		}
	}
}

// TestLogisticRegression_NonContiguousLabels tests labels other than 0/1
func TestLogisticRegression_NonContiguousLabels(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 5, 6})
	y := mat.NewDense(4, 1, []float64{3, 3, 7, 7})

	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, []int{3, 7}, lr.Classes())

	pred, err := lr.Predict(mat.NewDense(2, 1, []float64{-1, 8}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, pred.At(0, 0))
	assert.Equal(t, 7.0, pred.At(1, 0))
}

// TestLogisticRegression_ClassWeight tests balanced class weights
func TestLogisticRegression_ClassWeight(t *testing.T) {
	// 1:5 の不均衡データ
	X := mat.NewDense(6, 1, []float64{0, 0.2, 0.4, 0.6, 0.8, 1.0})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 0, 0, 1})

	plain := NewLogisticRegression()
	balanced := NewLogisticRegression(WithLRClassWeight("balanced"))
	require.NoError(t, plain.Fit(X, y))
	require.NoError(t, balanced.Fit(X, y))

	probe := mat.NewDense(1, 1, []float64{1.0})
	pPlain, err := plain.PredictProba(probe)
	require.NoError(t, err)
	pBalanced, err := balanced.PredictProba(probe)
	require.NoError(t, err)

	assert.Greater(t, pBalanced.At(0, 1), pPlain.At(0, 1))
}

// TestLogisticRegression_ConvergenceWarning tests the warning raised at max_iter
func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	lr := NewLogisticRegression(WithLRMaxIter(1), WithLRTol(1e-12))
	require.NoError(t, lr.Fit(X, y))

	require.NotEmpty(t, warnings)
	var convWarn *errors.ConvergenceWarning
	assert.True(t, errors.As(warnings[0], &convWarn))
	assert.Equal(t, "lbfgs", convWarn.Algorithm)
}

// TestLogisticRegression_WarmStart tests reuse of the previous solution
func TestLogisticRegression_WarmStart(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 0.5, 2.5})
	y := mat.NewDense(6, 1, []float64{0, 0, 1, 1, 1, 0})

	lr := NewLogisticRegression(WithLRWarmStart(true), WithLRTol(1e-8), WithLRMaxIter(1000))
	require.NoError(t, lr.Fit(X, y))
	first := lr.NIter()
	coef := lr.Coef()[0][0]

	require.NoError(t, lr.Fit(X, y))
	assert.LessOrEqual(t, lr.NIter(), first)
	assert.InDelta(t, coef, lr.Coef()[0][0], 1e-4)
}

// TestLogisticRegression_Solvers tests that every solver reaches the same optimum
func TestLogisticRegression_Solvers(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 0.5, 2.5})
	y := mat.NewDense(6, 1, []float64{0, 0, 1, 1, 1, 0})

	for _, solver := range []string{"lbfgs", "cg", "gd"} {
		t.Run(solver, func(t *testing.T) {
			lr := NewLogisticRegression(WithLRSolver(solver), WithLRTol(1e-7), WithLRMaxIter(10000))
			require.NoError(t, lr.Fit(X, y))
			assert.InDelta(t, 0.368143, lr.Coef()[0][0], 1e-3)
		})
	}
}

// TestLogisticRegression_Logs tests fit diagnostics
func TestLogisticRegression_Logs(t *testing.T) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})

	lr := NewLogisticRegression(WithLRLogger(logger))
	require.NoError(t, lr.Fit(X, y))
	assert.True(t, logger.ContainsMessage("logistic regression fitted"))
	assert.True(t, logger.ContainsField(log.ModelNameKey, "LogisticRegression"))
}

// TestLogisticRegression_GetSetParams tests parameter management
func TestLogisticRegression_GetSetParams(t *testing.T) {
	lr := NewLogisticRegression()

	// Get default params
	params := lr.GetParams()

	// Check some defaults
	if params["C"].(float64) != 1.0 {
		t.Errorf("Default C should be 1.0, got %v", params["C"])
	}

	if params["max_iter"].(int) != 100 {
		t.Errorf("Default max_iter should be 100, got %v", params["max_iter"])
	}

	// Set new params
	newParams := map[string]interface{}{
		"C":        2.0,
		"max_iter": 200,
		"penalty":  "none",
		"tol":      1e-5,
	}

	err := lr.SetParams(newParams)
	if err != nil {
		t.Fatalf("Failed to set params: %v", err)
	}

	// Verify changes
	if lr.C != 2.0 {
		t.Errorf("C not updated: expected 2.0, got %v", lr.C)
	}

	if lr.maxIter != 200 {
		t.Errorf("max_iter not updated: expected 200, got %v", lr.maxIter)
	}

	if lr.penalty != "none" {
		t.Errorf("penalty not updated: expected 'none', got %v", lr.penalty)
	}

	if lr.tol != 1e-5 {
		t.Errorf("tol not updated: expected 1e-5, got %v", lr.tol)
	}

	clone := lr.Clone()
	assert.Equal(t, lr.GetParams(), clone.GetParams())

	invalid := []map[string]interface{}{
		{"penalty": "l1"},
		{"C": 0.0},
		{"solver": "saga"},
		{"class_weight": "auto"},
		{"max_iter": 0},
		{"max_iter": "ten"},
		{"l1_ratio": 0.5},
	}
	for _, p := range invalid {
		assert.Error(t, NewLogisticRegression().SetParams(p), "%v", p)
	}
}

// TestLogisticRegression_Errors tests input validation
func TestLogisticRegression_Errors(t *testing.T) {
	lr := NewLogisticRegression()

	X := mat.NewDense(2, 2, []float64{
		1, 2,
		3, 4,
	})

	_, err := lr.Predict(X)
	var notFitted *errors.NotFittedError
	assert.True(t, errors.As(err, &notFitted))

	_, err = lr.PredictProba(X)
	assert.True(t, errors.As(err, &notFitted))

	// 1クラスのみ
	err = lr.Fit(X, mat.NewDense(2, 1, []float64{1, 1}))
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))

	// NaNを含む行列
	err = lr.Fit(mat.NewDense(2, 1, []float64{1, math.NaN()}), mat.NewDense(2, 1, []float64{0, 1}))
	var numErr *errors.NumericalInstabilityError
	assert.True(t, errors.As(err, &numErr))

	require.NoError(t, lr.Fit(X, mat.NewDense(2, 1, []float64{0, 1})))
	_, err = lr.Predict(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}
