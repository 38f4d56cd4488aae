package linear_model

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/blight/core/model"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
//
// Binary problems fit a single weight vector through the sigmoid; three or
// more classes fit a multinomial (softmax) model. The objective is the mean
// log-loss plus ||w||²/(2·C·n) for the l2 penalty, which has the same
// minimiser as scikit-learn's C·Σloss + ||w||²/2. The intercept is never
// penalised.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	classWeight  string  // Class weight: "balanced", "none"
	solver       string  // Solver: "lbfgs", "cg", "gd"
	maxIter      int     // Maximum iterations
	warmStart    bool    // Reuse previous solution
	tol          float64 // Gradient threshold for stopping

	logger log.Logger

	// Model parameters
	coef_      [][]float64 // Coefficients (1 x n_features for binary, n_classes x n_features otherwise)
	intercept_ []float64   // Intercept terms
	classes_   []int       // Unique class labels
	nClasses_  int         // Number of classes
	nFeatures_ int         // Number of features
	nIter_     int         // Optimizer iterations
	loss_      float64     // Final objective value
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		classWeight:  "none",
		solver:       "lbfgs",
		maxIter:      100,
		warmStart:    false,
		tol:          1e-4,
		logger:       log.Nop(),
	}

	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRClassWeight sets the class weighting ("none" or "balanced")
func WithLRClassWeight(weight string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.classWeight = weight
	}
}

// WithLRWarmStart reuses the previous solution as the starting point of Fit
func WithLRWarmStart(warm bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.warmStart = warm
	}
}

// WithLRLogger sets the logger used for fit diagnostics
func WithLRLogger(logger log.Logger) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		if logger != nil {
			lr.logger = logger
		}
	}
}

func (lr *LogisticRegression) validate() error {
	switch {
	case lr.penalty != "l2" && lr.penalty != "none":
		return errors.NewValidationError("penalty", "must be 'l2' or 'none'", lr.penalty)
	case lr.C <= 0 || math.IsNaN(lr.C):
		return errors.NewValidationError("C", "must be > 0", lr.C)
	case lr.classWeight != "none" && lr.classWeight != "balanced":
		return errors.NewValidationError("class_weight", "must be 'none' or 'balanced'", lr.classWeight)
	case lr.solver != "lbfgs" && lr.solver != "cg" && lr.solver != "gd":
		return errors.NewValidationError("solver", "must be 'lbfgs', 'cg' or 'gd'", lr.solver)
	case lr.maxIter < 1:
		return errors.NewValidationError("max_iter", "must be >= 1", lr.maxIter)
	case lr.tol <= 0:
		return errors.NewValidationError("tol", "must be > 0", lr.tol)
	}
	return nil
}

func (lr *LogisticRegression) method() optimize.Method {
	switch lr.solver {
	case "cg":
		return &optimize.CG{}
	case "gd":
		return &optimize.GradientDescent{}
	default:
		return &optimize.LBFGS{}
	}
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validate(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("LogisticRegression.Fit", X, nSamples, nFeatures, 0); err != nil {
		return err
	}

	classes, labels := model.EncodeLabels(y)
	if len(classes) < 2 {
		return errors.NewValueError("LogisticRegression.Fit",
			fmt.Sprintf("this solver needs samples of at least 2 classes in the data, but the data contains only one class: %d", classes[0]))
	}

	nOut := 1
	if len(classes) > 2 {
		nOut = len(classes)
	}
	obj := &logisticObjective{
		X:         mat.DenseCopyOf(X),
		labels:    labels,
		weights:   lr.sampleWeights(labels, len(classes)),
		nOut:      nOut,
		nFeatures: nFeatures,
		intercept: lr.fitIntercept,
	}
	if lr.penalty == "l2" {
		obj.alpha = 1.0 / (lr.C * float64(nSamples))
	}

	x0 := make([]float64, nOut*obj.stride())
	if lr.warmStart && lr.state.IsFitted() && len(lr.coef_) == nOut && lr.nFeatures_ == nFeatures {
		for k := 0; k < nOut; k++ {
			copy(x0[k*obj.stride():], lr.coef_[k])
			if lr.fitIntercept {
				x0[k*obj.stride()+nFeatures] = lr.intercept_[k]
			}
		}
	}

	start := time.Now()
	problem := optimize.Problem{Func: obj.loss, Grad: obj.grad}
	settings := &optimize.Settings{
		GradientThreshold: lr.tol,
		MajorIterations:   lr.maxIter,
	}

	var result *optimize.Result
	err := errors.SafeExecute("LogisticRegression.Fit", func() error {
		var err error
		result, err = optimize.Minimize(problem, x0, settings, lr.method())
		return err
	})
	if result == nil {
		return errors.NewModelError("LogisticRegression.Fit", "optimization failed", err)
	}
	if err != nil {
		errors.Warn(errors.NewConvergenceWarning(lr.solver, result.Stats.MajorIterations, err.Error()))
	} else if result.Status == optimize.IterationLimit {
		errors.Warn(errors.NewConvergenceWarning(lr.solver, result.Stats.MajorIterations, ""))
	}
	if err := errors.CheckNumericalStability("LogisticRegression.Fit", result.X, result.Stats.MajorIterations); err != nil {
		return err
	}

	coef := make([][]float64, nOut)
	intercept := make([]float64, nOut)
	for k := 0; k < nOut; k++ {
		row := result.X[k*obj.stride() : (k+1)*obj.stride()]
		coef[k] = append([]float64(nil), row[:nFeatures]...)
		if lr.fitIntercept {
			intercept[k] = row[nFeatures]
		}
	}

	lr.coef_ = coef
	lr.intercept_ = intercept
	lr.classes_ = classes
	lr.nClasses_ = len(classes)
	lr.nFeatures_ = nFeatures
	lr.nIter_ = result.Stats.MajorIterations
	lr.loss_ = result.F
	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()

	lr.logger.Debug("logistic regression fitted",
		log.ModelNameKey, "LogisticRegression",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.IterationKey, lr.nIter_,
		log.LossKey, lr.loss_,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// sampleWeights returns per-sample weights; "balanced" uses n/(k·n_c).
func (lr *LogisticRegression) sampleWeights(labels []int, nClasses int) []float64 {
	w := make([]float64, len(labels))
	if lr.classWeight != "balanced" {
		for i := range w {
			w[i] = 1
		}
		return w
	}

	counts := make([]float64, nClasses)
	for _, l := range labels {
		counts[l]++
	}
	for i, l := range labels {
		w[i] = float64(len(labels)) / (float64(nClasses) * counts[l])
	}
	return w
}

// logisticObjective is the regularised mean log-loss over a parameter
// vector laid out as nOut rows of [w_1..w_d, b].
type logisticObjective struct {
	X         *mat.Dense
	labels    []int
	weights   []float64
	nOut      int
	nFeatures int
	intercept bool
	alpha     float64
}

func (o *logisticObjective) stride() int {
	if o.intercept {
		return o.nFeatures + 1
	}
	return o.nFeatures
}

// scores returns X·Wᵀ + b (n_samples × nOut).
func (o *logisticObjective) scores(x []float64) *mat.Dense {
	n, _ := o.X.Dims()
	W := mat.NewDense(o.nOut, o.stride(), x)
	Z := mat.NewDense(n, o.nOut, nil)
	Z.Mul(o.X, W.Slice(0, o.nOut, 0, o.nFeatures).T())
	if o.intercept {
		Z.Apply(func(_, k int, v float64) float64 {
			return v + W.At(k, o.nFeatures)
		}, Z)
	}
	return Z
}

func (o *logisticObjective) penalty(x []float64) float64 {
	if o.alpha == 0 {
		return 0
	}
	var sq float64
	for k := 0; k < o.nOut; k++ {
		w := x[k*o.stride() : k*o.stride()+o.nFeatures]
		sq += floats.Dot(w, w)
	}
	return 0.5 * o.alpha * sq
}

func (o *logisticObjective) loss(x []float64) float64 {
	Z := o.scores(x)
	n := len(o.labels)

	var total float64
	row := make([]float64, o.nOut)
	for i := 0; i < n; i++ {
		mat.Row(row, i, Z)
		var l float64
		if o.nOut == 1 {
			z := row[0]
			// log(1+exp(z)) - y·z
			l = math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
			if o.labels[i] == 1 {
				l -= z
			}
		} else {
			l = floats.LogSumExp(row) - row[o.labels[i]]
		}
		total += o.weights[i] * l
	}
	return total/float64(n) + o.penalty(x)
}

func (o *logisticObjective) grad(grad, x []float64) {
	Z := o.scores(x)
	n := len(o.labels)

	// R = (P - Y)·sw/n
	R := mat.NewDense(n, o.nOut, nil)
	row := make([]float64, o.nOut)
	for i := 0; i < n; i++ {
		mat.Row(row, i, Z)
		scale := o.weights[i] / float64(n)
		if o.nOut == 1 {
			p := errors.Sigmoid(row[0])
			if o.labels[i] == 1 {
				p--
			}
			R.Set(i, 0, scale*p)
			continue
		}
		lse := floats.LogSumExp(row)
		for k := range row {
			p := math.Exp(row[k] - lse)
			if o.labels[i] == k {
				p--
			}
			R.Set(i, k, scale*p)
		}
	}

	var G mat.Dense
	G.Mul(R.T(), o.X) // nOut × d
	for k := 0; k < o.nOut; k++ {
		base := k * o.stride()
		for j := 0; j < o.nFeatures; j++ {
			grad[base+j] = G.At(k, j) + o.alpha*x[base+j]
		}
		if o.intercept {
			grad[base+o.nFeatures] = mat.Sum(R.ColView(k))
		}
	}
}

// DecisionFunction returns the linear scores (n_samples × 1 for binary
// problems, n_samples × n_classes otherwise).
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	nSamples, nFeatures := X.Dims()
	if err := lr.state.RequireFeatures("LogisticRegression", "DecisionFunction", nFeatures); err != nil {
		return nil, err
	}

	nOut := len(lr.coef_)
	W := mat.NewDense(nOut, nFeatures, nil)
	for k, c := range lr.coef_ {
		W.SetRow(k, c)
	}
	Z := mat.NewDense(nSamples, nOut, nil)
	Z.Mul(X, W.T())
	Z.Apply(func(_, k int, v float64) float64 {
		return v + lr.intercept_[k]
	}, Z)
	return Z, nil
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Z, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := Z.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)

	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			p1 := errors.Sigmoid(Z.At(i, 0))
			probas.Set(i, 0, 1.0-p1)
			probas.Set(i, 1, p1)
		}
		return probas, nil
	}

	// Multiclass using softmax
	row := make([]float64, lr.nClasses_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, Z)
		lse := floats.LogSumExp(row)
		for k := range row {
			row[k] = math.Exp(row[k] - lse)
		}
		probas.SetRow(i, row)
	}
	return probas, nil
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := lr.PredictProba(X)
	if err != nil {
		return nil, err
	}

	nSamples, _ := probas.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	row := make([]float64, lr.nClasses_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, probas)
		predictions.Set(i, 0, float64(lr.classes_[floats.MaxIdx(row)]))
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}

	nSamples, _ := X.Dims()
	if nSamples == 0 {
		return 0.0
	}
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// Classes returns the sorted class labels seen during Fit.
func (lr *LogisticRegression) Classes() []int {
	return append([]int(nil), lr.classes_...)
}

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for k, c := range lr.coef_ {
		out[k] = append([]float64(nil), c...)
	}
	return out
}

// Intercept returns a copy of the fitted intercepts.
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept_...)
}

// NIter returns the number of optimizer iterations of the last Fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"class_weight":  lr.classWeight,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"warm_start":    lr.warmStart,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = model.ParamString(key, value)
		case "C":
			lr.C, err = model.ParamFloat(key, value)
		case "fit_intercept":
			lr.fitIntercept, err = model.ParamBool(key, value)
		case "class_weight":
			lr.classWeight, err = model.ParamString(key, value)
		case "solver":
			lr.solver, err = model.ParamString(key, value)
		case "max_iter":
			lr.maxIter, err = model.ParamInt(key, value)
		case "warm_start":
			lr.warmStart, err = model.ParamBool(key, value)
		case "tol":
			lr.tol, err = model.ParamFloat(key, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}
	return lr.validate()
}

// Clone returns an unfitted model with the same hyperparameters and logger.
func (lr *LogisticRegression) Clone() model.TunableClassifier {
	return NewLogisticRegression(
		WithLRPenalty(lr.penalty),
		WithLRC(lr.C),
		WithLogisticFitIntercept(lr.fitIntercept),
		WithLRClassWeight(lr.classWeight),
		WithLRSolver(lr.solver),
		WithLRMaxIter(lr.maxIter),
		WithLRWarmStart(lr.warmStart),
		WithLRTol(lr.tol),
		WithLRLogger(lr.logger),
	)
}

// String returns a short description of the model.
func (lr *LogisticRegression) String() string {
	return fmt.Sprintf("LogisticRegression(%s)", model.FormatParams(lr.GetParams()))
}
