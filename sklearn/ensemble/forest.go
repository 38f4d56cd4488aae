// Package ensemble implements bagged tree ensembles.
package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/core/model"
	"github.com/YuminosukeSato/blight/core/parallel"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
	"github.com/YuminosukeSato/blight/sklearn/tree"
)

// RandomForestClassifier averages the class probabilities of decision trees
// fitted on bootstrap samples with random feature subsets at each split.
// Compatible with scikit-learn's RandomForestClassifier.
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int // 0 means unbounded
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2" or "all"
	bootstrap       bool
	randomState     int64 // -1 draws a seed
	nJobs           int   // 0 uses every CPU

	logger log.Logger

	// Fitted attributes
	estimators_         []*tree.DecisionTreeClassifier
	classes_            []int
	nFeatures_          int
	featureImportances_ []float64
}

// Option is a functional option for RandomForestClassifier
type Option func(*RandomForestClassifier)

// NewRandomForestClassifier creates a new RandomForestClassifier
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
		nJobs:           0,
		logger:          log.Nop(),
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion ("gini" or "entropy")
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits tree depth; 0 means unbounded
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples required in a leaf
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature budget: "sqrt", "log2" or "all"
func WithMaxFeatures(mode string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = mode }
}

// WithBootstrap sets whether trees are fitted on bootstrap samples
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithRandomState sets the random seed
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of trees fitted concurrently; 0 uses every CPU
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// WithLogger sets the logger used for fit diagnostics
func WithLogger(logger log.Logger) Option {
	return func(rf *RandomForestClassifier) {
		if logger != nil {
			rf.logger = logger
		}
	}
}

func (rf *RandomForestClassifier) validate() error {
	switch {
	case rf.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	case rf.maxFeatures != "sqrt" && rf.maxFeatures != "log2" && rf.maxFeatures != "all":
		return errors.NewValidationError("max_features", "must be 'sqrt', 'log2' or 'all'", rf.maxFeatures)
	case rf.nJobs < 0:
		return errors.NewValidationError("n_jobs", "must be >= 0", rf.nJobs)
	}
	// criterion, depth and sample limits are validated by the trees
	return rf.newTree(1, 0).SetParams(map[string]interface{}{})
}

// featuresPerSplit resolves maxFeatures for nFeatures columns (0 = all).
func (rf *RandomForestClassifier) featuresPerSplit(nFeatures int) int {
	var k int
	switch rf.maxFeatures {
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	default:
		return 0
	}
	if k < 1 {
		k = 1
	}
	return k
}

func (rf *RandomForestClassifier) newTree(maxFeatures int, seed int64) *tree.DecisionTreeClassifier {
	return tree.NewDecisionTreeClassifier(
		tree.WithCriterion(rf.criterion),
		tree.WithMaxDepth(rf.maxDepth),
		tree.WithMinSamplesSplit(rf.minSamplesSplit),
		tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
		tree.WithMaxFeatures(maxFeatures),
		tree.WithRandomState(seed),
	)
}

// Fit trains nEstimators trees. Tree i draws its bootstrap sample and its
// feature order from a seed derived from randomState, so a fixed seed gives
// the same forest regardless of nJobs.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if err := rf.validate(); err != nil {
		return err
	}

	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("RandomForestClassifier.Fit", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("RandomForestClassifier.Fit", X, nSamples, nFeatures, 0); err != nil {
		return err
	}

	start := time.Now()
	cols := tree.Columns(X)
	classes, labels := model.EncodeLabels(y)
	k := rf.featuresPerSplit(nFeatures)

	seed := rf.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	estimators := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	errs := make([]error, rf.nEstimators)

	parallel.ForEach(rf.nEstimators, rf.nJobs, func(i int) {
		rng := rand.New(rand.NewSource(seeds[i]))

		samples := make([]int, nSamples)
		for j := range samples {
			if rf.bootstrap {
				samples[j] = rng.Intn(nSamples)
			} else {
				samples[j] = j
			}
		}

		t := rf.newTree(k, rng.Int63())
		errs[i] = errors.SafeExecute("RandomForestClassifier.Fit", func() error {
			return t.FitColumns(cols, labels, classes, samples)
		})
		estimators[i] = t
	})

	for i, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "fit tree %d", i)
		}
	}

	importances := make([]float64, nFeatures)
	for _, t := range estimators {
		for j, v := range t.GetFeatureImportances() {
			importances[j] += v / float64(len(estimators))
		}
	}

	rf.estimators_ = estimators
	rf.classes_ = classes
	rf.nFeatures_ = nFeatures
	rf.featureImportances_ = importances
	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()

	rf.logger.Debug("forest fitted",
		log.ModelNameKey, "RandomForestClassifier",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.HyperParamsKey, model.FormatParams(rf.GetParams()),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// PredictProba returns the mean of the trees' class distributions
// (n_samples × n_classes, columns ordered as Classes()).
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	nSamples, nFeatures := X.Dims()
	if err := rf.state.RequireFeatures("RandomForestClassifier", "PredictProba", nFeatures); err != nil {
		return nil, err
	}

	nClasses := len(rf.classes_)
	probas := mat.NewDense(nSamples, nClasses, nil)
	scale := 1.0 / float64(len(rf.estimators_))

	parallel.ParallelizeN(nSamples, rf.nJobs, func(start, end int) {
		row := make([]float64, nFeatures)
		acc := make([]float64, nClasses)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			for c := range acc {
				acc[c] = 0
			}
			for _, t := range rf.estimators_ {
				for c, p := range t.ProbaRow(row) {
					acc[c] += p
				}
			}
			for c := range acc {
				acc[c] *= scale
			}
			probas.SetRow(i, acc)
		}
	})
	return probas, nil
}

// Predict returns the class with the highest mean probability
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}

	nSamples, nClasses := probas.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		best := 0
		for c := 1; c < nClasses; c++ {
			if probas.At(i, c) > probas.At(i, best) {
				best = c
			}
		}
		predictions.Set(i, 0, float64(rf.classes_[best]))
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given data and labels
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := rf.Predict(X)
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
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators_
}

// GetFeatureImportances returns the mean impurity-based importances of the trees.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), rf.featureImportances_...)
}

// GetParams returns the model hyperparameters
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets the model hyperparameters
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			rf.nEstimators, err = model.ParamInt(key, value)
		case "criterion":
			rf.criterion, err = model.ParamString(key, value)
		case "max_depth":
			rf.maxDepth, err = model.ParamInt(key, value)
		case "min_samples_split":
			rf.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			rf.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			rf.maxFeatures, err = model.ParamString(key, value)
		case "bootstrap":
			rf.bootstrap, err = model.ParamBool(key, value)
		case "random_state":
			rf.randomState, err = model.ParamInt64(key, value)
		case "n_jobs":
			rf.nJobs, err = model.ParamInt(key, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}
	return rf.validate()
}

// Clone returns an unfitted forest with the same hyperparameters and logger.
func (rf *RandomForestClassifier) Clone() model.TunableClassifier {
	return NewRandomForestClassifier(
		WithNEstimators(rf.nEstimators),
		WithCriterion(rf.criterion),
		WithMaxDepth(rf.maxDepth),
		WithMinSamplesSplit(rf.minSamplesSplit),
		WithMinSamplesLeaf(rf.minSamplesLeaf),
		WithMaxFeatures(rf.maxFeatures),
		WithBootstrap(rf.bootstrap),
		WithRandomState(rf.randomState),
		WithNJobs(rf.nJobs),
		WithLogger(rf.logger),
	)
}

// String returns a short description of the forest.
func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(%s)", model.FormatParams(rf.GetParams()))
}
