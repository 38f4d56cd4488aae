// Package tree implements CART decision trees compatible with scikit-learn's
// DecisionTreeClassifier.
package tree

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/core/model"
	"github.com/YuminosukeSato/blight/pkg/errors"
)

const leafFeature = -1

// node is one entry of the flattened tree. Leaves have feature == leafFeature.
type node struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     []float64 // class distribution of the training samples in the node
	nSamples  int
	impurity  float64
}

// DecisionTreeClassifier is a CART classifier with gini or entropy criterion.
//
// Splits are axis-aligned (x[feature] <= threshold goes left) with thresholds
// at the midpoint between consecutive distinct values.
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // 0 means unbounded
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int   // features examined per split, 0 means all
	randomState     int64 // -1 draws a seed

	// Fitted attributes
	nodes               []node
	classes_            []int
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

// Option is a functional option for DecisionTreeClassifier
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a new DecisionTreeClassifier
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the impurity criterion ("gini" or "entropy")
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth limits the depth of the tree; 0 means unbounded
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples required in a leaf
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many randomly chosen features are examined per split
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = n
	}
}

// WithRandomState sets the seed used for feature sampling
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

func (dt *DecisionTreeClassifier) validate() error {
	switch {
	case dt.criterion != "gini" && dt.criterion != "entropy":
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	case dt.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0 (0 means unbounded)", dt.maxDepth)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	case dt.maxFeatures < 0:
		return errors.NewValidationError("max_features", "must be >= 0", dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from X (n_samples × n_features) and a column vector y
// of integer class labels.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("DecisionTreeClassifier.Fit", X, nSamples, nFeatures, 0); err != nil {
		return err
	}

	cols := Columns(X)
	classes, labels := model.EncodeLabels(y)

	samples := make([]int, nSamples)
	for i := range samples {
		samples[i] = i
	}
	return dt.FitColumns(cols, labels, classes, samples)
}

// Columns copies X into column-major slices, the layout the tree builder
// scans when searching for splits.
func Columns(X mat.Matrix) [][]float64 {
	_, c := X.Dims()
	cols := make([][]float64, c)
	for j := 0; j < c; j++ {
		cols[j] = mat.Col(nil, j, X)
	}
	return cols
}

// FitColumns builds the tree from column-major data.
//
// labels[i] is the index into classes of row i. samples lists the rows to
// train on and may contain repeats (bootstrap samples); a row repeated k
// times weighs k.
func (dt *DecisionTreeClassifier) FitColumns(cols [][]float64, labels []int, classes []int, samples []int) error {
	if err := dt.validate(); err != nil {
		return err
	}
	if len(cols) == 0 || len(samples) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(classes) == 0 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "no classes")
	}

	seed := dt.randomState
	if seed < 0 {
		seed = rand.Int63()
	}

	b := &builder{
		dt:          dt,
		cols:        cols,
		labels:      labels,
		nClasses:    len(classes),
		rng:         rand.New(rand.NewSource(seed)),
		features:    make([]int, len(cols)),
		importances: make([]float64, len(cols)),
		nTotal:      float64(len(samples)),
		scratch:     make([]int, len(samples)),
		left:        make([]float64, len(classes)),
		right:       make([]float64, len(classes)),
	}
	b.presort(samples)

	dt.nodes = dt.nodes[:0]
	dt.depth_ = 0
	dt.nLeaves_ = 0
	b.build(0, len(samples), 0)

	var total float64
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}

	dt.classes_ = append([]int(nil), classes...)
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = len(cols)
	dt.featureImportances_ = b.importances

	dt.state.SetDimensions(len(cols), len(samples))
	dt.state.SetFitted()
	return nil
}

// builder holds the per-fit working state.
//
// sorted[f] is a permutation of the training samples ordered by feature f.
// Every node owns the same range [lo, hi) in every sorted[f]; splitting a
// node stably partitions that range, so children stay sorted.
type builder struct {
	dt          *DecisionTreeClassifier
	cols        [][]float64
	labels      []int
	nClasses    int
	rng         *rand.Rand
	features    []int
	importances []float64
	nTotal      float64

	sorted  [][]int
	scratch []int
	left    []float64
	right   []float64
}

func (b *builder) presort(samples []int) {
	b.sorted = make([][]int, len(b.cols))
	for f, col := range b.cols {
		s := append([]int(nil), samples...)
		sort.SliceStable(s, func(i, j int) bool { return col[s[i]] < col[s[j]] })
		b.sorted[f] = s
	}
}

type split struct {
	feature   int
	threshold float64
	weighted  float64
	nLeft     int
	impLeft   float64
	impRight  float64
}

func (b *builder) build(lo, hi, depth int) int {
	dt := b.dt
	n := hi - lo

	counts := make([]float64, b.nClasses)
	for _, s := range b.sorted[0][lo:hi] {
		counts[b.labels[s]]++
	}
	impurity := b.impurity(counts, n)

	value := make([]float64, b.nClasses)
	nonZero := 0
	for c, cnt := range counts {
		value[c] = cnt / float64(n)
		if cnt > 0 {
			nonZero++
		}
	}

	idx := len(dt.nodes)
	dt.nodes = append(dt.nodes, node{
		feature:  leafFeature,
		value:    value,
		nSamples: n,
		impurity: impurity,
	})
	if depth > dt.depth_ {
		dt.depth_ = depth
	}

	isLeaf := nonZero <= 1 ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth)
	if isLeaf {
		dt.nLeaves_++
		return idx
	}

	best, ok := b.findSplit(lo, hi, counts)
	if !ok {
		dt.nLeaves_++
		return idx
	}

	b.partition(lo, hi, best)

	nLeft := float64(best.nLeft)
	nRight := float64(n - best.nLeft)
	b.importances[best.feature] += (float64(n)*impurity - nLeft*best.impLeft - nRight*best.impRight) / b.nTotal

	mid := lo + best.nLeft
	left := b.build(lo, mid, depth+1)
	right := b.build(mid, hi, depth+1)

	nd := &dt.nodes[idx]
	nd.feature = best.feature
	nd.threshold = best.threshold
	nd.left = left
	nd.right = right
	return idx
}

// findSplit returns the split with the lowest weighted child impurity.
// With maxFeatures set, features are visited in random order and the search
// stops once maxFeatures non-constant features have been examined and a
// valid split exists.
func (b *builder) findSplit(lo, hi int, counts []float64) (split, bool) {
	dt := b.dt
	n := hi - lo
	nF := len(b.cols)

	k := dt.maxFeatures
	random := k > 0 && k < nF
	if !random {
		k = nF
	}
	for i := range b.features {
		b.features[i] = i
	}

	best := split{weighted: math.Inf(1)}
	found := false
	examined := 0

	for visited := 0; visited < nF; visited++ {
		if examined >= k && found {
			break
		}
		if random {
			j := visited + b.rng.Intn(nF-visited)
			b.features[visited], b.features[j] = b.features[j], b.features[visited]
		}
		f := b.features[visited]
		s := b.sorted[f][lo:hi]
		col := b.cols[f]
		if col[s[0]] == col[s[n-1]] {
			continue
		}
		examined++

		for c := range b.left {
			b.left[c] = 0
			b.right[c] = counts[c]
		}
		for i := 0; i < n-1; i++ {
			c := b.labels[s[i]]
			b.left[c]++
			b.right[c]--

			nLeft := i + 1
			if n-nLeft < dt.minSamplesLeaf {
				break
			}
			v, next := col[s[i]], col[s[i+1]]
			if v == next || nLeft < dt.minSamplesLeaf {
				continue
			}

			impLeft := b.impurity(b.left, nLeft)
			impRight := b.impurity(b.right, n-nLeft)
			weighted := (float64(nLeft)*impLeft + float64(n-nLeft)*impRight) / float64(n)
			if weighted < best.weighted {
				threshold := v/2 + next/2
				if threshold >= next || math.IsInf(threshold, 0) {
					threshold = v
				}
				best = split{
					feature:   f,
					threshold: threshold,
					weighted:  weighted,
					nLeft:     nLeft,
					impLeft:   impLeft,
					impRight:  impRight,
				}
				found = true
			}
		}
	}
	return best, found
}

// partition stably reorders [lo, hi) of every sorted array so that samples
// going left come first.
func (b *builder) partition(lo, hi int, sp split) {
	col := b.cols[sp.feature]
	for f := range b.sorted {
		s := b.sorted[f][lo:hi]
		l, r := 0, 0
		for _, id := range s {
			if col[id] <= sp.threshold {
				s[l] = id
				l++
			} else {
				b.scratch[r] = id
				r++
			}
		}
		copy(s[l:], b.scratch[:r])
	}
}

func (b *builder) impurity(counts []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	total := float64(n)
	if b.dt.criterion == "entropy" {
		var h float64
		for _, c := range counts {
			if c > 0 {
				p := c / total
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / total
		g -= p * p
	}
	return g
}

// leaf returns the leaf reached by a single sample.
func (dt *DecisionTreeClassifier) leaf(row func(j int) float64) *node {
	i := 0
	for dt.nodes[i].feature != leafFeature {
		nd := &dt.nodes[i]
		if row(nd.feature) <= nd.threshold {
			i = nd.left
		} else {
			i = nd.right
		}
	}
	return &dt.nodes[i]
}

// ProbaRow returns the class distribution of the leaf reached by x.
// The returned slice is shared with the tree and must not be modified.
func (dt *DecisionTreeClassifier) ProbaRow(x []float64) []float64 {
	return dt.leaf(func(j int) float64 { return x[j] }).value
}

// PredictProba returns the class distribution of the leaf each sample falls in
// (n_samples × n_classes, columns ordered as Classes()).
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	nSamples, nFeatures := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeClassifier", "PredictProba", nFeatures); err != nil {
		return nil, err
	}

	probas := mat.NewDense(nSamples, dt.nClasses_, nil)
	for i := 0; i < nSamples; i++ {
		nd := dt.leaf(func(j int) float64 { return X.At(i, j) })
		probas.SetRow(i, nd.value)
	}
	return probas, nil
}

// Predict returns the most probable class of every sample.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	nSamples, nFeatures := X.Dims()
	if err := dt.state.RequireFeatures("DecisionTreeClassifier", "Predict", nFeatures); err != nil {
		return nil, err
	}

	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		nd := dt.leaf(func(j int) float64 { return X.At(i, j) })
		predictions.Set(i, 0, float64(dt.classes_[argmax(nd.value)]))
	}
	return predictions, nil
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Score returns the mean accuracy on the given data and labels
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	predictions, err := dt.Predict(X)
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
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// GetFeatureImportances returns the normalized total impurity decrease
// contributed by each feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree (a single leaf has depth 0).
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves_
}

// GetParams returns the model hyperparameters
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets the model hyperparameters
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "criterion":
			dt.criterion, err = model.ParamString(key, value)
		case "max_depth":
			dt.maxDepth, err = model.ParamInt(key, value)
		case "min_samples_split":
			dt.minSamplesSplit, err = model.ParamInt(key, value)
		case "min_samples_leaf":
			dt.minSamplesLeaf, err = model.ParamInt(key, value)
		case "max_features":
			dt.maxFeatures, err = model.ParamInt(key, value)
		case "random_state":
			dt.randomState, err = model.ParamInt64(key, value)
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if err != nil {
			return err
		}
	}
	return dt.validate()
}

// Clone returns an unfitted tree with the same hyperparameters.
func (dt *DecisionTreeClassifier) Clone() model.TunableClassifier {
	return NewDecisionTreeClassifier(
		WithCriterion(dt.criterion),
		WithMaxDepth(dt.maxDepth),
		WithMinSamplesSplit(dt.minSamplesSplit),
		WithMinSamplesLeaf(dt.minSamplesLeaf),
		WithMaxFeatures(dt.maxFeatures),
		WithRandomState(dt.randomState),
	)
}

// String returns a short description of the tree.
func (dt *DecisionTreeClassifier) String() string {
	return fmt.Sprintf("DecisionTreeClassifier(%s)", model.FormatParams(dt.GetParams()))
}
