package model_selection

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// Splitter defines interface for cross-validation splitters
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold represents a single fold in cross-validation.
// Both index sets are sorted ascending.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 5 // Default to 5-fold
	}
	return &KFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold.
// The first n_samples % n_splits folds get one extra sample.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if kf.NSplits > nSamples {
		return nil, errors.NewValueError("KFold.Split",
			fmt.Sprintf("cannot have number of splits n_splits=%d greater than the number of samples: n_samples=%d", kf.NSplits, nSamples))
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.RandomSeed, kf.RandomSeed))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	testFold := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	current := 0
	for i := 0; i < kf.NSplits; i++ {
		size := foldSize
		if i < remainder {
			size++
		}
		for _, idx := range indices[current : current+size] {
			testFold[idx] = i
		}
		current += size
	}
	return foldsFromAssignment(testFold, kf.NSplits), nil
}

// StratifiedKFold implements stratified k-fold cross-validation.
// Each fold preserves the class proportions of y as closely as possible.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
//
// Labels are sorted and dealt round-robin over the folds to decide how many
// samples of each class a fold receives; the samples of a class are then
// assigned to folds in order (or in shuffled order when Shuffle is set).
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	yRows, _ := y.Dims()
	if yRows != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yRows, 0)
	}

	// ラベルをソート済みクラス番号に変換
	labels := make([]float64, nSamples)
	for i := range labels {
		labels[i] = y.At(i, 0)
	}
	classes := uniqueSorted(labels)
	classIndex := make(map[float64]int, len(classes))
	for k, c := range classes {
		classIndex[c] = k
	}
	encoded := make([]int, nSamples)
	counts := make([]int, len(classes))
	for i, v := range labels {
		encoded[i] = classIndex[v]
		counts[encoded[i]]++
	}

	maxCount, minCount := 0, nSamples
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
		if c < minCount {
			minCount = c
		}
	}
	if skf.NSplits > maxCount {
		return nil, errors.NewValueError("StratifiedKFold.Split",
			fmt.Sprintf("n_splits=%d cannot be greater than the number of members in each class (largest class has %d)", skf.NSplits, maxCount))
	}
	if skf.NSplits > minCount {
		errors.Warn(errors.NewDataWarning("StratifiedKFold.Split",
			fmt.Sprintf("the least populated class in y has only %d members, which is less than n_splits=%d", minCount, skf.NSplits)))
	}

	order := append([]int(nil), encoded...)
	sort.Ints(order)
	allocation := make([][]int, skf.NSplits)
	for f := range allocation {
		allocation[f] = make([]int, len(classes))
		for i := f; i < nSamples; i += skf.NSplits {
			allocation[f][order[i]]++
		}
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = rand.New(rand.NewPCG(skf.RandomSeed, skf.RandomSeed))
	}

	testFold := make([]int, nSamples)
	for k := range classes {
		foldsForClass := make([]int, 0, counts[k])
		for f := 0; f < skf.NSplits; f++ {
			for n := 0; n < allocation[f][k]; n++ {
				foldsForClass = append(foldsForClass, f)
			}
		}
		if r != nil {
			r.Shuffle(len(foldsForClass), func(i, j int) {
				foldsForClass[i], foldsForClass[j] = foldsForClass[j], foldsForClass[i]
			})
		}

		next := 0
		for i, c := range encoded {
			if c == k {
				testFold[i] = foldsForClass[next]
				next++
			}
		}
	}

	return foldsFromAssignment(testFold, skf.NSplits), nil
}

// foldsFromAssignment turns a per-sample test fold number into index sets.
func foldsFromAssignment(testFold []int, nSplits int) []Fold {
	folds := make([]Fold, nSplits)
	for f := range folds {
		folds[f] = Fold{TrainIndices: make([]int, 0), TestIndices: make([]int, 0)}
	}
	for i, f := range testFold {
		for g := range folds {
			if g == f {
				folds[g].TestIndices = append(folds[g].TestIndices, i)
			} else {
				folds[g].TrainIndices = append(folds[g].TrainIndices, i)
			}
		}
	}
	return folds
}

func uniqueSorted(values []float64) []float64 {
	seen := make(map[float64]struct{}, len(values))
	out := make([]float64, 0)
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
