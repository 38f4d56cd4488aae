package model_selection

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/blight/core/model"
	"github.com/YuminosukeSato/blight/core/parallel"
	"github.com/YuminosukeSato/blight/metrics"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
)

// Supported scoring names. Higher is better for all of them.
const (
	ScoringROCAUC     = "roc_auc"
	ScoringAccuracy   = "accuracy"
	ScoringNegLogLoss = "neg_log_loss"
)

// ParamGrid maps a parameter name to the values to try.
type ParamGrid map[string][]interface{}

// Candidates expands the grid into parameter sets. Keys are iterated in
// sorted order with the last key varying fastest, matching scikit-learn's
// ParameterGrid.
func (g ParamGrid) Candidates() []map[string]interface{} {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]interface{}{{}}
	for _, k := range keys {
		next := make([]map[string]interface{}, 0, len(out)*len(g[k]))
		for _, base := range out {
			for _, v := range g[k] {
				p := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					p[bk] = bv
				}
				p[k] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// CandidateResult holds the cross-validation outcome of one parameter set.
type CandidateResult struct {
	Params     map[string]interface{} `json:"params"`
	FoldScores []float64              `json:"fold_scores"`
	MeanScore  float64                `json:"mean_test_score"`
	StdScore   float64                `json:"std_test_score"`
	Rank       int                    `json:"rank_test_score"`
	MeanFitMs  float64                `json:"mean_fit_time_ms"`
}

// GridSearchCV exhaustively evaluates a parameter grid with cross-validation
// and refits the best candidate on the whole training data.
type GridSearchCV struct {
	state *model.StateManager

	estimator model.TunableClassifier
	grid      ParamGrid
	cv        Splitter
	scoring   string
	refit     bool
	nJobs     int
	positive  int
	logger    log.Logger

	results_       []CandidateResult
	bestIndex_     int
	bestEstimator_ model.TunableClassifier
}

// SearchOption is a functional option for GridSearchCV
type SearchOption func(*GridSearchCV)

// WithCV sets the cross-validation splitter (default: 3-fold StratifiedKFold)
func WithCV(cv Splitter) SearchOption {
	return func(gs *GridSearchCV) { gs.cv = cv }
}

// WithScoring sets the scoring name
func WithScoring(scoring string) SearchOption {
	return func(gs *GridSearchCV) { gs.scoring = scoring }
}

// WithRefit sets whether the best candidate is refitted on all data
func WithRefit(refit bool) SearchOption {
	return func(gs *GridSearchCV) { gs.refit = refit }
}

// WithSearchNJobs sets the number of concurrent candidate fits; 0 uses every CPU
func WithSearchNJobs(n int) SearchOption {
	return func(gs *GridSearchCV) { gs.nJobs = n }
}

// WithPositiveClass sets the label treated as positive by roc_auc and neg_log_loss
func WithPositiveClass(label int) SearchOption {
	return func(gs *GridSearchCV) { gs.positive = label }
}

// WithSearchLogger sets the logger used for per-candidate diagnostics
func WithSearchLogger(logger log.Logger) SearchOption {
	return func(gs *GridSearchCV) {
		if logger != nil {
			gs.logger = logger
		}
	}
}

// NewGridSearchCV creates a grid search over estimator.
//
//	gs := model_selection.NewGridSearchCV(ensemble.NewRandomForestClassifier(),
//		model_selection.ParamGrid{"n_estimators": {10, 100}, "max_depth": {0, 30}},
//		model_selection.WithScoring(model_selection.ScoringROCAUC))
func NewGridSearchCV(estimator model.TunableClassifier, grid ParamGrid, opts ...SearchOption) *GridSearchCV {
	gs := &GridSearchCV{
		state:     model.NewStateManager(),
		estimator: estimator,
		grid:      grid,
		cv:        NewStratifiedKFold(3, false, 0),
		scoring:   ScoringROCAUC,
		refit:     true,
		nJobs:     0,
		positive:  1,
		logger:    log.Nop(),
	}
	for _, opt := range opts {
		opt(gs)
	}
	return gs
}

func (gs *GridSearchCV) validate() error {
	if gs.estimator == nil {
		return errors.NewValidationError("estimator", "must not be nil", nil)
	}
	if len(gs.grid) == 0 {
		return errors.NewValidationError("param_grid", "must not be empty", gs.grid)
	}
	for k, vs := range gs.grid {
		if len(vs) == 0 {
			return errors.NewValidationError("param_grid", fmt.Sprintf("parameter %q has no values", k), vs)
		}
	}
	switch gs.scoring {
	case ScoringROCAUC, ScoringAccuracy, ScoringNegLogLoss:
	default:
		return errors.NewValidationError("scoring", "must be 'roc_auc', 'accuracy' or 'neg_log_loss'", gs.scoring)
	}
	if gs.cv == nil {
		return errors.NewValidationError("cv", "must not be nil", nil)
	}
	return nil
}

type foldData struct {
	XTrain, yTrain *mat.Dense
	XTest          *mat.Dense
	yTest          *mat.VecDense
}

// Fit evaluates every candidate on every fold, ranks candidates by mean
// score and, when refit is enabled, fits the best one on X and y.
func (gs *GridSearchCV) Fit(X, y mat.Matrix) error {
	if err := gs.validate(); err != nil {
		return err
	}

	candidates := gs.grid.Candidates()
	// 候補ごとにパラメータを事前検証する
	for _, params := range candidates {
		if err := gs.estimator.Clone().SetParams(params); err != nil {
			return errors.Wrapf(err, "invalid candidate %s", model.FormatParams(params))
		}
	}

	splits, err := gs.cv.Split(X, y)
	if err != nil {
		return err
	}
	folds := make([]foldData, len(splits))
	for f, s := range splits {
		yTest := TakeRows(y, s.TestIndices)
		folds[f] = foldData{
			XTrain: TakeRows(X, s.TrainIndices),
			yTrain: TakeRows(y, s.TrainIndices),
			XTest:  TakeRows(X, s.TestIndices),
			yTest:  mat.VecDenseCopyOf(yTest.ColView(0)),
		}
	}

	nFolds := len(folds)
	scores := make([]float64, len(candidates)*nFolds)
	fitTimes := make([]time.Duration, len(candidates)*nFolds)
	errs := make([]error, len(candidates)*nFolds)

	parallel.ForEach(len(scores), gs.nJobs, func(task int) {
		c, f := task/nFolds, task%nFolds
		fd := folds[f]

		est := gs.estimator.Clone()
		if err := est.SetParams(candidates[c]); err != nil {
			errs[task] = err
			return
		}

		start := time.Now()
		err := errors.SafeExecute("GridSearchCV.Fit", func() error {
			return est.Fit(fd.XTrain, fd.yTrain)
		})
		fitTimes[task] = time.Since(start)
		if err != nil {
			errs[task] = errors.Wrapf(err, "candidate %s fold %d", model.FormatParams(candidates[c]), f)
			return
		}

		scores[task], errs[task] = gs.score(est, fd.XTest, fd.yTest)
	})

	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	results := make([]CandidateResult, len(candidates))
	for c, params := range candidates {
		foldScores := append([]float64(nil), scores[c*nFolds:(c+1)*nFolds]...)
		mean, variance := stat.PopMeanVariance(foldScores, nil)
		var fit time.Duration
		for _, d := range fitTimes[c*nFolds : (c+1)*nFolds] {
			fit += d
		}
		results[c] = CandidateResult{
			Params:     params,
			FoldScores: foldScores,
			MeanScore:  mean,
			StdScore:   math.Sqrt(variance),
			MeanFitMs:  float64(fit.Milliseconds()) / float64(nFolds),
		}
	}
	best := rankResults(results)

	for _, r := range results {
		gs.logger.Debug("grid candidate scored",
			log.ModelNameKey, "GridSearchCV",
			log.HyperParamsKey, model.FormatParams(r.Params),
			log.CVScoreKey, r.MeanScore,
			log.ScoringKey, gs.scoring,
			log.RankKey, r.Rank,
		)
	}

	gs.results_ = results
	gs.bestIndex_ = best
	gs.bestEstimator_ = nil

	if gs.refit {
		est := gs.estimator.Clone()
		if err := est.SetParams(results[best].Params); err != nil {
			return err
		}
		err := errors.SafeExecute("GridSearchCV.Refit", func() error {
			return est.Fit(X, y)
		})
		if err != nil {
			return errors.Wrap(err, "refit best candidate")
		}
		gs.bestEstimator_ = est
	}

	nSamples, nFeatures := X.Dims()
	gs.state.SetDimensions(nFeatures, nSamples)
	gs.state.SetFitted()
	return nil
}

// rankResults assigns scikit-learn style min ranks (1 = best) and returns
// the index of the best candidate; ties keep the first candidate.
func rankResults(results []CandidateResult) int {
	best := 0
	for i, r := range results {
		if r.MeanScore > results[best].MeanScore {
			best = i
		}
		rank := 1
		for _, other := range results {
			if other.MeanScore > r.MeanScore {
				rank++
			}
		}
		results[i].Rank = rank
	}
	return best
}

func (gs *GridSearchCV) score(est model.Classifier, X mat.Matrix, yTrue *mat.VecDense) (float64, error) {
	switch gs.scoring {
	case ScoringAccuracy:
		pred, err := est.Predict(X)
		if err != nil {
			return 0, err
		}
		n, _ := pred.Dims()
		yPred := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			yPred.SetVec(i, pred.At(i, 0))
		}
		return metrics.Accuracy(yTrue, yPred)
	default:
		proba, err := model.PositiveClassProba(est, X, gs.positive)
		if err != nil {
			return 0, err
		}
		yBin := mat.NewVecDense(yTrue.Len(), nil)
		for i := 0; i < yTrue.Len(); i++ {
			if int(yTrue.AtVec(i)) == gs.positive {
				yBin.SetVec(i, 1)
			}
		}
		yScore := mat.NewVecDense(len(proba), proba)
		if gs.scoring == ScoringNegLogLoss {
			loss, err := metrics.BinaryLogLoss(yBin, yScore)
			return -loss, err
		}
		return metrics.AUC(yBin, yScore)
	}
}

// CVResults returns the per-candidate results in grid order.
func (gs *GridSearchCV) CVResults() []CandidateResult {
	return gs.results_
}

// BestIndex returns the position of the best candidate in CVResults.
func (gs *GridSearchCV) BestIndex() int {
	return gs.bestIndex_
}

// BestParams returns the parameter set with the highest mean CV score.
func (gs *GridSearchCV) BestParams() map[string]interface{} {
	if len(gs.results_) == 0 {
		return nil
	}
	return gs.results_[gs.bestIndex_].Params
}

// BestScore returns the mean CV score of the best candidate.
func (gs *GridSearchCV) BestScore() float64 {
	if len(gs.results_) == 0 {
		return math.NaN()
	}
	return gs.results_[gs.bestIndex_].MeanScore
}

// BestEstimator returns the refitted best estimator (nil when refit is disabled).
func (gs *GridSearchCV) BestEstimator() model.TunableClassifier {
	return gs.bestEstimator_
}

func (gs *GridSearchCV) requireRefit(method string) error {
	if err := gs.state.RequireFitted("GridSearchCV", method); err != nil {
		return err
	}
	if gs.bestEstimator_ == nil {
		return errors.NewValueError("GridSearchCV."+method, "refit is disabled; no best estimator is available")
	}
	return nil
}

// PredictProba delegates to the refitted best estimator.
func (gs *GridSearchCV) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := gs.requireRefit("PredictProba"); err != nil {
		return nil, err
	}
	return gs.bestEstimator_.PredictProba(X)
}

// Predict delegates to the refitted best estimator.
func (gs *GridSearchCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := gs.requireRefit("Predict"); err != nil {
		return nil, err
	}
	return gs.bestEstimator_.Predict(X)
}

// Classes returns the class labels of the refitted best estimator.
func (gs *GridSearchCV) Classes() []int {
	if gs.bestEstimator_ == nil {
		return nil
	}
	return gs.bestEstimator_.Classes()
}
