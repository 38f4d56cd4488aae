package pipeline

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/core/model"
	"github.com/YuminosukeSato/blight/metrics"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
	"github.com/YuminosukeSato/blight/preprocessing"
	"github.com/YuminosukeSato/blight/sklearn/ensemble"
	"github.com/YuminosukeSato/blight/sklearn/linear_model"
	"github.com/YuminosukeSato/blight/sklearn/model_selection"
)

// PositiveClass is the compliant label.
const PositiveClass = 1

// LogisticOptions configures the logistic baseline.
type LogisticOptions struct {
	C           float64
	Solver      string
	MaxIter     int
	Tol         float64
	ClassWeight string
	Standardize bool
}

// ForestOptions configures the forest grid search.
type ForestOptions struct {
	NEstimators []int
	MaxDepth    []int
	CVFolds     int
	Shuffle     bool
	Scoring     string
	RandomState int64
	NJobs       int
	MaxFeatures string
}

// LogisticReport summarises the logistic baseline.
type LogisticReport struct {
	Standardized  bool      `json:"standardized"`
	TrainAccuracy float64   `json:"train_accuracy"`
	ValAccuracy   float64   `json:"validation_accuracy"`
	ValError      float64   `json:"validation_error"`
	ValAUC        float64   `json:"validation_roc_auc"`
	Iterations    int       `json:"iterations"`
	Coef          []float64 `json:"coef"`
	Intercept     float64   `json:"intercept"`
}

// ForestReport summarises the forest grid search.
type ForestReport struct {
	Scoring            string                            `json:"scoring"`
	CVFolds            int                               `json:"cv_folds"`
	RequestedCVFolds   int                               `json:"requested_cv_folds"`
	BestParams         map[string]interface{}            `json:"best_params"`
	BestScore          float64                           `json:"best_cv_score"`
	Candidates         []model_selection.CandidateResult `json:"candidates"`
	ValAUC             float64                           `json:"validation_roc_auc"`
	FeatureImportances map[string]float64                `json:"feature_importances"`
}

// Validation holds the hold-out labels and both models' positive-class
// scores, in hold-out row order.
type Validation struct {
	Labels   []float64 `json:"-"`
	Logistic []float64 `json:"-"`
	Forest   []float64 `json:"-"`
}

// Models is the outcome of FitModels.
type Models struct {
	Logistic       *linear_model.LogisticRegression
	Scaler         *preprocessing.StandardScaler
	Search         *model_selection.GridSearchCV
	LogisticReport LogisticReport
	ForestReport   ForestReport
	Validation     Validation
}

// Forest returns the refitted best forest.
func (m *Models) Forest() model.Classifier {
	return m.Search.BestEstimator()
}

// FitModels fits the logistic baseline and the forest grid search on the
// training part of the split and scores both on the validation part.
func FitModels(ctx context.Context, split Split, features []string, lo LogisticOptions, fo ForestOptions, logger log.Logger) (*Models, error) {
	if logger == nil {
		logger = log.Nop()
	}
	m := &Models{}
	yTrain := column(split.YTrain)
	yVal := column(split.YVal)
	m.Validation.Labels = yVal.RawVector().Data

	start := time.Now()
	if err := m.fitLogistic(split, yTrain, yVal, lo, logger); err != nil {
		return nil, err
	}
	logger.Info("logistic regression scored",
		log.StageKey, StageFit,
		log.ModelNameKey, "LogisticRegression",
		log.AccuracyKey, m.LogisticReport.ValAccuracy,
		log.AUCKey, m.LogisticReport.ValAUC,
		"metrics.train_accuracy", m.LogisticReport.TrainAccuracy,
		log.DurationMsKey, float64(time.Since(start).Microseconds())/1000,
	)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "fit cancelled")
	}

	start = time.Now()
	if err := m.fitForest(split, features, fo, logger); err != nil {
		return nil, err
	}
	logger.Info("random forest search scored",
		log.StageKey, StageFit,
		log.ModelNameKey, "RandomForestClassifier",
		log.HyperParamsKey, model.FormatParams(m.ForestReport.BestParams),
		log.ScoringKey, m.ForestReport.Scoring,
		log.CVScoreKey, m.ForestReport.BestScore,
		log.AUCKey, m.ForestReport.ValAUC,
		log.DurationMsKey, float64(time.Since(start).Microseconds())/1000,
	)
	return m, nil
}

func (m *Models) fitLogistic(split Split, yTrain, yVal *mat.VecDense, lo LogisticOptions, logger log.Logger) error {
	var XTrain, XVal mat.Matrix = split.XTrain, split.XVal
	if lo.Standardize {
		m.Scaler = preprocessing.NewStandardScalerDefault()
		var err error
		if XTrain, err = m.Scaler.FitTransform(split.XTrain); err != nil {
			return errors.Wrap(err, "standardize training features")
		}
		if XVal, err = m.Scaler.Transform(split.XVal); err != nil {
			return errors.Wrap(err, "standardize validation features")
		}
	}

	lr := linear_model.NewLogisticRegression(
		linear_model.WithLRC(lo.C),
		linear_model.WithLRSolver(lo.Solver),
		linear_model.WithLRMaxIter(lo.MaxIter),
		linear_model.WithLRTol(lo.Tol),
		linear_model.WithLRClassWeight(lo.ClassWeight),
		linear_model.WithLRLogger(logger),
	)
	err := errors.SafeExecute("LogisticRegression.Fit", func() error {
		return lr.Fit(XTrain, split.YTrain)
	})
	if err != nil {
		return errors.Wrap(err, "fit logistic regression")
	}
	m.Logistic = lr

	r := LogisticReport{Standardized: lo.Standardize, Iterations: lr.NIter()}
	if r.TrainAccuracy, err = predictAccuracy(lr, XTrain, yTrain); err != nil {
		return err
	}
	pred, err := lr.Predict(XVal)
	if err != nil {
		return err
	}
	valPred := column(pred)
	if r.ValAccuracy, err = metrics.Accuracy(yVal, valPred); err != nil {
		return err
	}
	if r.ValError, err = metrics.ClassificationError(yVal, valPred); err != nil {
		return err
	}
	scores, err := model.PositiveClassProba(lr, XVal, PositiveClass)
	if err != nil {
		return errors.Wrap(err, "logistic validation scores")
	}
	if r.ValAUC, err = metrics.AUCMatrix(split.YVal, mat.NewDense(len(scores), 1, scores)); err != nil {
		return err
	}
	if coef := lr.Coef(); len(coef) > 0 {
		r.Coef = coef[0]
	}
	if b := lr.Intercept(); len(b) > 0 {
		r.Intercept = b[0]
	}
	m.LogisticReport = r
	m.Validation.Logistic = scores
	return nil
}

func (m *Models) fitForest(split Split, features []string, fo ForestOptions, logger log.Logger) error {
	forest := ensemble.NewRandomForestClassifier(
		ensemble.WithRandomState(fo.RandomState),
		ensemble.WithMaxFeatures(fo.MaxFeatures),
		ensemble.WithNJobs(fo.NJobs),
		ensemble.WithLogger(logger),
	)
	folds := cvFolds(fo.CVFolds, column(split.YTrain))
	if folds != fo.CVFolds {
		errors.Warn(errors.NewDataWarning("FitModels", fmt.Sprintf(
			"cv_folds=%d exceeds the largest class of the training split; using %d folds", fo.CVFolds, folds)))
		logger.Warn("cv folds reduced to fit the training split",
			log.StageKey, StageFit, "cv.requested_folds", fo.CVFolds, "cv.folds", folds)
	}

	grid := model_selection.ParamGrid{
		"n_estimators": toInterfaces(fo.NEstimators),
		"max_depth":    toInterfaces(fo.MaxDepth),
	}
	search := model_selection.NewGridSearchCV(forest, grid,
		model_selection.WithCV(model_selection.NewStratifiedKFold(folds, fo.Shuffle, uint64(fo.RandomState))),
		model_selection.WithScoring(fo.Scoring),
		model_selection.WithSearchNJobs(fo.NJobs),
		model_selection.WithPositiveClass(PositiveClass),
		model_selection.WithSearchLogger(logger),
	)
	if err := search.Fit(split.XTrain, split.YTrain); err != nil {
		return errors.Wrap(err, "grid search random forest")
	}
	m.Search = search

	scores, err := model.PositiveClassProba(search, split.XVal, PositiveClass)
	if err != nil {
		return errors.Wrap(err, "forest validation scores")
	}
	valAUC, err := metrics.AUCMatrix(split.YVal, mat.NewDense(len(scores), 1, scores))
	if err != nil {
		return err
	}

	r := ForestReport{
		Scoring:          fo.Scoring,
		CVFolds:          folds,
		RequestedCVFolds: fo.CVFolds,
		BestParams:       search.BestParams(),
		BestScore:        search.BestScore(),
		Candidates:       search.CVResults(),
		ValAUC:           valAUC,
	}
	if best, ok := search.BestEstimator().(*ensemble.RandomForestClassifier); ok {
		importances := best.GetFeatureImportances()
		r.FeatureImportances = make(map[string]float64, len(importances))
		for j, v := range importances {
			if j < len(features) {
				r.FeatureImportances[features[j]] = v
			}
		}
	}
	m.ForestReport = r
	m.Validation.Forest = scores
	return nil
}

func predictAccuracy(c model.Classifier, X mat.Matrix, y *mat.VecDense) (float64, error) {
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return metrics.Accuracy(y, column(pred))
}

// cvFolds caps the requested fold count at the size of the largest class
// in y, since stratified k-fold needs every fold to receive a member of it.
// The result is never below 2.
func cvFolds(requested int, y *mat.VecDense) int {
	counts := make(map[float64]int)
	largest := 0
	for i := 0; i < y.Len(); i++ {
		v := y.AtVec(i)
		counts[v]++
		if counts[v] > largest {
			largest = counts[v]
		}
	}
	folds := requested
	if folds > largest {
		folds = largest
	}
	if folds < 2 {
		folds = 2
	}
	return folds
}

// column copies the first column of m into a vector.
func column(m mat.Matrix) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}

func toInterfaces(values []int) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
