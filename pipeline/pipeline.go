// Package pipeline runs the blight-ticket compliance pipeline end to end:
// load, join, clean, encode, split, fit and predict.
//
// Stages run sequentially and pass immutable frames to each other. Run checks
// the context between stages so that a caller can abort a long fit.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/config"
	"github.com/YuminosukeSato/blight/dataset"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
	"github.com/YuminosukeSato/blight/sklearn/model_selection"
)

// Split is the train/validation hold-out of the training matrix.
type Split struct {
	XTrain, XVal *mat.Dense
	YTrain, YVal *mat.Dense
}

// Result is everything a run produced.
type Result struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`

	*Prepared

	Features     []string              `json:"features"`
	SplitShape   map[string]int        `json:"split_rows"`
	Correlations []dataset.Correlation `json:"correlations"`

	Logistic LogisticReport `json:"logistic"`
	Forest   ForestReport   `json:"forest"`

	Predictions []Prediction `json:"-"`
	Validation  Validation   `json:"-"`
}

// Options collects the stage options of a run.
type Options struct {
	Paths    dataset.Paths
	Prepare  PrepareOptions
	TestSize float64
	Seed     uint64
	Logistic LogisticOptions
	Forest   ForestOptions
}

// OptionsFromConfig maps the configuration onto stage options.
func OptionsFromConfig(cfg *config.Config) Options {
	d := cfg.Data
	return Options{
		Paths: dataset.Paths{
			Train:         d.Resolve(d.Train),
			Test:          d.Resolve(d.Test),
			Addresses:     d.Resolve(d.Addresses),
			LatLons:       d.Resolve(d.LatLons),
			TrainEncoding: d.TrainEncoding,
			TestEncoding:  d.TestEncoding,
		},
		Prepare: PrepareOptions{
			Schema:     dataset.DefaultSchema(),
			StrictJoin: d.StrictJoin,
			Vocabulary: dataset.VocabularyMode(cfg.Encoder.Vocabulary),
		},
		TestSize: cfg.Split.TestSize,
		Seed:     cfg.Split.Seed,
		Logistic: LogisticOptions{
			C:           cfg.Logistic.C,
			Solver:      cfg.Logistic.Solver,
			MaxIter:     cfg.Logistic.MaxIter,
			Tol:         cfg.Logistic.Tol,
			ClassWeight: cfg.Logistic.ClassWeight,
			Standardize: cfg.Logistic.Standardize,
		},
		Forest: ForestOptions{
			NEstimators: cfg.Forest.NEstimators,
			MaxDepth:    cfg.Forest.MaxDepth,
			CVFolds:     cfg.Forest.CVFolds,
			Shuffle:     cfg.Forest.Shuffle,
			Scoring:     cfg.Forest.Scoring,
			RandomState: cfg.Forest.RandomState,
			NJobs:       cfg.Forest.NJobs,
			MaxFeatures: cfg.Forest.MaxFeatures,
		},
	}
}

// Run loads the input tables named by cfg and runs every stage.
func Run(ctx context.Context, cfg *config.Config, logger log.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := OptionsFromConfig(cfg)
	if logger == nil {
		logger = log.Nop()
	}

	in, err := dataset.LoadInputs(opts.Paths, opts.Prepare.Schema)
	if err != nil {
		return nil, err
	}
	return Process(ctx, in, opts, logger)
}

// Process runs every stage after loading on already-read tables.
func Process(ctx context.Context, in *dataset.Inputs, opts Options, logger log.Logger) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Started: time.Now()}
	logger = logger.With(log.RunIDKey, res.RunID)
	logger.Info("pipeline started")

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "pipeline cancelled")
	}

	prepared, err := Prepare(ctx, in, opts.Prepare, logger)
	if err != nil {
		return nil, errors.Wrap(err, "prepare tables")
	}
	res.Prepared = prepared

	schema := opts.Prepare.Schema
	res.Features = append([]string(nil), schema.Features...)

	if logger.Enabled(ctx, log.LevelDebug) {
		summary, err := dataset.Describe(prepared.Train, dataset.TableTrain, schema.Features)
		if err != nil {
			return nil, errors.Wrap(err, "describe training table")
		}
		logger.Debug("training summary", log.TableKey, dataset.TableTrain, "summary", summary.String())
	}
	if res.Correlations, err = dataset.Correlations(prepared.Train, dataset.TableTrain, schema.Features, schema.Target); err != nil {
		return nil, errors.Wrap(err, "feature correlations")
	}

	X, err := dataset.FeatureMatrix(prepared.Train, dataset.TableTrain, schema.Features)
	if err != nil {
		return nil, err
	}
	y, err := dataset.TargetVector(prepared.Train, dataset.TableTrain, schema.Target)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "pipeline cancelled")
	}

	var split Split
	split.XTrain, split.XVal, split.YTrain, split.YVal, err = model_selection.TrainTestSplit(X, y, opts.TestSize, opts.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "split training table")
	}
	trainRows, _ := split.XTrain.Dims()
	valRows, _ := split.XVal.Dims()
	res.SplitShape = map[string]int{"train": trainRows, "validation": valRows}
	logger.Info("training table split",
		log.StageKey, StageSplit,
		"split.train_rows", trainRows,
		"split.validation_rows", valRows,
	)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "pipeline cancelled")
	}

	models, err := FitModels(ctx, split, schema.Features, opts.Logistic, opts.Forest, logger)
	if err != nil {
		return nil, err
	}
	res.Logistic = models.LogisticReport
	res.Forest = models.ForestReport
	res.Validation = models.Validation

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "pipeline cancelled")
	}

	if res.Predictions, err = Predict(models.Forest(), prepared.Test, schema.Features); err != nil {
		return nil, err
	}
	logger.Info("test tickets scored", log.StageKey, StagePredict, log.SamplesKey, len(res.Predictions))

	res.Duration = time.Since(res.Started)
	logger.Info("pipeline finished", log.DurationMsKey, float64(res.Duration.Milliseconds()))
	return res, nil
}
