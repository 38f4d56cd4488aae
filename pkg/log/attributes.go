package log

// Standard attribute keys. They follow a hierarchical naming convention
// ("model.name", "data.samples") so that logs of a run can be filtered by
// stage, table or model.

// Model and Operation Context
const (
	// ModelNameKey identifies the type of estimator.
	// Examples: "LogisticRegression", "RandomForestClassifier", "LabelEncoder"
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "predict", "transform", "fit_transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Pipeline context
const (
	// RunIDKey carries the uuid of a pipeline run.
	RunIDKey = "run.id"

	// StageKey names the pipeline stage: "load", "join", "clean", "encode",
	// "split", "fit", "predict", "report".
	StageKey = "pipeline.stage"

	// TableKey names the input table a record refers to.
	TableKey = "data.table"

	// ColumnKey names a single column.
	ColumnKey = "data.column"

	// PathKey is a filesystem path being read or written.
	PathKey = "io.path"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows).
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns).
	FeaturesKey = "data.features"

	// NullsKey holds per-column missing-value counts.
	NullsKey = "data.nulls"

	// DroppedKey counts rows removed by a filter or join.
	DroppedKey = "data.dropped"

	// UnmatchedKey counts left rows without a partner in an inner join.
	UnmatchedKey = "join.unmatched"

	// VocabularySizeKey is the number of classes a LabelEncoder learned.
	VocabularySizeKey = "encoder.vocabulary_size"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records classification accuracy.
	AccuracyKey = "metrics.accuracy"

	// AUCKey records ROC-AUC.
	AUCKey = "metrics.roc_auc"

	// CVScoreKey records a mean cross-validation score.
	CVScoreKey = "metrics.cv_score"

	// ScoringKey names the scoring function of a model search.
	ScoringKey = "metrics.scoring"

	// RankKey records a candidate's rank in a model search.
	RankKey = "search.rank"

	// LossKey records loss value during training or evaluation.
	LossKey = "metrics.loss"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"
)

// Prediction and Output Context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides helpful suggestions for resolving issues.
	SuggestionKey = "error.suggestion"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters in FormatParams form.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants for common operations.
const (
	// Standard ML operations
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"

	// Standard ML phases
	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
