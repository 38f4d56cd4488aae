// Package config loads the pipeline configuration.
//
// Values are layered: struct defaults, then an optional YAML file, then
// BLIGHT_* environment variables. Nested keys use a double underscore in
// environment variable names:
//
//	BLIGHT_FOREST__CV_FOLDS=5      -> forest.cv_folds
//	BLIGHT_DATA__STRICT_JOIN=true  -> data.strict_join
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "BLIGHT_"
	// PathEnvVar names the config file when --config is not given.
	PathEnvVar = "BLIGHT_CONFIG"
	// DefaultPath is looked up in the working directory as a last resort.
	DefaultPath = "blight.yaml"
)

// Config is the complete pipeline configuration.
type Config struct {
	Data     DataConfig     `koanf:"data" json:"data"`
	Encoder  EncoderConfig  `koanf:"encoder" json:"encoder"`
	Split    SplitConfig    `koanf:"split" json:"split"`
	Logistic LogisticConfig `koanf:"logistic" json:"logistic"`
	Forest   ForestConfig   `koanf:"forest" json:"forest"`
	Output   OutputConfig   `koanf:"output" json:"output"`
	Logging  LoggingConfig  `koanf:"logging" json:"logging"`
}

// DataConfig locates the input tables. Relative file names resolve
// against Dir.
type DataConfig struct {
	Dir           string `koanf:"dir" json:"dir"`
	Train         string `koanf:"train" json:"train" validate:"required"`
	Test          string `koanf:"test" json:"test" validate:"required"`
	Addresses     string `koanf:"addresses" json:"addresses" validate:"required"`
	LatLons       string `koanf:"latlons" json:"latlons" validate:"required"`
	TrainEncoding string `koanf:"train_encoding" json:"train_encoding" validate:"oneof=utf-8 iso-8859-1"`
	TestEncoding  string `koanf:"test_encoding" json:"test_encoding" validate:"oneof=utf-8 iso-8859-1"`
	// StrictJoin turns tickets without a located address into an error.
	StrictJoin bool `koanf:"strict_join" json:"strict_join"`
}

// Resolve returns name joined to Dir unless name is absolute.
func (d DataConfig) Resolve(name string) string {
	if filepath.IsAbs(name) || d.Dir == "" {
		return name
	}
	return filepath.Join(d.Dir, name)
}

// EncoderConfig selects the categorical vocabulary.
type EncoderConfig struct {
	Vocabulary string `koanf:"vocabulary" json:"vocabulary" validate:"oneof=union train"`
}

// SplitConfig controls the train/validation hold-out.
type SplitConfig struct {
	TestSize float64 `koanf:"test_size" json:"test_size" validate:"gt=0,lt=1"`
	Seed     uint64  `koanf:"seed" json:"seed"`
}

// LogisticConfig configures the logistic regression baseline.
type LogisticConfig struct {
	C           float64 `koanf:"c" json:"c" validate:"gt=0"`
	Solver      string  `koanf:"solver" json:"solver" validate:"oneof=lbfgs cg gd"`
	MaxIter     int     `koanf:"max_iter" json:"max_iter" validate:"min=1"`
	Tol         float64 `koanf:"tol" json:"tol" validate:"gt=0"`
	ClassWeight string  `koanf:"class_weight" json:"class_weight" validate:"oneof=none balanced"`
	Standardize bool    `koanf:"standardize" json:"standardize"`
}

// ForestConfig configures the random forest grid search.
type ForestConfig struct {
	// NEstimators and MaxDepth span the search grid. MaxDepth 0 is unbounded.
	NEstimators []int  `koanf:"n_estimators" json:"n_estimators" validate:"min=1,dive,min=1"`
	MaxDepth    []int  `koanf:"max_depth" json:"max_depth" validate:"min=1,dive,min=0"`
	CVFolds     int    `koanf:"cv_folds" json:"cv_folds" validate:"min=2"`
	Shuffle     bool   `koanf:"shuffle" json:"shuffle"`
	Scoring     string `koanf:"scoring" json:"scoring" validate:"oneof=roc_auc accuracy neg_log_loss"`
	RandomState int64  `koanf:"random_state" json:"random_state"`
	NJobs       int    `koanf:"n_jobs" json:"n_jobs" validate:"min=0"`
	MaxFeatures string `koanf:"max_features" json:"max_features" validate:"oneof=sqrt log2 all"`
}

// OutputConfig names the files a run writes. Only PredictionsPath is
// required.
type OutputConfig struct {
	PredictionsPath string `koanf:"predictions_path" json:"predictions_path" validate:"required"`
	ReportPath      string `koanf:"report_path" json:"report_path"`
	ROCPlotPath     string `koanf:"roc_plot_path" json:"roc_plot_path"`
	MetricsPath     string `koanf:"metrics_path" json:"metrics_path"`
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" json:"format" validate:"oneof=json console cloud"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Dir:           ".",
			Train:         "train.csv",
			Test:          "test.csv",
			Addresses:     "addresses.csv",
			LatLons:       "latlons.csv",
			TrainEncoding: "iso-8859-1",
			TestEncoding:  "utf-8",
		},
		Encoder: EncoderConfig{Vocabulary: "union"},
		Split:   SplitConfig{TestSize: 0.25, Seed: 0},
		Logistic: LogisticConfig{
			C:           1.0,
			Solver:      "lbfgs",
			MaxIter:     100,
			Tol:         1e-4,
			ClassWeight: "none",
			Standardize: true,
		},
		Forest: ForestConfig{
			NEstimators: []int{10, 100},
			MaxDepth:    []int{0, 30},
			CVFolds:     3,
			Scoring:     "roc_auc",
			RandomState: 0,
			NJobs:       0,
			MaxFeatures: "sqrt",
		},
		Output: OutputConfig{PredictionsPath: "predictions.csv"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// sliceKeys are split on commas when they arrive as a string from the
// environment.
var sliceKeys = []string{"forest.n_estimators", "forest.max_depth"}

// Load builds the configuration. path may be empty, in which case
// BLIGHT_CONFIG and then ./blight.yaml are tried; no file at all is fine.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if path == "" {
		path = findFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	if err := splitSliceKeys(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}
	return ""
}

// envKey maps BLIGHT_FOREST__CV_FOLDS to forest.cv_folds. Variables without
// a section separator are ignored.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if !strings.Contains(key, "__") {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

func splitSliceKeys(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return errors.Wrapf(err, "set %s", key)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field against its constraints and reports the first
// violation as a ValidationError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.NewValidationError(fieldPath(fe.Namespace()), "violates '"+fe.Tag()+"' constraint", fe.Value())
	}
	return errors.Wrap(err, "validate configuration")
}

// fieldPath turns "Config.Forest.CVFolds" into "Forest.CVFolds".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
