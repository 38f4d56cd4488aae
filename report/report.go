// Package report writes the outputs of a pipeline run: the predictions CSV,
// a JSON run report, a ROC plot and a Prometheus textfile.
package report

import (
	"os"

	"github.com/goccy/go-json"

	"github.com/YuminosukeSato/blight/config"
	"github.com/YuminosukeSato/blight/pipeline"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
)

// Run is the JSON run report.
type Run struct {
	*pipeline.Result
	Predictions int `json:"predictions"`
}

// WriteJSON writes the run report of res to path.
func WriteJSON(path string, res *pipeline.Result) error {
	data, err := json.MarshalIndent(Run{Result: res, Predictions: len(res.Predictions)}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode run report")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// WriteAll writes every output configured in out. The predictions file is
// required; the others are skipped when their path is empty.
func WriteAll(res *pipeline.Result, out config.OutputConfig, logger log.Logger) error {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.With(log.RunIDKey, res.RunID)

	if err := WritePredictionsFile(out.PredictionsPath, res.Predictions); err != nil {
		return err
	}
	logger.Info("predictions written", log.PathKey, out.PredictionsPath, log.SamplesKey, len(res.Predictions))

	if out.ReportPath != "" {
		if err := WriteJSON(out.ReportPath, res); err != nil {
			return err
		}
		logger.Info("run report written", log.PathKey, out.ReportPath)
	}

	if out.ROCPlotPath != "" {
		err := PlotROC(out.ROCPlotPath, res.Validation.Labels, []Curve{
			{Name: "logistic regression", Scores: res.Validation.Logistic},
			{Name: "random forest", Scores: res.Validation.Forest},
		})
		switch {
		case errors.Is(err, ErrSingleClass):
			// 検証データが片方のクラスしか持たない場合は曲線が定義されない
			logger.Warn("roc plot skipped", log.PathKey, out.ROCPlotPath, "reason", err.Error())
		case err != nil:
			return err
		default:
			logger.Info("roc plot written", log.PathKey, out.ROCPlotPath)
		}
	}

	if out.MetricsPath != "" {
		if err := WriteMetricsTextfile(out.MetricsPath, res); err != nil {
			return err
		}
		logger.Info("metrics textfile written", log.PathKey, out.MetricsPath)
	}
	return nil
}
