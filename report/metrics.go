package report

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/blight/pipeline"
	"github.com/YuminosukeSato/blight/pkg/errors"
)

// NewRegistry returns a registry holding the gauges of one run, for the
// node_exporter textfile collector.
func NewRegistry(res *pipeline.Result) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()

	rows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blight",
		Name:      "stage_rows",
		Help:      "Rows of a table after a pipeline stage.",
	}, []string{"stage", "table"})
	unmatched := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blight",
		Name:      "join_unmatched_rows",
		Help:      "Left rows dropped by an inner join.",
	}, []string{"table"})
	score := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blight",
		Name:      "model_score",
		Help:      "Model scores of the run.",
	}, []string{"model", "metric"})
	predictions := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blight",
		Name:      "predictions",
		Help:      "Test tickets scored.",
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blight",
		Name:      "run_duration_seconds",
		Help:      "Wall time of the run.",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blight",
		Name:      "last_run_timestamp_seconds",
		Help:      "Start time of the run.",
	})

	for _, c := range []prometheus.Collector{rows, unmatched, score, predictions, duration, lastRun} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register run metrics")
		}
	}

	if res.Prepared != nil {
		for _, s := range res.Shapes {
			rows.WithLabelValues(s.Stage, s.Table).Set(float64(s.Shape.Rows))
		}
		for table, j := range res.Joins {
			unmatched.WithLabelValues(table).Set(float64(j.Unmatched))
		}
	}
	score.WithLabelValues("logistic_regression", "train_accuracy").Set(res.Logistic.TrainAccuracy)
	score.WithLabelValues("logistic_regression", "validation_accuracy").Set(res.Logistic.ValAccuracy)
	score.WithLabelValues("logistic_regression", "validation_roc_auc").Set(res.Logistic.ValAUC)
	score.WithLabelValues("logistic_regression", "validation_error").Set(res.Logistic.ValError)
	score.WithLabelValues("random_forest", "cv_"+res.Forest.Scoring).Set(res.Forest.BestScore)
	score.WithLabelValues("random_forest", "validation_roc_auc").Set(res.Forest.ValAUC)
	predictions.Set(float64(len(res.Predictions)))
	duration.Set(res.Duration.Seconds())
	lastRun.Set(float64(res.Started.Unix()))
	return reg, nil
}

// WriteMetricsTextfile writes the run gauges to path in the Prometheus text
// format.
func WriteMetricsTextfile(path string, res *pipeline.Result) error {
	reg, err := NewRegistry(res)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
