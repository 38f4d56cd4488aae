// Package blight predicts whether a Detroit blight-violation ticket will be
// paid on time.
//
// The pipeline reads four CSV tables (training tickets, test tickets, ticket
// addresses and address geocodes), joins them into one located ticket frame,
// cleans and label-encodes it, then fits two classifiers: a logistic
// regression baseline and a random forest tuned by grid search with
// cross-validated ROC AUC. The refitted forest scores every test ticket and
// the scores are written as a two-column CSV (ticket_id, compliance).
//
// # Layout
//
//   - dataset: loading, joins, cleaning, encoding and matrix conversion over
//     gota data frames
//   - pipeline: stage orchestration, model fitting and prediction
//   - report: predictions CSV, JSON run report, ROC plot and Prometheus
//     textfile metrics
//   - config: koanf-based configuration with validation
//   - sklearn/...: the estimators, cross-validation and grid search
//   - preprocessing, metrics: label encoding, scaling and scores
//   - pkg/errors, pkg/log: structured errors and logging
//
// # Quick Start
//
// Run the whole pipeline from the command line:
//
//	blight predict --config blight.yaml
//
// or from Go:
//
//	cfg, err := config.Load("blight.yaml")
//	if err != nil {
//	    return err
//	}
//	logger := log.GetLoggerWithName("blight")
//	res, err := pipeline.Run(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return report.WriteAll(res, cfg.Output, logger)
//
// # Error Handling
//
// Errors carry stack traces via cockroachdb/errors. Input problems surface as
// *errors.SchemaError, bad settings as *errors.ValidationError, and empty or
// unmatched tables wrap errors.ErrEmptyData and errors.ErrUnmatchedRows:
//
//	if errors.Is(err, errors.ErrUnmatchedRows) {
//	    // strict_join が有効で、住所のないチケットがある
//	}
package blight
