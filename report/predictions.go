package report

import (
	"io"
	"os"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/blight/pipeline"
	"github.com/YuminosukeSato/blight/pkg/errors"
)

// Prediction file columns.
const (
	ColTicketID   = "ticket_id"
	ColCompliance = "compliance"
)

// PredictionFrame lays predictions out as a ticket_id,compliance frame.
func PredictionFrame(preds []pipeline.Prediction) dataframe.DataFrame {
	ids := make([]int, len(preds))
	probs := make([]string, len(preds))
	for i, p := range preds {
		ids[i] = int(p.TicketID)
		probs[i] = strconv.FormatFloat(p.Probability, 'g', -1, 64)
	}
	return dataframe.New(
		series.New(ids, series.Int, ColTicketID),
		series.New(probs, series.String, ColCompliance),
	)
}

// WritePredictions writes predictions as CSV with a header row.
func WritePredictions(w io.Writer, preds []pipeline.Prediction) error {
	if len(preds) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "no predictions to write")
	}
	df := PredictionFrame(preds)
	if df.Err != nil {
		return errors.Wrap(df.Err, "build prediction frame")
	}
	if err := df.WriteCSV(w); err != nil {
		return errors.Wrap(err, "write predictions")
	}
	return nil
}

// WritePredictionsFile writes predictions to path.
func WritePredictionsFile(path string, preds []pipeline.Prediction) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	return WritePredictions(f, preds)
}
