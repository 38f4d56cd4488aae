package pipeline

import (
	"math"

	"github.com/go-gota/gota/dataframe"

	"github.com/YuminosukeSato/blight/core/model"
	"github.com/YuminosukeSato/blight/dataset"
	"github.com/YuminosukeSato/blight/pkg/errors"
)

// Prediction is the compliance probability of one test ticket.
type Prediction struct {
	TicketID    int64   `json:"ticket_id"`
	Probability float64 `json:"compliance"`
}

// Predict scores every row of the prepared test frame with estimator and
// returns the probability of the compliant class, in test row order.
func Predict(estimator model.Classifier, test dataframe.DataFrame, features []string) ([]Prediction, error) {
	ids, err := dataset.TicketIDs(test, dataset.TableTest)
	if err != nil {
		return nil, err
	}
	X, err := dataset.FeatureMatrix(test, dataset.TableTest, features)
	if err != nil {
		return nil, err
	}

	proba, err := model.PositiveClassProba(estimator, X, PositiveClass)
	if err != nil {
		return nil, errors.Wrap(err, "predict test tickets")
	}
	if len(proba) != len(ids) {
		return nil, errors.NewDimensionError("Predict", len(ids), len(proba), 0)
	}

	out := make([]Prediction, len(ids))
	for i, p := range proba {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, errors.NewNumericalInstabilityError("Predict", []float64{p}, i)
		}
		out[i] = Prediction{TicketID: ids[i], Probability: errors.ClipValue(p, 0, 1)}
	}
	return out, nil
}
