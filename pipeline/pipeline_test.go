package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/blight/config"
	"github.com/YuminosukeSato/blight/dataset"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
)

// ticketCSV renders rows under the columns the schema requires for table.
// Cells not given in a row are left empty.
func ticketCSV(t *testing.T, table string, rows []map[string]string) string {
	t.Helper()
	header := dataset.DefaultSchema().RequiredColumns(table)

	var b strings.Builder
	w := csv.NewWriter(&b)
	require.NoError(t, w.Write(header))
	for _, row := range rows {
		record := make([]string, len(header))
		for i, col := range header {
			record[i] = row[col]
		}
		require.NoError(t, w.Write(record))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return b.String()
}

func ticket(id, disposition, code, fine, compliance string) map[string]string {
	return map[string]string{
		"ticket_id":       id,
		"agency_name":     "Buildings, Safety Engineering & Env Department",
		"disposition":     disposition,
		"violation_code":  code,
		"fine_amount":     fine,
		"late_fee":        "10",
		"discount_amount": "0",
		"clean_up_cost":   "0",
		"judgment_amount": fine,
		"compliance":      compliance,
		"payment_amount":  "0",
	}
}

// fixtureFiles writes a small data set: five labelled training tickets (one
// without a geocoded address), one unlabelled training ticket and three test
// tickets, one with an address with missing lat/lon and one with no address
// at all.
func fixtureFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	train := ticketCSV(t, dataset.TableTrain, []map[string]string{
		ticket("1", "Responsible by Default", "9-1-36", "250", "0"),
		ticket("2", "Responsible by Admission", "22-2-88", "50", "1"),
		ticket("3", "Responsible by Default", "9-1-36", "300", "0"),
		ticket("4", "Responsible by Determination", "22-2-88", "100", "1"),
		ticket("5", "Not responsible by Dismissal", "9-1-36", "0", ""),
		ticket("6", "Responsible by Admission", "22-2-88", "50", "1"),
	})
	test := ticketCSV(t, dataset.TableTest, []map[string]string{
		ticket("10", "Responsible by Default", "9-1-43", "200", ""),
		ticket("11", "Responsible by Admission", "22-2-88", "50", ""),
		ticket("12", "Responsible by Default", "9-1-36", "100", ""),
	})
	addresses := "ticket_id,address\n" +
		"1,\"2900 tyler, Detroit MI\"\n" +
		"2,\"4311 central, Detroit MI\"\n" +
		"3,\"1449 longfellow, Detroit MI\"\n" +
		"4,\"1441 longfellow, Detroit MI\"\n" +
		"5,\"2926 brainard, Detroit MI\"\n" +
		"6,\"9 unknown, Detroit MI\"\n" +
		"10,\"8300 fenkell, Detroit MI\"\n" +
		"11,\"1 nowhere, Detroit MI\"\n"
	latlons := "address,lat,lon\n" +
		"\"2900 tyler, Detroit MI\",42.390729,-83.124268\n" +
		"\"4311 central, Detroit MI\",42.326937,-83.135118\n" +
		"\"1449 longfellow, Detroit MI\",42.380516,-83.096069\n" +
		"\"1441 longfellow, Detroit MI\",42.380570,-83.095919\n" +
		"\"2926 brainard, Detroit MI\",42.345691,-83.077339\n" +
		"\"8300 fenkell, Detroit MI\",42.409893,-83.148426\n" +
		"\"1 nowhere, Detroit MI\",,\n"

	writeInputs(t, dir, train, test, addresses, latlons)
	return dir
}

func writeInputs(t *testing.T, dir, train, test, addresses, latlons string) {
	t.Helper()
	for name, content := range map[string]string{
		"train.csv":     train,
		"test.csv":      test,
		"addresses.csv": addresses,
		"latlons.csv":   latlons,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
}

// minimalFiles writes the smallest complete data set: four labelled training
// tickets, two of each class, and two test tickets, the second of which has
// an address without lat/lon.
func minimalFiles(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	train := ticketCSV(t, dataset.TableTrain, []map[string]string{
		ticket("1", "Responsible by Default", "9-1-36", "250", "0"),
		ticket("2", "Responsible by Admission", "22-2-88", "50", "1"),
		ticket("3", "Responsible by Default", "9-1-36", "300", "0"),
		ticket("4", "Responsible by Admission", "22-2-88", "100", "1"),
	})
	test := ticketCSV(t, dataset.TableTest, []map[string]string{
		ticket("10", "Responsible by Default", "9-1-36", "200", ""),
		ticket("11", "Responsible by Admission", "22-2-88", "50", ""),
	})
	addresses := "ticket_id,address\n" +
		"1,a1\n2,a2\n3,a3\n4,a4\n10,a10\n11,a11\n"
	latlons := "address,lat,lon\n" +
		"a1,42.390729,-83.124268\n" +
		"a2,42.326937,-83.135118\n" +
		"a3,42.380516,-83.096069\n" +
		"a4,42.380570,-83.095919\n" +
		"a10,42.409893,-83.148426\n" +
		"a11,,\n"

	writeInputs(t, dir, train, test, addresses, latlons)
	return dir
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Data.Dir = dir
	cfg.Forest.NEstimators = []int{5, 10}
	cfg.Forest.CVFolds = 2
	cfg.Output.PredictionsPath = filepath.Join(dir, "predictions.csv")
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	errors.SetWarningHandler(func(error) {})
	defer errors.SetWarningHandler(nil)

	dir := fixtureFiles(t)
	logger, _ := log.NewTestLogger(log.LevelDebug)

	res, err := Run(context.Background(), testConfig(dir), logger)
	require.NoError(t, err)

	// 予測はテストチケットごとに1行
	require.Len(t, res.Predictions, 2)
	assert.Equal(t, int64(10), res.Predictions[0].TicketID)
	assert.Equal(t, int64(11), res.Predictions[1].TicketID)
	for _, p := range res.Predictions {
		assert.GreaterOrEqual(t, p.Probability, 0.0)
		assert.LessOrEqual(t, p.Probability, 1.0)
	}

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.Filtered)
	assert.Equal(t, 1, res.Joins[dataset.TableAddresses].Unmatched)
	assert.Equal(t, 1, res.Joins[dataset.TableTrain].Unmatched)
	assert.Equal(t, 1, res.Joins[dataset.TableTest].Unmatched)
	assert.Equal(t, 0, res.GeoDropped)
	assert.Equal(t, map[string]int{dataset.ColLat: 1, dataset.ColLon: 1}, res.Imputed)
	assert.Equal(t, map[string]int{"train": 3, "validation": 1}, res.SplitShape)

	// 語彙は学習とテストの和集合 (未ラベルのチケット5は含まない)
	assert.Equal(t, 3, res.Vocabulary[dataset.ColDisposition])
	assert.Equal(t, 3, res.Vocabulary[dataset.ColViolationCode])

	assert.Len(t, res.Forest.Candidates, 4)
	assert.Contains(t, res.Forest.BestParams, "n_estimators")
	assert.Len(t, res.Correlations, len(dataset.DefaultSchema().Features))
	assert.Len(t, res.Validation.Labels, 1)
	assert.Len(t, res.Validation.Forest, 1)
	assert.Len(t, res.Validation.Logistic, 1)

	// 出力行数は住所と結合できたテストチケット数に等しい
	for _, shape := range res.Shapes {
		if shape.Stage == StageJoin && shape.Table == dataset.TableTest {
			assert.Equal(t, len(res.Predictions), shape.Shape.Rows)
		}
	}
	assert.Equal(t, res.Joins[dataset.TableTest].Matched, len(res.Predictions))

	assert.True(t, logger.ContainsMessage("pipeline finished"))
	dropped := map[interface{}]bool{}
	for _, entry := range logger.EntriesWithMessage("tickets without located address dropped") {
		dropped[entry[log.TableKey]] = true
	}
	assert.True(t, dropped[dataset.TableTrain])
	assert.True(t, dropped[dataset.TableTest])
	assert.True(t, logger.ContainsField(log.RunIDKey, res.RunID))
}

func TestRun_MinimalDefaults(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	cfg := config.Default()
	cfg.Data.Dir = minimalFiles(t)
	logger, _ := log.NewTestLogger(log.LevelInfo)

	res, err := Run(context.Background(), cfg, logger)
	require.NoError(t, err)

	require.Len(t, res.Predictions, 2)
	for i, id := range []int64{10, 11} {
		assert.Equal(t, id, res.Predictions[i].TicketID)
		assert.GreaterOrEqual(t, res.Predictions[i].Probability, 0.0)
		assert.LessOrEqual(t, res.Predictions[i].Probability, 1.0)
	}
	assert.Equal(t, map[string]int{dataset.ColLat: 1, dataset.ColLon: 1}, res.Imputed)
	assert.Equal(t, map[string]int{"train": 3, "validation": 1}, res.SplitShape)

	// 3行の学習データでは最大クラスが2件なので3分割は2分割に下げられる
	assert.Equal(t, 3, res.Forest.RequestedCVFolds)
	assert.Equal(t, 2, res.Forest.CVFolds)
	assert.Len(t, res.Forest.Candidates, 4)
	assert.True(t, logger.ContainsMessage("cv folds reduced to fit the training split"))

	var reduced bool
	for _, w := range warnings {
		var dataWarn *errors.DataWarning
		if errors.As(w, &dataWarn) && dataWarn.Op == "FitModels" {
			reduced = true
		}
	}
	assert.True(t, reduced, "expected a DataWarning for the reduced fold count")

	assert.InDelta(t, 1.0, res.Logistic.ValAccuracy+res.Logistic.ValError, 1e-12)
}

func TestCVFolds(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		labels    []float64
		want      int
	}{
		{"enough rows", 3, []float64{0, 1, 0, 1, 0, 1}, 3},
		{"capped at largest class", 3, []float64{0, 1, 0}, 2},
		{"largest class decides", 5, []float64{0, 0, 0, 0, 1}, 4},
		{"never below two", 3, []float64{0, 1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			y := mat.NewVecDense(len(tt.labels), tt.labels)
			assert.Equal(t, tt.want, cvFolds(tt.requested, y))
		})
	}
}

func TestRun_StrictJoin(t *testing.T) {
	dir := fixtureFiles(t)
	cfg := testConfig(dir)
	cfg.Data.StrictJoin = true

	_, err := Run(context.Background(), cfg, log.Nop())
	assert.True(t, errors.Is(err, errors.ErrUnmatchedRows))
}

func TestRun_Cancelled(t *testing.T) {
	dir := fixtureFiles(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testConfig(dir), log.Nop())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_MissingInput(t *testing.T) {
	dir := fixtureFiles(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "latlons.csv")))

	_, err := Run(context.Background(), testConfig(dir), log.Nop())
	assert.Error(t, err)
}

func TestPrepare_TrainVocabulary(t *testing.T) {
	dir := fixtureFiles(t)
	opts := OptionsFromConfig(testConfig(dir))
	opts.Prepare.Vocabulary = dataset.VocabularyTrain

	in, err := dataset.LoadInputs(opts.Paths, opts.Prepare.Schema)
	require.NoError(t, err)

	p, err := Prepare(context.Background(), in, opts.Prepare, log.Nop())
	require.NoError(t, err)

	// 9-1-43 は学習データにない
	assert.Equal(t, map[string]int{dataset.ColViolationCode: 1}, p.Unknown)
	assert.Equal(t, []string{"-1", "0"}, p.Test.Col(dataset.ColViolationCode).Records())

	ids := p.Train.Col(dataset.ColTicketID).Records()
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
	for _, col := range opts.Prepare.Schema.TrainDropColumns {
		assert.NotContains(t, p.Train.Names(), col)
	}
	assert.Contains(t, p.Train.Names(), dataset.ColCompliance)
	assert.NotContains(t, p.Test.Names(), dataset.ColCompliance)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Dir = "/data"
	opts := OptionsFromConfig(cfg)

	assert.Equal(t, "/data/train.csv", opts.Paths.Train)
	assert.Equal(t, dataset.EncodingLatin1, opts.Paths.TrainEncoding)
	assert.Equal(t, dataset.VocabularyUnion, opts.Prepare.Vocabulary)
	assert.Equal(t, []int{10, 100}, opts.Forest.NEstimators)
	assert.Equal(t, []int{0, 30}, opts.Forest.MaxDepth)
	assert.InDelta(t, 0.25, opts.TestSize, 1e-12)
}
