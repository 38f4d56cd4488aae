package pipeline

import (
	"context"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/YuminosukeSato/blight/dataset"
	"github.com/YuminosukeSato/blight/pkg/errors"
	"github.com/YuminosukeSato/blight/pkg/log"
)

// Stage names used in logs and in Result.Shapes.
const (
	StageLoad    = "load"
	StageFilter  = "filter"
	StageJoin    = "join"
	StageClean   = "clean"
	StageEncode  = "encode"
	StageSplit   = "split"
	StageFit     = "fit"
	StagePredict = "predict"
)

// StageShape records the shape of one table after one stage.
type StageShape struct {
	Stage string        `json:"stage"`
	Table string        `json:"table"`
	Shape dataset.Shape `json:"shape"`
}

// PrepareOptions controls the frame stages.
type PrepareOptions struct {
	Schema     dataset.Schema
	StrictJoin bool
	Vocabulary dataset.VocabularyMode
}

// Prepared holds the model-ready frames and what happened on the way.
type Prepared struct {
	Train dataframe.DataFrame `json:"-"`
	Test  dataframe.DataFrame `json:"-"`

	Shapes     []StageShape                 `json:"shapes"`
	Joins      map[string]dataset.JoinStats `json:"joins"`
	Filtered   int                          `json:"filtered_rows"`
	GeoDropped int                          `json:"geo_dropped_rows"`
	Imputed    map[string]int               `json:"imputed_cells"`

	Vocabulary map[string]int `json:"vocabulary_sizes"`
	Unknown    map[string]int `json:"unknown_categories"`
}

// Prepare joins, cleans and encodes the raw tables. Inputs are not modified.
func Prepare(ctx context.Context, in *dataset.Inputs, opts PrepareOptions, logger log.Logger) (*Prepared, error) {
	if logger == nil {
		logger = log.Nop()
	}
	p := &Prepared{Joins: make(map[string]dataset.JoinStats, 3)}
	record := func(stage, table string, df dataframe.DataFrame) {
		shape := dataset.ShapeOf(df)
		p.Shapes = append(p.Shapes, StageShape{Stage: stage, Table: table, Shape: shape})
		logger.Info("stage shape",
			log.StageKey, stage,
			log.TableKey, table,
			log.SamplesKey, shape.Rows,
			log.FeaturesKey, shape.Cols,
		)
	}

	record(StageLoad, dataset.TableTrain, in.Train)
	record(StageLoad, dataset.TableTest, in.Test)
	record(StageLoad, dataset.TableAddresses, in.Addresses)
	record(StageLoad, dataset.TableLatLons, in.LatLons)

	// compliance が 0/1 の行だけが学習対象
	start := time.Now()
	train, err := dataset.FilterCompliance(in.Train)
	if err != nil {
		return nil, err
	}
	p.Filtered = in.Train.Nrow() - train.Nrow()
	logger.Info("filtered unlabelled tickets", log.StageKey, StageFilter, log.DroppedKey, p.Filtered)
	record(StageFilter, dataset.TableTrain, train)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "prepare cancelled")
	}

	located, stats, err := dataset.JoinGeocodes(in.Addresses, in.LatLons)
	if err != nil {
		return nil, err
	}
	p.Joins[dataset.TableAddresses] = stats
	if stats.Unmatched > 0 {
		logger.Warn("addresses without geocode dropped",
			log.StageKey, StageJoin, log.UnmatchedKey, stats.Unmatched)
	}

	test := in.Test
	for _, side := range []struct {
		table string
		df    *dataframe.DataFrame
	}{
		{dataset.TableTrain, &train},
		{dataset.TableTest, &test},
	} {
		joined, stats, err := dataset.AttachLocations(*side.df, located, side.table, opts.StrictJoin)
		if err != nil {
			return nil, err
		}
		p.Joins[side.table] = stats
		if stats.Unmatched > 0 {
			logger.Warn("tickets without located address dropped",
				log.StageKey, StageJoin,
				log.TableKey, side.table,
				log.UnmatchedKey, stats.Unmatched,
			)
		}
		*side.df = joined
		record(StageJoin, side.table, joined)
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "prepare cancelled")
	}

	if train, err = dataset.DropColumns(train, dataset.TableTrain, opts.Schema.TrainDropColumns); err != nil {
		return nil, err
	}
	if test, err = dataset.DropColumns(test, dataset.TableTest, opts.Schema.TestDropColumns); err != nil {
		return nil, err
	}
	logger.Debug("null counts", log.TableKey, dataset.TableTrain, log.NullsKey, dataset.NullCounts(train))
	logger.Debug("null counts", log.TableKey, dataset.TableTest, log.NullsKey, dataset.NullCounts(test))

	// 学習側は欠損行を落とし、テスト側は平均で埋める
	if train, p.GeoDropped, err = dataset.DropMissingGeo(train, dataset.TableTrain); err != nil {
		return nil, err
	}
	if test, p.Imputed, err = dataset.ImputeGeoMean(test, dataset.TableTest); err != nil {
		return nil, err
	}
	logger.Info("geo cleaned",
		log.StageKey, StageClean,
		log.DroppedKey, p.GeoDropped,
		"geo.imputed_lat", p.Imputed[dataset.ColLat],
		"geo.imputed_lon", p.Imputed[dataset.ColLon],
	)
	record(StageClean, dataset.TableTrain, train)
	record(StageClean, dataset.TableTest, test)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "prepare cancelled")
	}

	if opts.Vocabulary == dataset.VocabularyUnion {
		logger.Warn("categorical vocabulary is fitted on train and test values; test categories leak into the encoder",
			log.StageKey, StageEncode)
	}
	enc, err := dataset.EncodeCategoricals(train, test, opts.Schema.Categorical, opts.Vocabulary)
	if err != nil {
		return nil, err
	}
	p.Train, p.Test = enc.Train, enc.Test
	p.Vocabulary = enc.VocabularySizes()
	p.Unknown = enc.Unknown
	for col, n := range p.Unknown {
		logger.Warn("unseen test categories mapped to the unknown code",
			log.StageKey, StageEncode, log.ColumnKey, col, "encoder.unknown", n)
	}
	for col, size := range p.Vocabulary {
		logger.Debug("encoder fitted", log.ColumnKey, col, log.VocabularySizeKey, size)
	}
	record(StageEncode, dataset.TableTrain, p.Train)
	record(StageEncode, dataset.TableTest, p.Test)

	logger.Debug("prepare finished", log.DurationMsKey, float64(time.Since(start).Microseconds())/1000)
	return p, nil
}
