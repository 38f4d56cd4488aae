package dataset

import (
	"github.com/go-gota/gota/dataframe"

	"github.com/YuminosukeSato/blight/pkg/errors"
)

// JoinStats counts the outcome of an inner join.
type JoinStats struct {
	Key       string `json:"key"`
	Left      int    `json:"left_rows"`
	Right     int    `json:"right_rows"`
	Matched   int    `json:"matched_rows"`
	Unmatched int    `json:"unmatched_rows"`
}

// InnerJoin joins right onto left by key.
//
// The right key must be unique, so no left row is ever duplicated. Left row
// order is kept, left rows without a partner (or with a missing key) are
// dropped and counted in JoinStats.Unmatched. The result holds the left
// columns followed by the right columns other than key.
func InnerJoin(left, right dataframe.DataFrame, key string) (dataframe.DataFrame, JoinStats, error) {
	stats := JoinStats{Key: key, Left: left.Nrow(), Right: right.Nrow()}

	if err := RequireColumns(left, "left", []string{key}); err != nil {
		return dataframe.DataFrame{}, stats, err
	}
	if err := RequireUnique(right, "right", key); err != nil {
		return dataframe.DataFrame{}, stats, err
	}

	leftCols := make(map[string]bool, left.Ncol())
	for _, n := range left.Names() {
		leftCols[n] = true
	}
	for _, n := range right.Names() {
		if n != key && leftCols[n] {
			return dataframe.DataFrame{}, stats, errors.NewSchemaError("right", n, "column exists on both sides of the join")
		}
	}

	rightIndex := make(map[string]int, right.Nrow())
	for i, v := range right.Col(key).Records() {
		rightIndex[v] = i
	}

	lk := left.Col(key)
	nas := lk.IsNaN()
	var li, ri []int
	for i, v := range lk.Records() {
		if nas[i] {
			continue
		}
		if j, ok := rightIndex[v]; ok {
			li = append(li, i)
			ri = append(ri, j)
		}
	}
	stats.Matched = len(li)
	stats.Unmatched = stats.Left - stats.Matched

	if len(li) == 0 {
		return dataframe.DataFrame{}, stats, errors.Wrapf(errors.ErrEmptyData, "inner join on %q matched no rows", key)
	}

	rightPart := right.Subset(ri).Drop(key)
	joined := left.Subset(li)
	if rightPart.Ncol() > 0 {
		joined = joined.CBind(rightPart)
	}
	if joined.Err != nil {
		return dataframe.DataFrame{}, stats, errors.Wrapf(joined.Err, "join on %q", key)
	}
	return joined, stats, nil
}

// JoinGeocodes attaches lat/lon to every address row.
func JoinGeocodes(addresses, latlons dataframe.DataFrame) (dataframe.DataFrame, JoinStats, error) {
	located, stats, err := InnerJoin(addresses, latlons, ColAddress)
	if err != nil {
		return dataframe.DataFrame{}, stats, errors.Wrapf(err, "join %s with %s", TableAddresses, TableLatLons)
	}
	return located, stats, nil
}

// AttachLocations adds address, lat and lon to every ticket. Tickets without
// a located address are dropped; with strict set they are an error wrapping
// ErrUnmatchedRows instead.
func AttachLocations(tickets, located dataframe.DataFrame, table string, strict bool) (dataframe.DataFrame, JoinStats, error) {
	joined, stats, err := InnerJoin(tickets, located, ColTicketID)
	if err != nil {
		return dataframe.DataFrame{}, stats, errors.Wrapf(err, "attach locations to %s", table)
	}
	if strict && stats.Unmatched > 0 {
		return dataframe.DataFrame{}, stats, errors.Wrapf(errors.ErrUnmatchedRows,
			"%d of %d %s tickets have no located address", stats.Unmatched, stats.Left, table)
	}
	return joined, stats, nil
}
