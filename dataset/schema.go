// Package dataset loads, joins and cleans the blight-ticket tables.
//
// Every function takes gota frames and returns new frames; inputs are never
// modified. Column sets are declared once in this file.
package dataset

import "sort"

// Table names used in error messages and logs.
const (
	TableTrain     = "train"
	TableTest      = "test"
	TableAddresses = "addresses"
	TableLatLons   = "latlons"
)

// Column names with meaning to the pipeline.
const (
	ColTicketID      = "ticket_id"
	ColAddress       = "address"
	ColLat           = "lat"
	ColLon           = "lon"
	ColCompliance    = "compliance"
	ColDisposition   = "disposition"
	ColViolationCode = "violation_code"
)

// adminColumns は学習に使わない管理・テキスト列
var adminColumns = []string{
	"agency_name", "inspector_name", "violator_name", "non_us_str_code",
	"violation_description", "grafitti_status", "state_fee", "admin_fee",
	"ticket_issued_date", "hearing_date",
}

// paymentColumns are only known after the fact and absent from test.csv.
var paymentColumns = []string{
	"payment_amount", "balance_due", "payment_date", "payment_status",
	"collection_status", "compliance_detail",
}

var addressColumns = []string{
	"violation_zip_code", "country", ColAddress, "violation_street_number",
	"violation_street_name", "mailing_address_str_number",
	"mailing_address_str_name", "city", "state", "zip_code",
}

// Schema declares the column contract of the pipeline.
type Schema struct {
	// TrainDropColumns are removed from the joined training table.
	TrainDropColumns []string
	// TestDropColumns are removed from the joined test table.
	TestDropColumns []string
	// Categorical columns are label-encoded before modelling.
	Categorical []string
	// Features are the model inputs, in matrix column order.
	Features []string
	// Target is the label column of the training table.
	Target string
}

// DefaultSchema returns the column contract of the Detroit blight data.
func DefaultSchema() Schema {
	return Schema{
		TrainDropColumns: concat(adminColumns, paymentColumns, addressColumns),
		TestDropColumns:  concat(adminColumns, addressColumns),
		Categorical:      []string{ColDisposition, ColViolationCode},
		Features: []string{
			ColTicketID, ColViolationCode, ColDisposition,
			"fine_amount", "late_fee", "discount_amount", "clean_up_cost", "judgment_amount",
			ColLat, ColLon,
		},
		Target: ColCompliance,
	}
}

// joinedColumns are added by AttachLocations and not present in raw tables.
var joinedColumns = map[string]bool{ColAddress: true, ColLat: true, ColLon: true}

// RequiredColumns returns the sorted columns a raw table must contain.
func (s Schema) RequiredColumns(table string) []string {
	var cols []string
	switch table {
	case TableTrain:
		cols = concat(s.TrainDropColumns, s.Features, []string{s.Target})
	case TableTest:
		cols = concat(s.TestDropColumns, s.Features)
	case TableAddresses:
		return []string{ColAddress, ColTicketID}
	case TableLatLons:
		return []string{ColAddress, ColLat, ColLon}
	default:
		return nil
	}

	seen := make(map[string]bool, len(cols))
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if joinedColumns[c] || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
