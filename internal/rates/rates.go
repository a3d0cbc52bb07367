// Package rates holds the Stock Connect exchange-rate model and the policy
// that picks one effective rate per trading date.
package rates

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// Source identifies which published series an effective rate came from.
type Source string

const (
	// SourceSettlement marks a rate taken from the settlement series.
	SourceSettlement Source = "SETTLEMENT"
	// SourceReference marks a rate taken from the reference series.
	SourceReference Source = "REFERENCE"
)

// Label returns the column text written to the spreadsheet for s.
func (s Source) Label() string {
	switch s {
	case SourceSettlement:
		return "结算汇率"
	case SourceReference:
		return "参考汇率"
	default:
		return string(s)
	}
}

// Quote is one published buy/sell pair. Buy is the effective rate.
type Quote struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
}

// Record is what the provider publishes for a single date.
// A nil quote means the provider has no value of that kind for the date.
type Record struct {
	Date       Date
	Settlement *Quote
	Reference  *Quote
}

// Resolved is the single effective rate chosen for a date.
type Resolved struct {
	Date   Date
	Rate   decimal.Decimal
	Sell   decimal.Decimal
	Source Source
}

// Fetcher retrieves the published rate history, ordered by ascending date.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// Resolve applies the selection policy to r: the settlement quote if present,
// otherwise the reference quote. It returns false when r has neither.
func Resolve(r Record) (Resolved, bool) {
	switch {
	case r.Settlement != nil:
		return Resolved{
			Date:   r.Date,
			Rate:   r.Settlement.Buy,
			Sell:   r.Settlement.Sell,
			Source: SourceSettlement,
		}, true
	case r.Reference != nil:
		return Resolved{
			Date:   r.Date,
			Rate:   r.Reference.Buy,
			Sell:   r.Reference.Sell,
			Source: SourceReference,
		}, true
	default:
		return Resolved{}, false
	}
}

// Merge joins a settlement series and a reference series into one record per
// date, sorted by ascending date.
func Merge(settlement, reference map[Date]Quote) []Record {
	byDate := make(map[Date]*Record, len(settlement)+len(reference))
	get := func(d Date) *Record {
		rec, ok := byDate[d]
		if !ok {
			rec = &Record{Date: d}
			byDate[d] = rec
		}
		return rec
	}

	for d, q := range settlement {
		get(d).Settlement = &q
	}
	for d, q := range reference {
		get(d).Reference = &q
	}

	records := make([]Record, 0, len(byDate))
	for _, rec := range byDate {
		records = append(records, *rec)
	}
	SortRecords(records)
	return records
}

// SortRecords orders records by ascending date.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
}
