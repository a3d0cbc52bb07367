// Package syncjob runs one idempotent pass of the exchange-rate sync: read the
// dates already recorded, fetch the published rates, and append the missing
// ones.
package syncjob

import (
	"context"
	"log/slog"

	"hkconnectrates/internal/rates"
)

// Sheet is the remote table the rates are recorded in
type Sheet interface {
	// ListExistingDates returns every date already present in the table.
	ListExistingDates(ctx context.Context) (rates.DateSet, error)
	// AppendRows appends rows in the given order. Rows written before a
	// failure stay written.
	AppendRows(ctx context.Context, rows []rates.Resolved) error
}

// Report summarizes one run
type Report struct {
	// Fetched is the number of dates the source returned
	Fetched int
	// Dropped counts dates with neither a settlement nor a reference rate
	Dropped int
	// Skipped counts dates already present in the sheet
	Skipped int
	// Appended is the number of rows written
	Appended int
	// Settlement and Reference split the planned rows by source
	Settlement int
	Reference  int
}

// Job wires a rate source to a sheet
type Job struct {
	source rates.Fetcher
	sheet  Sheet
}

// New creates a Job
func New(source rates.Fetcher, sheet Sheet) *Job {
	return &Job{
		source: source,
		sheet:  sheet,
	}
}

// Run performs one sync pass. Existing dates are read before anything is
// fetched so a sheet failure never leads to a write attempt.
func (j *Job) Run(ctx context.Context) (Report, error) {
	existing, err := j.sheet.ListExistingDates(ctx)
	if err != nil {
		return Report{}, stageError(ErrSheetRead, err)
	}

	records, err := j.source.Fetch(ctx)
	if err != nil {
		return Report{}, stageError(ErrSourceUnavailable, err)
	}

	toAppend, report := Plan(existing, records)

	slog.Info("planned sheet update",
		"fetched", report.Fetched,
		"dropped", report.Dropped,
		"skipped", report.Skipped,
		"new", len(toAppend))

	if len(toAppend) == 0 {
		return report, nil
	}

	for _, r := range toAppend {
		slog.Debug("new rate", "date", r.Date.String(), "rate", r.Rate.String(), "source", string(r.Source))
	}

	if err := j.sheet.AppendRows(ctx, toAppend); err != nil {
		return report, stageError(ErrSheetWrite, err)
	}

	report.Appended = len(toAppend)
	return report, nil
}

// Plan resolves records and keeps those whose date is neither in existing nor
// already planned, in ascending date order. Appended is left at zero.
func Plan(existing rates.DateSet, records []rates.Record) ([]rates.Resolved, Report) {
	sorted := make([]rates.Record, len(records))
	copy(sorted, records)
	rates.SortRecords(sorted)

	report := Report{Fetched: len(records)}
	planned := make(rates.DateSet)
	var toAppend []rates.Resolved

	for _, rec := range sorted {
		resolved, ok := rates.Resolve(rec)
		if !ok {
			report.Dropped++
			continue
		}
		if existing.Has(resolved.Date) || planned.Has(resolved.Date) {
			report.Skipped++
			continue
		}

		planned.Add(resolved.Date)
		toAppend = append(toAppend, resolved)

		switch resolved.Source {
		case rates.SourceSettlement:
			report.Settlement++
		case rates.SourceReference:
			report.Reference++
		}
	}

	return toAppend, report
}
