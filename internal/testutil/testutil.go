package testutil

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"hkconnectrates/internal/rates"
)

// MockRateFetcher is a mock implementation of rates.Fetcher
type MockRateFetcher struct {
	mock.Mock
}

// Fetch implements rates.Fetcher
func (m *MockRateFetcher) Fetch(ctx context.Context) ([]rates.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]rates.Record), args.Error(1)
}

// MockSheet is a mock implementation of syncjob.Sheet
type MockSheet struct {
	mock.Mock
}

// ListExistingDates implements syncjob.Sheet
func (m *MockSheet) ListExistingDates(ctx context.Context) (rates.DateSet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(rates.DateSet), args.Error(1)
}

// AppendRows implements syncjob.Sheet
func (m *MockSheet) AppendRows(ctx context.Context, rows []rates.Resolved) error {
	args := m.Called(ctx, rows)
	return args.Error(0)
}

// MemorySheet is an in-memory syncjob.Sheet that records appended rows
type MemorySheet struct {
	Rows        []rates.Resolved
	AppendCalls int
}

// NewMemorySheet creates a sheet already holding rows
func NewMemorySheet(rows ...rates.Resolved) *MemorySheet {
	return &MemorySheet{Rows: rows}
}

// ListExistingDates implements syncjob.Sheet
func (s *MemorySheet) ListExistingDates(ctx context.Context) (rates.DateSet, error) {
	existing := make(rates.DateSet, len(s.Rows))
	for _, r := range s.Rows {
		existing.Add(r.Date)
	}
	return existing, nil
}

// AppendRows implements syncjob.Sheet
func (s *MemorySheet) AppendRows(ctx context.Context, rows []rates.Resolved) error {
	s.AppendCalls++
	s.Rows = append(s.Rows, rows...)
	return nil
}

// Day returns a date in January 2024, the month most tests use
func Day(day int) rates.Date {
	return rates.NewDate(2024, time.January, day)
}

// Quote builds a quote from decimal strings; an empty buy price returns nil
func Quote(buy, sell string) *rates.Quote {
	if buy == "" {
		return nil
	}
	q := &rates.Quote{Buy: decimal.RequireFromString(buy)}
	if sell != "" {
		q.Sell = decimal.RequireFromString(sell)
	}
	return q
}

// Record builds a record for a January 2024 day. Empty strings mean absent.
func Record(day int, settlement, reference string) rates.Record {
	return rates.Record{
		Date:       Day(day),
		Settlement: Quote(settlement, ""),
		Reference:  Quote(reference, ""),
	}
}
