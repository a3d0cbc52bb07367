package feishu

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resty.dev/v3"

	"hkconnectrates/internal/fetcher"
	"hkconnectrates/internal/rates"
	"hkconnectrates/internal/ratelimit"
)

const (
	valuesPath = "/open-apis/sheets/v2/spreadsheets/{spreadsheetToken}/values/{range}"
	appendPath = "/open-apis/sheets/v2/spreadsheets/{spreadsheetToken}/values_append"

	// Feishu accepts at most 5000 rows per values_append call
	maxBatchSize     = 5000
	defaultBatchSize = 500

	timestampLayout = "2006-01-02 15:04:05"
)

// ValuesResponse represents the reply of a range read
type ValuesResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Revision   int `json:"revision"`
		ValueRange struct {
			Range  string  `json:"range"`
			Values [][]any `json:"values"`
		} `json:"valueRange"`
	} `json:"data"`
}

// AppendResponse represents the reply of a values_append call
type AppendResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TableRange string `json:"tableRange"`
		Updates    struct {
			UpdatedRange string `json:"updatedRange"`
			UpdatedRows  int    `json:"updatedRows"`
			UpdatedCells int    `json:"updatedCells"`
		} `json:"updates"`
	} `json:"data"`
}

// appendRequest is the values_append request body
type appendRequest struct {
	ValueRange struct {
		Range  string  `json:"range"`
		Values [][]any `json:"values"`
	} `json:"valueRange"`
}

// SheetParams identifies the target sheet and how it is laid out
type SheetParams struct {
	SpreadsheetToken string
	SheetID          string
	// HeaderRows is the number of leading rows that hold column titles
	HeaderRows int
	// BatchSize caps the number of rows sent per append request
	BatchSize int
}

// SheetStore records one row per date in a Feishu sheet. The date is always
// the first column.
type SheetStore struct {
	params  SheetParams
	client  *resty.Client
	tokens  *TokenSource
	limiter *ratelimit.Limiter
	now     func() time.Time
}

// NewSheetStore creates a sheet store. limiter may be nil.
func NewSheetStore(baseURL, appID, appSecret string, params SheetParams, limiter *ratelimit.Limiter) *SheetStore {
	client := fetcher.NewHTTPClient(baseURL)

	if params.BatchSize <= 0 {
		params.BatchSize = defaultBatchSize
	}
	if params.BatchSize > maxBatchSize {
		params.BatchSize = maxBatchSize
	}
	if params.HeaderRows < 0 {
		params.HeaderRows = 0
	}

	return &SheetStore{
		params:  params,
		client:  client,
		tokens:  NewTokenSource(appID, appSecret, client, limiter),
		limiter: limiter,
		now:     time.Now,
	}
}

// ListExistingDates reads the date column and returns every date found below
// the header rows. Cells that do not hold a date are skipped.
func (s *SheetStore) ListExistingDates(ctx context.Context) (rates.DateSet, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx, ratelimit.APIFeishu); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	var result ValuesResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetPathParams(map[string]string{
			"spreadsheetToken": s.params.SpreadsheetToken,
			"range":            s.dateRange(),
		}).
		SetResult(&result).
		Get(valuesPath)

	if err := fetcher.CheckResponse(resp, err); err != nil {
		return nil, fmt.Errorf("failed to read sheet values: %w", err)
	}

	if result.Code != 0 {
		return nil, fmt.Errorf("failed to read sheet values: %w", fetcher.NewAPIError(result.Code, result.Msg))
	}

	values := result.Data.ValueRange.Values
	existing := make(rates.DateSet, len(values))
	for i, row := range values {
		if i < s.params.HeaderRows || len(row) == 0 {
			continue
		}
		d, ok, err := cellDate(row[0])
		if err != nil {
			slog.Warn("skipping sheet cell that is not a date",
				"row", i+1,
				"value", row[0],
				"error", err)
			continue
		}
		if ok {
			existing.Add(d)
		}
	}

	slog.Info("read existing sheet dates",
		"rows", len(values),
		"dates", existing.Len())

	return existing, nil
}

// AppendRows appends one row per rate, in order, after the last row of the
// sheet. Rows are sent in batches; batches already written stay written when
// a later batch fails.
func (s *SheetStore) AppendRows(ctx context.Context, rows []rates.Resolved) error {
	if len(rows) == 0 {
		return nil
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return err
	}

	updatedAt := s.now().Format(timestampLayout)

	for start := 0; start < len(rows); start += s.params.BatchSize {
		end := min(start+s.params.BatchSize, len(rows))

		if err := s.appendBatch(ctx, token, rows[start:end], updatedAt); err != nil {
			return fmt.Errorf("failed to append rows %d-%d of %d: %w", start+1, end, len(rows), err)
		}
	}

	return nil
}

func (s *SheetStore) appendBatch(ctx context.Context, token string, rows []rates.Resolved, updatedAt string) error {
	if err := s.limiter.Wait(ctx, ratelimit.APIFeishu); err != nil {
		return fetcher.ClassifyTransportError(err)
	}

	var body appendRequest
	body.ValueRange.Range = s.params.SheetID
	body.ValueRange.Values = make([][]any, 0, len(rows))
	for _, r := range rows {
		body.ValueRange.Values = append(body.ValueRange.Values, formatRow(r, updatedAt))
	}

	var result AppendResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetPathParam("spreadsheetToken", s.params.SpreadsheetToken).
		SetBody(body).
		SetResult(&result).
		Post(appendPath)

	if err := fetcher.CheckResponse(resp, err); err != nil {
		return err
	}

	if result.Code != 0 {
		return fetcher.NewAPIError(result.Code, result.Msg)
	}

	slog.Info("appended sheet rows",
		"rows", len(rows),
		"updated_range", result.Data.Updates.UpdatedRange,
		"updated_rows", result.Data.Updates.UpdatedRows)

	return nil
}

// dateRange is the A1 range of the date column, e.g. "0b12ab!A:A"
func (s *SheetStore) dateRange() string {
	return s.params.SheetID + "!A:A"
}

// formatRow lays out a rate as (date, rate, source, sell, updated at)
func formatRow(r rates.Resolved, updatedAt string) []any {
	sell := ""
	if !r.Sell.IsZero() {
		sell = r.Sell.String()
	}
	return []any{
		r.Date.String(),
		r.Rate.String(),
		r.Source.Label(),
		sell,
		updatedAt,
	}
}

// cellDate interprets a cell value as a date. ok is false for empty cells.
func cellDate(v any) (d rates.Date, ok bool, err error) {
	switch val := v.(type) {
	case nil:
		return d, false, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return d, false, nil
		}
		d, err = rates.ParseDate(val)
	case float64:
		d, err = rates.DateFromSerial(val)
	case []any:
		// rich text cells arrive as a list of segments
		var sb strings.Builder
		for _, seg := range val {
			if m, isMap := seg.(map[string]any); isMap {
				if text, isText := m["text"].(string); isText {
					sb.WriteString(text)
				}
			}
		}
		return cellDate(sb.String())
	default:
		err = fmt.Errorf("unsupported cell type %T", v)
	}
	if err != nil {
		return d, false, err
	}
	return d, true, nil
}
