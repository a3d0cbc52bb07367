// Package sse fetches Stock Connect exchange rates from the Shanghai Stock
// Exchange query service.
package sse

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"hkconnectrates/internal/fetcher"
	"hkconnectrates/internal/rates"
	"hkconnectrates/internal/ratelimit"
)

const (
	queryPath = "/commonSoaQuery.do"
	referer   = "http://www.sse.com.cn/"

	// SQL ids of the southbound settlement and reference rate tables
	settlementSQLID = "COMMON_SSE_JYFW_HGT_XXPL_JSHL_L"
	referenceSQLID  = "COMMON_SSE_JYFW_HGT_XXPL_CKHL_L"

	defaultPageSize = 10000
)

// RateRow is one row of the SSE query result
type RateRow struct {
	ValidDate    string `json:"VALID_DATE"`
	BuyPrice     string `json:"BUY_PRICE"`
	SellPrice    string `json:"SELL_PRICE"`
	CurrencyType string `json:"CURRENCY_TYPE"`
}

// QueryResponse represents the SSE commonSoaQuery response
type QueryResponse struct {
	Result   []RateRow `json:"result"`
	PageHelp struct {
		PageCount int `json:"pageCount"`
		Total     int `json:"total"`
	} `json:"pageHelp"`
}

// RateFetcher fetches the settlement and reference rate series
type RateFetcher struct {
	client   *resty.Client
	limiter  *ratelimit.Limiter
	pageSize int
}

// NewRateFetcher creates a new SSE exchange-rate fetcher. limiter may be nil.
func NewRateFetcher(baseURL string, limiter *ratelimit.Limiter) *RateFetcher {
	return &RateFetcher{
		client:   fetcher.NewHTTPClient(baseURL, fetcher.WithHeader("Referer", referer)),
		limiter:  limiter,
		pageSize: defaultPageSize,
	}
}

// Fetch retrieves both series and merges them into one record per date,
// ordered by ascending date.
func (f *RateFetcher) Fetch(ctx context.Context) ([]rates.Record, error) {
	settlement, err := f.fetchSeries(ctx, settlementSQLID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch settlement rates: %w", err)
	}

	reference, err := f.fetchSeries(ctx, referenceSQLID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reference rates: %w", err)
	}

	slog.Info("fetched exchange rates",
		"settlement_dates", len(settlement),
		"reference_dates", len(reference))

	return rates.Merge(settlement, reference), nil
}

// fetchSeries retrieves one rate table keyed by date
func (f *RateFetcher) fetchSeries(ctx context.Context, sqlID string) (map[rates.Date]rates.Quote, error) {
	if err := f.limiter.Wait(ctx, ratelimit.APISSE); err != nil {
		return nil, fetcher.ClassifyTransportError(err)
	}

	var result QueryResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"isPagination":       "true",
			"sqlId":              sqlID,
			"type":               "inParams",
			"updateDate":         "",
			"updateDateEnd":      "",
			"pageHelp.cacheSize": "1",
			"pageHelp.pageSize":  strconv.Itoa(f.pageSize),
			"pageHelp.pageNo":    "1",
			"pageHelp.beginPage": "1",
			"pageHelp.endPage":   "1",
		}).
		SetResult(&result).
		Get(queryPath)

	if err := fetcher.CheckResponse(resp, err); err != nil {
		return nil, err
	}

	if result.Result == nil {
		return nil, fetcher.NewValidationError("result not found in response")
	}

	slog.Debug("decoded sse rate table",
		"sql_id", sqlID,
		"rows", len(result.Result),
		"total", result.PageHelp.Total)

	series := make(map[rates.Date]rates.Quote, len(result.Result))
	for _, row := range result.Result {
		date, quote, ok, err := parseRow(row)
		if err != nil {
			return nil, fetcher.NewValidationError(err.Error())
		}
		if !ok {
			continue
		}
		if _, dup := series[date]; dup {
			continue
		}
		series[date] = quote
	}

	return series, nil
}

// parseRow converts a row into a quote. ok is false when the row carries no
// buy price, which happens for dates the exchange has not published yet.
func parseRow(row RateRow) (date rates.Date, quote rates.Quote, ok bool, err error) {
	date, err = rates.ParseDate(row.ValidDate)
	if err != nil {
		return date, quote, false, err
	}

	buy := strings.TrimSpace(row.BuyPrice)
	if buy == "" || buy == "-" {
		return date, quote, false, nil
	}

	quote.Buy, err = decimal.NewFromString(buy)
	if err != nil {
		return date, quote, false, fmt.Errorf("invalid buy price %q for %s: %w", row.BuyPrice, date, err)
	}

	if sell := strings.TrimSpace(row.SellPrice); sell != "" && sell != "-" {
		quote.Sell, err = decimal.NewFromString(sell)
		if err != nil {
			return date, quote, false, fmt.Errorf("invalid sell price %q for %s: %w", row.SellPrice, date, err)
		}
	}

	return date, quote, true, nil
}
