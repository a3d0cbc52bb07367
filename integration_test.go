package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hkconnectrates/internal/config"
	"hkconnectrates/internal/syncjob"
)

// sheetServer is an in-memory Feishu spreadsheet
type sheetServer struct {
	mu        sync.Mutex
	rows      [][]any
	readFails bool
	reads     int
	appends   int
}

func (s *sheetServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/open-apis/auth/v3/tenant_access_token/internal":
			json.NewEncoder(w).Encode(map[string]any{
				"code": 0, "msg": "ok", "tenant_access_token": "t-integration", "expire": 7200,
			})

		case strings.HasSuffix(r.URL.Path, "/values_append"):
			s.appends++
			var req struct {
				ValueRange struct {
					Range  string  `json:"range"`
					Values [][]any `json:"values"`
				} `json:"valueRange"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode append body: %v", err)
			}
			s.rows = append(s.rows, req.ValueRange.Values...)
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "success"})

		case strings.Contains(r.URL.Path, "/values/"):
			s.reads++
			if s.readFails {
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]any{"code": 91403, "msg": "forbidden"})
				return
			}
			column := make([][]any, 0, len(s.rows))
			for _, row := range s.rows {
				column = append(column, row[:1])
			}
			json.NewEncoder(w).Encode(map[string]any{
				"code": 0,
				"data": map[string]any{"valueRange": map[string]any{"values": column}},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// rateServer serves fixed SSE settlement and reference tables
type rateServer struct {
	mu   sync.Mutex
	hits int
}

func (s *rateServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits++
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		switch r.URL.Query().Get("sqlId") {
		case "COMMON_SSE_JYFW_HGT_XXPL_JSHL_L":
			w.Write([]byte(`{"result": [
				{"VALID_DATE": "20240102", "BUY_PRICE": "6.50", "SELL_PRICE": "6.60", "CURRENCY_TYPE": "港币"}
			]}`))
		default:
			w.Write([]byte(`{"result": [
				{"VALID_DATE": "20240102", "BUY_PRICE": "6.51", "SELL_PRICE": "6.61", "CURRENCY_TYPE": "港币"},
				{"VALID_DATE": "20240103", "BUY_PRICE": "6.52", "SELL_PRICE": "6.62", "CURRENCY_TYPE": "港币"},
				{"VALID_DATE": "20240104", "BUY_PRICE": "", "SELL_PRICE": "", "CURRENCY_TYPE": "港币"}
			]}`))
		}
	})
}

func testConfig(sseURL, feishuURL string) *config.Config {
	return &config.Config{
		AppID:           "cli_integration",
		AppSecret:       "secret",
		TableToken:      "shtcnINTEGRATION",
		SheetID:         "0b12ab",
		HeaderRows:      1,
		FeishuBaseURL:   feishuURL,
		SSEBaseURL:      sseURL,
		AppendBatchSize: 500,
		SyncTimeout:     5 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// TestIntegration_SyncTwice runs the full job against fake servers and checks
// that a second run with unchanged data appends nothing
func TestIntegration_SyncTwice(t *testing.T) {
	sheet := &sheetServer{rows: [][]any{{"交易日期", "汇率", "汇率类型", "卖出", "更新时间"}}}
	feishuServer := httptest.NewServer(sheet.handler(t))
	defer feishuServer.Close()

	rates := &rateServer{}
	sseServer := httptest.NewServer(rates.handler())
	defer sseServer.Close()

	cfg := testConfig(sseServer.URL, feishuServer.URL)
	ctx := context.Background()

	report, err := run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Appended)
	assert.Equal(t, 1, report.Settlement)
	assert.Equal(t, 1, report.Reference)
	assert.Equal(t, 1, report.Dropped)

	require.Len(t, sheet.rows, 3)
	assert.Equal(t, []any{"2024-01-02", "6.5", "结算汇率", "6.6"}, sheet.rows[1][:4])
	assert.Equal(t, []any{"2024-01-03", "6.52", "参考汇率", "6.62"}, sheet.rows[2][:4])

	report, err = run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Appended)
	assert.Equal(t, 2, report.Skipped)

	assert.Len(t, sheet.rows, 3)
	assert.Equal(t, 1, sheet.appends)
}

// TestIntegration_ReadFailure checks that a sheet read failure stops the run
// before the rate source is contacted
func TestIntegration_ReadFailure(t *testing.T) {
	sheet := &sheetServer{readFails: true}
	feishuServer := httptest.NewServer(sheet.handler(t))
	defer feishuServer.Close()

	rates := &rateServer{}
	sseServer := httptest.NewServer(rates.handler())
	defer sseServer.Close()

	_, err := run(context.Background(), testConfig(sseServer.URL, feishuServer.URL))
	require.Error(t, err)

	assert.True(t, errors.Is(err, syncjob.ErrSheetRead))
	assert.Contains(t, err.Error(), "reading existing dates from sheet failed")
	assert.Equal(t, 0, rates.hits)
	assert.Equal(t, 0, sheet.appends)
}

// TestIntegration_SourceDown checks that an unreachable provider fails the run
// without writing
func TestIntegration_SourceDown(t *testing.T) {
	sheet := &sheetServer{}
	feishuServer := httptest.NewServer(sheet.handler(t))
	defer feishuServer.Close()

	sseServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer sseServer.Close()

	_, err := run(context.Background(), testConfig(sseServer.URL, feishuServer.URL))
	require.Error(t, err)

	assert.ErrorIs(t, err, syncjob.ErrSourceUnavailable)
	assert.Equal(t, 0, sheet.appends)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)

	buf.Reset()
	logger = newLogger(&config.Config{LogLevel: "bogus", LogFormat: "text"}, &buf)
	logger.Debug("hidden")
	logger.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}
