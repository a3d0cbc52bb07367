package feishu

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	testAppID     = "cli_test"
	testAppSecret = "secret"
	testToken     = "t-test-token"
	testSheet     = "shtcnTEST"
	testSheetID   = "0b12ab"
)

// fakeFeishu serves the token, values and values_append endpoints
type fakeFeishu struct {
	t *testing.T

	mu          sync.Mutex
	values      [][]any
	appended    [][]any
	tokenCalls  int
	readCalls   int
	appendCalls int
	// failAppendAt makes the n-th append call (1-based) fail; 0 disables
	failAppendAt int
	tokenCode    int
	readCode     int
}

func newFakeFeishu(t *testing.T) (*fakeFeishu, *httptest.Server) {
	t.Helper()
	f := &fakeFeishu{t: t}
	server := httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeFeishu) serveHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == tokenPath:
		f.tokenCalls++
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode token request: %v", err)
		}
		if body["app_id"] != testAppID || body["app_secret"] != testAppSecret {
			f.t.Errorf("token request body = %v", body)
		}
		writeJSON(w, map[string]any{
			"code":                f.tokenCode,
			"msg":                 "ok",
			"tenant_access_token": testToken,
			"expire":              7200,
		})

	case strings.HasSuffix(r.URL.Path, "/values_append"):
		f.appendCalls++
		f.checkAuth(r)
		if f.failAppendAt > 0 && f.appendCalls >= f.failAppendAt {
			writeJSON(w, map[string]any{"code": 90202, "msg": "wrong range"})
			return
		}
		var req appendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode append request: %v", err)
		}
		if req.ValueRange.Range != testSheetID {
			f.t.Errorf("append range = %q, want %q", req.ValueRange.Range, testSheetID)
		}
		f.appended = append(f.appended, req.ValueRange.Values...)
		f.values = append(f.values, req.ValueRange.Values...)
		writeJSON(w, map[string]any{
			"code": 0,
			"msg":  "success",
			"data": map[string]any{
				"updates": map[string]any{
					"updatedRange": testSheetID + "!A2:E3",
					"updatedRows":  len(req.ValueRange.Values),
				},
			},
		})

	case strings.Contains(r.URL.Path, "/values/"):
		f.readCalls++
		f.checkAuth(r)
		wantPath := "/open-apis/sheets/v2/spreadsheets/" + testSheet + "/values/" + testSheetID + "!A:A"
		if r.URL.Path != wantPath {
			f.t.Errorf("read path = %q, want %q", r.URL.Path, wantPath)
		}
		column := make([][]any, 0, len(f.values))
		for _, row := range f.values {
			if len(row) == 0 {
				column = append(column, []any{nil})
				continue
			}
			column = append(column, []any{row[0]})
		}
		writeJSON(w, map[string]any{
			"code": f.readCode,
			"msg":  "success",
			"data": map[string]any{
				"valueRange": map[string]any{
					"range":  testSheetID + "!A:A",
					"values": column,
				},
			},
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeFeishu) checkAuth(r *http.Request) {
	if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
		f.t.Errorf("Authorization = %q, want %q", got, "Bearer "+testToken)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func newTestStore(serverURL string, batchSize int) *SheetStore {
	return NewSheetStore(serverURL, testAppID, testAppSecret, SheetParams{
		SpreadsheetToken: testSheet,
		SheetID:          testSheetID,
		HeaderRows:       1,
		BatchSize:        batchSize,
	}, nil)
}
