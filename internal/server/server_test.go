package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cbam-tracker/internal/common"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/llm"
	"github.com/joseph-ayodele/cbam-tracker/internal/pipeline"
	"github.com/joseph-ayodele/cbam-tracker/internal/reftable"
	"github.com/joseph-ayodele/cbam-tracker/internal/resolver"
	"github.com/joseph-ayodele/cbam-tracker/internal/session"
)

type fakeAccounts struct {
	accounts map[string]entity.Account
	password string
	err      error
}

func (f *fakeAccounts) Authenticate(_ context.Context, username, password string) (entity.Account, error) {
	if f.err != nil {
		return entity.Account{}, f.err
	}
	acct, ok := f.accounts[username]
	if !ok || password != f.password || !acct.Active {
		return entity.Account{}, common.NewAppError("UNAUTHORIZED", "invalid username or password", common.ErrUnauthorized)
	}
	return acct, nil
}

func (f *fakeAccounts) Lookup(_ context.Context, username string) (entity.Account, error) {
	if f.err != nil {
		return entity.Account{}, f.err
	}
	acct, ok := f.accounts[username]
	if !ok {
		return entity.Account{}, common.NotFoundError("no such user")
	}
	return acct, nil
}

type fakeExtractor struct {
	items map[string][]llm.RawItem
}

func (f *fakeExtractor) ExtractItems(_ context.Context, req llm.ExtractRequest) ([]llm.RawItem, []byte, error) {
	return f.items[req.Filename], nil, nil
}

func (f *fakeExtractor) Backend() string { return "fake" }

type fakeHistory struct {
	recorded []entity.HistoryEntry
}

func (f *fakeHistory) Record(_ context.Context, username string, batchID uuid.UUID, items []entity.LineItem) error {
	for _, li := range items {
		f.recorded = append(f.recorded, entity.HistoryEntry{Username: username, BatchID: batchID, LineItem: li})
	}
	return nil
}

func (f *fakeHistory) List(_ context.Context, username string, from, to *time.Time, _ int) ([]entity.HistoryEntry, error) {
	var out []entity.HistoryEntry
	for _, e := range f.recorded {
		if e.Username != username {
			continue
		}
		if from != nil && e.AnalyzedAt.Before(*from) || to != nil && e.AnalyzedAt.After(*to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeHistory) Close() error { return nil }

var fixedNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

type harness struct {
	srv      *Server
	ts       *httptest.Server
	accounts *fakeAccounts
	history  *fakeHistory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	table := reftable.NewTable(
		entity.MaterialRecord{Category: "Iron/Steel", DefaultFactor: 2.5, OptimizedFactor: 0.5, HSCode: "731800", CarbonPrice: 85, ExchangeRate: 1450},
		entity.MaterialRecord{Category: "Steel (Bolts/Screws)", DefaultFactor: 2.0, OptimizedFactor: 0.4, HSCode: "731815", CarbonPrice: 85, ExchangeRate: 1450},
		entity.MaterialRecord{Category: "Other", HSCode: "000000", ExchangeRate: 1450},
	)
	ex := &fakeExtractor{items: map[string][]llm.RawItem{
		"inv.png": {{Item: "Steel Bolt", Material: "Fasteners", WeightKg: 1000}},
	}}
	analyzer := pipeline.NewAnalyzer(nil, reftable.Static{T: table},
		pipeline.NewExtractStage(ex, 1, nil),
		pipeline.NewPriceStage(resolver.New(resolver.DefaultRules(), nil), nil))
	analyzer.Now = func() time.Time { return fixedNow }

	h := &harness{
		accounts: &fakeAccounts{
			password: "pw",
			accounts: map[string]entity.Account{
				"kim":  {Username: "kim", Active: true, Credits: 5},
				"poor": {Username: "poor", Active: true, Credits: 1},
			},
		},
		history: &fakeHistory{},
	}
	h.srv = New(Deps{
		Accounts: h.accounts,
		Sessions: session.NewStore(time.Hour, nil),
		Analyzer: analyzer,
		History:  h.history,
	}, nil)
	h.srv.now = func() time.Time { return fixedNow }
	h.ts = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.ts.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := h.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) doJSON(t *testing.T, method, path, token string, v any) *http.Response {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return h.do(t, method, path, token, body, "application/json")
}

func (h *harness) login(t *testing.T, username string) string {
	t.Helper()
	resp := h.doJSON(t, http.MethodPost, "/api/v1/login", "", loginRequest{Username: username, Password: "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out loginResponse
	decode(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func multipartBody(t *testing.T, files map[string][]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func TestLogin(t *testing.T) {
	h := newHarness(t)

	resp := h.doJSON(t, http.MethodPost, "/api/v1/login", "", loginRequest{Username: " kim ", Password: "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out loginResponse
	decode(t, resp, &out)
	assert.Equal(t, "KIM", out.Company)
	assert.Equal(t, 5, out.Credits)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp = h.doJSON(t, http.MethodPost, "/api/v1/login", "", loginRequest{Username: "kim", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var eb errorBody
	decode(t, resp, &eb)
	assert.Equal(t, "UNAUTHORIZED", eb.Code)

	resp = h.doJSON(t, http.MethodPost, "/api/v1/login", "", loginRequest{Username: "kim"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.accounts.err = common.NewAppError("UNAVAILABLE", "system DB connection failed", common.ErrUnavailable)
	resp = h.doJSON(t, http.MethodPost, "/api/v1/login", "", loginRequest{Username: "kim", Password: "pw"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	decode(t, resp, &eb)
	assert.Equal(t, "system DB connection failed", eb.Message)
}

func TestMeAndLogout(t *testing.T) {
	h := newHarness(t)

	resp := h.doJSON(t, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok := h.login(t, "kim")
	resp = h.doJSON(t, http.MethodGet, "/api/v1/me", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me meResponse
	decode(t, resp, &me)
	assert.Equal(t, "kim", me.Username)
	assert.Equal(t, 5, me.Credits)
	assert.False(t, me.HasBatch)

	resp = h.doJSON(t, http.MethodPost, "/api/v1/logout", tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.doJSON(t, http.MethodGet, "/api/v1/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMaterialsAndEstimate(t *testing.T) {
	h := newHarness(t)

	resp := h.doJSON(t, http.MethodGet, "/api/v1/materials", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var mats materialsResponse
	decode(t, resp, &mats)
	assert.Equal(t, []string{"Iron/Steel", "Steel (Bolts/Screws)", "Other"}, mats.Categories)
	assert.Equal(t, 1450.0, mats.DisplayExchangeRate)
	assert.Len(t, mats.Records, 3)

	resp = h.doJSON(t, http.MethodPost, "/api/v1/estimate", "", estimateRequest{Material: "Iron/Steel", WeightKg: 2000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var est estimateResponse
	decode(t, resp, &est)
	assert.Equal(t, int64(616250), est.BaselineTax)
	assert.Equal(t, int64(123250), est.OptimizedTax)
	assert.Equal(t, int64(493000), est.Savings)
	assert.InDelta(t, 5.0, est.Emissions, 1e-9)

	resp = h.doJSON(t, http.MethodPost, "/api/v1/estimate", "", estimateRequest{WeightKg: 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(t, http.MethodPost, "/api/v1/estimate", "", strings.NewReader(`{"material":"x","bogus":1}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchFlow(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "kim")

	body, ct := multipartBody(t, map[string][]byte{"inv.png": pngBytes})
	resp := h.do(t, http.MethodPost, "/api/v1/batch", tok, body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var br batchResponse
	decode(t, resp, &br)
	require.NotNil(t, br.Batch)
	require.Len(t, br.Batch.Items, 1)
	line := br.Batch.Items[0]
	assert.Equal(t, "Steel (Bolts/Screws)", line.Material)
	assert.Equal(t, "KIM", line.Company)
	assert.Equal(t, int64(246500), line.BaselineTax)
	assert.Equal(t, int64(246500), br.Summary.TaxLocal)
	assert.InDelta(t, 1.0, br.Summary.WeightTonnes, 1e-9)
	assert.Len(t, h.history.recorded, 1, "batch lines go to history")

	w := 2000.0
	resp = h.doJSON(t, http.MethodPatch, "/api/v1/batch/items/0", tok, pipeline.Correction{WeightKg: &w})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fixed entity.LineItem
	decode(t, resp, &fixed)
	assert.Equal(t, int64(493000), fixed.BaselineTax)
	assert.Equal(t, line.ID, fixed.ID)

	resp = h.doJSON(t, http.MethodGet, "/api/v1/batch", tok, nil)
	decode(t, resp, &br)
	assert.Equal(t, int64(493000), br.Batch.Items[0].BaselineTax)

	resp = h.doJSON(t, http.MethodPatch, "/api/v1/batch/items/3", tok, pipeline.Correction{WeightKg: &w})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.doJSON(t, http.MethodPatch, "/api/v1/batch/items/x", tok, pipeline.Correction{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	hs := "73.18"
	resp = h.doJSON(t, http.MethodPatch, "/api/v1/batch/items/0", tok, pipeline.Correction{HSCode: &hs})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.doJSON(t, http.MethodGet, "/api/v1/batch/report", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "CBAM_Report_20250602.xlsx")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(raw[:2]), "xlsx is a zip")

	resp = h.doJSON(t, http.MethodDelete, "/api/v1/batch", tok, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.doJSON(t, http.MethodGet, "/api/v1/batch/report", tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpload_Gates(t *testing.T) {
	h := newHarness(t)

	body, ct := multipartBody(t, map[string][]byte{"inv.png": pngBytes})
	resp := h.do(t, http.MethodPost, "/api/v1/batch", "", body, ct)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok := h.login(t, "poor")
	body, ct = multipartBody(t, map[string][]byte{"a.png": pngBytes, "b.jpg": pngBytes})
	resp = h.do(t, http.MethodPost, "/api/v1/batch", tok, body, ct)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	var eb errorBody
	decode(t, resp, &eb)
	assert.Equal(t, "INSUFFICIENT_CREDITS", eb.Code)
	assert.Contains(t, eb.Message, "have 1, need 2")

	body, ct = multipartBody(t, map[string][]byte{"scan.pdf": []byte("%PDF")})
	resp = h.do(t, http.MethodPost, "/api/v1/batch", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct = multipartBody(t, map[string][]byte{})
	resp = h.do(t, http.MethodPost, "/api/v1/batch", tok, body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_UnreadableImageIsFailedLine(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "kim")

	body, ct := multipartBody(t, map[string][]byte{"blurry.jpg": pngBytes})
	resp := h.do(t, http.MethodPost, "/api/v1/batch", tok, body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var br batchResponse
	decode(t, resp, &br)
	require.Len(t, br.Batch.Items, 1)
	assert.True(t, br.Batch.Items[0].Failed)
	assert.Equal(t, "Analysis Failed", br.Batch.Items[0].ItemName)
	assert.Equal(t, int64(0), br.Summary.TaxLocal)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	tok := h.login(t, "kim")

	body, ct := multipartBody(t, map[string][]byte{"inv.png": pngBytes})
	resp := h.do(t, http.MethodPost, "/api/v1/batch", tok, body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.doJSON(t, http.MethodGet, "/api/v1/history?from=2025-06-01", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hr historyResponse
	decode(t, resp, &hr)
	assert.True(t, hr.Enabled)
	assert.Len(t, hr.Entries, 1)

	resp = h.doJSON(t, http.MethodGet, "/api/v1/history?to=2025-06-01", tok, nil)
	decode(t, resp, &hr)
	assert.Empty(t, hr.Entries)

	resp = h.doJSON(t, http.MethodGet, "/api/v1/history?from=June", tok, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp := h.doJSON(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]any
	decode(t, resp, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 3.0, health["categories"])

	resp = h.doJSON(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "cbam_http_requests_total")
}

func TestMiddleware_RecoversAndKeepsRequestID(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := chain(boom, nil, recoverer, accessLog, requestID)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	var eb errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eb))
	assert.Equal(t, "abc-123", eb.RequestID)
	assert.Equal(t, "INTERNAL", eb.Code)
}
