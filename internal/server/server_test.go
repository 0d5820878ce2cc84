package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/optcalc/internal/apperr"
	"github.com/betbot/optcalc/pkg/marketdata"
	"github.com/betbot/optcalc/pkg/optionsmath"
)

type fakeProvider struct {
	quotes      map[string]marketdata.Quote
	expirations []string
	chain       *marketdata.Chain
	err         error
}

func (f *fakeProvider) Quotes(_ context.Context, symbols []string) ([]marketdata.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]marketdata.Quote, 0, len(symbols))
	for _, s := range symbols {
		q, ok := f.quotes[s]
		if !ok {
			return nil, errors.Wrap(apperr.ErrSymbolNotFound, s)
		}
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeProvider) Expirations(_ context.Context, symbol string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.expirations, nil
}

func (f *fakeProvider) Chain(_ context.Context, symbol, expiration string) (*marketdata.Chain, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.chain == nil || f.chain.Underlying != symbol || f.chain.Expiration != expiration {
		return nil, errors.Wrapf(apperr.ErrSymbolNotFound, "%s %s", symbol, expiration)
	}
	return f.chain, nil
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		quotes: map[string]marketdata.Quote{
			"AAPL": {Symbol: "AAPL", Last: 100},
			"MSFT": {Symbol: "MSFT", Last: 0, Bid: 399, Ask: 401},
			"SPY":  {Symbol: "SPY", Last: 500},
			"QQQ":  {Symbol: "QQQ", Last: 430},
		},
		expirations: []string{"2026-10-16", "2026-11-20", "2026-12-18"},
		chain: &marketdata.Chain{
			Underlying: "AAPL",
			Expiration: "2026-11-20",
			Options: []marketdata.OptionQuote{
				{Symbol: "AAPL261120C00100000", Type: optionsmath.OptionTypeCall, Strike: 100, Bid: 4, Ask: 6, Expiration: "2026-11-20"},
				{Symbol: "AAPL261120P00100000", Type: optionsmath.OptionTypePut, Strike: 100, Bid: 3, Ask: 5, Expiration: "2026-11-20"},
			},
		},
	}
}

func newTestServer(t *testing.T, p marketdata.Provider) http.Handler {
	t.Helper()
	cfg := Config{
		Mode:         gin.TestMode,
		IndexSymbols: []string{"SPY", "QQQ"},
		Now:          func() time.Time { return time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC) },
	}
	if p != nil {
		cfg.Provider = p
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s.Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorBody struct {
	Error  string                   `json:"error"`
	Fields []apperr.ValidationError `json:"fields"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	h := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestCalculate_WorkedExample(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodPost, "/api/calculator/options", `{
		"securityPrice": 100,
		"investmentAmount": 1000,
		"options": [{"strike": 100, "bid": 4, "ask": 6}],
		"percentageIncrements": [0, 10]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, optionsmath.ResultOrder, rec.Header().Get(resultOrderHeader))

	var results []optionsmath.CalculationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)

	assert.Equal(t, 5.0, results[0].Premium)
	assert.Equal(t, int64(2), results[0].Contracts)
	assert.Equal(t, 100.0, results[0].ProjectedPrice)
	assert.Equal(t, -1000.0, results[0].ProfitLoss)
	require.NotNil(t, results[0].ReturnPct)
	assert.Equal(t, -100.0, *results[0].ReturnPct)

	assert.Equal(t, 110.0, results[1].ProjectedPrice)
	assert.Equal(t, 10.0, results[1].IntrinsicValue)
	assert.Equal(t, 1000.0, results[1].ProfitLoss)
	require.NotNil(t, results[1].ReturnPct)
	assert.Equal(t, 100.0, *results[1].ReturnPct)
}

func TestCalculate_ZeroPremiumIsNull(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodPost, "/api/calculator/options", `{
		"securityPrice": 100,
		"investmentAmount": 1000,
		"options": [{"strike": 100, "bid": 0, "ask": 0}],
		"percentageIncrements": [10]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, body, `"returnPct":null`)
	assert.Contains(t, body, `"returnStatus":"undefined_zero_premium"`)
	assert.NotContains(t, body, "NaN")
	assert.NotContains(t, body, "Inf")
}

func TestCalculate_ValidationErrors(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name   string
		body   string
		fields []string
	}{
		{
			name:   "empty options and increments",
			body:   `{"securityPrice": 100, "investmentAmount": 1000, "options": [], "percentageIncrements": []}`,
			fields: []string{"options", "percentageIncrements"},
		},
		{
			name:   "negative inputs",
			body:   `{"securityPrice": -1, "investmentAmount": 0, "options": [{"strike": 100, "bid": 6, "ask": 4}], "percentageIncrements": [0]}`,
			fields: []string{"securityPrice", "investmentAmount", "options[0].bid"},
		},
		{
			name:   "malformed json",
			body:   `{"securityPrice": "abc"`,
			fields: []string{"body"},
		},
		{
			name:   "missing body",
			body:   ``,
			fields: []string{"body"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/calculator/options", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, "validation failed", body.Error)
			var got []string
			for _, f := range body.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tc.fields, got)
		})
	}
}

func TestCalculate_OutOfRangeInputsAreRejected(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name   string
		body   string
		fields []string
	}{
		{
			name:   "huge price and increment",
			body:   `{"securityPrice": 1e300, "investmentAmount": 1000, "options": [{"strike": 1, "bid": 1, "ask": 1}], "percentageIncrements": [1e300]}`,
			fields: []string{"securityPrice", "percentageIncrements[0]"},
		},
		{
			name:   "huge increment range",
			body:   `{"securityPrice": 100, "investmentAmount": 1000, "options": [{"strike": 100, "bid": 4, "ask": 6}], "incrementRange": {"from": 0, "to": 1e19, "step": 1}}`,
			fields: []string{"incrementRange"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/calculator/options", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Empty(t, rec.Header().Get(resultOrderHeader))
			body := decodeError(t, rec)
			assert.Equal(t, "validation failed", body.Error)
			var got []string
			for _, f := range body.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tc.fields, got)
		})
	}
}

func TestStockQuote(t *testing.T) {
	h := newTestServer(t, newFakeProvider())

	rec := do(t, h, http.MethodGet, "/api/options/stock/aapl", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var q marketdata.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 100.0, q.Last)

	rec = do(t, h, http.MethodGet, "/api/options/stock/ZZZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/options/stock/bad%20symbol", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChain_NearestExpirationAndTypeFilter(t *testing.T) {
	h := newTestServer(t, newFakeProvider())

	rec := do(t, h, http.MethodGet, "/api/options/chain/AAPL?type=put", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var chain marketdata.Chain
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chain))
	assert.Equal(t, "2026-11-20", chain.Expiration)
	require.Len(t, chain.Options, 1)
	assert.Equal(t, optionsmath.OptionTypePut, chain.Options[0].Type)

	rec = do(t, h, http.MethodGet, "/api/options/chain/AAPL?type=straddle", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/options/chain/AAPL?expiration=20261120", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculateSymbol(t *testing.T) {
	h := newTestServer(t, newFakeProvider())

	rec := do(t, h, http.MethodPost, "/api/calculator/options/AAPL", `{
		"investmentAmount": 1000,
		"percentageIncrements": [0, 10],
		"type": "call"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, optionsmath.ResultOrder, rec.Header().Get(resultOrderHeader))

	var resp symbolCalculationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Symbol)
	assert.Equal(t, 100.0, resp.SecurityPrice)
	assert.Equal(t, "2026-11-20", resp.Expiration)
	require.Len(t, resp.Options, 1)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1000.0, resp.Results[1].ProfitLoss)
	assert.Equal(t, "AAPL261120C00100000", resp.Results[1].Symbol)
}

func TestCalculateSymbol_NoMatchingContracts(t *testing.T) {
	h := newTestServer(t, newFakeProvider())
	rec := do(t, h, http.MethodPost, "/api/calculator/options/AAPL", `{
		"investmentAmount": 1000,
		"percentageIncrements": [0],
		"minStrike": 200
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "options", body.Fields[0].Field)
}

func TestUpstreamErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"rate limited", errors.Wrap(apperr.ErrRateLimited, "quota"), http.StatusTooManyRequests, ""},
		{"upstream", errors.Wrap(apperr.ErrUpstream, "GET /v1/markets/quotes: 503"), http.StatusBadGateway, ""},
		{"timeout", errors.Wrap(context.DeadlineExceeded, "GET /v1/markets/quotes"), http.StatusGatewayTimeout, ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(t, &fakeProvider{err: tc.err})
			rec := do(t, h, http.MethodGet, "/api/options/stock/AAPL", "")
			assert.Equal(t, tc.status, rec.Code)
			if tc.message != "" {
				assert.Equal(t, tc.message, decodeError(t, rec).Error)
			}
		})
	}
}

func TestNoProviderConfigured(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/market/indices", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestIndices(t *testing.T) {
	h := newTestServer(t, newFakeProvider())
	rec := do(t, h, http.MethodGet, "/api/market/indices", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Indices []marketdata.Quote `json:"indices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Indices, 2)
	assert.Equal(t, "SPY", body.Indices[0].Symbol)
	assert.Equal(t, "QQQ", body.Indices[1].Symbol)
}

func TestPortfolioAnalyze(t *testing.T) {
	h := newTestServer(t, newFakeProvider())
	rec := do(t, h, http.MethodPost, "/api/portfolio/analyze", `{"holdings": [
		{"symbol": "aapl", "shares": 10, "costBasis": 80},
		{"symbol": "MSFT", "shares": 1, "costBasis": 400}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Holdings []struct {
			Symbol       string  `json:"symbol"`
			Price        float64 `json:"price"`
			MarketValue  float64 `json:"marketValue"`
			UnrealizedPL float64 `json:"unrealizedPL"`
		} `json:"holdings"`
		MarketValue  float64 `json:"marketValue"`
		UnrealizedPL float64 `json:"unrealizedPL"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Holdings, 2)
	assert.Equal(t, "AAPL", body.Holdings[0].Symbol)
	assert.Equal(t, 1000.0, body.Holdings[0].MarketValue)
	assert.Equal(t, 200.0, body.Holdings[0].UnrealizedPL)
	// 无成交价时使用买卖中间价
	assert.Equal(t, 400.0, body.Holdings[1].Price)
	assert.Equal(t, 1400.0, body.MarketValue)
	assert.Equal(t, 200.0, body.UnrealizedPL)
}

func TestPortfolioAnalyze_Validation(t *testing.T) {
	h := newTestServer(t, newFakeProvider())
	rec := do(t, h, http.MethodPost, "/api/portfolio/analyze", `{"holdings": [{"symbol": "A B", "shares": -1, "costBasis": 1}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	var fields []string
	for _, f := range body.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"holdings[0].symbol", "holdings[0].shares"}, fields)
}
