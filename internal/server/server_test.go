package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PortfolioAnalytics/internal/event"
	"PortfolioAnalytics/internal/observability"
	"PortfolioAnalytics/internal/pricing"
	"PortfolioAnalytics/internal/query"
	"PortfolioAnalytics/internal/server"
	"PortfolioAnalytics/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now  = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	user = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
)

func f64(v float64) *float64 { return &v }

type fakeService struct {
	err       error
	gotWindow event.DateRange
	gotUser   uuid.UUID
	block     bool
}

func (f *fakeService) GetPortfolioSummary(ctx context.Context, userID uuid.UUID) (*query.SummaryResponse, error) {
	f.gotUser = userID
	if f.err != nil {
		return nil, f.err
	}
	fetched := now.Add(-30 * time.Second)
	return &query.SummaryResponse{
		UserID:     userID,
		TotalValue: 50000,
		Assets: []query.AssetSummary{
			{Symbol: "BTC", Quantity: 0.5, CurrentPrice: f64(60000), Value: 30000, AveragePrice: f64(30000), AllocationPercentage: 60, PriceStatus: "ok"},
			{Symbol: "ETH", Quantity: 10, CurrentPrice: f64(2000), Value: 20000, AllocationPercentage: 40, PriceStatus: "ok"},
		},
		Count:           2,
		Timestamp:       now,
		PricesFetchedAt: &fetched,
	}, nil
}

func (f *fakeService) GetPortfolioRisk(ctx context.Context, userID uuid.UUID) (*query.RiskResponse, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &query.RiskResponse{UserID: userID, ConcentrationRisk: 60, DiversificationScore: 40, VolatilityEstimate: 66, Timestamp: now}, nil
}

func (f *fakeService) GetPortfolioPerformance(ctx context.Context, userID uuid.UUID, window event.DateRange) (*query.PerformanceResponse, error) {
	f.gotWindow = window
	if f.err != nil {
		return nil, f.err
	}
	return &query.PerformanceResponse{UserID: userID, TotalGain: 10, NetGain: 10, Timestamp: now, AssetPerformance: []query.AssetPerformance{}}, nil
}

func (f *fakeService) GetPortfolioAnalytics(ctx context.Context, userID uuid.UUID, window event.DateRange) (*query.AnalyticsResponse, error) {
	f.gotWindow = window
	if f.err != nil {
		return nil, f.err
	}
	sum, _ := f.GetPortfolioSummary(ctx, userID)
	return &query.AnalyticsResponse{Summary: sum, SnapshotDigest: "abc"}, nil
}

type fakePrices struct {
	invalidated [][]string
}

func (p *fakePrices) Invalidate(symbols ...string) int {
	p.invalidated = append(p.invalidated, symbols)
	return len(symbols)
}

func (p *fakePrices) Stats() pricing.Stats {
	return pricing.Stats{Entries: 3, Generation: 7}
}

func newTestServer(t *testing.T, svc *fakeService, prices server.PriceAdmin) http.Handler {
	t.Helper()
	s := server.New(server.Config{RequestTimeout: 200 * time.Millisecond}, server.ServerDeps{
		Service:       svc,
		Prices:        prices,
		HealthChecker: observability.NewHealthChecker(),
		Log:           observability.NewNopLogger(),
	})
	h, err := s.Handler()
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestSummary_Golden(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(t, svc, nil)

	rec := do(t, h, http.MethodGet, "/v1/users/"+user.String()+"/portfolio/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, user, svc.gotUser)
	testutil.AssertGolden(t, "summary.golden.json", rec.Body.Bytes())
}

func TestRisk(t *testing.T) {
	h := newTestServer(t, &fakeService{}, nil)
	rec := do(t, h, http.MethodGet, "/v1/users/"+user.String()+"/portfolio/risk", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp query.RiskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 60.0, resp.ConcentrationRisk)
	assert.Equal(t, 66.0, resp.VolatilityEstimate)
}

func TestPerformance_DateRange(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(t, svc, nil)

	rec := do(t, h, http.MethodGet,
		"/v1/users/"+user.String()+"/portfolio/performance?start_date=2024-01-01&end_date=2024-01-31", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.gotWindow.Start)
	require.NotNil(t, svc.gotWindow.End)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *svc.gotWindow.Start)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), *svc.gotWindow.End)
}

func TestAnalytics(t *testing.T) {
	h := newTestServer(t, &fakeService{}, nil)
	rec := do(t, h, http.MethodGet, "/v1/users/"+user.String()+"/portfolio/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"snapshotDigest":"abc"`)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
		code   string
	}{
		{"bad user id", "/v1/users/not-a-uuid/portfolio/summary", nil, http.StatusBadRequest, query.CodeInvalidArgument},
		{"nil user id", "/v1/users/" + uuid.Nil.String() + "/portfolio/summary", nil, http.StatusBadRequest, query.CodeInvalidArgument},
		{"inverted range", "/v1/users/" + user.String() + "/portfolio/performance?start_date=2024-02-01&end_date=2024-01-01", nil, http.StatusBadRequest, query.CodeInvalidArgument},
		{"bad date", "/v1/users/" + user.String() + "/portfolio/analytics?end_date=yesterday", nil, http.StatusBadRequest, query.CodeInvalidArgument},
		{"unknown user", "/v1/users/" + user.String() + "/portfolio/summary", fmt.Errorf("user: %w", event.ErrUserNotFound), http.StatusNotFound, query.CodeNotFound},
		{"upstream down", "/v1/users/" + user.String() + "/portfolio/risk", &query.UpstreamError{Source: "balances", Err: errors.New("conn refused")}, http.StatusServiceUnavailable, query.CodeUpstreamUnavailable},
		{"internal", "/v1/users/" + user.String() + "/portfolio/summary", errors.New("boom"), http.StatusInternalServerError, query.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeService{err: tt.err}, nil)
			rec := do(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	h := newTestServer(t, &fakeService{err: errors.New("pq: password authentication failed")}, nil)
	rec := do(t, h, http.MethodGet, "/v1/users/"+user.String()+"/portfolio/summary", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRequestTimeout(t *testing.T) {
	h := newTestServer(t, &fakeService{block: true}, nil)
	rec := do(t, h, http.MethodGet, "/v1/users/"+user.String()+"/portfolio/risk", "")
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, query.CodeDeadlineExceeded, errorCode(t, rec))
}

func TestInvalidate(t *testing.T) {
	prices := &fakePrices{}
	h := newTestServer(t, &fakeService{}, prices)

	rec := do(t, h, http.MethodPost, "/v1/admin/prices/invalidate", `{"symbols":["btc","ETH"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"removed":2}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/admin/prices/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][]string{{"BTC", "ETH"}, nil}, prices.invalidated)

	rec = do(t, h, http.MethodPost, "/v1/admin/prices/invalidate", `{"symbols":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/admin/prices/invalidate", `{"symbols":["  "]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Len(t, prices.invalidated, 2, "blank symbols must not clear the cache")
}

func TestCacheStats(t *testing.T) {
	h := newTestServer(t, &fakeService{}, &fakePrices{})
	rec := do(t, h, http.MethodGet, "/v1/admin/prices/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":3,"generation":7}`, rec.Body.String())

	h = newTestServer(t, &fakeService{}, nil)
	rec = do(t, h, http.MethodGet, "/v1/admin/prices/stats", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, &fakeService{}, nil)

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSetServing(t *testing.T) {
	hc := observability.NewHealthChecker()
	s := server.New(server.Config{}, server.ServerDeps{Service: &fakeService{}, HealthChecker: hc, Log: observability.NewNopLogger()})
	h, err := s.Handler()
	require.NoError(t, err)

	s.SetServing(true)
	assert.True(t, hc.IsReady())
	rec := do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
