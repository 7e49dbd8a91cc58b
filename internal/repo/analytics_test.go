package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

func testPaths() AnalyticsPaths {
	return AnalyticsPaths{
		Views:            "/api/v1/views/resolve",
		RegressionWindow: "/api/v1/regression/window",
		Regression:       "/api/v1/regression",
		Graph:            "/api/v1/graphs/volume",
		Events:           "/api/v1/events",
		Transactions:     "/api/v1/transactions",
		Deployments:      "/api/v1/deployments",
		Groups:           "/api/v1/groups/expand",
	}
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     make(http.Header),
	}
}

func newTestAnalytics(t *testing.T, rt roundTripFunc, cfg AnalyticsConfig) *AnalyticsClient {
	t.Helper()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://analytics.example.com"
	}
	cfg.Paths = testPaths()
	client := NewAnalyticsClient(cfg)
	client.httpClient = newTestClient(rt)
	return client
}

func TestResolveViewUsesSharedCache(t *testing.T) {
	var hits int32
	shared := newCountingProvider()
	client := newTestAnalytics(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		if req.URL.Path != "/api/v1/views/resolve" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"id": "P1", "name": "All Events"}), nil
	}, AnalyticsConfig{Cache: shared, CacheTTL: time.Minute})

	ctx := context.Background()
	view, err := client.ResolveView(ctx, "S1", "All Events")
	require.NoError(t, err)
	assert.Equal(t, models.View{ID: "P1", Name: "All Events"}, view)

	again, err := client.ResolveView(ctx, "S1", "All Events")
	require.NoError(t, err)
	assert.Equal(t, view, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second lookup must be served from the shared cache")

	gets, misses, sets, dels := shared.counts()
	assert.Equal(t, 2, gets)
	assert.Equal(t, 1, misses)
	assert.Equal(t, 1, sets)
	assert.Zero(t, dels)
	for _, ttl := range shared.ttls {
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestUndecodableSharedEntryIsDroppedAndRefetched(t *testing.T) {
	var hits int32
	shared := newCountingProvider()
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		return jsonResponse(t, http.StatusOK, map[string]any{"id": "P1", "name": "All Events"}), nil
	}, AnalyticsConfig{Cache: shared, CacheTTL: time.Minute})

	ctx := context.Background()
	_, err := client.ResolveView(ctx, "S1", "All Events")
	require.NoError(t, err)
	shared.poison()

	view, err := client.ResolveView(ctx, "S1", "All Events")
	require.NoError(t, err)
	assert.Equal(t, "P1", view.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	_, _, sets, dels := shared.counts()
	assert.Equal(t, 1, dels)
	assert.Equal(t, 2, sets)
}

func TestResolveViewNotFoundIsNoData(t *testing.T) {
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusNotFound, map[string]any{}), nil
	}, AnalyticsConfig{})

	_, err := client.ResolveView(context.Background(), "S1", "missing")
	require.Error(t, err)
	assert.True(t, utils.IsNoData(err))
}

func TestBadStatusIsBadResponse(t *testing.T) {
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusBadGateway, map[string]any{}), nil
	}, AnalyticsConfig{})

	_, err := client.FetchEvents(context.Background(), models.View{ID: "P1"}, models.QueryFilter{ServiceID: "S1"})
	require.Error(t, err)
	var bad *utils.BadResponseError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, http.StatusBadGateway, bad.Status)
}

func TestEmptyPayloadIsBadResponse(t *testing.T) {
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: make(http.Header)}, nil
	}, AnalyticsConfig{})

	_, err := client.ListDeployments(context.Background(), "S1")
	assert.True(t, utils.IsBadResponse(err))
}

func TestComputeRegressionSendsFilterAndWindow(t *testing.T) {
	var captured map[string]any
	client := newTestAnalytics(t, func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"new_issues": 2, "severe_new_issues": 1, "regressions": 3, "critical_regressions": 1, "volume": 420,
		}), nil
	}, AnalyticsConfig{})

	window := models.RegressionWindow{ActiveMinutes: 1440, BaselineMinutes: 10080}
	filter := models.QueryFilter{ServiceID: "S1", Applications: []string{"app1"}, Servers: []string{"All"}}
	out, err := client.ComputeRegression(context.Background(), models.View{ID: "P1"}, filter, window, models.RegressionSettings{}, true)
	require.NoError(t, err)

	assert.Equal(t, 2, out.NewIssues)
	assert.Equal(t, 1, out.SevereNewIssues)
	assert.Equal(t, 3, out.Regressions)
	assert.Equal(t, 1, out.CriticalRegressions)
	assert.Equal(t, int64(420), out.Volume)
	assert.Equal(t, window, out.Window)

	assert.Equal(t, "P1", captured["view_id"])
	assert.Equal(t, true, captured["new_only"])
	sent := captured["filter"].(map[string]any)
	assert.Equal(t, []any{"app1"}, sent["applications"])
	_, hasServers := sent["servers"]
	assert.False(t, hasServers, "unrestricted lists are omitted")
}

func TestFetchTransactionsNormalisesState(t *testing.T) {
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"transactions": []map[string]any{
				{"name": "GET /cart", "state": "slowing", "invocations": 120, "avg_time_ms": 310.5},
				{"name": "POST /pay", "state": "", "invocations": 40},
			},
		}), nil
	}, AnalyticsConfig{})

	txs, err := client.FetchTransactions(context.Background(), models.View{ID: "P1"}, models.QueryFilter{ServiceID: "S1"})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.StateSlowing, txs[0].State)
	assert.Equal(t, models.TransactionState(""), txs[1].State)
}

func TestFetchEventVolumeGraphEmptyIsNoData(t *testing.T) {
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{"points": []any{}}), nil
	}, AnalyticsConfig{})

	_, err := client.FetchEventVolumeGraph(context.Background(), models.View{ID: "P1"}, models.QueryFilter{}, "hits", 24)
	assert.True(t, utils.IsNoData(err))
}

func TestExpandOnlyCallsBackendForGroups(t *testing.T) {
	var hits int32
	client := newTestAnalytics(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		assert.Equal(t, "web", body["group"])
		return jsonResponse(t, http.StatusOK, map[string]any{"members": []string{"app1", "app2"}}), nil
	}, AnalyticsConfig{})

	ctx := context.Background()
	plain, err := client.Expand(ctx, "S1", cachekey.SetApplications, []string{"app3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"app3"}, plain)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))

	for i := 0; i < 2; i++ {
		expanded, err := client.Expand(ctx, "S1", cachekey.SetApplications, []string{"group:web", "app3"})
		require.NoError(t, err)
		assert.Equal(t, []string{"app1", "app2", "app3"}, expanded)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "group membership is memoized")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int32
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		return nil, errors.New("connection refused")
	}, AnalyticsConfig{Breaker: BreakerConfig{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Minute}})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.ListDeployments(ctx, "S1")
		require.Error(t, err)
	}
	_, err := client.ListDeployments(ctx, "S1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestNoDataDoesNotTripBreaker(t *testing.T) {
	client := newTestAnalytics(t, func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusNotFound, map[string]any{}), nil
	}, AnalyticsConfig{Breaker: BreakerConfig{MinRequests: 1, FailureRatio: 0.1}})

	for i := 0; i < 5; i++ {
		_, err := client.ResolveView(context.Background(), "S1", "missing")
		require.True(t, utils.IsNoData(err), "attempt %d: %v", i, err)
	}
}

func TestMissingBaseURLIsConfigurationError(t *testing.T) {
	client := NewAnalyticsClient(AnalyticsConfig{Paths: testPaths()})
	_, err := client.ListDeployments(context.Background(), "S1")
	assert.True(t, utils.IsConfiguration(err))
}
