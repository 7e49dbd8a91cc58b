package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/miradorstack/mirador-reliability/internal/cache"
	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/metrics"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
	ttlcache "github.com/miradorstack/mirador-reliability/pkg/cache"
)

// GroupPrefix marks filter values that name a group rather than a single member.
const GroupPrefix = "group:"

// AnalyticsPaths are the backend routes, relative to the base URL.
type AnalyticsPaths struct {
	Views            string
	RegressionWindow string
	Regression       string
	Graph            string
	Events           string
	Transactions     string
	Deployments      string
	Groups           string
}

// BreakerConfig configures the circuit breaker in front of the backend.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// AnalyticsConfig holds everything NewAnalyticsClient needs.
type AnalyticsConfig struct {
	BaseURL  string
	APIKey   string
	Paths    AnalyticsPaths
	Timeout  time.Duration
	Breaker  BreakerConfig
	Cache    cache.Provider
	CacheTTL time.Duration
	GroupTTL time.Duration
	Logger   *slog.Logger
}

// AnalyticsClient wraps the remote analytics backend that resolves views and computes regression,
// volume and transaction statistics.
type AnalyticsClient struct {
	baseURL    string
	apiKey     string
	paths      AnalyticsPaths
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      cache.Provider
	cacheTTL   time.Duration
	groups     *ttlcache.TTLCache[[]string]
	logger     *slog.Logger
}

// NewAnalyticsClient constructs a client targeting the configured backend instance.
func NewAnalyticsClient(cfg AnalyticsConfig) *AnalyticsClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NoopProvider{}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Minute
	}
	if cfg.GroupTTL <= 0 {
		cfg.GroupTTL = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	return &AnalyticsClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		paths:      cfg.Paths,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker(baseURL, cfg.Breaker, logger),
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		groups:     ttlcache.NewTTLCache[[]string](cfg.GroupTTL, 2*cfg.GroupTTL),
		logger:     logger,
	}
}

func newBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analytics:" + name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("analytics circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || utils.IsNoData(err)
		},
	})
}

// Identity names the backend for worker pools and cache keys.
func (c *AnalyticsClient) Identity() string {
	return c.baseURL
}

// ResolveView looks up a named view. Unknown views yield utils.ErrNoData.
func (c *AnalyticsClient) ResolveView(ctx context.Context, serviceID, viewName string) (models.View, error) {
	payload := map[string]any{
		"service_id": serviceID,
		"view_name":  viewName,
	}
	var response struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.cachedPost(ctx, "resolve_view", c.paths.Views, payload, &response); err != nil {
		return models.View{}, fmt.Errorf("resolve view %q: %w", viewName, err)
	}
	if response.ID == "" {
		return models.View{}, fmt.Errorf("resolve view %q: %w", viewName, utils.ErrNoData)
	}
	return models.View{ID: response.ID, Name: firstNonEmpty(response.Name, viewName)}, nil
}

// ComputeRegressionWindow resolves the active and baseline windows for a time filter.
func (c *AnalyticsClient) ComputeRegressionWindow(ctx context.Context, serviceID, timeFilter string, baselineMinutes int) (models.RegressionWindow, error) {
	payload := map[string]any{
		"service_id":       serviceID,
		"time_filter":      timeFilter,
		"baseline_minutes": baselineMinutes,
	}
	var response struct {
		ActiveStart     time.Time `json:"active_start"`
		ActiveEnd       time.Time `json:"active_end"`
		ActiveMinutes   int       `json:"active_minutes"`
		BaselineMinutes int       `json:"baseline_minutes"`
	}
	if err := c.post(ctx, "regression_window", c.paths.RegressionWindow, payload, &response); err != nil {
		return models.RegressionWindow{}, fmt.Errorf("regression window: %w", err)
	}
	if response.ActiveMinutes <= 0 {
		return models.RegressionWindow{}, &utils.BadResponseError{Endpoint: c.resolvePath(c.paths.RegressionWindow), Status: http.StatusOK, Msg: "active window is empty"}
	}
	return models.RegressionWindow{
		ActiveStart:     response.ActiveStart,
		ActiveEnd:       response.ActiveEnd,
		ActiveMinutes:   response.ActiveMinutes,
		BaselineMinutes: firstPositive(response.BaselineMinutes, baselineMinutes),
	}, nil
}

// ComputeRegression asks the backend for the regression counts of one reporting key.
func (c *AnalyticsClient) ComputeRegression(ctx context.Context, view models.View, filter models.QueryFilter, window models.RegressionWindow, settings models.RegressionSettings, newOnly bool) (models.RegressionOutput, error) {
	payload := map[string]any{
		"view_id":  view.ID,
		"filter":   filterPayload(filter),
		"window":   windowPayload(window),
		"settings": settings,
		"new_only": newOnly,
	}
	var response struct {
		NewIssues           int   `json:"new_issues"`
		SevereNewIssues     int   `json:"severe_new_issues"`
		Regressions         int   `json:"regressions"`
		CriticalRegressions int   `json:"critical_regressions"`
		Volume              int64 `json:"volume"`
		Empty               bool  `json:"empty"`
	}
	if err := c.post(ctx, "regression", c.paths.Regression, payload, &response); err != nil {
		return models.RegressionOutput{}, fmt.Errorf("regression: %w", err)
	}
	return models.RegressionOutput{
		NewIssues:           response.NewIssues,
		SevereNewIssues:     response.SevereNewIssues,
		Regressions:         response.Regressions,
		CriticalRegressions: response.CriticalRegressions,
		Window:              window,
		Volume:              response.Volume,
		Empty:               response.Empty,
	}, nil
}

// FetchEventVolumeGraph returns the per-event volume points for the filter's window.
func (c *AnalyticsClient) FetchEventVolumeGraph(ctx context.Context, view models.View, filter models.QueryFilter, volumeType string, pointsWanted int) ([]models.GraphPoint, error) {
	payload := map[string]any{
		"view_id":       view.ID,
		"filter":        filterPayload(filter),
		"volume_type":   volumeType,
		"points_wanted": pointsWanted,
	}
	var response struct {
		Points []struct {
			Time         time.Time `json:"time"`
			Contributors []struct {
				EventID string `json:"event_id"`
				Hits    int64  `json:"hits"`
			} `json:"contributors"`
		} `json:"points"`
	}
	if err := c.cachedPost(ctx, "event_volume_graph", c.paths.Graph, payload, &response); err != nil {
		return nil, fmt.Errorf("event volume graph: %w", err)
	}
	if len(response.Points) == 0 {
		return nil, fmt.Errorf("event volume graph: %w", utils.ErrNoData)
	}

	points := make([]models.GraphPoint, 0, len(response.Points))
	for _, p := range response.Points {
		contributors := make([]models.Contributor, 0, len(p.Contributors))
		for _, contributor := range p.Contributors {
			contributors = append(contributors, models.Contributor{EventID: contributor.EventID, Hits: contributor.Hits})
		}
		points = append(points, models.GraphPoint{Time: p.Time, Contributors: contributors})
	}
	return points, nil
}

// FetchEvents lists the events matching the filter.
func (c *AnalyticsClient) FetchEvents(ctx context.Context, view models.View, filter models.QueryFilter) ([]models.Event, error) {
	payload := map[string]any{
		"view_id": view.ID,
		"filter":  filterPayload(filter),
	}
	var response struct {
		Events []struct {
			ID          string   `json:"id"`
			Type        string   `json:"type"`
			Name        string   `json:"name"`
			Class       string   `json:"class"`
			Method      string   `json:"method"`
			EntryPoint  string   `json:"entry_point"`
			Application string   `json:"application"`
			Tiers       []string `json:"tiers"`
			Labels      []string `json:"labels"`
			Hits        int64    `json:"hits"`
			Invocations int64    `json:"invocations"`
		} `json:"events"`
	}
	if err := c.post(ctx, "events", c.paths.Events, payload, &response); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}

	events := make([]models.Event, 0, len(response.Events))
	for _, e := range response.Events {
		events = append(events, models.Event{
			ID:          e.ID,
			Type:        e.Type,
			Name:        e.Name,
			Class:       e.Class,
			Method:      e.Method,
			EntryPoint:  e.EntryPoint,
			Application: e.Application,
			Tiers:       e.Tiers,
			Labels:      e.Labels,
			Hits:        e.Hits,
			Invocations: e.Invocations,
		})
	}
	return events, nil
}

// FetchTransactions lists transaction performance for the filter's window.
func (c *AnalyticsClient) FetchTransactions(ctx context.Context, view models.View, filter models.QueryFilter) ([]models.TransactionData, error) {
	payload := map[string]any{
		"view_id": view.ID,
		"filter":  filterPayload(filter),
	}
	var response struct {
		Transactions []struct {
			Name                string  `json:"name"`
			State               string  `json:"state"`
			Invocations         int64   `json:"invocations"`
			AvgTimeMs           float64 `json:"avg_time_ms"`
			BaselineInvocations int64   `json:"baseline_invocations"`
			BaselineAvgTimeMs   float64 `json:"baseline_avg_time_ms"`
			BaselineStdDevMs    float64 `json:"baseline_std_dev_ms"`
		} `json:"transactions"`
	}
	if err := c.post(ctx, "transactions", c.paths.Transactions, payload, &response); err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}

	out := make([]models.TransactionData, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		out = append(out, models.TransactionData{
			Name:                tx.Name,
			State:               models.TransactionState(strings.ToUpper(strings.TrimSpace(tx.State))),
			Invocations:         tx.Invocations,
			AvgTimeMs:           tx.AvgTimeMs,
			BaselineInvocations: tx.BaselineInvocations,
			BaselineAvgTimeMs:   tx.BaselineAvgTimeMs,
			BaselineStdDevMs:    tx.BaselineStdDevMs,
		})
	}
	return out, nil
}

// ListDeployments lists the deployments known to a service.
func (c *AnalyticsClient) ListDeployments(ctx context.Context, serviceID string) ([]models.Deployment, error) {
	payload := map[string]any{"service_id": serviceID}
	var response struct {
		Deployments []struct {
			Name      string    `json:"name"`
			Active    bool      `json:"active"`
			FirstSeen time.Time `json:"first_seen"`
			LastSeen  time.Time `json:"last_seen"`
		} `json:"deployments"`
	}
	if err := c.post(ctx, "deployments", c.paths.Deployments, payload, &response); err != nil {
		return nil, fmt.Errorf("deployments: %w", err)
	}

	out := make([]models.Deployment, 0, len(response.Deployments))
	for _, d := range response.Deployments {
		out = append(out, models.Deployment{Name: d.Name, Active: d.Active, FirstSeen: d.FirstSeen, LastSeen: d.LastSeen})
	}
	return out, nil
}

// Expand replaces group names with their members. Values without GroupPrefix pass through untouched,
// so only filters naming groups cost a backend call. It satisfies cachekey.GroupExpander.
func (c *AnalyticsClient) Expand(ctx context.Context, serviceID string, kind cachekey.SetKind, values []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		name, isGroup := strings.CutPrefix(strings.TrimSpace(v), GroupPrefix)
		if !isGroup {
			out = append(out, v)
			continue
		}
		members, err := c.groupMembers(ctx, serviceID, kind, name)
		if err != nil {
			return nil, err
		}
		out = append(out, members...)
	}
	return out, nil
}

func (c *AnalyticsClient) groupMembers(ctx context.Context, serviceID string, kind cachekey.SetKind, name string) ([]string, error) {
	cacheKey := serviceID + "|" + string(kind) + "|" + name
	if members, ok := c.groups.Get(cacheKey); ok {
		return members, nil
	}

	payload := map[string]any{
		"service_id": serviceID,
		"kind":       string(kind),
		"group":      name,
	}
	var response struct {
		Members []string `json:"members"`
	}
	if err := c.post(ctx, "groups", c.paths.Groups, payload, &response); err != nil {
		return nil, fmt.Errorf("expand group %q: %w", name, err)
	}
	c.groups.Set(cacheKey, response.Members)
	return response.Members, nil
}

// cachedPost consults the shared cache before calling the backend and stores the raw response on success.
func (c *AnalyticsClient) cachedPost(ctx context.Context, op, p string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	key := c.cacheKey(op, body)

	if cached, err := c.cache.Get(ctx, key); err == nil {
		if err := json.Unmarshal(cached, out); err == nil {
			return nil
		}
		_ = c.cache.Del(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Debug("shared cache read failed", slog.String("op", op), slog.Any("error", err))
	}

	raw, err := c.call(ctx, op, c.resolvePath(p), body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &utils.BadResponseError{Endpoint: c.resolvePath(p), Status: http.StatusOK, Msg: "decode response: " + err.Error()}
	}
	if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
		c.logger.Debug("shared cache write failed", slog.String("op", op), slog.Any("error", err))
	}
	return nil
}

func (c *AnalyticsClient) post(ctx context.Context, op, p string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	raw, err := c.call(ctx, op, c.resolvePath(p), body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &utils.BadResponseError{Endpoint: c.resolvePath(p), Status: http.StatusOK, Msg: "decode response: " + err.Error()}
	}
	return nil
}

// call runs one request through the circuit breaker and records backend metrics.
func (c *AnalyticsClient) call(ctx context.Context, op, endpoint string, body []byte) ([]byte, error) {
	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.postJSON(ctx, endpoint, body)
	})

	outcome := metrics.OutcomeSuccess
	switch {
	case utils.IsNoData(err):
		outcome = metrics.OutcomeNoData
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveBackend(op, time.Since(start), outcome)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("analytics backend unavailable: %w", err)
		}
		return nil, err
	}
	raw, _ := result.([]byte)
	return raw, nil
}

func (c *AnalyticsClient) postJSON(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	if c.baseURL == "" {
		return nil, &utils.ConfigurationError{Service: "analytics", Field: "baseURL"}
	}
	if endpoint == "" {
		return nil, fmt.Errorf("empty endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", endpoint, utils.ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &utils.BadResponseError{Endpoint: endpoint, Status: resp.StatusCode, Msg: resp.Status}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &utils.BadResponseError{Endpoint: endpoint, Status: resp.StatusCode, Msg: "empty payload"}
	}
	return raw, nil
}

func (c *AnalyticsClient) cacheKey(op string, body []byte) string {
	sum := sha256.Sum256(body)
	return "mirador-reliability:" + op + ":" + hex.EncodeToString(sum[:])
}

func (c *AnalyticsClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func filterPayload(f models.QueryFilter) map[string]any {
	payload := map[string]any{
		"service_id":  f.ServiceID,
		"view_name":   f.ViewName,
		"time_filter": f.TimeFilter,
	}
	lists := map[string][]string{
		"applications":    f.Applications,
		"servers":         f.Servers,
		"deployments":     f.Deployments,
		"transactions":    f.Transactions,
		"types":           f.Types,
		"labels":          f.Labels,
		"event_locations": f.EventLocations,
	}
	for name, values := range lists {
		if models.Restricted(values) {
			payload[name] = values
		}
	}
	if f.SearchText != "" {
		payload["search_text"] = f.SearchText
	}
	return payload
}

func windowPayload(w models.RegressionWindow) map[string]any {
	return map[string]any{
		"active_start":     w.ActiveStart.Format(time.RFC3339),
		"active_end":       w.ActiveEnd.Format(time.RFC3339),
		"active_minutes":   w.ActiveMinutes,
		"baseline_minutes": w.BaselineMinutes,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
