package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-reliability/internal/cache"
	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/extractors"
	"github.com/miradorstack/mirador-reliability/internal/metrics"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
	"github.com/miradorstack/mirador-reliability/internal/workers"
)

const (
	taskRegression = "regression"
	taskSlowdown   = "slowdown"
)

// Config tunes report execution.
type Config struct {
	TaskTimeout  time.Duration
	DefaultLimit int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{TaskTimeout: 30 * time.Second, DefaultLimit: 10}
}

// Deps are the collaborators shared by the orchestrator and the graph runner.
type Deps struct {
	Backend  Backend
	Caches   *cache.Service
	Settings SettingsSource
	Pools    *workers.Registry
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Orchestrator computes per-key reliability reports, fanning per-key tasks out on the backend's
// worker pool and reusing cached regression outputs.
type Orchestrator struct {
	backend  Backend
	data     *dataSource
	caches   *cache.Service
	settings SettingsSource
	pools    *workers.Registry
	clock    clock.Clock
	cfg      Config
	logger   *slog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaults.TaskTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	deps = deps.withDefaults()
	return &Orchestrator{
		backend:  deps.Backend,
		data:     newDataSource(deps.Backend, deps.Caches),
		caches:   deps.Caches,
		settings: deps.Settings,
		pools:    deps.Pools,
		clock:    deps.Clock,
		cfg:      cfg,
		logger:   deps.Logger,
	}
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Pools == nil {
		d.Pools = workers.NewRegistry(workers.DefaultPoolSize)
	}
	if d.Caches == nil {
		d.Caches = cache.NewService(cache.DefaultServiceConfig(), d.Clock, d.Logger)
	}
	return d
}

// task is one unit of per-key work.
type task struct {
	key  string
	kind string
	run  func(ctx context.Context) taskResult
}

type taskResult struct {
	key        string
	kind       string
	regression models.RegressionOutput
	slowdown   models.SlowdownSummary
	err        error
}

// bundle is the partial join of one key's task results.
type bundle struct {
	regression    models.RegressionOutput
	hasRegression bool
	slowdown      models.SlowdownSummary
	dropped       bool
	failed        bool
}

// Report computes the ordered per-key results for req. Keys without data are dropped and keys whose
// tasks failed are omitted; the request only fails when no key produced a result or when required
// settings are missing.
func (o *Orchestrator) Report(ctx context.Context, req models.ReportRequest) (models.Report, error) {
	start := o.clock.Now()
	runID := uuid.NewString()
	mode := req.Mode
	if mode == "" {
		mode = models.ModeDefault
	}
	req.Mode = mode
	logger := o.logger.With(slog.String("run_id", runID), slog.String("service_id", req.Filter.ServiceID), slog.String("mode", string(mode)))

	report, err := o.report(ctx, req, runID, logger)
	outcome := metrics.OutcomeSuccess
	switch {
	case utils.IsNoData(err):
		outcome = metrics.OutcomeNoData
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.ObserveReport(string(mode), o.clock.Since(start), outcome)

	if err != nil {
		logger.Warn("report failed", slog.Any("error", err), slog.Duration("elapsed", o.clock.Since(start)))
		return models.Report{}, err
	}
	logger.Info("report completed", slog.Int("results", len(report.Results)), slog.Duration("elapsed", o.clock.Since(start)))
	return report, nil
}

func (o *Orchestrator) report(ctx context.Context, req models.ReportRequest, runID string, logger *slog.Logger) (models.Report, error) {
	if strings.TrimSpace(req.Filter.ServiceID) == "" {
		return models.Report{}, &utils.ConfigurationError{Service: "report", Field: "service_id"}
	}
	doc, err := o.settings.Load(ctx, req.Filter.ServiceID)
	if err != nil {
		return models.Report{}, fmt.Errorf("load settings: %w", err)
	}
	weights, err := resolveWeights(req, doc)
	if err != nil {
		return models.Report{}, err
	}
	thresholds := doc.Reliability.Thresholds
	if req.Thresholds != nil {
		thresholds = *req.Thresholds
	}
	postfixes := doc.Reliability.Postfixes
	if req.Postfixes != (models.StatusPostfixes{}) {
		postfixes = req.Postfixes
	}

	keys, err := o.resolveKeys(ctx, req, doc)
	if err != nil {
		return models.Report{}, err
	}
	if len(keys) == 0 {
		return models.Report{}, fmt.Errorf("no reporting keys for mode %s: %w", req.Mode, utils.ErrNoData)
	}

	window, err := o.data.window(ctx, req.Filter, doc.Regression.BaselineTimespanMinutes)
	if err != nil {
		return models.Report{}, fmt.Errorf("resolve regression window: %w", err)
	}

	bundles := make(map[string]*bundle, len(keys))
	tasks := make([]task, 0, 2*len(keys))
	for _, key := range keys {
		b := &bundle{}
		bundles[key] = b
		narrowed := req.Filter.Narrow(req.Mode, key)

		reportKey, err := o.data.keys.Report(ctx, narrowed, req.NewOnly)
		if err != nil {
			return models.Report{}, fmt.Errorf("report key %s: %w", key, err)
		}
		if cached, ok := o.caches.Reports.GetIfPresent(reportKey); ok && !cached.Empty {
			b.regression = cached
			b.hasRegression = true
		} else {
			if ok {
				o.caches.Reports.Invalidate(reportKey)
			}
			tasks = append(tasks, o.regressionTask(key, reportKey, narrowed, window, doc.Regression, req.NewOnly))
		}
		if req.Mode != models.ModeTiers {
			tasks = append(tasks, o.slowdownTask(key, narrowed, doc.Slowdown))
		}
	}

	var firstErr error
	merge := func(res taskResult) {
		metrics.ObserveTask(res.kind, taskOutcome(res.err))
		b := bundles[res.key]
		switch {
		case res.err == nil && res.kind == taskRegression:
			b.regression = res.regression
			b.hasRegression = true
		case res.err == nil:
			b.slowdown = res.slowdown
		case utils.IsNoData(res.err) && res.kind == taskRegression:
			b.dropped = true
		case utils.IsNoData(res.err):
			b.slowdown = models.SlowdownSummary{}
		default:
			b.failed = true
			if firstErr == nil {
				firstErr = res.err
			}
			logger.Warn("report task failed", slog.String("key", res.key), slog.String("task", res.kind), slog.Any("error", res.err))
		}
	}

	if len(tasks) == 1 {
		res := o.runTask(ctx, tasks[0])
		merge(res)
		if res.err != nil && !utils.IsNoData(res.err) {
			return models.Report{}, utils.NewComputationError("report "+res.key, res.err)
		}
	} else if len(tasks) > 1 {
		o.fanOut(ctx, tasks, merge)
	}

	results := make([]models.ReportKeyResult, 0, len(keys))
	for _, key := range keys {
		b := bundles[key]
		if b.dropped || b.failed || !b.hasRegression {
			continue
		}
		b.regression.Key = key
		row := models.ReportKeyResult{Key: key, Regression: b.regression, Slowdown: b.slowdown}
		row.Score = Score(ScoreInputFor(row), weights)
		row.Status = StatusFor(row.Score, thresholds)
		row.DisplayName = DisplayName(key, row.Status, postfixes)
		results = append(results, row)
	}

	if len(results) == 0 {
		if firstErr != nil {
			return models.Report{}, utils.NewComputationError("report", firstErr)
		}
		return models.Report{}, fmt.Errorf("no key produced data: %w", utils.ErrNoData)
	}
	sortResults(results, req.Mode, req.Descending)

	return models.Report{
		RunID:   runID,
		Mode:    req.Mode,
		Window:  o.displayWindow(req.Filter, window),
		Results: results,
	}, nil
}

// fanOut runs tasks on the backend's worker pool and merges results as they complete. A failed task
// never cancels its siblings.
func (o *Orchestrator) fanOut(ctx context.Context, tasks []task, merge func(taskResult)) {
	pool := o.pools.For(o.backend.Identity())
	results := make(chan taskResult, len(tasks))

	var g errgroup.Group
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			err := pool.Run(ctx, func(ctx context.Context) error {
				results <- o.runTask(ctx, t)
				return nil
			})
			if err != nil {
				results <- taskResult{key: t.key, kind: t.kind, err: err}
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	for res := range results {
		merge(res)
	}
}

// runTask executes one task under its own deadline and converts panics into computation errors.
func (o *Orchestrator) runTask(ctx context.Context, t task) (res taskResult) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = taskResult{key: t.key, kind: t.kind, err: utils.NewComputationError(t.kind+" "+t.key, fmt.Errorf("panic: %v", r))}
		}
	}()
	res = t.run(ctx)
	res.key, res.kind = t.key, t.kind
	return res
}

func (o *Orchestrator) regressionTask(key string, reportKey cachekey.Report, filter models.QueryFilter, window models.RegressionWindow, settings models.RegressionSettings, newOnly bool) task {
	return task{key: key, kind: taskRegression, run: func(ctx context.Context) taskResult {
		out, err := o.caches.Reports.Get(ctx, reportKey, func(ctx context.Context) (models.RegressionOutput, error) {
			view, err := o.data.view(ctx, filter.ServiceID, filter.ViewName)
			if err != nil {
				return models.RegressionOutput{}, err
			}
			out, err := o.backend.ComputeRegression(ctx, view, filter, window, settings, newOnly)
			if err != nil {
				return models.RegressionOutput{}, err
			}
			out.Key = key
			return out, nil
		})
		if err != nil {
			return taskResult{err: err}
		}
		if out.Empty {
			o.caches.Reports.Invalidate(reportKey)
			return taskResult{err: fmt.Errorf("key %s has no resolvable view: %w", key, utils.ErrNoData)}
		}
		return taskResult{regression: out}
	}}
}

func (o *Orchestrator) slowdownTask(key string, filter models.QueryFilter, settings models.SlowdownSettings) task {
	return task{key: key, kind: taskSlowdown, run: func(ctx context.Context) taskResult {
		txs, err := o.data.transactions(ctx, filter)
		if err != nil {
			return taskResult{err: err}
		}
		classified := extractors.NewSlowdownClassifier(settings).Classify(txs)
		return taskResult{slowdown: models.SummariseSlowdowns(classified)}
	}}
}

func (o *Orchestrator) displayWindow(f models.QueryFilter, w models.RegressionWindow) models.TimeWindow {
	out := models.TimeWindow{From: w.ActiveStart, To: w.ActiveEnd, Minutes: w.ActiveMinutes}
	if out.From.IsZero() || out.To.IsZero() {
		if tf, err := utils.ParseTimeFilter(f.TimeFilter); err == nil {
			out.From, out.To = tf.Window(o.clock.Now())
		}
	}
	out.Label = utils.DurationLabel(out.Minutes)
	return out
}

func resolveWeights(req models.ReportRequest, doc models.ServiceSettings) (models.ScoreWeights, error) {
	if req.Weights != nil {
		return *req.Weights, nil
	}
	if doc.Reliability.Weights != nil {
		return *doc.Reliability.Weights, nil
	}
	return models.ScoreWeights{}, &utils.ConfigurationError{Service: req.Filter.ServiceID, Field: "reliability.weights"}
}

func sortResults(results []models.ReportKeyResult, mode models.ReportMode, descending bool) {
	less := func(a, b models.ReportKeyResult) bool { return a.Key < b.Key }
	if mode == models.ModeDeployments {
		less = func(a, b models.ReportKeyResult) bool { return CompareDeploymentNames(a.Key, b.Key) < 0 }
	}
	sort.SliceStable(results, func(i, j int) bool {
		if descending {
			return less(results[j], results[i])
		}
		return less(results[i], results[j])
	})
}

func taskOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case utils.IsNoData(err):
		return metrics.OutcomeNoData
	default:
		return metrics.OutcomeError
	}
}
