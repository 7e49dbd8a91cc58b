package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-reliability/internal/api"
	"github.com/miradorstack/mirador-reliability/internal/engine"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

// Reporter computes reliability reports.
type Reporter interface {
	Report(ctx context.Context, req models.ReportRequest) (models.Report, error)
}

// Grapher computes volume and cost graphs.
type Grapher interface {
	Graph(ctx context.Context, req models.GraphRequest) (engine.GraphResult, error)
}

// SettingsWriter persists per-service settings documents.
type SettingsWriter interface {
	Save(ctx context.Context, doc models.ServiceSettings) (models.ServiceSettings, error)
}

// ReliabilityService implements the ReliabilityReports gRPC service.
type ReliabilityService struct {
	logger    *slog.Logger
	reporter  Reporter
	grapher   Grapher
	settings  SettingsWriter
	latencies *utils.LatencyTracker
}

// NewReliabilityService constructs the service facade.
func NewReliabilityService(logger *slog.Logger, reporter Reporter, grapher Grapher, settings SettingsWriter) *ReliabilityService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReliabilityService{
		logger:    logger,
		reporter:  reporter,
		grapher:   grapher,
		settings:  settings,
		latencies: utils.NewLatencyTracker(1024),
	}
}

var _ api.ReliabilityReportsServer = (*ReliabilityService)(nil)

// Report answers a reliability report query.
func (s *ReliabilityService) Report(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.reporter == nil {
		return nil, status.Error(codes.FailedPrecondition, "report orchestrator not configured")
	}
	req, err := api.FromStructReportRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	start := time.Now()
	report, err := s.reporter.Report(ctx, req)
	if err != nil {
		return nil, s.toStatus("report", err)
	}
	s.observe(time.Since(start))

	out, err := api.ToStructReport(report)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Graph answers a volume or cost graph query.
func (s *ReliabilityService) Graph(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.grapher == nil {
		return nil, status.Error(codes.FailedPrecondition, "graph runner not configured")
	}
	req, err := api.FromStructGraphRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.grapher.Graph(ctx, req)
	if err != nil {
		return nil, s.toStatus("graph", err)
	}
	out, err := api.ToStructGraph(res)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// SaveSettings validates and stores a settings document.
func (s *ReliabilityService) SaveSettings(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.settings == nil {
		return nil, status.Error(codes.FailedPrecondition, "settings store not configured")
	}
	doc, err := api.FromStructSettings(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	saved, err := s.settings.Save(ctx, doc)
	if err != nil {
		if utils.IsConfiguration(err) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, s.toStatus("save settings", err)
	}
	out, err := api.ToStructSettings(saved)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// LatencyP95 returns the current p95 report latency.
func (s *ReliabilityService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

func (s *ReliabilityService) observe(d time.Duration) {
	s.latencies.Observe(d)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("report latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

func (s *ReliabilityService) toStatus(op string, err error) error {
	switch {
	case utils.IsNoData(err):
		return status.Error(codes.NotFound, err.Error())
	case utils.IsConfiguration(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case utils.IsBadResponse(err):
		s.logger.Warn(op+" failed", slog.Any("error", err))
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		s.logger.Error(op+" failed", slog.Any("error", err))
		return status.Error(codes.Internal, err.Error())
	}
}
