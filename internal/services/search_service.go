package services

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/orchestrator"
	"github.com/exposurehub/exposure-search/internal/utils"
)

// Searcher is the orchestration surface the service drives.
type Searcher interface {
	Fanout(ctx context.Context, req models.SearchRequest, caller models.Caller) ([]models.SearchResult, []orchestrator.Outcome)
	SearchSource(ctx context.Context, name string, req models.SearchRequest, caller models.Caller) []models.SearchResult
	Sources(ctx context.Context) []models.SourceInfo
}

// HealthReporter exposes monitor snapshots.
type HealthReporter interface {
	SourceDetail(name string) (models.SourceHealthDetail, bool)
	Details() []models.SourceHealthDetail
	Summary() models.SystemSummary
}

// SearchService validates requests and maps them onto the orchestrator.
type SearchService struct {
	logger   *slog.Logger
	searcher Searcher
	health   HealthReporter
	latency  *utils.LatencyWindow
}

// NewSearchService constructs the search facade.
func NewSearchService(logger *slog.Logger, searcher Searcher, health HealthReporter) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		logger:   logger,
		searcher: searcher,
		health:   health,
		latency:  utils.NewLatencyWindow(1024),
	}
}

// Search runs an aggregated search across every eligible source.
func (s *SearchService) Search(ctx context.Context, req models.SearchRequest, caller models.Caller) (models.SearchResponse, error) {
	if s.searcher == nil {
		return models.SearchResponse{}, status.Error(codes.FailedPrecondition, "orchestrator not configured")
	}
	req, err := Normalize(req)
	if err != nil {
		s.logger.Debug("search rejected", slog.String("query", req.Query), slog.Any("error", err))
		return models.SearchResponse{}, toStatus(err)
	}

	startedAt := time.Now()
	results, outcomes := s.searcher.Fanout(ctx, req, caller)
	took := time.Since(startedAt)

	s.latency.Observe(took)
	if count := s.latency.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("search latency", slog.Duration("p95", s.latency.Percentile(95)), slog.Int("samples", count))
	}

	resp := models.SearchResponse{
		Query:     req.Query,
		Type:      req.Type,
		Mode:      req.Mode,
		Page:      req.Page,
		Size:      req.Size,
		Results:   results,
		Breakdown: orchestrator.Summarize(results),
		Took:      took,
	}
	for _, oc := range outcomes {
		resp.Sources = append(resp.Sources, models.SourceOutcome{
			Source:      oc.Source,
			Success:     oc.Success,
			Error:       oc.Error,
			ResultCount: len(oc.Results),
			Duration:    oc.Duration,
		})
	}
	return resp, nil
}

// SearchSource queries one named source directly.
func (s *SearchService) SearchSource(ctx context.Context, name string, req models.SearchRequest, caller models.Caller) (models.SearchResponse, error) {
	if s.searcher == nil {
		return models.SearchResponse{}, status.Error(codes.FailedPrecondition, "orchestrator not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SearchResponse{}, status.Error(codes.InvalidArgument, "source name is required")
	}
	if !s.known(ctx, name) {
		return models.SearchResponse{}, status.Errorf(codes.NotFound, "source %q is not registered", name)
	}
	req, err := Normalize(req)
	if err != nil {
		return models.SearchResponse{}, toStatus(err)
	}

	startedAt := time.Now()
	results := s.searcher.SearchSource(ctx, name, req, caller)
	return models.SearchResponse{
		Query:     req.Query,
		Type:      req.Type,
		Mode:      req.Mode,
		Page:      req.Page,
		Size:      req.Size,
		Results:   results,
		Breakdown: orchestrator.Summarize(results),
		Took:      time.Since(startedAt),
	}, nil
}

// ListSources describes every registered source.
func (s *SearchService) ListSources(ctx context.Context) ([]models.SourceInfo, error) {
	if s.searcher == nil {
		return nil, status.Error(codes.FailedPrecondition, "orchestrator not configured")
	}
	return s.searcher.Sources(ctx), nil
}

// SourceHealth returns the monitor snapshot for one source, or for all when name is empty.
func (s *SearchService) SourceHealth(_ context.Context, name string) ([]models.SourceHealthDetail, error) {
	if s.health == nil {
		return nil, status.Error(codes.FailedPrecondition, "monitor not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return s.health.Details(), nil
	}
	detail, ok := s.health.SourceDetail(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "source %q is not registered", name)
	}
	return []models.SourceHealthDetail{detail}, nil
}

// SystemHealth returns the aggregate health summary.
func (s *SearchService) SystemHealth(context.Context) (models.SystemSummary, error) {
	if s.health == nil {
		return models.SystemSummary{}, status.Error(codes.FailedPrecondition, "monitor not configured")
	}
	return s.health.Summary(), nil
}

func (s *SearchService) known(ctx context.Context, name string) bool {
	for _, info := range s.searcher.Sources(ctx) {
		if info.Name == name {
			return true
		}
	}
	return false
}

// Normalize trims and validates req, filling defaults for type, mode, size and sort.
func Normalize(req models.SearchRequest) (models.SearchRequest, error) {
	const op = "search.validate"

	req.Query = strings.TrimSpace(req.Query)
	if len([]rune(req.Query)) < models.MinQueryLength {
		return req, utils.ValidationError(op, "query must be at least 2 characters")
	}

	searchType, ok := models.ParseSearchType(string(req.Type))
	if !ok {
		return req, utils.ValidationError(op, "unknown search type "+string(req.Type))
	}
	req.Type = searchType

	mode, ok := models.ParseSearchMode(string(req.Mode))
	if !ok {
		return req, utils.ValidationError(op, "unknown search mode "+string(req.Mode))
	}
	req.Mode = mode

	if req.Type == models.SearchTypeEmail && req.Mode == models.SearchModeExact && !utils.IsEmail(req.Query) {
		return req, utils.ValidationError(op, "exact email search requires an email address")
	}
	if req.Page < 0 {
		return req, utils.ValidationError(op, "page must not be negative")
	}
	if req.Size == 0 {
		req.Size = models.DefaultPageSize
	}
	if req.Size < 1 || req.Size > models.MaxPageSize {
		return req, utils.ValidationError(op, "size must be between 1 and 100")
	}

	switch strings.ToLower(string(req.SortDirection)) {
	case "", string(models.SortDesc):
		req.SortDirection = models.SortDesc
	case string(models.SortAsc):
		req.SortDirection = models.SortAsc
	default:
		return req, utils.ValidationError(op, "sort direction must be asc or desc")
	}

	req.SortBy = strings.ToLower(strings.TrimSpace(req.SortBy))
	if req.SortBy == "" {
		req.SortBy = models.SortByTimestamp
	}
	if !slices.Contains(models.SortFields, req.SortBy) {
		return req, utils.ValidationError(op, "sortBy must be one of "+strings.Join(models.SortFields, ", "))
	}
	return req, nil
}

func toStatus(err error) error {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case utils.KindValidation:
			return status.Error(codes.InvalidArgument, appErr.Msg)
		case utils.KindNotFound:
			return status.Error(codes.NotFound, appErr.Msg)
		case utils.KindUnavailable:
			return status.Error(codes.Unavailable, appErr.Msg)
		}
	}
	return status.Error(codes.Internal, err.Error())
}
