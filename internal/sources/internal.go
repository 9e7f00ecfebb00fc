package sources

import (
	"context"
	"log/slog"

	"github.com/exposurehub/exposure-search/internal/models"
)

// QueryEngine is the part of the engine the internal source depends on.
type QueryEngine interface {
	SearchWithFallback(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error)
}

// InternalSource searches the internal index, falling back to the document store.
type InternalSource struct {
	BaseSource
	engine QueryEngine
	logger *slog.Logger
}

// InternalSearchTypes are the types the query engine has strategies for.
var InternalSearchTypes = []models.SearchType{
	models.SearchTypeEmail, models.SearchTypeUsername, models.SearchTypeDomain, models.SearchTypeURL,
	models.SearchTypePassword, models.SearchTypeAdvanced, models.SearchTypeAuto,
}

// NewInternalSource wires the index-backed adapter.
func NewInternalSource(desc Descriptor, engine QueryEngine, logger *slog.Logger) *InternalSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &InternalSource{
		BaseSource: NewBaseSource(desc, InternalSearchTypes...),
		engine:     engine,
		logger:     logger,
	}
}

// Search implements Source.
func (s *InternalSource) Search(ctx context.Context, req models.SearchRequest, _ models.Caller) []models.SearchResult {
	results, err := s.engine.SearchWithFallback(ctx, req)
	if err != nil {
		s.logger.Debug("internal search rejected",
			slog.String("source", s.Name()),
			slog.String("type", string(req.Type)),
			slog.Any("error", err),
		)
		return []models.SearchResult{}
	}
	return s.finish(results)
}
