package sources

import (
	"context"

	"github.com/exposurehub/exposure-search/internal/models"
)

// Source is one searchable backend. Search never fails: adapter errors are
// absorbed and reported as an empty list.
type Source interface {
	Name() string
	DisplayName() string
	Enabled() bool
	Priority() int
	MaxResults() int
	SupportsSearchType(t models.SearchType) bool
	Healthy(ctx context.Context) bool
	Search(ctx context.Context, req models.SearchRequest, caller models.Caller) []models.SearchResult
}

// Descriptor is the static identity of a source.
type Descriptor struct {
	Name        string
	DisplayName string
	Enabled     bool
	Priority    int
	MaxResults  int
}

// BaseSource implements the descriptor half of Source. Its Healthy simply
// mirrors Enabled.
type BaseSource struct {
	desc  Descriptor
	types map[models.SearchType]struct{}
}

// NewBaseSource builds a BaseSource supporting the given search types.
func NewBaseSource(desc Descriptor, types ...models.SearchType) BaseSource {
	if desc.DisplayName == "" {
		desc.DisplayName = desc.Name
	}
	set := make(map[models.SearchType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return BaseSource{desc: desc, types: set}
}

func (b BaseSource) Name() string        { return b.desc.Name }
func (b BaseSource) DisplayName() string { return b.desc.DisplayName }
func (b BaseSource) Enabled() bool       { return b.desc.Enabled }
func (b BaseSource) Priority() int       { return b.desc.Priority }
func (b BaseSource) MaxResults() int     { return b.desc.MaxResults }

// SupportsSearchType reports whether t is in the source's type set.
func (b BaseSource) SupportsSearchType(t models.SearchType) bool {
	_, ok := b.types[t]
	return ok
}

// SupportedTypes lists the supported types in declaration order of models.
func (b BaseSource) SupportedTypes() []models.SearchType {
	all := []models.SearchType{
		models.SearchTypeEmail, models.SearchTypeUsername, models.SearchTypeDomain, models.SearchTypeURL,
		models.SearchTypePassword, models.SearchTypeAdvanced, models.SearchTypeAuto,
		models.SearchTypeIP, models.SearchTypePhone,
	}
	out := make([]models.SearchType, 0, len(b.types))
	for _, t := range all {
		if b.SupportsSearchType(t) {
			out = append(out, t)
		}
	}
	return out
}

func (b BaseSource) Healthy(context.Context) bool { return b.desc.Enabled }

// finish truncates results to the source's cap and stamps attribution.
func (b BaseSource) finish(results []models.SearchResult) []models.SearchResult {
	if limit := b.desc.MaxResults; limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		if results[i].AdditionalData == nil {
			results[i].AdditionalData = make(map[string]any, 2)
		}
		results[i].AdditionalData[models.AttrDataSource] = b.desc.Name
		results[i].AdditionalData[models.AttrSourceDisplayName] = b.desc.DisplayName
	}
	return results
}

// Info describes s for listings.
func Info(ctx context.Context, s Source) models.SourceInfo {
	info := models.SourceInfo{
		Name:        s.Name(),
		DisplayName: s.DisplayName(),
		Enabled:     s.Enabled(),
		Priority:    s.Priority(),
		MaxResults:  s.MaxResults(),
	}
	if info.Enabled {
		info.Healthy = s.Healthy(ctx)
	}
	if typed, ok := s.(interface{ SupportedTypes() []models.SearchType }); ok {
		info.SupportedTypes = typed.SupportedTypes()
	}
	return info
}
