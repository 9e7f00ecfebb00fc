package sources

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/exposurehub/exposure-search/internal/cache"
	"github.com/exposurehub/exposure-search/internal/config"
	"github.com/exposurehub/exposure-search/internal/repo"
	"github.com/exposurehub/exposure-search/internal/resilience"
	"github.com/exposurehub/exposure-search/internal/scoring"
)

// Registry is the fixed set of sources assembled at startup.
type Registry struct {
	sources []Source
	byName  map[string]Source
}

// NewRegistry indexes sources by name. Names must be unique.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{byName: make(map[string]Source, len(sources))}
	for _, s := range sources {
		if s == nil {
			continue
		}
		if _, dup := r.byName[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate source name %q", s.Name())
		}
		r.byName[s.Name()] = s
		r.sources = append(r.sources, s)
	}
	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].Priority() < r.sources[j].Priority()
	})
	return r, nil
}

// All returns every source ordered by priority.
func (r *Registry) All() []Source {
	return append([]Source(nil), r.sources...)
}

// Get looks a source up by name.
func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Dependencies are the shared collaborators handed to every source.
type Dependencies struct {
	Engine QueryEngine
	Cache  cache.Provider
	Scorer *scoring.Scorer
	Logger *slog.Logger
}

// Build assembles the internal source plus one external source per entry of cfg.
func Build(cfg config.SourcesConfig, deps Dependencies) (*Registry, error) {
	list := []Source{
		NewInternalSource(Descriptor{
			Name:        config.InternalSourceName,
			DisplayName: cfg.Internal.DisplayName,
			Enabled:     cfg.Internal.Enabled,
			Priority:    cfg.Internal.Priority,
			MaxResults:  cfg.Internal.MaxResults,
		}, deps.Engine, deps.Logger),
	}
	for _, ext := range cfg.External {
		client := repo.NewBreachAPIClient(ext.BaseURL, ext.SearchPath, ext.APIKey, ext.Timeout)
		list = append(list, NewExternalSource(ExternalConfigFrom(ext), client, deps.Scorer, deps.Cache, deps.Logger))
	}
	return NewRegistry(list...)
}

// ExternalConfigFrom translates the YAML section into adapter settings.
func ExternalConfigFrom(ext config.ExternalSourceConfig) ExternalConfig {
	return ExternalConfig{
		Descriptor: Descriptor{
			Name:        ext.Name,
			DisplayName: ext.DisplayName,
			Enabled:     ext.Enabled,
			Priority:    ext.Priority,
			MaxResults:  ext.MaxResults,
		},
		Resilience: resilience.Config{
			RateLimitPerHour:  ext.RateLimitPerHour,
			RequestsPerSecond: ext.RequestsPerSecond,
			CallTimeout:       ext.Timeout,
			Breaker: resilience.BreakerConfig{
				FailureThreshold: ext.Breaker.FailureThreshold,
				CoolDown:         ext.Breaker.CoolDown,
				HalfOpenMaxCalls: ext.Breaker.HalfOpenMaxCalls,
				SuccessThreshold: ext.Breaker.SuccessThreshold,
			},
			Retry: resilience.RetryConfig{
				Attempts:   ext.Retry.Attempts,
				Backoff:    ext.Retry.Backoff,
				MaxBackoff: ext.Retry.MaxBackoff,
			},
			BulkheadSize:    ext.Bulkhead.Size,
			BulkheadMaxWait: ext.Bulkhead.MaxWait,
		},
		CacheTTL:  ext.CacheTTL,
		HealthTTL: ext.HealthTTL,
		ProbeTerm: ext.ProbeTerm,
	}
}
