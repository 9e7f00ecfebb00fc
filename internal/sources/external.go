package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exposurehub/exposure-search/internal/cache"
	"github.com/exposurehub/exposure-search/internal/metrics"
	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/repo"
	"github.com/exposurehub/exposure-search/internal/resilience"
	"github.com/exposurehub/exposure-search/internal/scoring"
)

// DefaultHealthTTL is how long a probe result is reused.
const DefaultHealthTTL = 5 * time.Minute

// externalFields maps search types onto the breach API's field names.
var externalFields = map[models.SearchType]string{
	models.SearchTypeEmail:    "email",
	models.SearchTypeUsername: "username",
	models.SearchTypeDomain:   "domain",
	models.SearchTypePassword: "password",
	models.SearchTypeIP:       "ip",
	models.SearchTypePhone:    "phone",
}

// BreachSearcher is the breach API transport.
type BreachSearcher interface {
	Search(ctx context.Context, q repo.BreachQuery) (repo.BreachResponse, error)
}

// ExternalConfig configures an ExternalSource.
type ExternalConfig struct {
	Descriptor
	Resilience resilience.Config
	CacheTTL   time.Duration
	HealthTTL  time.Duration
	ProbeTerm  string
}

// ExternalSource queries a third-party breach API behind a resilience pipeline.
type ExternalSource struct {
	BaseSource
	client    BreachSearcher
	pipeline  *resilience.Pipeline
	scorer    *scoring.Scorer
	cache     cache.Provider
	cacheTTL  time.Duration
	healthTTL time.Duration
	probeTerm string
	probeTO   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	checkedAt time.Time
	healthy   bool
	lastErr   error
}

// NewExternalSource wires an external adapter. cacheProvider, scorer and logger may be nil.
func NewExternalSource(cfg ExternalConfig, client BreachSearcher, scorer *scoring.Scorer, cacheProvider cache.Provider, logger *slog.Logger) *ExternalSource {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = scoring.NewDefaultScorer()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if cfg.HealthTTL <= 0 {
		cfg.HealthTTL = DefaultHealthTTL
	}
	if cfg.ProbeTerm == "" {
		cfg.ProbeTerm = "healthcheck@example.com"
	}

	types := make([]models.SearchType, 0, len(externalFields))
	for t := range externalFields {
		types = append(types, t)
	}

	s := &ExternalSource{
		BaseSource: NewBaseSource(cfg.Descriptor, types...),
		client:     client,
		pipeline:   resilience.NewPipeline(cfg.Resilience),
		scorer:     scorer,
		cache:      cacheProvider,
		cacheTTL:   cfg.CacheTTL,
		healthTTL:  cfg.HealthTTL,
		probeTerm:  cfg.ProbeTerm,
		probeTO:    cfg.Resilience.CallTimeout,
		logger:     logger,
		now:        time.Now,
	}
	name := cfg.Name
	s.pipeline.Breaker.OnStateChange(func(state resilience.State) {
		metrics.SetBreakerState(name, int(state))
		logger.Info("circuit breaker transition", slog.String("source", name), slog.String("state", state.String()))
	})
	return s
}

// WithClock overrides the time source used for timestamps, probe caching and
// the resilience pipeline.
func (s *ExternalSource) WithClock(now func() time.Time) *ExternalSource {
	s.now = now
	s.pipeline.Breaker.WithClock(now)
	s.pipeline.Budget.WithClock(now)
	return s
}

// BreakerState exposes the circuit state for listings.
func (s *ExternalSource) BreakerState() resilience.State {
	return s.pipeline.Breaker.State()
}

// Search implements Source.
func (s *ExternalSource) Search(ctx context.Context, req models.SearchRequest, caller models.Caller) []models.SearchResult {
	field, ok := externalFields[req.Type]
	if !ok {
		s.logger.Debug("search type not supported by external source",
			slog.String("source", s.Name()), slog.String("type", string(req.Type)))
		return []models.SearchResult{}
	}
	query := repo.BreachQuery{
		Term:          strings.TrimSpace(req.Query),
		Fields:        []string{field},
		Wildcard:      req.Mode == models.SearchModeFuzzy,
		CaseSensitive: false,
	}

	records, err := s.fetch(ctx, query)
	if err != nil {
		s.logger.Warn("external search failed",
			slog.String("source", s.Name()),
			slog.String("type", string(req.Type)),
			slog.Any("error", err),
		)
		return []models.SearchResult{}
	}
	return s.finish(s.toResults(records, caller))
}

func (s *ExternalSource) fetch(ctx context.Context, q repo.BreachQuery) ([]repo.BreachRecord, error) {
	key := s.cacheKey(q)
	var records []repo.BreachRecord
	hit := false
	lookup := func(ctx context.Context) bool {
		hit = s.cacheTTL > 0 && cache.GetJSON(ctx, s.cache, key, &records)
		return hit
	}
	err := s.pipeline.RunCached(ctx, lookup, func(ctx context.Context) error {
		resp, err := s.client.Search(ctx, q)
		if err != nil {
			if !repo.IsRetryable(err) {
				return resilience.Permanent(err)
			}
			return err
		}
		records = resp.Results
		return nil
	})
	if err != nil {
		return nil, err
	}
	if hit {
		return records, nil
	}

	if err := cache.SetJSON(ctx, s.cache, key, records, s.cacheTTL); err != nil {
		s.logger.Debug("response cache write failed", slog.String("source", s.Name()), slog.Any("error", err))
	}
	return records, nil
}

func (s *ExternalSource) cacheKey(q repo.BreachQuery) string {
	return fmt.Sprintf("external:%s:%s:%t:%s", s.Name(), strings.Join(q.Fields, ","), q.Wildcard, strings.ToLower(q.Term))
}

func (s *ExternalSource) toResults(records []repo.BreachRecord, caller models.Caller) []models.SearchResult {
	retrieved := s.now().UTC()
	premium := caller.Premium()

	results := make([]models.SearchResult, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.Email) == "" {
			continue
		}
		scored := scoring.Record{
			Email:      rec.Email,
			Password:   rec.Password,
			Domain:     rec.Domain,
			Name:       rec.Name,
			Categories: rec.Categories,
		}
		domain := rec.Domain
		if domain == "" {
			if at := strings.LastIndex(rec.Email, "@"); at >= 0 {
				domain = strings.ToLower(rec.Email[at+1:])
			}
		}
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}

		extra := map[string]any{}
		if rec.Name != "" {
			extra["name"] = rec.Name
		}
		if len(rec.Categories) > 0 {
			extra["categories"] = append([]string(nil), rec.Categories...)
		}
		if rec.Password != "" {
			if premium {
				extra["password"] = rec.Password
				if rec.Salt != "" {
					extra["salt"] = rec.Salt
				}
			} else {
				extra["password"] = MaskSecret(rec.Password)
				extra["passwordMasked"] = true
			}
		}

		results = append(results, models.SearchResult{
			ID:             id,
			Email:          rec.Email,
			Domain:         domain,
			Source:         rec.Source,
			Timestamp:      retrieved,
			HasPassword:    rec.Password != "",
			Severity:       s.scorer.Severity(scored),
			IsVerified:     false,
			DataQuality:    s.scorer.Quality(scored),
			AdditionalData: extra,
		})
	}
	return results
}

// MaskSecret keeps the first and last character of longer secrets.
func MaskSecret(secret string) string {
	r := []rune(secret)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
}

// Healthy returns the cached probe result, probing synchronously when it is
// older than the health TTL.
func (s *ExternalSource) Healthy(ctx context.Context) bool {
	if !s.Enabled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkedAt.IsZero() && s.now().Sub(s.checkedAt) < s.healthTTL {
		return s.healthy
	}

	err := resilience.WithTimeout(ctx, s.probeTO, func(ctx context.Context) error {
		_, err := s.client.Search(ctx, repo.BreachQuery{Term: s.probeTerm, Fields: []string{"email"}})
		return err
	})
	s.checkedAt = s.now()
	s.healthy = err == nil
	s.lastErr = err
	if err != nil {
		s.logger.Warn("external health probe failed", slog.String("source", s.Name()), slog.Any("error", err))
	}
	return s.healthy
}

// LastError returns the error of the most recent probe, if any.
func (s *ExternalSource) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
