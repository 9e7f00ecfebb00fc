package sources

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposurehub/exposure-search/internal/cache"
	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/repo"
	"github.com/exposurehub/exposure-search/internal/resilience"
	"github.com/exposurehub/exposure-search/internal/utils"
)

type fakeBreachAPI struct {
	mu      sync.Mutex
	calls   int
	queries []repo.BreachQuery
	resp    repo.BreachResponse
	err     error
}

func (f *fakeBreachAPI) Search(_ context.Context, q repo.BreachQuery) (repo.BreachResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, q)
	return f.resp, f.err
}

func (f *fakeBreachAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func externalConfig() ExternalConfig {
	return ExternalConfig{
		Descriptor: Descriptor{Name: "breachapi", DisplayName: "Breach API", Enabled: true, Priority: 1, MaxResults: 10},
		Resilience: resilience.Config{
			Breaker: resilience.BreakerConfig{FailureThreshold: 2, CoolDown: time.Minute},
			Retry:   resilience.RetryConfig{Attempts: 1},
		},
	}
}

func newTestExternal(cfg ExternalConfig, api *fakeBreachAPI, provider cache.Provider) (*ExternalSource, *testClock) {
	clock := &testClock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	src := NewExternalSource(cfg, api, nil, provider, utils.DiscardLogger()).WithClock(clock.now)
	return src, clock
}

func TestExternalSearchMapsRequestAndResults(t *testing.T) {
	api := &fakeBreachAPI{resp: repo.BreachResponse{Results: []repo.BreachRecord{
		{ID: "b1", Email: "john@paypal.com", Password: "hunter22", Source: "siteB", Name: "John", Salt: "s", Categories: []string{"gaming"}},
		{Email: "", Source: "skipped"},
		{Email: "jane@example.org", Source: "siteC", Categories: []string{"Banking"}},
	}}}
	src, clock := newTestExternal(externalConfig(), api, nil)

	results := src.Search(context.Background(), models.SearchRequest{
		Query: " john@paypal.com ", Type: models.SearchTypeEmail, Mode: models.SearchModeFuzzy,
	}, models.Caller{})

	require.Equal(t, 1, api.callCount())
	assert.Equal(t, repo.BreachQuery{Term: "john@paypal.com", Fields: []string{"email"}, Wildcard: true}, api.queries[0])

	require.Len(t, results, 2)
	first := results[0]
	assert.Equal(t, "b1", first.ID)
	assert.Equal(t, "siteB", first.Source)
	assert.Equal(t, "paypal.com", first.Domain)
	assert.Equal(t, clock.now(), first.Timestamp)
	assert.False(t, first.IsVerified)
	assert.True(t, first.HasPassword)
	assert.Equal(t, models.SeverityHigh, first.Severity)
	assert.Equal(t, 80, first.DataQuality)
	assert.Equal(t, "breachapi", first.DataSource())
	assert.Equal(t, "Breach API", first.AdditionalData[models.AttrSourceDisplayName])
	assert.Equal(t, "h******2", first.AdditionalData["password"])
	assert.NotContains(t, first.AdditionalData, "salt")

	second := results[1]
	assert.NotEmpty(t, second.ID)
	assert.Equal(t, models.SeverityCritical, second.Severity)
	assert.False(t, second.HasPassword)
}

func TestExternalSearchPremiumCallerSeesSecrets(t *testing.T) {
	api := &fakeBreachAPI{resp: repo.BreachResponse{Results: []repo.BreachRecord{
		{Email: "a@b.io", Password: "pw123", Salt: "pepper"},
	}}}
	src, _ := newTestExternal(externalConfig(), api, nil)

	results := src.Search(context.Background(), models.SearchRequest{Query: "a@b.io", Type: models.SearchTypeEmail},
		models.Caller{UserID: "u1", Plan: "Premium"})
	require.Len(t, results, 1)
	assert.Equal(t, "pw123", results[0].AdditionalData["password"])
	assert.Equal(t, "pepper", results[0].AdditionalData["salt"])
}

func TestExternalSearchFieldMapping(t *testing.T) {
	cases := map[models.SearchType]string{
		models.SearchTypeEmail:    "email",
		models.SearchTypeUsername: "username",
		models.SearchTypeDomain:   "domain",
		models.SearchTypePassword: "password",
		models.SearchTypeIP:       "ip",
		models.SearchTypePhone:    "phone",
	}
	for searchType, field := range cases {
		api := &fakeBreachAPI{}
		src, _ := newTestExternal(externalConfig(), api, nil)
		src.Search(context.Background(), models.SearchRequest{Query: "x", Type: searchType}, models.Caller{})
		require.Len(t, api.queries, 1, searchType)
		assert.Equal(t, []string{field}, api.queries[0].Fields, searchType)
		assert.True(t, src.SupportsSearchType(searchType))
	}
}

func TestExternalSearchRejectsUnsupportedTypes(t *testing.T) {
	api := &fakeBreachAPI{}
	src, _ := newTestExternal(externalConfig(), api, nil)
	for _, st := range []models.SearchType{models.SearchTypeAdvanced, models.SearchTypeURL, models.SearchTypeAuto} {
		assert.False(t, src.SupportsSearchType(st))
		assert.Empty(t, src.Search(context.Background(), models.SearchRequest{Query: "x", Type: st}, models.Caller{}))
	}
	assert.Zero(t, api.callCount())
}

func TestExternalSearchTruncatesToMaxResults(t *testing.T) {
	records := make([]repo.BreachRecord, 15)
	for i := range records {
		records[i] = repo.BreachRecord{Email: "u@example.com"}
	}
	api := &fakeBreachAPI{resp: repo.BreachResponse{Results: records}}
	src, _ := newTestExternal(externalConfig(), api, nil)

	results := src.Search(context.Background(), models.SearchRequest{Query: "u@example.com", Type: models.SearchTypeEmail}, models.Caller{})
	assert.Len(t, results, 10)
}

func TestExternalBreakerSkipsTransportWhileOpen(t *testing.T) {
	api := &fakeBreachAPI{err: &repo.StatusError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}}
	src, clock := newTestExternal(externalConfig(), api, nil)
	req := models.SearchRequest{Query: "a@b.io", Type: models.SearchTypeEmail}
	ctx := context.Background()

	assert.Empty(t, src.Search(ctx, req, models.Caller{}))
	assert.Empty(t, src.Search(ctx, req, models.Caller{}))
	require.Equal(t, 2, api.callCount())
	require.Equal(t, resilience.StateOpen, src.BreakerState())

	assert.Empty(t, src.Search(ctx, req, models.Caller{}))
	assert.Equal(t, 2, api.callCount(), "no transport call while open")

	clock.advance(time.Minute)
	api.mu.Lock()
	api.err = nil
	api.resp = repo.BreachResponse{Results: []repo.BreachRecord{{Email: "a@b.io"}}}
	api.mu.Unlock()

	assert.Len(t, src.Search(ctx, req, models.Caller{}), 1)
	assert.Equal(t, 3, api.callCount())
	assert.Equal(t, resilience.StateClosed, src.BreakerState())
}

func TestExternalHourlyBudget(t *testing.T) {
	cfg := externalConfig()
	cfg.Resilience.RateLimitPerHour = 2
	api := &fakeBreachAPI{resp: repo.BreachResponse{Results: []repo.BreachRecord{{Email: "a@b.io"}}}}
	src, clock := newTestExternal(cfg, api, nil)
	req := models.SearchRequest{Query: "a@b.io", Type: models.SearchTypeEmail}
	ctx := context.Background()

	assert.Len(t, src.Search(ctx, req, models.Caller{}), 1)
	assert.Len(t, src.Search(ctx, req, models.Caller{}), 1)
	assert.Empty(t, src.Search(ctx, req, models.Caller{}))
	assert.Equal(t, 2, api.callCount())

	clock.advance(time.Hour)
	assert.Len(t, src.Search(ctx, req, models.Caller{}), 1)
	assert.Equal(t, 3, api.callCount())
}

func TestExternalClientErrorsAreNotRetried(t *testing.T) {
	cfg := externalConfig()
	cfg.Resilience.Retry = resilience.RetryConfig{Attempts: 3, Backoff: time.Millisecond}
	api := &fakeBreachAPI{err: &repo.StatusError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}}
	src, _ := newTestExternal(cfg, api, nil)

	assert.Empty(t, src.Search(context.Background(), models.SearchRequest{Query: "a@b.io", Type: models.SearchTypeEmail}, models.Caller{}))
	assert.Equal(t, 1, api.callCount())

	api.err = errors.New("connection reset")
	src.Search(context.Background(), models.SearchRequest{Query: "a@b.io", Type: models.SearchTypeEmail}, models.Caller{})
	assert.Equal(t, 4, api.callCount())
}

func TestExternalResponseCache(t *testing.T) {
	cfg := externalConfig()
	cfg.CacheTTL = time.Minute
	api := &fakeBreachAPI{resp: repo.BreachResponse{Results: []repo.BreachRecord{{Email: "a@b.io", Password: "secret"}}}}
	src, _ := newTestExternal(cfg, api, cache.NewMemoryProvider())
	req := models.SearchRequest{Query: "A@B.io", Type: models.SearchTypeEmail}

	first := src.Search(context.Background(), req, models.Caller{})
	second := src.Search(context.Background(), models.SearchRequest{Query: "a@b.io", Type: models.SearchTypeEmail}, models.Caller{Plan: "enterprise", UserID: "u"})
	assert.Equal(t, 1, api.callCount())
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, "s****t", first[0].AdditionalData["password"])
	assert.Equal(t, "secret", second[0].AdditionalData["password"])
}

func TestExternalCachedResponseStillSpendsBudget(t *testing.T) {
	cfg := externalConfig()
	cfg.CacheTTL = 10 * time.Minute
	cfg.Resilience.RateLimitPerHour = 1
	api := &fakeBreachAPI{resp: repo.BreachResponse{Results: []repo.BreachRecord{{Email: "a@b.io"}}}}
	src, _ := newTestExternal(cfg, api, cache.NewMemoryProvider())
	req := models.SearchRequest{Query: "a@b.io", Type: models.SearchTypeEmail}
	ctx := context.Background()

	assert.Len(t, src.Search(ctx, req, models.Caller{}), 1)
	assert.Empty(t, src.Search(ctx, req, models.Caller{}), "budget is spent even though the response is cached")
	assert.Equal(t, 1, api.callCount())
}

func TestExternalHealthProbeIsCached(t *testing.T) {
	cfg := externalConfig()
	cfg.HealthTTL = 5 * time.Minute
	api := &fakeBreachAPI{err: errors.New("dial tcp: refused")}
	src, clock := newTestExternal(cfg, api, nil)
	ctx := context.Background()

	assert.False(t, src.Healthy(ctx))
	require.Error(t, src.LastError())
	assert.Equal(t, "healthcheck@example.com", api.queries[0].Term)

	api.mu.Lock()
	api.err = nil
	api.mu.Unlock()

	clock.advance(4 * time.Minute)
	assert.False(t, src.Healthy(ctx), "cached result reused")
	assert.Equal(t, 1, api.callCount())

	clock.advance(time.Minute)
	assert.True(t, src.Healthy(ctx))
	assert.NoError(t, src.LastError())
	assert.Equal(t, 2, api.callCount())
}

func TestExternalDisabledIsUnhealthyWithoutProbe(t *testing.T) {
	cfg := externalConfig()
	cfg.Enabled = false
	api := &fakeBreachAPI{}
	src, _ := newTestExternal(cfg, api, nil)
	assert.False(t, src.Healthy(context.Background()))
	assert.Zero(t, api.callCount())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "**", MaskSecret("ab"))
	assert.Equal(t, "p***d", MaskSecret("passd"))
}
