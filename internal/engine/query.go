package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/exposurehub/exposure-search/internal/metrics"
	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/repo"
	"github.com/exposurehub/exposure-search/internal/scoring"
	"github.com/exposurehub/exposure-search/internal/utils"
)

var (
	// ErrInvalidQuery rejects a request whose query or filters cannot be executed.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnsupportedType rejects search types the engine has no strategy for.
	ErrUnsupportedType = errors.New("unsupported search type")
)

const (
	DefaultMonthsBack = 12
	DefaultPageSize   = 20
)

// Advanced search boosts.
var advancedFields = []string{repo.FieldLogin + "^2", repo.FieldURL + "^1.5", repo.FieldPassword}

// IndexSearcher is the time-partitioned index.
type IndexSearcher interface {
	Classes(ctx context.Context) ([]string, error)
	Search(ctx context.Context, q repo.IndexQuery) ([]repo.IndexHit, error)
}

// RecordStore holds the full records the index points at.
type RecordStore interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.CredentialRecord, error)
	FindByLogin(ctx context.Context, login string, limit, offset int) ([]models.CredentialRecord, error)
	FindByDomainContains(ctx context.Context, fragment string, limit, offset int) ([]models.CredentialRecord, error)
	FindByURL(ctx context.Context, url string, limit, offset int) ([]models.CredentialRecord, error)
}

// Config tunes the QueryEngine.
type Config struct {
	ClassPrefix       string
	DefaultMonthsBack int
}

// QueryEngine resolves searches against the index and document store.
type QueryEngine struct {
	index      IndexSearcher
	docs       RecordStore
	scorer     *scoring.Scorer
	logger     *slog.Logger
	prefix     string
	monthsBack int
	now        func() time.Time
}

// NewQueryEngine wires the engine. scorer and logger may be nil.
func NewQueryEngine(index IndexSearcher, docs RecordStore, scorer *scoring.Scorer, cfg Config, logger *slog.Logger) *QueryEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = scoring.NewDefaultScorer()
	}
	if cfg.ClassPrefix == "" {
		cfg.ClassPrefix = "Credential"
	}
	if cfg.DefaultMonthsBack <= 0 {
		cfg.DefaultMonthsBack = DefaultMonthsBack
	}
	return &QueryEngine{
		index:      index,
		docs:       docs,
		scorer:     scorer,
		logger:     logger,
		prefix:     cfg.ClassPrefix,
		monthsBack: cfg.DefaultMonthsBack,
		now:        time.Now,
	}
}

// GenerateIndexNames returns monthsBack partition names ending at now's month,
// most recent first.
func GenerateIndexNames(prefix string, monthsBack int, now time.Time) []string {
	months := utils.MonthStarts(now, monthsBack)
	names := make([]string, 0, len(months))
	for _, m := range months {
		names = append(names, fmt.Sprintf("%s_%04d_%02d", prefix, m.Year(), int(m.Month())))
	}
	return names
}

// Classify maps a raw AUTO query onto a concrete search type.
func Classify(query string) models.SearchType {
	q := strings.TrimSpace(query)
	switch {
	case utils.IsEmail(q):
		return models.SearchTypeEmail
	case strings.Contains(q, "://"), strings.Contains(q, "."):
		return models.SearchTypeURL
	default:
		return models.SearchTypeUsername
	}
}

// sortProperties maps request sort fields onto index properties.
var sortProperties = map[string]string{
	models.SortByTimestamp: repo.FieldTimestamp,
	models.SortByLogin:     repo.FieldLogin,
	models.SortByURL:       repo.FieldURL,
}

// plan is a resolved strategy: which partitions to scan with which query.
type plan struct {
	searchType models.SearchType
	allClasses bool
	query      repo.IndexQuery
}

// Search runs req against the index. Index failures are logged and yield an
// empty page; only invalid requests return an error.
func (e *QueryEngine) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	p, err := e.plan(req)
	if err != nil {
		return nil, err
	}
	results, err := e.execute(ctx, p, req)
	if err != nil {
		e.logger.Warn("index search failed",
			slog.String("type", string(p.searchType)),
			slog.Any("error", err),
		)
		return []models.SearchResult{}, nil
	}
	return results, nil
}

// SearchWithFallback is Search, except that when the index is unreachable the
// document store is queried directly with simplified predicates.
func (e *QueryEngine) SearchWithFallback(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	p, err := e.plan(req)
	if err != nil {
		return nil, err
	}
	results, err := e.execute(ctx, p, req)
	if err == nil {
		return results, nil
	}
	if !errors.Is(err, repo.ErrIndexUnavailable) {
		e.logger.Warn("index search failed",
			slog.String("type", string(p.searchType)),
			slog.Any("error", err),
		)
		return []models.SearchResult{}, nil
	}

	e.logger.Warn("index unavailable, falling back to document store",
		slog.String("type", string(p.searchType)),
		slog.Any("error", err),
	)
	metrics.IncFallback(string(p.searchType))
	return e.fallback(ctx, p.searchType, req), nil
}

func (e *QueryEngine) plan(req models.SearchRequest) (plan, error) {
	query := strings.TrimSpace(req.Query)
	searchType := req.Type
	if searchType == "" || searchType == models.SearchTypeAuto {
		searchType = Classify(query)
	}
	fuzzy := req.Mode == models.SearchModeFuzzy

	size := req.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	page := req.Page
	if page < 0 {
		page = 0
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = models.SortByTimestamp
	}
	property, ok := sortProperties[sortBy]
	if !ok {
		return plan{}, fmt.Errorf("%w: cannot sort by %q", ErrInvalidQuery, req.SortBy)
	}
	p := plan{
		searchType: searchType,
		query: repo.IndexQuery{
			SortBy:  property,
			SortAsc: req.SortDirection == models.SortAsc,
			Limit:   size,
			Offset:  page * size,
		},
	}

	switch searchType {
	case models.SearchTypeEmail, models.SearchTypeUsername:
		if searchType == models.SearchTypeEmail && !utils.IsEmail(query) {
			return plan{}, fmt.Errorf("%w: %q is not an email address", ErrInvalidQuery, query)
		}
		if fuzzy {
			p.query.Where = ptr(repo.Like(repo.FieldLogin, "*"+query+"*"))
		} else {
			p.allClasses = true
			p.query.Where = ptr(repo.Equal(repo.FieldLogin, query))
		}
	case models.SearchTypeURL:
		if fuzzy {
			p.query.Where = ptr(repo.Like(repo.FieldURL, "*"+query+"*"))
		} else {
			p.query.Where = ptr(repo.Equal(repo.FieldURL, query))
		}
	case models.SearchTypeDomain:
		p.query.Where = ptr(repo.Like(repo.FieldURL, "*"+query+"*"))
	case models.SearchTypePassword:
		p.allClasses = true
		p.query.BM25 = &repo.BM25{Query: query, Properties: []string{repo.FieldPassword}}
	case models.SearchTypeAdvanced:
		filters, err := advancedFilters(req.Filters)
		if err != nil {
			return plan{}, err
		}
		if query != "" {
			p.query.BM25 = &repo.BM25{Query: query, Properties: advancedFields}
		}
		switch {
		case len(filters) > 0:
			p.query.Where = ptr(repo.And(filters...))
		case query == "":
			p.query.Where = ptr(repo.IsNull(repo.FieldLogin, false))
		}
	default:
		return plan{}, fmt.Errorf("%w: %s", ErrUnsupportedType, searchType)
	}
	return p, nil
}

func (e *QueryEngine) execute(ctx context.Context, p plan, req models.SearchRequest) ([]models.SearchResult, error) {
	available, err := e.index.Classes(ctx)
	if err != nil {
		return nil, err
	}
	if p.allClasses {
		p.query.Classes = available
	} else {
		p.query.Classes = intersect(GenerateIndexNames(e.prefix, e.monthsBackFor(req), e.now()), available)
	}
	if len(p.query.Classes) == 0 {
		return []models.SearchResult{}, nil
	}

	hits, err := e.index.Search(ctx, p.query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []models.SearchResult{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.RecordID)
	}
	records, err := e.docs.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve records: %w", err)
	}
	if dropped := len(ids) - len(records); dropped > 0 {
		e.logger.Debug("index hits missing from document store", slog.Int("dropped", dropped))
	}
	return e.toResults(records), nil
}

func (e *QueryEngine) fallback(ctx context.Context, searchType models.SearchType, req models.SearchRequest) []models.SearchResult {
	query := strings.TrimSpace(req.Query)
	size := req.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	offset := req.Page * size
	if offset < 0 {
		offset = 0
	}

	var (
		records []models.CredentialRecord
		err     error
	)
	switch searchType {
	case models.SearchTypeEmail, models.SearchTypeUsername:
		records, err = e.docs.FindByLogin(ctx, query, size, offset)
	case models.SearchTypeDomain:
		records, err = e.docs.FindByDomainContains(ctx, query, size, offset)
	case models.SearchTypeURL:
		records, err = e.docs.FindByURL(ctx, query, size, offset)
	default:
		e.logger.Warn("search type not supported by document store fallback", slog.String("type", string(searchType)))
		return []models.SearchResult{}
	}
	if err != nil {
		e.logger.Warn("document store fallback failed", slog.String("type", string(searchType)), slog.Any("error", err))
		return []models.SearchResult{}
	}
	return e.toResults(records)
}

func (e *QueryEngine) monthsBackFor(req models.SearchRequest) int {
	if raw, ok := req.Filters[models.FilterMonthsBack]; ok {
		if n, ok := toInt(raw); ok && n > 0 {
			return n
		}
	}
	return e.monthsBack
}

func (e *QueryEngine) toResults(records []models.CredentialRecord) []models.SearchResult {
	results := make([]models.SearchResult, 0, len(records))
	for _, rec := range records {
		domain := rec.Domain
		if domain == "" {
			domain = hostOf(rec.URL)
		}
		scored := scoring.Record{Email: rec.Login, Password: rec.Password, Domain: domain}
		extra := map[string]any{"login": rec.Login}
		if len(rec.Metadata) > 0 {
			meta := make(map[string]any, len(rec.Metadata))
			for k, v := range rec.Metadata {
				meta[k] = v
			}
			extra["metadata"] = meta
		}
		results = append(results, models.SearchResult{
			ID:             rec.ID,
			Email:          rec.Login,
			URL:            rec.URL,
			Domain:         domain,
			Source:         rec.Source,
			Timestamp:      rec.Timestamp,
			HasPassword:    rec.Password != "",
			Severity:       e.scorer.Severity(scored),
			IsVerified:     true,
			DataQuality:    e.scorer.Quality(scored),
			AdditionalData: extra,
		})
	}
	return results
}

func advancedFilters(filters map[string]any) ([]repo.Filter, error) {
	var out []repo.Filter
	for _, key := range []string{models.FilterDateFrom, models.FilterDateTo} {
		raw, ok := filters[key]
		if !ok || raw == nil {
			continue
		}
		at, err := toTime(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidQuery, key, err)
		}
		op := "GreaterThanEqual"
		if key == models.FilterDateTo {
			op = "LessThanEqual"
		}
		out = append(out, repo.DateBound(repo.FieldTimestamp, op, at))
	}
	if raw, ok := filters[models.FilterHasPassword]; ok && raw != nil {
		has, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidQuery, models.FilterHasPassword)
		}
		out = append(out, repo.IsNull(repo.FieldPassword, !has))
	}
	if raw, ok := filters[models.FilterMetadata]; ok && raw != nil {
		meta, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidQuery, models.FilterMetadata)
		}
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, repo.Equal(repo.MetadataPrefix+k, fmt.Sprint(meta[k])))
		}
	}
	return out, nil
}

func intersect(wanted, available []string) []string {
	set := make(map[string]struct{}, len(available))
	for _, a := range available {
		set[a] = struct{}{}
	}
	out := make([]string, 0, len(wanted))
	for _, w := range wanted {
		if _, ok := set[w]; ok {
			out = append(out, w)
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return utils.ParseFlexibleTime(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported value %v", v)
	}
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Hostname()
}

func ptr[T any](v T) *T { return &v }
