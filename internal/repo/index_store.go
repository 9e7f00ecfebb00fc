package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/exposurehub/exposure-search/internal/cache"
)

// ErrIndexUnavailable marks failures where the index could not be reached at
// all (transport errors, 5xx, not configured), as opposed to a rejected query.
var ErrIndexUnavailable = errors.New("index unavailable")

// Index property names.
const (
	FieldRecordID  = "recordId"
	FieldLogin     = "login"
	FieldURL       = "url"
	FieldPassword  = "password"
	FieldTimestamp = "timestamp"
	MetadataPrefix = "meta_"
)

// Filter is a Weaviate where clause. Leaf filters set Path and one value;
// And/Or filters set Operands.
type Filter struct {
	Operator  string
	Path      []string
	ValueText *string
	ValueDate *time.Time
	ValueBool *bool
	Operands  []Filter
}

// Equal builds a text equality filter.
func Equal(field, value string) Filter {
	return Filter{Operator: "Equal", Path: []string{field}, ValueText: &value}
}

// Like builds a wildcard filter; '*' matches any run of characters.
func Like(field, pattern string) Filter {
	return Filter{Operator: "Like", Path: []string{field}, ValueText: &pattern}
}

// IsNull builds an existence check. IsNull(f, false) means the field is set.
func IsNull(field string, null bool) Filter {
	return Filter{Operator: "IsNull", Path: []string{field}, ValueBool: &null}
}

// DateBound builds a GreaterThanEqual or LessThanEqual filter on a date field.
func DateBound(field, operator string, at time.Time) Filter {
	return Filter{Operator: operator, Path: []string{field}, ValueDate: &at}
}

// And joins filters; a single operand is returned unchanged.
func And(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}
	return Filter{Operator: "And", Operands: filters}
}

func (f Filter) graphQL() string {
	var b strings.Builder
	b.WriteString("{operator: ")
	b.WriteString(f.Operator)
	if len(f.Operands) > 0 {
		b.WriteString(", operands: [")
		for i, op := range f.Operands {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(op.graphQL())
		}
		b.WriteString("]}")
		return b.String()
	}
	b.WriteString(", path: [")
	for i, p := range f.Path {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(p))
	}
	b.WriteString("]")
	switch {
	case f.ValueText != nil:
		b.WriteString(", valueText: " + quote(*f.ValueText))
	case f.ValueDate != nil:
		b.WriteString(", valueDate: " + quote(f.ValueDate.UTC().Format(time.RFC3339)))
	case f.ValueBool != nil:
		b.WriteString(", valueBoolean: " + strconv.FormatBool(*f.ValueBool))
	}
	b.WriteString("}")
	return b.String()
}

// BM25 is a keyword query over weighted properties such as "login^2".
type BM25 struct {
	Query      string
	Properties []string
}

// IndexQuery is one logical query fanned out over several partition classes.
// SortBy names the property non-BM25 queries are ordered on; empty means
// FieldTimestamp.
type IndexQuery struct {
	Classes []string
	Where   *Filter
	BM25    *BM25
	SortBy  string
	SortAsc bool
	Limit   int
	Offset  int
}

func (q IndexQuery) sortProperty() string {
	if q.SortBy == "" {
		return FieldTimestamp
	}
	return q.SortBy
}

// IndexHit is one matching index entry. SortValue holds the text sort
// property when the query was not ordered by timestamp.
type IndexHit struct {
	Class     string
	RecordID  string
	Timestamp time.Time
	SortValue string
	Score     float64
}

// IndexStore queries the time-partitioned Weaviate index.
type IndexStore struct {
	endpoint    string
	apiKey      string
	classPrefix string
	httpClient  *http.Client
	cache       cache.Provider
	schemaTTL   time.Duration
}

// NewIndexStore constructs a Weaviate client. Partition classes are those whose
// name starts with classPrefix followed by an underscore.
func NewIndexStore(endpoint, apiKey, classPrefix string, timeout time.Duration, cacheProvider cache.Provider, schemaTTL time.Duration) *IndexStore {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if schemaTTL < 0 {
		schemaTTL = 0
	}
	if classPrefix == "" {
		classPrefix = "Credential"
	}
	return &IndexStore{
		endpoint:    strings.TrimRight(endpoint, "/"),
		apiKey:      apiKey,
		classPrefix: classPrefix,
		httpClient:  &http.Client{Timeout: timeout},
		cache:       cacheProvider,
		schemaTTL:   schemaTTL,
	}
}

// ClassPrefix returns the partition class prefix.
func (s *IndexStore) ClassPrefix() string { return s.classPrefix }

// Ready reports whether Weaviate answers its readiness probe.
func (s *IndexStore) Ready(ctx context.Context) error {
	if s.endpoint == "" {
		return fmt.Errorf("%w: endpoint not configured", ErrIndexUnavailable)
	}
	resp, err := s.do(ctx, http.MethodGet, "/v1/.well-known/ready", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Classes lists the existing partition classes, served from cache when possible.
func (s *IndexStore) Classes(ctx context.Context) ([]string, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint not configured", ErrIndexUnavailable)
	}
	key := "index:classes:" + s.classPrefix
	if s.schemaTTL > 0 {
		var cached []string
		if cache.GetJSON(ctx, s.cache, key, &cached) {
			return cached, nil
		}
	}

	resp, err := s.do(ctx, http.MethodGet, "/v1/schema", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var schema struct {
		Classes []struct {
			Class string `json:"class"`
		} `json:"classes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	classes := make([]string, 0, len(schema.Classes))
	for _, c := range schema.Classes {
		if strings.HasPrefix(c.Class, s.classPrefix+"_") {
			classes = append(classes, c.Class)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(classes)))

	_ = cache.SetJSON(ctx, s.cache, key, classes, s.schemaTTL)
	return classes, nil
}

// Search runs q against every class in one GraphQL request and returns the
// requested page of the merged hits. BM25 hits are ordered by score, the rest
// by the sort property (descending unless SortAsc).
func (s *IndexStore) Search(ctx context.Context, q IndexQuery) ([]IndexHit, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint not configured", ErrIndexUnavailable)
	}
	if len(q.Classes) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	gql := buildGetQuery(q, offset+limit)
	payload, err := json.Marshal(map[string]string{"query": gql})
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodPost, "/v1/graphql", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response struct {
		Data struct {
			Get map[string][]indexObject `json:"Get"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(response.Errors) > 0 {
		return nil, fmt.Errorf("weaviate query failed: %s", response.Errors[0].Message)
	}

	sortBy := q.sortProperty()
	hits := make([]IndexHit, 0)
	for class, objects := range response.Data.Get {
		for _, obj := range objects {
			hit := obj.hit(class, sortBy)
			if hit.RecordID != "" {
				hits = append(hits, hit)
			}
		}
	}

	sortHits(hits, q.BM25 != nil, sortBy != FieldTimestamp, q.SortAsc)
	if offset >= len(hits) {
		return []IndexHit{}, nil
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end], nil
}

func buildGetQuery(q IndexQuery, perClassLimit int) string {
	var args []string
	args = append(args, fmt.Sprintf("limit: %d", perClassLimit))
	if q.Where != nil {
		args = append(args, "where: "+q.Where.graphQL())
	}
	if q.BM25 != nil {
		props := make([]string, 0, len(q.BM25.Properties))
		for _, p := range q.BM25.Properties {
			props = append(props, quote(p))
		}
		args = append(args, fmt.Sprintf("bm25: {query: %s, properties: [%s]}", quote(q.BM25.Query), strings.Join(props, ", ")))
	} else {
		order := "desc"
		if q.SortAsc {
			order = "asc"
		}
		args = append(args, fmt.Sprintf(`sort: [{path: ["%s"], order: %s}]`, q.sortProperty(), order))
	}

	props := FieldRecordID + " " + FieldTimestamp
	if sortBy := q.sortProperty(); sortBy != FieldTimestamp && sortBy != FieldRecordID {
		props += " " + sortBy
	}

	var b strings.Builder
	b.WriteString("{ Get {")
	for _, class := range q.Classes {
		fmt.Fprintf(&b, " %s(%s) { %s _additional { id score } }", class, strings.Join(args, ", "), props)
	}
	b.WriteString(" } }")
	return b.String()
}

// indexObject is one entry of a GraphQL Get answer. Properties are kept raw
// because the selected set depends on the sort property.
type indexObject map[string]json.RawMessage

func (o indexObject) text(key string) string {
	var v string
	if raw, ok := o[key]; ok {
		_ = json.Unmarshal(raw, &v)
	}
	return v
}

func (o indexObject) hit(class, sortBy string) IndexHit {
	var additional struct {
		ID    string          `json:"id"`
		Score json.RawMessage `json:"score"`
	}
	if raw, ok := o["_additional"]; ok {
		_ = json.Unmarshal(raw, &additional)
	}
	hit := IndexHit{
		Class:    class,
		RecordID: firstNonEmpty(o.text(FieldRecordID), additional.ID),
		Score:    parseScore(additional.Score),
	}
	if ts, err := time.Parse(time.RFC3339, o.text(FieldTimestamp)); err == nil {
		hit.Timestamp = ts
	}
	if sortBy != FieldTimestamp {
		hit.SortValue = o.text(sortBy)
	}
	return hit
}

func sortHits(hits []IndexHit, byScore, byValue, asc bool) {
	sort.SliceStable(hits, func(i, j int) bool {
		if byScore && hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if byValue && hits[i].SortValue != hits[j].SortValue {
			if asc {
				return hits[i].SortValue < hits[j].SortValue
			}
			return hits[i].SortValue > hits[j].SortValue
		}
		if !hits[i].Timestamp.Equal(hits[j].Timestamp) {
			if asc {
				return hits[i].Timestamp.Before(hits[j].Timestamp)
			}
			return hits[i].Timestamp.After(hits[j].Timestamp)
		}
		return hits[i].RecordID < hits[j].RecordID
	})
}

func (s *IndexStore) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: weaviate returned %s", ErrIndexUnavailable, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("weaviate returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

func parseScore(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, _ = strconv.ParseFloat(s, 64)
	}
	return f
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
