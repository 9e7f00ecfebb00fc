package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/exposurehub/exposure-search/internal/models"
)

// Caller identity is read from these incoming metadata keys.
const (
	MetadataUserID = "x-user-id"
	MetadataPlan   = "x-user-plan"
)

// SearchAPI is the service facade the handlers delegate to.
type SearchAPI interface {
	Search(ctx context.Context, req models.SearchRequest, caller models.Caller) (models.SearchResponse, error)
	SearchSource(ctx context.Context, name string, req models.SearchRequest, caller models.Caller) (models.SearchResponse, error)
	ListSources(ctx context.Context) ([]models.SourceInfo, error)
	SourceHealth(ctx context.Context, name string) ([]models.SourceHealthDetail, error)
	SystemHealth(ctx context.Context) (models.SystemSummary, error)
}

// Handler adapts SearchAPI to ExposureSearchServer.
type Handler struct {
	svc SearchAPI
}

// NewHandler wraps svc.
func NewHandler(svc SearchAPI) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := FromStructSearchRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := h.svc.Search(ctx, req, CallerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return encode(ToStructSearchResponse(resp))
}

func (h *Handler) SearchSource(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := FromStructSearchRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := h.svc.SearchSource(ctx, stringField(in, "source"), req, CallerFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return encode(ToStructSearchResponse(resp))
}

func (h *Handler) ListSources(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	infos, err := h.svc.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]any, 0, len(infos))
	for _, info := range infos {
		types := make([]any, 0, len(info.SupportedTypes))
		for _, t := range info.SupportedTypes {
			types = append(types, string(t))
		}
		list = append(list, map[string]any{
			"name":           info.Name,
			"displayName":    info.DisplayName,
			"enabled":        info.Enabled,
			"healthy":        info.Healthy,
			"priority":       info.Priority,
			"maxResults":     info.MaxResults,
			"supportedTypes": types,
		})
	}
	return encode(map[string]any{"sources": list})
}

func (h *Handler) SourceHealth(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	details, err := h.svc.SourceHealth(ctx, stringField(in, "source"))
	if err != nil {
		return nil, err
	}
	list := make([]any, 0, len(details))
	for _, d := range details {
		list = append(list, ToStructHealthDetail(d))
	}
	return encode(map[string]any{"sources": list})
}

func (h *Handler) SystemHealth(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s, err := h.svc.SystemHealth(ctx)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{
		"totalSources":       s.TotalSources,
		"enabledSources":     s.EnabledSources,
		"healthySources":     s.HealthySources,
		"totalRequests":      s.TotalRequests,
		"successfulRequests": s.SuccessfulRequests,
		"successRate":        s.SuccessRate,
		"generatedAt":        formatTime(s.GeneratedAt),
	})
}

// CallerFromContext reads the caller identity from incoming gRPC metadata.
func CallerFromContext(ctx context.Context) models.Caller {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return models.Caller{}
	}
	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}
	return models.Caller{UserID: first(MetadataUserID), Plan: first(MetadataPlan)}
}

// FromStructSearchRequest maps a request Struct into a SearchRequest.
// Validation beyond shape is left to the service.
func FromStructSearchRequest(in *structpb.Struct) (models.SearchRequest, error) {
	if in == nil {
		return models.SearchRequest{}, fmt.Errorf("request is nil")
	}
	req := models.SearchRequest{
		Query:         stringField(in, "query"),
		Type:          models.SearchType(stringField(in, "type")),
		Mode:          models.SearchMode(stringField(in, "mode")),
		SortBy:        stringField(in, "sortBy"),
		SortDirection: models.SortDirection(stringField(in, "sortDirection")),
	}

	var err error
	if req.Page, err = intField(in, "page"); err != nil {
		return req, err
	}
	if req.Size, err = intField(in, "size"); err != nil {
		return req, err
	}

	if v, ok := in.GetFields()["filters"]; ok {
		filters := v.GetStructValue()
		if filters == nil {
			if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
				return req, fmt.Errorf("filters must be an object")
			}
		} else {
			req.Filters = filters.AsMap()
		}
	}
	return req, nil
}

// ToStructSearchResponse flattens a SearchResponse into Struct-compatible values.
func ToStructSearchResponse(resp models.SearchResponse) map[string]any {
	results := make([]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]any{
			"id":             r.ID,
			"email":          r.Email,
			"url":            r.URL,
			"domain":         r.Domain,
			"source":         r.Source,
			"timestamp":      formatTime(r.Timestamp),
			"hasPassword":    r.HasPassword,
			"severity":       string(r.Severity),
			"isVerified":     r.IsVerified,
			"dataQuality":    r.DataQuality,
			"additionalData": plain(r.AdditionalData),
		})
	}

	bySource := make(map[string]any, len(resp.Breakdown.BySource))
	for k, v := range resp.Breakdown.BySource {
		bySource[k] = v
	}
	bySeverity := make(map[string]any, len(resp.Breakdown.BySeverity))
	for k, v := range resp.Breakdown.BySeverity {
		bySeverity[string(k)] = v
	}

	outcomes := make([]any, 0, len(resp.Sources))
	for _, oc := range resp.Sources {
		outcomes = append(outcomes, map[string]any{
			"source":      oc.Source,
			"success":     oc.Success,
			"error":       oc.Error,
			"resultCount": oc.ResultCount,
			"durationMs":  millis(oc.Duration),
		})
	}

	return map[string]any{
		"query":   resp.Query,
		"type":    string(resp.Type),
		"mode":    string(resp.Mode),
		"page":    resp.Page,
		"size":    resp.Size,
		"results": results,
		"breakdown": map[string]any{
			"total":      resp.Breakdown.Total,
			"bySource":   bySource,
			"bySeverity": bySeverity,
			"verified":   resp.Breakdown.Verified,
			"unverified": resp.Breakdown.Unverified,
		},
		"sources": outcomes,
		"tookMs":  millis(resp.Took),
	}
}

// ToStructHealthDetail flattens a monitor snapshot.
func ToStructHealthDetail(d models.SourceHealthDetail) map[string]any {
	return map[string]any{
		"name":               d.Name,
		"displayName":        d.DisplayName,
		"enabled":            d.Enabled,
		"healthy":            d.Healthy,
		"lastCheckTime":      formatTime(d.LastCheckTime),
		"lastProbeMs":        millis(d.LastProbe),
		"checkCount":         d.CheckCount,
		"healthyCount":       d.HealthyCount,
		"unhealthyCount":     d.UnhealthyCount,
		"lastError":          d.LastError,
		"totalRequests":      d.TotalRequests,
		"successfulRequests": d.SuccessfulRequests,
		"failedRequests":     d.FailedRequests,
		"totalResults":       d.TotalResults,
		"averageResponseMs":  millis(d.AverageResponse),
		"minResponseMs":      millis(d.MinResponse),
		"medianResponseMs":   millis(d.MedianResponse),
		"p95ResponseMs":      millis(d.P95Response),
		"maxResponseMs":      millis(d.MaxResponse),
		"successRate":        d.SuccessRate,
	}
}

func encode(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}

// plain converts values structpb cannot represent directly.
func plain(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int, int32, int64, uint32, uint64, float32, float64:
		return t
	case time.Time:
		return formatTime(t)
	case time.Duration:
		return millis(t)
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = plain(t[k])
		}
		return out
	default:
		return fmt.Sprint(t)
	}
}

func stringField(in *structpb.Struct, key string) string {
	if in == nil {
		return ""
	}
	return in.GetFields()[key].GetStringValue()
}

func intField(in *structpb.Struct, key string) (int, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		return int(n), nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("%s must be a number", key)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
