package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// BreachQuery is the request body accepted by the external breach API.
type BreachQuery struct {
	Term          string   `json:"term"`
	Fields        []string `json:"fields"`
	Wildcard      bool     `json:"wildcard"`
	CaseSensitive bool     `json:"case_sensitive"`
}

// BreachRecord is one result returned by the external breach API.
type BreachRecord struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Source     string   `json:"source"`
	Domain     string   `json:"domain"`
	Name       string   `json:"name"`
	Salt       string   `json:"salt"`
	Categories []string `json:"categories"`
}

// BreachResponse is the response envelope of the external breach API.
type BreachResponse struct {
	Results []BreachRecord `json:"results"`
}

// StatusError reports a non-2xx answer from the breach API.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("breach api returned %s", e.Status)
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether err is worth another attempt. Transport errors
// are; 4xx answers other than 429 are not.
func IsRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return err != nil
}

// BreachAPIClient calls one external breach lookup API.
type BreachAPIClient struct {
	baseURL    string
	searchPath string
	apiKey     string
	httpClient *http.Client
}

// NewBreachAPIClient constructs a client for baseURL. searchPath defaults to /search.
func NewBreachAPIClient(baseURL, searchPath, apiKey string, timeout time.Duration) *BreachAPIClient {
	if searchPath == "" {
		searchPath = "/search"
	}
	return &BreachAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		searchPath: searchPath,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search posts q to the search endpoint.
func (c *BreachAPIClient) Search(ctx context.Context, q BreachQuery) (BreachResponse, error) {
	if c == nil {
		return BreachResponse{}, fmt.Errorf("breach api client not initialised")
	}
	if c.baseURL == "" {
		return BreachResponse{}, fmt.Errorf("breach api base URL not configured")
	}
	if q.Fields == nil {
		q.Fields = []string{}
	}
	var response BreachResponse
	if err := c.postJSON(ctx, c.searchURL(), q, &response); err != nil {
		return BreachResponse{}, fmt.Errorf("breach api search failed: %w", err)
	}
	return response, nil
}

func (c *BreachAPIClient) searchURL() string { return c.resolvePath(c.searchPath) }

func (c *BreachAPIClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *BreachAPIClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
