package repo

import (
	"bytes"
	"io"
	"net/http"
)

// transportFunc answers requests in-process.
type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func stubClient(fn func(*http.Request) (*http.Response, error)) *http.Client {
	return &http.Client{Transport: transportFunc(fn)}
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}
