package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

type searchRequest struct {
	Term          string   `json:"term"`
	Fields        []string `json:"fields"`
	Wildcard      bool     `json:"wildcard"`
	CaseSensitive bool     `json:"case_sensitive"`
}

type breachRecord struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Password   string   `json:"password,omitempty"`
	Source     string   `json:"source"`
	Domain     string   `json:"domain,omitempty"`
	Name       string   `json:"name,omitempty"`
	Salt       string   `json:"salt,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Username   string   `json:"username,omitempty"`
	IP         string   `json:"ip,omitempty"`
	Phone      string   `json:"phone,omitempty"`
}

var cannedRecords = []breachRecord{
	{ID: "m-1", Email: "alice@example.com", Password: "hunter22", Source: "Collection1", Domain: "example.com", Name: "Alice Doe", Categories: []string{"email", "password"}, Username: "alice", IP: "203.0.113.7"},
	{ID: "m-2", Email: "alice@example.com", Source: "ShopLeak2023", Domain: "example.com", Categories: []string{"email"}, Username: "alice"},
	{ID: "m-3", Email: "bob@bank.com", Password: "s3cr3t!", Salt: "a9f3", Source: "FinDump", Domain: "bank.com", Name: "Bob Roe", Categories: []string{"email", "password", "financial"}, Phone: "+15550100"},
	{ID: "m-4", Email: "carol@gov.example", Source: "GovScrape", Domain: "gov.example", Categories: []string{"email", "ssn"}, Username: "carol.g"},
	{ID: "m-5", Email: "", Source: "Orphans", Domain: "example.com", Username: "noemail"},
}

// fields maps request field names onto record accessors.
var fields = map[string]func(breachRecord) string{
	"email":    func(r breachRecord) string { return r.Email },
	"username": func(r breachRecord) string { return r.Username },
	"domain":   func(r breachRecord) string { return r.Domain },
	"password": func(r breachRecord) string { return r.Password },
	"ip":       func(r breachRecord) string { return r.IP },
	"phone":    func(r breachRecord) string { return r.Phone },
}

func main() {
	addr := envOr("MOCK_BREACH_ADDR", ":8090")
	failEvery, _ := strconv.Atoi(os.Getenv("MOCK_BREACH_FAIL_EVERY"))
	latency, _ := time.ParseDuration(os.Getenv("MOCK_BREACH_LATENCY"))

	logger := log.New(log.Writer(), "breach-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    addr,
		Handler: logRequests(logger, newMux(os.Getenv("MOCK_BREACH_API_KEY"), failEvery, latency)),
	}

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// newMux serves /healthz and /search. A non-empty apiKey requires a matching
// bearer token; failEvery > 0 answers every nth search with 503.
func newMux(apiKey string, failEvery int, latency time.Duration) *http.ServeMux {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if failEvery > 0 && calls.Add(1)%int64(failEvery) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if latency > 0 {
			time.Sleep(latency)
		}

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Term) == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"results": match(req)})
	})
	return mux
}

func match(req searchRequest) []breachRecord {
	term := req.Term
	if !req.CaseSensitive {
		term = strings.ToLower(term)
	}
	out := []breachRecord{}
	for _, rec := range cannedRecords {
		for _, name := range req.Fields {
			get, ok := fields[name]
			if !ok {
				continue
			}
			value := get(rec)
			if !req.CaseSensitive {
				value = strings.ToLower(value)
			}
			if value == "" {
				continue
			}
			if value == term || (req.Wildcard && strings.Contains(value, term)) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
