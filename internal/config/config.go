package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every setting required to boot the search service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Search    SearchConfig    `yaml:"search"`
	Index     IndexConfig     `yaml:"index"`
	Documents DocumentsConfig `yaml:"documents"`
	Sources   SourcesConfig   `yaml:"sources"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Cache     CacheConfig     `yaml:"cache"`
	Rules     RulesConfig     `yaml:"rules"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SearchConfig tunes the orchestrator fan-out.
type SearchConfig struct {
	PerSourceTimeout  time.Duration `yaml:"perSourceTimeout"`
	GlobalTimeout     time.Duration `yaml:"globalTimeout"`
	FanOutWorkers     int           `yaml:"fanOutWorkers"`
	DefaultMonthsBack int           `yaml:"defaultMonthsBack"`
}

// IndexConfig configures the Weaviate partition index.
type IndexConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"apiKey"`
	Timeout     time.Duration `yaml:"timeout"`
	ClassPrefix string        `yaml:"classPrefix"`
	SchemaTTL   time.Duration `yaml:"schemaTTL"`
}

// DocumentsConfig locates the SQLite document store.
type DocumentsConfig struct {
	Path string `yaml:"path"`
}

// SourcesConfig lists the search adapters.
type SourcesConfig struct {
	Internal InternalSourceConfig   `yaml:"internal"`
	External []ExternalSourceConfig `yaml:"external"`
}

// InternalSourceConfig configures the index-backed adapter.
type InternalSourceConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DisplayName string `yaml:"displayName"`
	Priority    int    `yaml:"priority"`
	MaxResults  int    `yaml:"maxResults"`
}

// ExternalSourceConfig configures one external breach API adapter.
type ExternalSourceConfig struct {
	Name              string         `yaml:"name"`
	DisplayName       string         `yaml:"displayName"`
	Enabled           bool           `yaml:"enabled"`
	BaseURL           string         `yaml:"baseURL"`
	SearchPath        string         `yaml:"searchPath"`
	APIKey            string         `yaml:"apiKey"`
	Timeout           time.Duration  `yaml:"timeout"`
	Priority          int            `yaml:"priority"`
	MaxResults        int            `yaml:"maxResults"`
	RateLimitPerHour  int            `yaml:"rateLimitPerHour"`
	RequestsPerSecond float64        `yaml:"requestsPerSecond"`
	CacheTTL          time.Duration  `yaml:"cacheTTL"`
	HealthTTL         time.Duration  `yaml:"healthTTL"`
	ProbeTerm         string         `yaml:"probeTerm"`
	Breaker           BreakerConfig  `yaml:"breaker"`
	Retry             RetryConfig    `yaml:"retry"`
	Bulkhead          BulkheadConfig `yaml:"bulkhead"`
}

// BreakerConfig tunes an adapter's circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	CoolDown         time.Duration `yaml:"coolDown"`
	HalfOpenMaxCalls int           `yaml:"halfOpenMaxCalls"`
	SuccessThreshold int           `yaml:"successThreshold"`
}

// RetryConfig tunes an adapter's retry policy.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"maxBackoff"`
}

// BulkheadConfig caps an adapter's concurrent outbound calls.
type BulkheadConfig struct {
	Size    int           `yaml:"size"`
	MaxWait time.Duration `yaml:"maxWait"`
}

// MonitorConfig tunes the health prober and performance window.
type MonitorConfig struct {
	ProbeInterval time.Duration `yaml:"probeInterval"`
	WindowSize    int           `yaml:"windowSize"`
}

// CacheConfig selects the cache backend. Without an address an in-memory cache is used.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	KeyPrefix    string        `yaml:"keyPrefix"`
}

// RulesConfig points at the severity rule pack.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("EXPOSURE_SEARCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyExternalDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	seen := map[string]bool{InternalSourceName: true}
	for i, ext := range c.Sources.External {
		if strings.TrimSpace(ext.Name) == "" {
			return fmt.Errorf("sources.external[%d]: name is required", i)
		}
		if seen[ext.Name] {
			return fmt.Errorf("sources.external[%d]: duplicate source name %q", i, ext.Name)
		}
		seen[ext.Name] = true
		if ext.Enabled && ext.BaseURL == "" {
			return fmt.Errorf("sources.external[%d] (%s): baseURL is required when enabled", i, ext.Name)
		}
	}
	if c.Search.GlobalTimeout < c.Search.PerSourceTimeout {
		return fmt.Errorf("search.globalTimeout (%s) must not be shorter than search.perSourceTimeout (%s)",
			c.Search.GlobalTimeout, c.Search.PerSourceTimeout)
	}
	return nil
}

// InternalSourceName is the fixed name of the index-backed adapter.
const InternalSourceName = "internal"

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Search: SearchConfig{
			PerSourceTimeout:  10 * time.Second,
			GlobalTimeout:     15 * time.Second,
			FanOutWorkers:     8,
			DefaultMonthsBack: 12,
		},
		Index: IndexConfig{
			Timeout:     5 * time.Second,
			ClassPrefix: "Credential",
			SchemaTTL:   time.Minute,
		},
		Documents: DocumentsConfig{Path: "data/records.db"},
		Sources: SourcesConfig{
			Internal: InternalSourceConfig{
				Enabled:     true,
				DisplayName: "Internal breach index",
				Priority:    0,
				MaxResults:  100,
			},
		},
		Monitor: MonitorConfig{ProbeInterval: 2 * time.Minute, WindowSize: 100},
		Cache: CacheConfig{
			Enabled:      true,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			KeyPrefix:    "exposure:",
		},
		Rules: RulesConfig{Path: "configs/rules/severity.yaml"},
	}
}

// DefaultExternalSource holds the tunables applied to every external adapter
// before its own YAML values.
func DefaultExternalSource() ExternalSourceConfig {
	return ExternalSourceConfig{
		SearchPath: "/search",
		Timeout:    5 * time.Second,
		MaxResults: 100,
		HealthTTL:  5 * time.Minute,
		ProbeTerm:  "healthcheck@example.com",
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			CoolDown:         30 * time.Second,
			HalfOpenMaxCalls: 1,
			SuccessThreshold: 1,
		},
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    200 * time.Millisecond,
			MaxBackoff: 2 * time.Second,
		},
		Bulkhead: BulkheadConfig{Size: 4, MaxWait: time.Second},
	}
}

func applyExternalDefaults(cfg *Config) {
	def := DefaultExternalSource()
	for i := range cfg.Sources.External {
		ext := &cfg.Sources.External[i]
		if ext.DisplayName == "" {
			ext.DisplayName = ext.Name
		}
		if ext.SearchPath == "" {
			ext.SearchPath = def.SearchPath
		}
		if ext.Timeout <= 0 {
			ext.Timeout = def.Timeout
		}
		if ext.MaxResults <= 0 {
			ext.MaxResults = def.MaxResults
		}
		if ext.HealthTTL <= 0 {
			ext.HealthTTL = def.HealthTTL
		}
		if ext.ProbeTerm == "" {
			ext.ProbeTerm = def.ProbeTerm
		}
		if ext.Breaker.FailureThreshold <= 0 {
			ext.Breaker.FailureThreshold = def.Breaker.FailureThreshold
		}
		if ext.Breaker.CoolDown <= 0 {
			ext.Breaker.CoolDown = def.Breaker.CoolDown
		}
		if ext.Breaker.HalfOpenMaxCalls <= 0 {
			ext.Breaker.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
		}
		if ext.Breaker.SuccessThreshold <= 0 {
			ext.Breaker.SuccessThreshold = def.Breaker.SuccessThreshold
		}
		if ext.Retry.Attempts <= 0 {
			ext.Retry.Attempts = def.Retry.Attempts
		}
		if ext.Retry.Backoff <= 0 {
			ext.Retry.Backoff = def.Retry.Backoff
		}
		if ext.Retry.MaxBackoff <= 0 {
			ext.Retry.MaxBackoff = def.Retry.MaxBackoff
		}
		if ext.Bulkhead.Size <= 0 {
			ext.Bulkhead.Size = def.Bulkhead.Size
		}
		if ext.Bulkhead.MaxWait <= 0 {
			ext.Bulkhead.MaxWait = def.Bulkhead.MaxWait
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EXPOSURE_SEARCH_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("EXPOSURE_SEARCH_INDEX_URL"); v != "" {
		cfg.Index.Endpoint = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_INDEX_API_KEY"); v != "" {
		cfg.Index.APIKey = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_DOCUMENTS_PATH"); v != "" {
		cfg.Documents.Path = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_MONTHS_BACK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.DefaultMonthsBack = n
		}
	}
	if v := os.Getenv("EXPOSURE_SEARCH_PER_SOURCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.PerSourceTimeout = d
		}
	}
	if v := os.Getenv("EXPOSURE_SEARCH_GLOBAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.GlobalTimeout = d
		}
	}
	if v := os.Getenv("EXPOSURE_SEARCH_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.ProbeInterval = d
		}
	}
	if v := os.Getenv("EXPOSURE_SEARCH_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("EXPOSURE_SEARCH_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("EXPOSURE_SEARCH_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("EXPOSURE_SEARCH_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	// Per-adapter secrets: EXPOSURE_SEARCH_SOURCE_<NAME>_API_KEY and _ENABLED.
	for i := range cfg.Sources.External {
		ext := &cfg.Sources.External[i]
		prefix := "EXPOSURE_SEARCH_SOURCE_" + envName(ext.Name)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			ext.APIKey = v
		}
		if v := os.Getenv(prefix + "_BASE_URL"); v != "" {
			ext.BaseURL = v
		}
		if v := os.Getenv(prefix + "_ENABLED"); v != "" {
			ext.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
		}
	}
}

func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
