package models

import "time"

// SourceInfo describes a registered search source for listings.
type SourceInfo struct {
	Name           string
	DisplayName    string
	Enabled        bool
	Healthy        bool
	Priority       int
	MaxResults     int
	SupportedTypes []SearchType
}

// SourceHealthDetail is the monitor's per-source snapshot.
type SourceHealthDetail struct {
	Name           string
	DisplayName    string
	Enabled        bool
	Healthy        bool
	LastCheckTime  time.Time
	LastProbe      time.Duration
	CheckCount     int64
	HealthyCount   int64
	UnhealthyCount int64
	LastError      string

	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalResults       int64
	TotalResponseTime  time.Duration
	AverageResponse    time.Duration
	MinResponse        time.Duration
	MedianResponse     time.Duration
	P95Response        time.Duration
	MaxResponse        time.Duration
	SuccessRate        float64
}

// SystemSummary aggregates health and performance across all sources.
type SystemSummary struct {
	TotalSources       int
	EnabledSources     int
	HealthySources     int
	TotalRequests      int64
	SuccessfulRequests int64
	SuccessRate        float64
	GeneratedAt        time.Time
}
