package models

import "time"

// Page size bounds applied at the service boundary.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinQueryLength  = 2
)

// SourceOutcome reports how one source fared during an aggregated search.
type SourceOutcome struct {
	Source      string
	Success     bool
	Error       string
	ResultCount int
	Duration    time.Duration
}

// SearchResponse is the answer to an aggregated search.
type SearchResponse struct {
	Query     string
	Type      SearchType
	Mode      SearchMode
	Page      int
	Size      int
	Results   []SearchResult
	Breakdown Breakdown
	Sources   []SourceOutcome
	Took      time.Duration
}
