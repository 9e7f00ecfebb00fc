package models

import (
	"strings"
	"time"
)

// SearchType selects which record field a query targets.
type SearchType string

const (
	SearchTypeEmail    SearchType = "EMAIL"
	SearchTypeUsername SearchType = "USERNAME"
	SearchTypeDomain   SearchType = "DOMAIN"
	SearchTypeURL      SearchType = "URL"
	SearchTypePassword SearchType = "PASSWORD"
	SearchTypeAdvanced SearchType = "ADVANCED"
	SearchTypeAuto     SearchType = "AUTO"
	// SearchTypeIP and SearchTypePhone are only understood by external lookups.
	SearchTypeIP    SearchType = "IP"
	SearchTypePhone SearchType = "PHONE"
)

// ParseSearchType normalises a search type name. Unknown names return false.
func ParseSearchType(value string) (SearchType, bool) {
	t := SearchType(strings.ToUpper(strings.TrimSpace(value)))
	switch t {
	case SearchTypeEmail, SearchTypeUsername, SearchTypeDomain, SearchTypeURL,
		SearchTypePassword, SearchTypeAdvanced, SearchTypeAuto, SearchTypeIP, SearchTypePhone:
		return t, true
	case "":
		return SearchTypeAuto, true
	default:
		return "", false
	}
}

// SearchMode controls exact versus fuzzy matching.
type SearchMode string

const (
	SearchModeExact SearchMode = "EXACT"
	SearchModeFuzzy SearchMode = "FUZZY"
)

// ParseSearchMode normalises a search mode name, defaulting to EXACT.
func ParseSearchMode(value string) (SearchMode, bool) {
	switch SearchMode(strings.ToUpper(strings.TrimSpace(value))) {
	case SearchModeExact, "":
		return SearchModeExact, true
	case SearchModeFuzzy:
		return SearchModeFuzzy, true
	default:
		return "", false
	}
}

// SortDirection orders paged index results.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Accepted SortBy values. An empty SortBy means SortByTimestamp.
const (
	SortByTimestamp = "timestamp"
	SortByLogin     = "login"
	SortByURL       = "url"
)

// SortFields lists the accepted SortBy values.
var SortFields = []string{SortByTimestamp, SortByLogin, SortByURL}

// Recognised filter keys.
const (
	FilterMonthsBack  = "monthsBack"
	FilterDateFrom    = "dateFrom"
	FilterDateTo      = "dateTo"
	FilterHasPassword = "hasPassword"
	FilterMetadata    = "metadata"
)

// SearchRequest is a single breach-exposure lookup.
type SearchRequest struct {
	Query         string
	Type          SearchType
	Mode          SearchMode
	Page          int
	Size          int
	SortBy        string
	SortDirection SortDirection
	Filters       map[string]any
}

// Severity captures the impact level of an exposure.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities from LOW (0) to CRITICAL (3).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Attribution keys stamped into SearchResult.AdditionalData by every source.
const (
	AttrDataSource        = "dataSource"
	AttrSourceDisplayName = "sourceDisplayName"
)

// SearchResult is one exposure record. Source names the originating breach
// or dataset; the adapter that produced it is recorded under AttrDataSource.
type SearchResult struct {
	ID             string
	Email          string
	URL            string
	Domain         string
	Source         string
	Timestamp      time.Time
	HasPassword    bool
	Severity       Severity
	IsVerified     bool
	DataQuality    int
	AdditionalData map[string]any
}

// DataSource returns the adapter name stamped on the result, if any.
func (r SearchResult) DataSource() string {
	if r.AdditionalData == nil {
		return ""
	}
	v, _ := r.AdditionalData[AttrDataSource].(string)
	return v
}

// Caller identifies who issued a search. A zero Caller is anonymous.
type Caller struct {
	UserID string
	Plan   string
}

// Anonymous reports whether no user is attached.
func (c Caller) Anonymous() bool {
	return c.UserID == ""
}

// Premium reports whether the caller's plan unlocks unmasked fields.
func (c Caller) Premium() bool {
	switch strings.ToLower(c.Plan) {
	case "premium", "enterprise":
		return true
	default:
		return false
	}
}

// Breakdown summarises an aggregated result list for display.
type Breakdown struct {
	Total      int
	BySource   map[string]int
	BySeverity map[Severity]int
	Verified   int
	Unverified int
}
