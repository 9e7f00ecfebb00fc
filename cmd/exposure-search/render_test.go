package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/exposurehub/exposure-search/internal/models"
)

func init() {
	color.NoColor = true
}

func TestRenderSearch(t *testing.T) {
	resp := models.SearchResponse{
		Query: "alice@example.com",
		Type:  models.SearchTypeEmail,
		Mode:  models.SearchModeExact,
		Results: []models.SearchResult{{
			Email:          "alice@example.com",
			Domain:         "example.com",
			Source:         "Collection1",
			Timestamp:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			HasPassword:    true,
			Severity:       models.SeverityCritical,
			DataQuality:    80,
			AdditionalData: map[string]any{models.AttrDataSource: "hibp"},
		}},
		Breakdown: models.Breakdown{
			Total:      1,
			BySource:   map[string]int{"hibp": 1},
			BySeverity: map[models.Severity]int{models.SeverityCritical: 1},
			Unverified: 1,
		},
		Sources: []models.SourceOutcome{
			{Source: "hibp", Success: true, ResultCount: 1},
			{Source: "dehashed", Error: "timeout"},
		},
	}

	var buf bytes.Buffer
	renderSearch(&buf, resp)
	out := buf.String()

	assert.Contains(t, out, `1 results for "alice@example.com" (EMAIL, EXACT)`)
	assert.Contains(t, out, "dehashed: failed (timeout)")
	assert.Contains(t, out, "[1] CRITICAL alice@example.com @ example.com")
	assert.Contains(t, out, "breach: Collection1 | quality: 80% | seen: 2024-03-01 | password exposed | via hibp")
	assert.Contains(t, out, "verified 0, unverified 1")
}

func TestRenderSearchEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderSearch(&buf, models.SearchResponse{Query: "nobody"})
	assert.Contains(t, buf.String(), "No exposures found.")
}

func TestRenderSources(t *testing.T) {
	infos := []models.SourceInfo{
		{Name: "internal", DisplayName: "Internal index", Enabled: true, Priority: 1, SupportedTypes: []models.SearchType{models.SearchTypeEmail}},
		{Name: "hibp", DisplayName: "HIBP", Enabled: true, Priority: 2},
		{Name: "old", DisplayName: "Old", Priority: 9},
	}
	details := []models.SourceHealthDetail{
		{Name: "internal", Healthy: true},
		{Name: "hibp", LastError: "status 503"},
	}

	var buf bytes.Buffer
	renderSources(&buf, infos, details)
	out := buf.String()

	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "unhealthy")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "last error: status 503")
	assert.Contains(t, out, "EMAIL")
}
