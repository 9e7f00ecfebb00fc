package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/utils"
)

func TestSeverityHeuristics(t *testing.T) {
	s := NewDefaultScorer()

	cases := []struct {
		name string
		rec  Record
		want models.Severity
	}{
		{"base", Record{Email: "a@example.org"}, models.SeverityMedium},
		{"high value domain", Record{Email: "a@PayPal.com"}, models.SeverityHigh},
		{"elevated category", Record{Email: "a@example.org", Categories: []string{"Healthcare"}}, models.SeverityHigh},
		{"critical category", Record{Email: "a@example.org", Categories: []string{"gaming", "banking"}}, models.SeverityCritical},
		{"critical beats elevated", Record{Email: "a@example.org", Categories: []string{"education", "payment"}}, models.SeverityCritical},
		{"critical beats domain", Record{Email: "a@chase.com", Categories: []string{"financial"}}, models.SeverityCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Severity(tc.rec))
		})
	}
}

func TestQualityRoundsToPercent(t *testing.T) {
	s := NewDefaultScorer()
	assert.Equal(t, 20, s.Quality(Record{Email: "a@b.c"}))
	assert.Equal(t, 60, s.Quality(Record{Email: "a@b.c", Password: "x", Domain: "b.c"}))
	assert.Equal(t, 100, s.Quality(Record{Email: "a@b.c", Password: "x", Domain: "b.c", Name: "n", Categories: []string{"x"}}))
	assert.Equal(t, 0, s.Quality(Record{Name: "  "}))
}

func TestLoadScorerFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "severity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`high_value_domains: ["corp.example"]
critical_categories: ["crypto"]
`), 0o644))

	s, err := LoadScorer(path, utils.DiscardLogger())
	require.NoError(t, err)

	assert.Equal(t, models.SeverityHigh, s.Severity(Record{Email: "x@corp.example"}))
	assert.Equal(t, models.SeverityMedium, s.Severity(Record{Email: "x@paypal.com"}))
	assert.Equal(t, models.SeverityCritical, s.Severity(Record{Email: "x@a.b", Categories: []string{"crypto"}}))
	assert.Equal(t, models.SeverityHigh, s.Severity(Record{Email: "x@a.b", Categories: []string{"government"}}))
}

func TestLoadScorerMissingFile(t *testing.T) {
	s, err := LoadScorer(filepath.Join(t.TempDir(), "missing.yaml"), utils.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, s.Severity(Record{Email: "x@google.com"}))
}
