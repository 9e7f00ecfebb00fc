package scoring

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/exposurehub/exposure-search/internal/models"
)

// Built-in rule sets used when no rule pack is configured.
var (
	DefaultHighValueDomains = []string{
		"paypal.com", "chase.com", "bankofamerica.com", "wellsfargo.com",
		"coinbase.com", "apple.com", "microsoft.com", "google.com", "amazon.com",
	}
	DefaultCriticalCategories = []string{"financial", "banking", "payment"}
	DefaultElevatedCategories = []string{"healthcare", "government", "education"}
)

// trackedFields counts towards data quality: email, password, domain, name, categories.
const trackedFields = 5

// RuleFile is the YAML root structure of a severity rule pack.
type RuleFile struct {
	HighValueDomains   []string `yaml:"high_value_domains"`
	CriticalCategories []string `yaml:"critical_categories"`
	ElevatedCategories []string `yaml:"elevated_categories"`
}

// Scorer computes severity and data quality for breach records.
type Scorer struct {
	highValue map[string]struct{}
	critical  map[string]struct{}
	elevated  map[string]struct{}
}

// Record is the subset of a breach record the heuristics look at.
type Record struct {
	Email      string
	Password   string
	Domain     string
	Name       string
	Categories []string
}

// NewDefaultScorer returns a Scorer using the built-in sets.
func NewDefaultScorer() *Scorer {
	return newScorer(RuleFile{})
}

// LoadScorer reads a rule pack from path. An empty path or missing file yields
// the built-in rules; sections left empty in the file also keep their defaults.
func LoadScorer(path string, logger *slog.Logger) (*Scorer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return NewDefaultScorer(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("severity rule pack not found, using defaults", slog.String("path", path))
			return NewDefaultScorer(), nil
		}
		return nil, err
	}
	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return newScorer(file), nil
}

func newScorer(file RuleFile) *Scorer {
	pick := func(values, fallback []string) map[string]struct{} {
		if len(values) == 0 {
			values = fallback
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			if v = normalize(v); v != "" {
				set[v] = struct{}{}
			}
		}
		return set
	}
	return &Scorer{
		highValue: pick(file.HighValueDomains, DefaultHighValueDomains),
		critical:  pick(file.CriticalCategories, DefaultCriticalCategories),
		elevated:  pick(file.ElevatedCategories, DefaultElevatedCategories),
	}
}

// Severity starts at MEDIUM, rises to HIGH for a high-value email domain or an
// elevated category, and to CRITICAL for a critical category.
func (s *Scorer) Severity(rec Record) models.Severity {
	severity := models.SeverityMedium
	if _, ok := s.highValue[emailDomain(rec.Email)]; ok {
		severity = models.SeverityHigh
	}
	for _, c := range rec.Categories {
		c = normalize(c)
		if _, ok := s.critical[c]; ok {
			return models.SeverityCritical
		}
		if _, ok := s.elevated[c]; ok {
			severity = models.SeverityHigh
		}
	}
	return severity
}

// Quality is the rounded percentage of tracked fields present in rec.
func (s *Scorer) Quality(rec Record) int {
	present := 0
	for _, v := range []string{rec.Email, rec.Password, rec.Domain, rec.Name} {
		if strings.TrimSpace(v) != "" {
			present++
		}
	}
	if len(rec.Categories) > 0 {
		present++
	}
	return int(math.Round(float64(present) / trackedFields * 100))
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return normalize(email[at+1:])
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
