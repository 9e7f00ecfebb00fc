package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/exposurehub/exposure-search/internal/models"
)

var (
	criticalColor = color.New(color.FgRed, color.Bold)
	highColor     = color.New(color.FgRed)
	mediumColor   = color.New(color.FgYellow)
	lowColor      = color.New(color.FgGreen)
	dimColor      = color.New(color.FgHiBlack)
	headerColor   = color.New(color.FgCyan, color.Bold)
)

func severityColor(s models.Severity) *color.Color {
	switch s {
	case models.SeverityCritical:
		return criticalColor
	case models.SeverityHigh:
		return highColor
	case models.SeverityMedium:
		return mediumColor
	default:
		return lowColor
	}
}

func renderSearch(w io.Writer, resp models.SearchResponse) {
	headerColor.Fprintf(w, "%d results for %q (%s, %s) in %s\n",
		len(resp.Results), resp.Query, resp.Type, resp.Mode, resp.Took.Round(time.Millisecond))

	for _, oc := range resp.Sources {
		if oc.Success {
			dimColor.Fprintf(w, "  %s: %d results in %s\n", oc.Source, oc.ResultCount, oc.Duration.Round(time.Millisecond))
		} else {
			dimColor.Fprintf(w, "  %s: failed (%s)\n", oc.Source, oc.Error)
		}
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No exposures found.")
		return
	}
	fmt.Fprintln(w)

	for i, r := range resp.Results {
		label := severityColor(r.Severity).Sprintf("%-8s", r.Severity)
		fmt.Fprintf(w, "[%d] %s %s", i+1, label, r.Email)
		if r.Domain != "" {
			fmt.Fprintf(w, " @ %s", r.Domain)
		}
		fmt.Fprintln(w)

		details := []string{"breach: " + r.Source, fmt.Sprintf("quality: %d%%", r.DataQuality)}
		if !r.Timestamp.IsZero() {
			details = append(details, "seen: "+r.Timestamp.UTC().Format("2006-01-02"))
		}
		if r.HasPassword {
			details = append(details, "password exposed")
		}
		if r.IsVerified {
			details = append(details, "verified")
		}
		if name := r.DataSource(); name != "" {
			details = append(details, "via "+name)
		}
		dimColor.Fprintf(w, "    %s\n", strings.Join(details, " | "))
	}

	b := resp.Breakdown
	fmt.Fprintln(w)
	headerColor.Fprintln(w, "Breakdown")
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if n := b.BySeverity[sev]; n > 0 {
			fmt.Fprintf(w, "  %s %d\n", severityColor(sev).Sprintf("%-8s", sev), n)
		}
	}
	names := make([]string, 0, len(b.BySource))
	for name := range b.BySource {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %d\n", name, b.BySource[name])
	}
	fmt.Fprintf(w, "  verified %d, unverified %d\n", b.Verified, b.Unverified)
}

func renderSources(w io.Writer, infos []models.SourceInfo, details []models.SourceHealthDetail) {
	byName := make(map[string]models.SourceHealthDetail, len(details))
	for _, d := range details {
		byName[d.Name] = d
	}

	headerColor.Fprintf(w, "%-12s %-24s %-8s %-10s %s\n", "NAME", "DISPLAY NAME", "PRIORITY", "STATUS", "TYPES")
	for _, info := range infos {
		state := lowColor.Sprintf("%-10s", "healthy")
		switch {
		case !info.Enabled:
			state = dimColor.Sprintf("%-10s", "disabled")
		case !byName[info.Name].Healthy:
			state = highColor.Sprintf("%-10s", "unhealthy")
		}
		types := make([]string, 0, len(info.SupportedTypes))
		for _, t := range info.SupportedTypes {
			types = append(types, string(t))
		}
		fmt.Fprintf(w, "%-12s %-24s %-8d %s %s\n", info.Name, info.DisplayName, info.Priority, state, strings.Join(types, ","))
		if d, ok := byName[info.Name]; ok && d.LastError != "" {
			dimColor.Fprintf(w, "    last error: %s\n", d.LastError)
		}
	}
}
