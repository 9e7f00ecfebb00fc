package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/exposurehub/exposure-search/internal/metrics"
	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/sources"
)

const (
	DefaultPerSourceTimeout = 10 * time.Second
	DefaultGlobalTimeout    = 15 * time.Second
	DefaultWorkers          = 8
)

// SourceSet is the registry the orchestrator reads from. It never mutates sources.
type SourceSet interface {
	All() []sources.Source
	Get(name string) (sources.Source, bool)
}

// Recorder receives one report per completed per-source call.
type Recorder interface {
	RecordSearchOperation(name string, duration time.Duration, success bool, resultCount int)
}

// Config tunes the fan-out.
type Config struct {
	PerSourceTimeout time.Duration
	GlobalTimeout    time.Duration
	Workers          int
}

// Outcome is the record of one per-source call.
type Outcome struct {
	Source   string
	Priority int
	Results  []models.SearchResult
	Success  bool
	Error    string
	Duration time.Duration
}

// Orchestrator fans a search out to every eligible source and merges the answers.
type Orchestrator struct {
	sources  SourceSet
	recorder Recorder
	pool     *semaphore.Weighted
	cfg      Config
	logger   *slog.Logger
}

// New constructs an Orchestrator. recorder and logger may be nil.
func New(set SourceSet, recorder Recorder, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PerSourceTimeout <= 0 {
		cfg.PerSourceTimeout = DefaultPerSourceTimeout
	}
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = DefaultGlobalTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Orchestrator{
		sources:  set,
		recorder: recorder,
		pool:     semaphore.NewWeighted(int64(cfg.Workers)),
		cfg:      cfg,
		logger:   logger,
	}
}

// SearchAll queries every enabled, healthy source that supports the request
// type and returns the merged, deduplicated, priority-ordered list.
func (o *Orchestrator) SearchAll(ctx context.Context, req models.SearchRequest, caller models.Caller) []models.SearchResult {
	results, _ := o.Fanout(ctx, req, caller)
	return results
}

// Fanout is SearchAll that also returns the per-source outcomes.
func (o *Orchestrator) Fanout(ctx context.Context, req models.SearchRequest, caller models.Caller) ([]models.SearchResult, []Outcome) {
	startedAt := time.Now()
	defer func() { metrics.ObserveFanOut(time.Since(startedAt)) }()

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	eligible := o.eligible(runCtx, req.Type)
	if len(eligible) == 0 {
		o.logger.Debug("no eligible sources", slog.String("type", string(req.Type)))
		return []models.SearchResult{}, nil
	}

	type indexed struct {
		index   int
		outcome Outcome
	}
	done := make(chan indexed, len(eligible))
	for i, src := range eligible {
		go func(index int, current sources.Source) {
			done <- indexed{index: index, outcome: o.runPooled(runCtx, current, req, caller)}
		}(i, src)
	}

	outcomes := make([]Outcome, len(eligible))
	received := make([]bool, len(eligible))
	pending := len(eligible)
wait:
	for pending > 0 {
		select {
		case r := <-done:
			outcomes[r.index] = r.outcome
			received[r.index] = true
			pending--
		case <-runCtx.Done():
			break wait
		}
	}
	for i, ok := range received {
		if !ok {
			outcomes[i] = Outcome{
				Source:   eligible[i].Name(),
				Priority: eligible[i].Priority(),
				Error:    "global timeout",
				Duration: time.Since(startedAt),
			}
		}
	}

	o.report(outcomes)
	return merge(outcomes), outcomes
}

// SearchSource calls one named source directly. Unknown or disabled sources yield an empty list.
func (o *Orchestrator) SearchSource(ctx context.Context, name string, req models.SearchRequest, caller models.Caller) []models.SearchResult {
	src, ok := o.sources.Get(name)
	if !ok || !src.Enabled() {
		o.logger.Debug("source not available", slog.String("source", name))
		return []models.SearchResult{}
	}
	outcome := o.run(ctx, src, req, caller)
	o.report([]Outcome{outcome})
	return merge([]Outcome{outcome})
}

// Sources describes every registered source, probing health for enabled ones.
func (o *Orchestrator) Sources(ctx context.Context) []models.SourceInfo {
	all := o.sources.All()
	infos := make([]models.SourceInfo, 0, len(all))
	for _, s := range all {
		infos = append(infos, sources.Info(ctx, s))
	}
	return infos
}

// eligible health-checks the candidate sources concurrently. A source whose
// check has not answered when ctx ends is skipped.
func (o *Orchestrator) eligible(ctx context.Context, t models.SearchType) []sources.Source {
	var candidates []sources.Source
	for _, s := range o.sources.All() {
		if s.Enabled() && s.SupportsSearchType(t) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	type check struct {
		index   int
		healthy bool
	}
	done := make(chan check, len(candidates))
	for i, src := range candidates {
		go func(index int, current sources.Source) {
			healthy := false
			defer func() {
				if r := recover(); r != nil {
					o.logger.Warn("source health check panicked", slog.String("source", current.Name()), slog.Any("panic", r))
				}
				done <- check{index: index, healthy: healthy}
			}()
			healthy = current.Healthy(ctx)
		}(i, src)
	}

	healthy := make([]bool, len(candidates))
	answered := make([]bool, len(candidates))
	pending := len(candidates)
wait:
	for pending > 0 {
		select {
		case c := <-done:
			healthy[c.index] = c.healthy
			answered[c.index] = true
			pending--
		case <-ctx.Done():
			break wait
		}
	}

	var out []sources.Source
	for i, s := range candidates {
		switch {
		case !answered[i]:
			o.logger.Warn("health check did not finish in time", slog.String("source", s.Name()))
		case !healthy[i]:
			o.logger.Debug("skipping unhealthy source", slog.String("source", s.Name()))
		default:
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

func (o *Orchestrator) runPooled(ctx context.Context, src sources.Source, req models.SearchRequest, caller models.Caller) Outcome {
	if err := o.pool.Acquire(ctx, 1); err != nil {
		return Outcome{Source: src.Name(), Priority: src.Priority(), Error: "cancelled before start"}
	}
	defer o.pool.Release(1)
	return o.run(ctx, src, req, caller)
}

// run calls src under the per-source timeout. A source that ignores its
// context still times out; its late answer is dropped.
func (o *Orchestrator) run(ctx context.Context, src sources.Source, req models.SearchRequest, caller models.Caller) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.PerSourceTimeout)
	defer cancel()

	outcome := Outcome{Source: src.Name(), Priority: src.Priority()}
	startedAt := time.Now()

	type answer struct {
		results []models.SearchResult
		err     error
	}
	ch := make(chan answer, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- answer{err: fmt.Errorf("source panicked: %v", r)}
			}
		}()
		ch <- answer{results: src.Search(callCtx, req, caller)}
	}()

	select {
	case a := <-ch:
		outcome.Duration = time.Since(startedAt)
		if a.err != nil {
			outcome.Error = a.err.Error()
			o.logger.Warn("source search failed", slog.String("source", src.Name()), slog.Any("error", a.err))
			return outcome
		}
		outcome.Results = a.results
		outcome.Success = true
	case <-callCtx.Done():
		outcome.Duration = time.Since(startedAt)
		outcome.Error = "timeout"
		o.logger.Warn("source search timed out",
			slog.String("source", src.Name()),
			slog.Duration("elapsed", outcome.Duration),
		)
	}
	return outcome
}

func (o *Orchestrator) report(outcomes []Outcome) {
	for _, oc := range outcomes {
		metrics.ObserveSourceSearch(oc.Source, oc.Duration, oc.Success)
		if o.recorder != nil {
			o.recorder.RecordSearchOperation(oc.Source, oc.Duration, oc.Success, len(oc.Results))
		}
	}
}

// ranked carries a result together with the priority of the source that produced it.
type ranked struct {
	result   models.SearchResult
	priority int
}

func merge(outcomes []Outcome) []models.SearchResult {
	var candidates []ranked
	for _, oc := range outcomes {
		if !oc.Success {
			continue
		}
		for _, r := range oc.Results {
			candidates = append(candidates, ranked{result: r, priority: oc.Priority})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority < candidates[j].priority })
	candidates = dedupe(candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		return a.result.Timestamp.After(b.result.Timestamp)
	})

	out := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.result)
	}
	return out
}

// dedupe keeps the first occurrence of each (email, source, domain) key.
// Callers sort by priority first so the preferred source's copy survives.
func dedupe(items []ranked) []ranked {
	seen := make(map[string]struct{}, len(items))
	out := make([]ranked, 0, len(items))
	for _, it := range items {
		key := dedupeKey(it.result)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

func dedupeKey(r models.SearchResult) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return norm(r.Email) + "|" + norm(r.Source) + "|" + norm(r.Domain)
}

// Summarize counts results by source, severity and verification.
func Summarize(results []models.SearchResult) models.Breakdown {
	b := models.Breakdown{
		Total:      len(results),
		BySource:   make(map[string]int),
		BySeverity: make(map[models.Severity]int),
	}
	for _, r := range results {
		name := r.DataSource()
		if name == "" {
			name = "unknown"
		}
		b.BySource[name]++
		b.BySeverity[r.Severity]++
		if r.IsVerified {
			b.Verified++
		} else {
			b.Unverified++
		}
	}
	return b
}
