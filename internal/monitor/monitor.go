package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/exposurehub/exposure-search/internal/metrics"
	"github.com/exposurehub/exposure-search/internal/models"
	"github.com/exposurehub/exposure-search/internal/sources"
	"github.com/exposurehub/exposure-search/internal/utils"
)

const (
	DefaultProbeInterval = 2 * time.Minute
	DefaultProbeTimeout  = 10 * time.Second
)

// SourceLister yields the sources to watch.
type SourceLister interface {
	All() []sources.Source
}

// Config tunes the Monitor.
type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	WindowSize    int
}

// Monitor tracks per-source health and search performance.
type Monitor struct {
	sources SourceLister
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.RWMutex
	states  map[string]*sourceState
}

type sourceState struct {
	mu sync.Mutex

	healthy        bool
	lastCheck      time.Time
	lastProbe      time.Duration
	checkCount     int64
	healthyCount   int64
	unhealthyCount int64
	lastError      string

	totalRequests int64
	successful    int64
	failed        int64
	totalResults  int64
	totalResponse time.Duration
	window        *utils.LatencyWindow
}

// New creates a Monitor over set.
func New(set SourceLister, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = utils.DefaultWindowSize
	}
	return &Monitor{
		sources: set,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		states:  make(map[string]*sourceState),
	}
}

func (m *Monitor) state(name string) *sourceState {
	m.mu.RLock()
	st, ok := m.states[name]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok = m.states[name]; ok {
		return st
	}
	st = &sourceState{window: utils.NewLatencyWindow(m.cfg.WindowSize)}
	m.states[name] = st
	return st
}

// RecordSearchOperation accounts one completed search against name.
func (m *Monitor) RecordSearchOperation(name string, duration time.Duration, success bool, resultCount int) {
	if duration < 0 {
		duration = 0
	}
	st := m.state(name)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.totalRequests++
	if success {
		st.successful++
	} else {
		st.failed++
	}
	st.totalResults += int64(resultCount)
	st.totalResponse += duration
	st.window.Observe(duration)
}

// Run probes every source immediately and then every ProbeInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.ProbeAll(ctx)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

// ProbeAll checks every enabled source concurrently.
func (m *Monitor) ProbeAll(ctx context.Context) {
	var g errgroup.Group
	for _, src := range m.sources.All() {
		if !src.Enabled() {
			continue
		}
		g.Go(func() error {
			m.probe(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Monitor) probe(ctx context.Context, src sources.Source) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	startedAt := time.Now()
	healthy := src.Healthy(probeCtx)
	elapsed := time.Since(startedAt)

	lastError := ""
	if reporter, ok := src.(interface{ LastError() error }); ok {
		if err := reporter.LastError(); err != nil {
			lastError = err.Error()
		}
	}
	if !healthy && lastError == "" {
		lastError = "source reported unhealthy"
	}

	st := m.state(src.Name())
	st.mu.Lock()
	st.healthy = healthy
	st.lastCheck = m.now()
	st.lastProbe = elapsed
	st.checkCount++
	if healthy {
		st.healthyCount++
		st.lastError = ""
	} else {
		st.unhealthyCount++
		st.lastError = lastError
	}
	st.mu.Unlock()

	metrics.SetSourceHealthy(src.Name(), healthy)
	if !healthy {
		m.logger.Warn("source unhealthy",
			slog.String("source", src.Name()),
			slog.Duration("probe", elapsed),
			slog.String("error", lastError),
		)
	}
}

// SourceDetail returns the snapshot for one registered source.
func (m *Monitor) SourceDetail(name string) (models.SourceHealthDetail, bool) {
	for _, src := range m.sources.All() {
		if src.Name() == name {
			return m.detail(src), true
		}
	}
	return models.SourceHealthDetail{}, false
}

// Details returns a snapshot for every registered source, ordered by name.
func (m *Monitor) Details() []models.SourceHealthDetail {
	all := m.sources.All()
	out := make([]models.SourceHealthDetail, 0, len(all))
	for _, src := range all {
		out = append(out, m.detail(src))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Monitor) detail(src sources.Source) models.SourceHealthDetail {
	st := m.state(src.Name())
	stats := st.window.Stats()

	st.mu.Lock()
	defer st.mu.Unlock()
	d := models.SourceHealthDetail{
		Name:               src.Name(),
		DisplayName:        src.DisplayName(),
		Enabled:            src.Enabled(),
		Healthy:            src.Enabled() && st.checkCount > 0 && st.healthy,
		LastCheckTime:      st.lastCheck,
		LastProbe:          st.lastProbe,
		CheckCount:         st.checkCount,
		HealthyCount:       st.healthyCount,
		UnhealthyCount:     st.unhealthyCount,
		LastError:          st.lastError,
		TotalRequests:      st.totalRequests,
		SuccessfulRequests: st.successful,
		FailedRequests:     st.failed,
		TotalResults:       st.totalResults,
		TotalResponseTime:  st.totalResponse,
		MinResponse:        stats.Min,
		MedianResponse:     stats.Median,
		P95Response:        stats.P95,
		MaxResponse:        stats.Max,
		SuccessRate:        rate(st.successful, st.totalRequests),
	}
	if st.totalRequests > 0 {
		d.AverageResponse = st.totalResponse / time.Duration(st.totalRequests)
	}
	return d
}

// Summary aggregates every source. A source counts as healthy only once a
// probe has found it so.
func (m *Monitor) Summary() models.SystemSummary {
	s := models.SystemSummary{GeneratedAt: m.now().UTC()}
	for _, src := range m.sources.All() {
		s.TotalSources++
		if src.Enabled() {
			s.EnabledSources++
		}
		st := m.state(src.Name())
		st.mu.Lock()
		if src.Enabled() && st.checkCount > 0 && st.healthy {
			s.HealthySources++
		}
		s.TotalRequests += st.totalRequests
		s.SuccessfulRequests += st.successful
		st.mu.Unlock()
	}
	s.SuccessRate = rate(s.SuccessfulRequests, s.TotalRequests)
	return s
}

// rate is a percentage; zero when there were no requests.
func rate(ok, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total) * 100
}
