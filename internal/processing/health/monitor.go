package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/reviewer/internal/core/domain"
)

// CheckFunc probes a dependency such as the database or Redis.
type CheckFunc func(ctx context.Context) error

const (
	// checkCacheTTL limits how often dependencies are probed.
	checkCacheTTL = 10 * time.Second
	// storeErrCritical is the failure streak at which the store is critical.
	storeErrCritical = 3
)

// Monitor aggregates health status from the scheduler and dependencies.
type Monitor struct {
	interval time.Duration
	started  time.Time
	checks   map[string]CheckFunc
	now      func() time.Time

	mu           sync.RWMutex
	lastCycle    *CycleSummary
	lastSuccess  time.Time
	lastProgress time.Time
	running      bool
	cyclesRun    int
	storeErrs    int
	totalCost    float64

	lastCheck  time.Time
	components map[string]ComponentHealth
}

// NewMonitor creates a monitor for a scheduler running every interval.
func NewMonitor(interval time.Duration) *Monitor {
	return &Monitor{
		interval:   interval,
		started:    time.Now(),
		checks:     make(map[string]CheckFunc),
		now:        time.Now,
		components: make(map[string]ComponentHealth),
	}
}

// AddCheck registers a dependency probe. Not safe after serving starts.
func (m *Monitor) AddCheck(name string, fn CheckFunc) {
	m.checks[name] = fn
}

// CycleStarted marks a cycle in progress. A running cycle is not stale
// however long it takes.
func (m *Monitor) CycleStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	m.lastProgress = m.now()
}

// CycleSkipped records a cycle skipped because another instance holds the
// lock. A standby instance is live, not stalled.
func (m *Monitor) CycleSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProgress = m.now()
}

// CycleFinished records a finished cycle.
func (m *Monitor) CycleFinished(c *domain.Cycle, persistFailures int) {
	succeeded, failed, cost := c.Summary()
	summary := &CycleSummary{
		ID:              c.ID,
		StartedAt:       c.StartedAt,
		Duration:        c.Duration(),
		Fetched:         len(c.Batch),
		Succeeded:       succeeded,
		Failed:          failed,
		PersistFailures: persistFailures,
		Complete:        c.Complete(),
		Cost:            cost,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCycle = summary
	m.running = false
	m.cyclesRun++
	m.totalCost += cost
	if persistFailures == 0 {
		m.storeErrs = 0
		m.lastSuccess = m.now()
	} else {
		m.storeErrs++
	}
}

// StoreFailed records a fetch failure that aborted a cycle.
func (m *Monitor) StoreFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.storeErrs++
}

// probe runs the dependency checks, reusing the last results within
// checkCacheTTL. Checks run without holding mu.
func (m *Monitor) probe(ctx context.Context) map[string]ComponentHealth {
	m.mu.RLock()
	if m.now().Sub(m.lastCheck) < checkCacheTTL && len(m.components) == len(m.checks) {
		cached := m.components
		m.mu.RUnlock()
		return cached
	}
	m.mu.RUnlock()

	components := make(map[string]ComponentHealth, len(m.checks))
	for name, check := range m.checks {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			components[name] = ComponentHealth{Status: StatusCritical, Error: err.Error()}
		} else {
			components[name] = ComponentHealth{Status: StatusHealthy}
		}
	}

	m.mu.Lock()
	m.lastCheck = m.now()
	m.components = components
	m.mu.Unlock()
	return components
}

// CheckHealth builds the current report.
//
// Critical: a dependency probe fails, the store has failed storeErrCritical
// times in a row, or for three intervals no cycle has succeeded and none
// has started or been skipped for the lock.
// Degraded: the last cycle had failed items, lost outcomes or store errors.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	components := m.probe(ctx)

	m.mu.RLock()
	defer m.mu.RUnlock()

	report := HealthReport{
		SystemStatus:         StatusHealthy,
		LastSuccess:          m.lastSuccess,
		CyclesRun:            m.cyclesRun,
		ConsecutiveStoreErrs: m.storeErrs,
		TotalCost:            m.totalCost,
		Components:           components,
	}
	if m.lastCycle != nil {
		c := *m.lastCycle
		report.LastCycle = &c
	}

	for _, comp := range components {
		report.SystemStatus = worse(report.SystemStatus, comp.Status)
	}

	if m.storeErrs >= storeErrCritical {
		report.SystemStatus = worse(report.SystemStatus, StatusCritical)
	} else if m.storeErrs > 0 {
		report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
	}

	since := m.started
	if m.lastSuccess.After(since) {
		since = m.lastSuccess
	}
	if m.lastProgress.After(since) {
		since = m.lastProgress
	}
	if m.interval > 0 && !m.running && m.now().Sub(since) > 3*m.interval {
		report.SystemStatus = worse(report.SystemStatus, StatusCritical)
	}

	if c := m.lastCycle; c != nil && (c.Failed > 0 || !c.Complete) {
		report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
	}
	return report
}
