package build

import (
	"sort"
	"sync"
	"time"
)

// Metrics tracks task runs.
type Metrics struct {
	totalRuns      int64
	successfulRuns int64
	failedRuns     int64
	totalDuration  time.Duration
	tasks          map[string]*TaskStats
	mutex          sync.RWMutex
}

// TaskStats holds the counters for one task name.
type TaskStats struct {
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	LastDuration time.Duration `json:"last_duration"`
	LastRun      time.Time     `json:"last_run"`
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalRuns       int64                `json:"total_runs"`
	SuccessfulRuns  int64                `json:"successful_runs"`
	FailedRuns      int64                `json:"failed_runs"`
	AverageDuration time.Duration        `json:"average_duration"`
	TotalDuration   time.Duration        `json:"total_duration"`
	Tasks           map[string]TaskStats `json:"tasks"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{tasks: make(map[string]*TaskStats)}
}

// Record records a task result in the metrics
func (m *Metrics) Record(result Result) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRuns++
	m.totalDuration += result.Duration

	stats, ok := m.tasks[result.Task]
	if !ok {
		stats = &TaskStats{}
		m.tasks[result.Task] = stats
	}
	stats.Runs++
	stats.LastDuration = result.Duration
	stats.LastRun = result.Started

	if result.Err != nil {
		m.failedRuns++
		stats.Failures++
	} else {
		m.successfulRuns++
	}
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := MetricsSnapshot{
		TotalRuns:      m.totalRuns,
		SuccessfulRuns: m.successfulRuns,
		FailedRuns:     m.failedRuns,
		TotalDuration:  m.totalDuration,
		Tasks:          make(map[string]TaskStats, len(m.tasks)),
	}
	if m.totalRuns > 0 {
		snap.AverageDuration = m.totalDuration / time.Duration(m.totalRuns)
	}
	for name, stats := range m.tasks {
		snap.Tasks[name] = *stats
	}
	return snap
}

// TaskNames returns the names of every recorded task, sorted.
func (s MetricsSnapshot) TaskNames() []string {
	names := make([]string, 0, len(s.Tasks))
	for name := range s.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRuns = 0
	m.successfulRuns = 0
	m.failedRuns = 0
	m.totalDuration = 0
	m.tasks = make(map[string]*TaskStats)
}

// SuccessRate returns the success rate as a percentage
func (m *Metrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.totalRuns == 0 {
		return 0.0
	}

	return float64(m.successfulRuns) / float64(m.totalRuns) * 100.0
}
