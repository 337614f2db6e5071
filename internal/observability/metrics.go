package observability

import (
	"sync"
	"time"
)

// StepSnapshot summarizes collaborator calls made for one saga step.
type StepSnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	Retries       int64   `json:"retries"`
	InFlight      int64   `json:"in_flight"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Snapshot is the JSON shape served on the metrics endpoint.
type Snapshot struct {
	UptimeSec            int64                   `json:"uptime_sec"`
	SagasStarted         int64                   `json:"sagas_started"`
	SagasCompleted       int64                   `json:"sagas_completed"`
	SagasCompensated     int64                   `json:"sagas_compensated"`
	SagaTimeouts         int64                   `json:"saga_timeouts"`
	CompensationFailures int64                   `json:"compensation_failures"`
	EvictedSagas         int64                   `json:"evicted_sagas"`
	Steps                map[string]StepSnapshot `json:"steps"`
}

type stepStats struct {
	count        int64
	errors       int64
	retries      int64
	inFlight     int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Metrics aggregates saga counters and per-step call latencies. All methods
// are safe on a nil receiver so wiring metrics stays optional.
type Metrics struct {
	mu                   sync.Mutex
	start                time.Time
	steps                map[string]*stepStats
	sagasStarted         int64
	sagasCompleted       int64
	sagasCompensated     int64
	sagaTimeouts         int64
	compensationFailures int64
	evictedSagas         int64
}

// CallSpan measures one collaborator call attempt window within a step.
type CallSpan struct {
	metrics *Metrics
	step    string
	start   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		start: time.Now(),
		steps: make(map[string]*stepStats),
	}
}

// StartStep opens a latency span for a step's collaborator call.
func (m *Metrics) StartStep(step string) *CallSpan {
	if m == nil {
		return &CallSpan{}
	}
	m.mu.Lock()
	stats := m.ensureStep(step)
	stats.inFlight++
	m.mu.Unlock()
	return &CallSpan{
		metrics: m,
		step:    step,
		start:   time.Now(),
	}
}

func (s *CallSpan) End(err error) {
	if s == nil || s.metrics == nil {
		return
	}
	dur := time.Since(s.start)
	s.metrics.finish(s.step, dur, err != nil)
}

func (m *Metrics) AddRetry(step string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ensureStep(step).retries++
	m.mu.Unlock()
}

func (m *Metrics) SagaStarted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.sagasStarted++
	m.mu.Unlock()
}

func (m *Metrics) SagaCompleted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.sagasCompleted++
	m.mu.Unlock()
}

// SagaCompensated counts a compensated saga; timedOut marks sweeper-forced ones.
func (m *Metrics) SagaCompensated(timedOut bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.sagasCompensated++
	if timedOut {
		m.sagaTimeouts++
	}
	m.mu.Unlock()
}

func (m *Metrics) CompensationFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.compensationFailures++
	m.mu.Unlock()
}

func (m *Metrics) AddEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.evictedSagas += int64(n)
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSec:            int64(time.Since(m.start).Seconds()),
		SagasStarted:         m.sagasStarted,
		SagasCompleted:       m.sagasCompleted,
		SagasCompensated:     m.sagasCompensated,
		SagaTimeouts:         m.sagaTimeouts,
		CompensationFailures: m.compensationFailures,
		EvictedSagas:         m.evictedSagas,
		Steps:                make(map[string]StepSnapshot),
	}

	for step, stats := range m.steps {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Steps[step] = StepSnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			Retries:       stats.retries,
			InFlight:      stats.inFlight,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
	}

	return snap
}

func (m *Metrics) ensureStep(step string) *stepStats {
	stats, ok := m.steps[step]
	if !ok {
		stats = &stepStats{}
		m.steps[step] = stats
	}
	return stats
}

func (m *Metrics) finish(step string, dur time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	stats := m.ensureStep(step)
	stats.inFlight--
	stats.count++
	if failed {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
	m.mu.Unlock()
}
