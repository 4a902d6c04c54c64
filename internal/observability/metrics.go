package observability

import "sync"

// Metrics is a pluggable sink for runtime counters, gauges, and latency
// histograms, for embedders that bring their own collector instead of the
// OTLP pipeline. The poller feeds it alongside its primary instruments.
type Metrics interface {
	IncCounter(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}

var defaultMetrics Metrics = noopMetrics{}

// SetMetrics installs the global metrics sink. Nil restores the no-op sink.
func SetMetrics(metrics Metrics) {
	if metrics == nil {
		defaultMetrics = noopMetrics{}
		return
	}
	defaultMetrics = metrics
}

// Telemetry returns the installed metrics sink.
func Telemetry() Metrics {
	return defaultMetrics
}

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, map[string]string)       {}
func (noopMetrics) ObserveHistogram(string, float64, map[string]string) {}
func (noopMetrics) SetGauge(string, float64, map[string]string)         {}

// PollMetricsSnapshot captures poller-focused runtime counters.
type PollMetricsSnapshot struct {
	PollsIssued    map[string]int `json:"polls_issued"`
	PollsSkipped   map[string]int `json:"polls_skipped"`
	TerminalsSeen  map[string]int `json:"terminals_seen"`
	SavesAttempted int            `json:"saves_attempted"`
	SaveConflicts  int            `json:"save_conflicts"`
}

// RuntimeMetrics accumulates poller metrics in-memory for periodic export.
type RuntimeMetrics struct {
	mu   sync.Mutex
	poll PollMetricsSnapshot
}

// NewRuntimeMetrics constructs a metrics accumulator with empty maps.
func NewRuntimeMetrics() *RuntimeMetrics {
	metrics := new(RuntimeMetrics)
	metrics.poll = PollMetricsSnapshot{
		PollsIssued:    make(map[string]int),
		PollsSkipped:   make(map[string]int),
		TerminalsSeen:  make(map[string]int),
		SavesAttempted: 0,
		SaveConflicts:  0,
	}
	return metrics
}

// RecordPollIssued counts a poll issued while the order held the given status.
func (m *RuntimeMetrics) RecordPollIssued(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poll.PollsIssued[status]++
}

// RecordPollSkipped counts a poll suppressed by in-flight or interval gating.
func (m *RuntimeMetrics) RecordPollSkipped(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poll.PollsSkipped[status]++
}

// RecordTerminal counts arrival at a terminal status.
func (m *RuntimeMetrics) RecordTerminal(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poll.TerminalsSeen[status]++
}

// RecordSaveAttempt counts a persistence insert attempt, conflicted or not.
func (m *RuntimeMetrics) RecordSaveAttempt(conflict bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poll.SavesAttempted++
	if conflict {
		m.poll.SaveConflicts++
	}
}

// Publish flushes the accumulated tallies to sink as gauges. The poller
// calls this once an order settles so embedder-provided sinks see the final
// counts without polling Snapshot themselves.
func (m *RuntimeMetrics) Publish(sink Metrics) {
	if sink == nil {
		return
	}
	snap := m.Snapshot()
	for status, count := range snap.PollsIssued {
		sink.SetGauge("bridge_polls_issued", float64(count), map[string]string{"status": status})
	}
	for status, count := range snap.PollsSkipped {
		sink.SetGauge("bridge_polls_skipped", float64(count), map[string]string{"status": status})
	}
	for status, count := range snap.TerminalsSeen {
		sink.SetGauge("bridge_terminals_seen", float64(count), map[string]string{"status": status})
	}
	sink.SetGauge("bridge_saves_attempted", float64(snap.SavesAttempted), nil)
	sink.SetGauge("bridge_save_conflicts", float64(snap.SaveConflicts), nil)
}

// Snapshot copies the accumulated counters.
func (m *RuntimeMetrics) Snapshot() PollMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := PollMetricsSnapshot{
		PollsIssued:    make(map[string]int, len(m.poll.PollsIssued)),
		PollsSkipped:   make(map[string]int, len(m.poll.PollsSkipped)),
		TerminalsSeen:  make(map[string]int, len(m.poll.TerminalsSeen)),
		SavesAttempted: m.poll.SavesAttempted,
		SaveConflicts:  m.poll.SaveConflicts,
	}
	for k, v := range m.poll.PollsIssued {
		out.PollsIssued[k] = v
	}
	for k, v := range m.poll.PollsSkipped {
		out.PollsSkipped[k] = v
	}
	for k, v := range m.poll.TerminalsSeen {
		out.TerminalsSeen[k] = v
	}
	return out
}
