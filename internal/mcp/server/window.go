package server

import (
	"slices"
	"sync"
)

// defaultWindowSize is the number of recent calls kept per tool.
const defaultWindowSize = 100

// sample is one recorded tool call.
type sample struct {
	ms     int64
	failed bool
}

// latencyWindow keeps the last N call latencies of a tool in a ring buffer.
// All methods are safe for concurrent use.
type latencyWindow struct {
	mu      sync.Mutex
	samples []sample
	pos     int   // next write position
	total   int64 // calls ever recorded
	failed  int64 // failed calls ever recorded
}

// newLatencyWindow returns a window of the given capacity. A size of 0 or
// less uses [defaultWindowSize].
func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &latencyWindow{samples: make([]sample, 0, size)}
}

// Record adds one call, overwriting the oldest once the window is full.
func (w *latencyWindow) Record(ms int64, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := sample{ms: ms, failed: failed}
	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, s)
	} else {
		w.samples[w.pos] = s
	}
	w.pos = (w.pos + 1) % cap(w.samples)
	w.total++
	if failed {
		w.failed++
	}
}

// windowStats is a point-in-time view of a window.
type windowStats struct {
	Calls     int64
	Failures  int64
	P50       int64
	P99       int64
	ErrorRate float64 // failures among the calls currently in the window
}

// Stats summarises the window. Percentiles are 0 until a call is recorded.
func (w *latencyWindow) Stats() windowStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := windowStats{Calls: w.total, Failures: w.failed}
	n := len(w.samples)
	if n == 0 {
		return st
	}

	ms := make([]int64, n)
	var failed int
	for i, s := range w.samples {
		ms[i] = s.ms
		if s.failed {
			failed++
		}
	}
	slices.Sort(ms)
	st.P50 = ms[n/2]
	st.P99 = ms[int(float64(n-1)*0.99)]
	st.ErrorRate = float64(failed) / float64(n)
	return st
}
