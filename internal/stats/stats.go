// Package stats accumulates per iteration measurements into run totals
package stats

import "time"

// IterationResult contains the outcome of reading one file once
type IterationResult struct {
	File     int           // index of the file that was read (1..N)
	Bytes    int64         // bytes actually transferred, may be short at eof
	Latency  time.Duration // time spent opening, reading and closing the file
	Fallback bool          // direct io was unsupported and buffered io was used
}

// LatencySummary tracks the extremes and the mean of iteration latencies
type LatencySummary struct {
	Count int64         // number of samples recorded
	Total time.Duration // sum of all samples
	Min   time.Duration // smallest sample (0 if none)
	Max   time.Duration // largest sample
}

// Record incorporates a new latency sample
func (l *LatencySummary) Record(d time.Duration) {
	// update min (handle first sample case)
	if l.Count == 0 || d < l.Min {
		l.Min = d
	}

	if d > l.Max {
		l.Max = d
	}

	l.Count++
	l.Total += d
}

// Mean returns the arithmetic mean latency, or 0 with no samples
func (l LatencySummary) Mean() time.Duration {
	if l.Count == 0 {
		return 0
	}
	return l.Total / time.Duration(l.Count)
}

// RunMetrics contains the totals of a benchmark run. It is threaded
// through the driver as a value and handed to reporters on completion.
type RunMetrics struct {
	Iterations    int            // iterations completed
	BytesRead     int64          // total bytes transferred
	Elapsed       time.Duration  // wall clock time of the read phase
	Fallbacks     int            // iterations that fell back to buffered io
	ProvisionTime time.Duration  // time spent creating the file set
	Latency       LatencySummary // per iteration latency
}

// Add folds one iteration into the totals
func (m *RunMetrics) Add(r IterationResult) {
	m.Iterations++
	m.BytesRead += r.Bytes
	if r.Fallback {
		m.Fallbacks++
	}
	m.Latency.Record(r.Latency)
}

// AvgLatency is the elapsed read phase time divided by the iteration count
func (m RunMetrics) AvgLatency() time.Duration {
	if m.Iterations == 0 {
		return 0
	}
	return m.Elapsed / time.Duration(m.Iterations)
}

// ThroughputMiBps is the read bandwidth in MiB per second
func (m RunMetrics) ThroughputMiBps() float64 {
	secs := m.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.BytesRead) / secs / (1024 * 1024)
}

// FilesPerSecond is the rate at which whole files were read
func (m RunMetrics) FilesPerSecond() float64 {
	secs := m.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.Iterations) / secs
}
