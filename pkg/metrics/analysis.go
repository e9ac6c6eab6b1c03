package metrics

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// StatSummary holds final statistical results for a single set of measurements.
type StatSummary struct {
	Count int
	Mean  time.Duration
	P5    time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// AnalysisResult maps a conceptual name (e.g. "Decode") to its summary.
type AnalysisResult struct {
	Components map[string]StatSummary
	Counters   map[string]int
}

// Analyze summarises every sample series held by the recorder.
func Analyze(r *Recorder) AnalysisResult {
	res := AnalysisResult{
		Components: make(map[string]StatSummary),
		Counters:   make(map[string]int),
	}
	if r == nil {
		return res
	}
	for _, name := range r.Names() {
		res.Components[name] = CalculateStats(r.Samples(name))
	}
	r.mu.Lock()
	for name, n := range r.counts {
		res.Counters[name] = n
	}
	r.mu.Unlock()
	return res
}

// CalculateStats computes summary stats from a slice of durations.
func CalculateStats(durations []time.Duration) StatSummary {
	if len(durations) == 0 {
		return StatSummary{}
	}

	floats := make([]float64, len(durations))
	for i, v := range durations {
		floats[i] = float64(v.Microseconds())
	}
	sort.Float64s(floats)

	mmin, mmax := durations[0], durations[0]
	for _, v := range durations {
		if v < mmin {
			mmin = v
		}
		if v > mmax {
			mmax = v
		}
	}

	return StatSummary{
		Count: len(durations),
		Mean:  time.Duration(stat.Mean(floats, nil)) * time.Microsecond,
		P5:    time.Duration(stat.Quantile(0.05, stat.Empirical, floats, nil)) * time.Microsecond,
		P50:   time.Duration(stat.Quantile(0.5, stat.Empirical, floats, nil)) * time.Microsecond,
		P95:   time.Duration(stat.Quantile(0.95, stat.Empirical, floats, nil)) * time.Microsecond,
		Min:   mmin,
		Max:   mmax,
	}
}
