package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/montanaflynn/stats"
)

// Verbose controls whether timing statistics are printed.
// Set to false to suppress output.
var Verbose = true

// Output is the writer where timing statistics are printed.
// Defaults to os.Stdout.
var Output io.Writer = os.Stdout

// TimingStats accumulates time spent in each phase of an encrypted inference.
type TimingStats struct {
	TotalTime      time.Duration
	HEInitTime     time.Duration
	ModelInitTime  time.Duration
	EncryptionTime time.Duration
	CompareTime    time.Duration
	MatchTime      time.Duration
	DecideTime     time.Duration
	ReduceTime     time.Duration
	DecryptionTime time.Duration
}

// Inference returns the server-side part of the total (compare, match, decide, reduce).
func (s *TimingStats) Inference() time.Duration {
	return s.CompareTime + s.MatchTime + s.DecideTime + s.ReduceTime
}

// Time runs fn and adds its wall time to *d.
func (s *TimingStats) Time(d *time.Duration, fn func() error) error {
	start := time.Now()
	err := fn()
	*d += time.Since(start)
	return err
}

func percent(part, total time.Duration) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// PrintTimingStats prints detailed timing statistics.
// Respects the Verbose flag - does nothing if Verbose is false.
func PrintTimingStats(stats *TimingStats, samples int) {
	if !Verbose {
		return
	}
	if samples <= 0 {
		samples = 1
	}
	fmt.Fprintln(Output, "\n=== TIMING STATISTICS ===")
	fmt.Fprintf(Output, "Total time: %v\n", stats.TotalTime)
	fmt.Fprintf(Output, "Average time per sample: %v\n", stats.TotalTime/time.Duration(samples))
	fmt.Fprintf(Output, "Samples: %d\n", samples)
	fmt.Fprintln(Output, "\nBreakdown by operation:")
	fmt.Fprintf(Output, "  HE initialization: %v (%.1f%%)\n", stats.HEInitTime, percent(stats.HEInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Model encoding: %v (%.1f%%)\n", stats.ModelInitTime, percent(stats.ModelInitTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Encryption: %v (%.1f%%)\n", stats.EncryptionTime, percent(stats.EncryptionTime, stats.TotalTime))
	fmt.Fprintf(Output, "  Decryption: %v (%.1f%%)\n", stats.DecryptionTime, percent(stats.DecryptionTime, stats.TotalTime))
	inference := stats.Inference()
	fmt.Fprintln(Output, "\nInference breakdown:")
	fmt.Fprintf(Output, "  Compare: %v (%.1f%% of inference)\n", stats.CompareTime, percent(stats.CompareTime, inference))
	fmt.Fprintf(Output, "  Match: %v (%.1f%% of inference)\n", stats.MatchTime, percent(stats.MatchTime, inference))
	fmt.Fprintf(Output, "  Decide: %v (%.1f%% of inference)\n", stats.DecideTime, percent(stats.DecideTime, inference))
	fmt.Fprintf(Output, "  Reduce: %v (%.1f%% of inference)\n", stats.ReduceTime, percent(stats.ReduceTime, inference))
}

// LatencySummary describes a set of per-sample latencies in microseconds.
type LatencySummary struct {
	Count  int
	Mean   float64
	Median float64
	P95    float64
	Max    float64
}

// SummarizeLatencies computes mean, median, p95 and max over the given durations.
func SummarizeLatencies(durations []time.Duration) (LatencySummary, error) {
	if len(durations) == 0 {
		return LatencySummary{}, fmt.Errorf("no latencies to summarize")
	}
	data := make(stats.Float64Data, len(durations))
	for i, d := range durations {
		data[i] = DurationUS(d)
	}
	var (
		s   = LatencySummary{Count: len(data)}
		err error
	)
	if s.Mean, err = data.Mean(); err != nil {
		return s, err
	}
	if s.Median, err = data.Median(); err != nil {
		return s, err
	}
	if s.P95, err = data.Percentile(95); err != nil {
		return s, err
	}
	if s.Max, err = data.Max(); err != nil {
		return s, err
	}
	return s, nil
}

// PrintLatencySummary prints a summary produced by SummarizeLatencies.
func PrintLatencySummary(label string, s LatencySummary) {
	if !Verbose {
		return
	}
	fmt.Fprintf(Output, "%s: n=%d mean=%.0fµs median=%.0fµs p95=%.0fµs max=%.0fµs\n",
		label, s.Count, s.Mean, s.Median, s.P95, s.Max)
}

// DurationUS converts any time.Duration to micro-seconds as float64
func DurationUS(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1_000.0
}
