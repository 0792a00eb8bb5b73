package memmon

import "time"

const (
	leakWindow          = 5 * time.Minute
	leakMinSamples      = 6
	leakSubWindows      = 3
	leakGrowthThreshold = 0.05
)

// detectLeak inspects the snapshots inside the trailing leak window. The
// window is split into three equal sub-windows; a leak is flagged only when
// average usage is non-decreasing across all three AND overall growth
// (end-start)/start exceeds the threshold. The sub-window monotonicity check
// filters transient spikes that rise and fall inside the window.
func detectLeak(history []Snapshot, now time.Time) (growthRate float64, window time.Duration, leaking bool) {
	cutoff := now.Add(-leakWindow)
	start := 0
	for start < len(history) && history[start].Timestamp.Before(cutoff) {
		start++
	}
	samples := history[start:]
	if len(samples) < leakMinSamples {
		return 0, 0, false
	}

	first := samples[0].UsedMB
	last := samples[len(samples)-1].UsedMB
	if first <= 0 {
		return 0, 0, false
	}
	growthRate = (last - first) / first
	if growthRate <= leakGrowthThreshold {
		return 0, 0, false
	}

	size := len(samples) / leakSubWindows
	prev := -1.0
	for i := 0; i < leakSubWindows; i++ {
		lo := i * size
		hi := lo + size
		if i == leakSubWindows-1 {
			hi = len(samples)
		}
		var sum float64
		for _, s := range samples[lo:hi] {
			sum += s.UsedMB
		}
		avg := sum / float64(hi-lo)
		if avg < prev {
			return 0, 0, false
		}
		prev = avg
	}

	window = samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	return growthRate, window, true
}
