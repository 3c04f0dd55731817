package sender

import (
	"sort"
	"time"
)

// percentiles returns the P50 and P95 of samples. samples is sorted in
// place; an empty slice returns zeros.
func percentiles(samples []time.Duration) (p50, p95 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return samples[idx(len(samples), 0.50)], samples[idx(len(samples), 0.95)]
}

func idx(n int, pct float64) int {
	i := int(pct * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
