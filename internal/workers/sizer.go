// Package workers derives the degree of parallelism for a conversion batch.
package workers

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// HighLoadPercent is the CPU utilisation above which the worker count is halved again.
const HighLoadPercent = 75.0

// OptimalWorkers returns half of coreCount (minimum 1), halved once more
// when loadPercent is known and above HighLoadPercent. It performs no I/O.
func OptimalWorkers(coreCount int, loadPercent *float64) int {
	n := coreCount / 2
	if loadPercent != nil && *loadPercent > HighLoadPercent {
		n /= 2
	}
	if n < 1 {
		return 1
	}
	return n
}

// Sampler reports the live core count and, when available, CPU load.
type Sampler interface {
	Sample(ctx context.Context) (cores int, loadPercent *float64)
}

// SystemSampler samples the host with gopsutil.
type SystemSampler struct {
	// Interval is how long CPU usage is measured for. Zero compares against
	// the previous call, which on the first call yields no usable value.
	Interval time.Duration
}

func NewSystemSampler() *SystemSampler {
	return &SystemSampler{Interval: 500 * time.Millisecond}
}

func (s *SystemSampler) Sample(ctx context.Context) (int, *float64) {
	cores := runtime.NumCPU()

	percents, err := cpu.PercentWithContext(ctx, s.Interval, false)
	if err != nil || len(percents) == 0 {
		return cores, nil
	}
	load := percents[0]
	return cores, &load
}

// Recommend samples the host and applies OptimalWorkers.
func Recommend(ctx context.Context, s Sampler) int {
	cores, load := s.Sample(ctx)
	return OptimalWorkers(cores, load)
}
