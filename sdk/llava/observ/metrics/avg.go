package metrics

import (
	"expvar"
	"sync"
)

// avgMetric aggregates a series of observations and publishes them as a
// single expvar object with count, sum, min, max and avg keys.
type avgMetric struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

func newAvgMetric(name string) *avgMetric {
	var a avgMetric

	expvar.Publish(name, expvar.Func(func() any {
		s := a.stat()
		return map[string]any{
			"count": s.Count,
			"sum":   s.Sum,
			"min":   s.Min,
			"max":   s.Max,
			"avg":   s.Avg,
		}
	}))

	return &a
}

func (a *avgMetric) add(value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += value

	if a.count == 1 || value < a.min {
		a.min = value
	}

	if a.count == 1 || value > a.max {
		a.max = value
	}
}

func (a *avgMetric) stat() Stat {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stat{
		Count: a.count,
		Sum:   a.sum,
		Min:   a.min,
		Max:   a.max,
	}

	if a.count > 0 {
		s.Avg = a.sum / float64(a.count)
	}

	return s
}
