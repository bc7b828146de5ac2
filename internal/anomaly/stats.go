package anomaly

import "math"

// Stats holds the population mean and standard deviation of a window.
type Stats struct {
	N      int
	Mean   float64
	StdDev float64
}

func Compute(values []float64) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return Stats{N: n, Mean: mean, StdDev: math.Sqrt(sq / float64(n))}
}

// ZScore returns |value-mean|/stddev. ok is false when stddev is zero.
func (s Stats) ZScore(value float64) (z float64, ok bool) {
	if s.StdDev == 0 {
		return 0, false
	}
	return math.Abs(value-s.Mean) / s.StdDev, true
}
