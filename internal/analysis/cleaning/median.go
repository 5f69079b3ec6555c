package cleaning

import "sort"

// runningMedian applies a moving-window median. The window covers k
// samples starting (k-1)/2 before i and is truncated at both ends. The
// input is not modified.
func runningMedian(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	if k < 2 || len(values) < 2 {
		copy(out, values)
		return out
	}

	window := make([]float64, 0, k)
	for i := range values {
		lo := i - (k-1)/2
		start := max(0, lo)
		end := min(len(values), lo+k)

		window = append(window[:0], values[start:end]...)
		out[i] = medianFloat(window)
	}
	return out
}

// zeroPhaseMedian runs the median filter forward, then again over the
// reversed output, and reverses back so the lag of the two passes cancels
func zeroPhaseMedian(values []float64, k int) []float64 {
	forward := runningMedian(values, k)
	backward := runningMedian(reversed(forward), k)
	return reversed(backward)
}

func reversed(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

// medianFloat sorts its argument in place
func medianFloat(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sort.Float64s(values)
	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}
