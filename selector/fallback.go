package selector

import "github.com/livepeer/clip-job-server/job"

// fallbackOffsets are the fractional source-duration starting points for
// Strategy C, per §4.3.
var fallbackOffsets = []float64{0.10, 0.45, 0.80}

// fallbackRanges produces exactly 3 evenly spaced ranges tagged fallback,
// clipped to fit within [0, sourceDuration]. Invoked only when no usable
// transcript exists or Strategy B falls short of min_guaranteed.
func fallbackRanges(sourceDuration float64, opts job.Options) []job.Range {
	duration := clamp((opts.MinSec+opts.MaxSec)/2, opts.MinSec, opts.MaxSec)

	ranges := make([]job.Range, 0, len(fallbackOffsets))
	for _, offset := range fallbackOffsets {
		start := offset * sourceDuration
		end := start + duration
		if end > sourceDuration {
			end = sourceDuration
			start = end - duration
			if start < 0 {
				start = 0
			}
		}
		ranges = append(ranges, job.Range{Start: start, End: end, Method: job.MethodFallback})
	}
	return ranges
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
