package transcribe

import "math"

// DefaultChunkSeconds is the window length used to split long recordings
const DefaultChunkSeconds = 300

// Window is a half-open range [Start, End) of an audio timeline in seconds
type Window struct {
	Index int
	Start float64
	End   float64
}

// Split partitions [0, duration) into consecutive windows of chunk
// seconds, the last one truncated. Durations up to chunk, and unknown
// durations, yield a single window covering the whole asset.
func Split(duration, chunk float64) []Window {
	if chunk <= 0 || duration <= chunk || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return []Window{{Index: 0, Start: 0, End: math.Max(duration, 0)}}
	}

	n := int(math.Ceil(duration / chunk))
	windows := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * chunk
		end := math.Min(start+chunk, duration)
		if end <= start {
			break
		}
		windows = append(windows, Window{Index: i, Start: start, End: end})
	}
	return windows
}
