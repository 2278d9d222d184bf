package audio

// Peaks returns the absolute peak of each of n equal slices of the clip's
// first channel, normalised to [0, 1]. It returns nil for an empty clip or
// n <= 0.
func Peaks(c Clip, n int) []float64 {
	channels := max(c.Channels, 1)
	frames := len(c.PCM) / (2 * channels)
	if frames == 0 || n <= 0 {
		return nil
	}
	n = min(n, frames)

	out := make([]float64, n)
	for b := range n {
		start := b * frames / n
		end := (b + 1) * frames / n
		var peak int32
		for f := start; f < end; f++ {
			s := int32(sampleAt(c.PCM, f*channels))
			if s < 0 {
				s = -s
			}
			peak = max(peak, s)
		}
		out[b] = float64(peak) / 32768
	}
	return out
}
