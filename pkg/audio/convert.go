// Package audio holds the small PCM and WAV helpers shared by the speech
// providers and the studio: WAV container encoding and parsing, channel and
// sample-rate conversion, and the coarse peak envelope served to the
// waveform view.
//
// All PCM is little-endian signed 16-bit.
package audio

// Clip is decoded PCM audio with its format.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.PCM)/(2*c.Channels)) / float64(c.SampleRate)
}

// ToMono returns a mono clip resampled to rate. A clip that already matches
// is returned unchanged.
func (c Clip) ToMono(rate int) Clip {
	pcm := c.PCM
	if c.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	return Clip{PCM: ResampleMono16(pcm, c.SampleRate, rate), SampleRate: rate, Channels: 1}
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// ResampleMono16 resamples mono PCM from srcRate to dstRate using linear
// interpolation. Equal or invalid rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(pcm, idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sampleAt(pcm, idx+1)
		}
		putSample(out, i, int16(float64(s0)*(1-frac)+float64(s1)*frac))
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

func putSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}
