package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/cantor/pkg/audio"
)

func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	got := bytesToSamples(audio.StereoToMono(samplesToBytes([]int16{100, 300, -32768, -32768})))
	want := []int16{200, -32768}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d]=%d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	in := samplesToBytes([]int16{0, 100, 200, 300})
	if out := audio.ResampleMono16(in, 16000, 16000); len(out) != len(in) {
		t.Errorf("same rate changed length: %d", len(out))
	}
	if out := audio.ResampleMono16(in, 0, 16000); len(out) != len(in) {
		t.Errorf("zero rate changed length: %d", len(out))
	}
	up := bytesToSamples(audio.ResampleMono16(in, 8000, 16000))
	if len(up) != 8 {
		t.Fatalf("upsample len=%d, want 8", len(up))
	}
	if up[1] != 50 {
		t.Errorf("interpolated sample=%d, want 50", up[1])
	}
	down := audio.ResampleMono16(in, 16000, 8000)
	if len(down) != 4 {
		t.Errorf("downsample bytes=%d, want 4", len(down))
	}
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	clip := audio.Clip{PCM: samplesToBytes([]int16{1, -1, 2, -2}), SampleRate: 22050, Channels: 2}
	wav := audio.EncodeWAV(clip)
	if !audio.IsWAV(wav) {
		t.Fatal("IsWAV=false for encoded WAV")
	}
	got, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got.SampleRate != 22050 || got.Channels != 2 || len(got.PCM) != 8 {
		t.Errorf("decoded=%+v", got)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(audio.Clip{PCM: samplesToBytes([]int16{7}), SampleRate: 16000, Channels: 1})
	// Insert an odd-sized LIST chunk between fmt and data.
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	patched := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	got, err := audio.DecodeWAV(patched)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if s := bytesToSamples(got.PCM); len(s) != 1 || s[0] != 7 {
		t.Errorf("samples=%v, want [7]", s)
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("ID3\x04 mp3 data here"), []byte("RIFF\x00\x00\x00\x00WAVE")} {
		if _, err := audio.DecodeWAV(data); !errors.Is(err, audio.ErrNotWAV) {
			t.Errorf("DecodeWAV(%q) err=%v, want ErrNotWAV", data, err)
		}
	}
}

func TestPeaks(t *testing.T) {
	t.Parallel()

	clip := audio.Clip{PCM: samplesToBytes([]int16{0, 16384, -32768, 100}), SampleRate: 8000, Channels: 1}
	got := audio.Peaks(clip, 2)
	if len(got) != 2 || got[0] != 0.5 || got[1] != 1 {
		t.Errorf("Peaks=%v, want [0.5 1]", got)
	}
	if got := audio.Peaks(clip, 10); len(got) != 4 {
		t.Errorf("len(Peaks(10))=%d, want clamp to 4 frames", len(got))
	}
	if audio.Peaks(audio.Clip{}, 5) != nil {
		t.Error("Peaks of empty clip is non-nil")
	}
}

func TestClip_ToMonoAndDuration(t *testing.T) {
	t.Parallel()

	clip := audio.Clip{PCM: samplesToBytes(make([]int16, 32000)), SampleRate: 32000, Channels: 2}
	if d := clip.Duration(); d != 0.5 {
		t.Errorf("Duration=%v, want 0.5", d)
	}
	mono := clip.ToMono(16000)
	if mono.Channels != 1 || mono.SampleRate != 16000 || len(mono.PCM) != 16000 {
		t.Errorf("ToMono=%d ch %d Hz %d bytes", mono.Channels, mono.SampleRate, len(mono.PCM))
	}
}
