package audio

import (
	"encoding/binary"
	"errors"
)

// ErrNotWAV is returned by [DecodeWAV] for data that is not a PCM RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM WAV file")

// EncodeWAV wraps raw PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(c Clip) []byte {
	const bps = 16
	byteRate := c.SampleRate * c.Channels * bps / 8
	blockAlign := c.Channels * bps / 8
	dataSize := len(c.PCM)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(c.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], c.PCM)
	return buf
}

// DecodeWAV walks the RIFF chunks of wav and returns its PCM payload. The
// fmt chunk must precede the data chunk and describe 16-bit PCM.
func DecodeWAV(wav []byte) (Clip, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		clip     Clip
		foundFmt bool
	)
	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return Clip{}, ErrNotWAV
			}
			format := binary.LittleEndian.Uint16(wav[body : body+2])
			bits := binary.LittleEndian.Uint16(wav[body+14 : body+16])
			if format != 1 || bits != 16 {
				return Clip{}, ErrNotWAV
			}
			clip.Channels = int(binary.LittleEndian.Uint16(wav[body+2 : body+4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(wav[body+4 : body+8]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return Clip{}, ErrNotWAV
			}
			end := min(body+size, len(wav))
			clip.PCM = wav[body:end]
			return clip, nil
		}

		// Chunks are word-aligned.
		offset = body + size + size%2
	}
	return Clip{}, ErrNotWAV
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
