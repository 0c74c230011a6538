package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps little-endian PCM16 samples in a minimal WAV container.
func EncodeWAV(pcm []byte, sampleRate int, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	out := make([]byte, wavHeaderSize, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	return append(out, pcm...)
}

// PCM is decoded 16-bit audio.
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// DecodeWAV reads a PCM16 WAV, skipping chunks other than fmt and data.
func DecodeWAV(data []byte) (PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, errors.New("not a RIFF/WAVE payload")
	}

	var (
		out     PCM
		haveFmt bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return PCM{}, errors.New("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || bits != 16 {
				return PCM{}, fmt.Errorf("unsupported wav format %d/%d-bit", format, bits)
			}
			out.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			out.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return PCM{}, errors.New("data chunk before fmt chunk")
			}
			out.Samples = make([]int16, size/2)
			for i := range out.Samples {
				out.Samples[i] = int16(binary.LittleEndian.Uint16(data[body+2*i:]))
			}
			return out, nil
		}

		offset = body + size + size%2
	}
	return PCM{}, errors.New("wav payload has no data chunk")
}
