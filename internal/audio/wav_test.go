package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}
	out := EncodeWAV(pcm, 16000, 1)

	require.Len(t, out, wavHeaderSize+len(pcm))
	require.Equal(t, "RIFF", string(out[0:4]))
	require.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(out[4:8]))
	require.Equal(t, "WAVE", string(out[8:12]))
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(out[24:28]))
	require.Equal(t, uint32(32000), binary.LittleEndian.Uint32(out[28:32]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(out[40:44]))
}

func TestDecodeWAVReadsEncodedSamples(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0xff}
	decoded, err := DecodeWAV(EncodeWAV(pcm, 22050, 1))
	require.NoError(t, err)
	require.Equal(t, 22050, decoded.SampleRate)
	require.Equal(t, 1, decoded.Channels)
	require.Equal(t, []int16{1, -1}, decoded.Samples)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, err := DecodeWAV([]byte("ID3 not a wav"))
	require.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	require.Equal(t, ".mp3", ExtensionFor("audio/mpeg"))
	require.Equal(t, ".wav", ExtensionFor("audio/wav; codecs=1"))
	require.Equal(t, ".bin", ExtensionFor("application/octet-stream"))
}

func TestPlayerArgsPlacesFilePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"--no-video", "/tmp/p.mp3"}, playerArgs([]string{"--no-video"}, "/tmp/p.mp3"))
	require.Equal(t, []string{"--file=/tmp/p.mp3", "--quiet"}, playerArgs([]string{"--file={file}", "--quiet"}, "/tmp/p.mp3"))
	require.Equal(t, []string{"/tmp/p.mp3"}, playerArgs(nil, "/tmp/p.mp3"))
}
