// Package audio_test tests WAV handling and PCM helpers.
package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-agent/internal/audio"
	"github.com/book-expert/voice-agent/internal/core"
)

// sinePCM produces mono 16-bit PCM of a sine tone.
func sinePCM(t *testing.T, seconds float64, sampleRate int, freq float64) []byte {
	t.Helper()

	count := int(seconds * float64(sampleRate))
	out := make([]byte, count*audio.BytesPerSample)

	for i := range count {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*audio.BytesPerSample:], uint16(int16(v*0.5*math.MaxInt16)))
	}

	return out
}

func TestEncodeDecodeWAVRoundTrip(t *testing.T) {
	t.Parallel()

	pcm := sinePCM(t, 0.5, 24000, 440)

	wav, err := audio.EncodeWAV(pcm, 24000)
	require.NoError(t, err)

	decoded, rate, err := audio.DecodeWAV(wav)
	require.NoError(t, err)

	assert.Equal(t, 24000, rate)
	assert.Equal(t, pcm, decoded)
	assert.InEpsilon(t, 0.5, audio.Duration(decoded, rate), 0.01)
}

func TestEncodeWAVRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := audio.EncodeWAV(nil, 24000)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: []byte("RIFF")},
		{name: "not riff", data: make([]byte, 64)},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := audio.DecodeWAV(testCase.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidSample)
		})
	}
}

func TestDecodeWAVRejectsTruncatedDataChunk(t *testing.T) {
	t.Parallel()

	wav, err := audio.EncodeWAV(sinePCM(t, 0.5, 24000, 440), 24000)
	require.NoError(t, err)

	// Cutting the tail leaves the data chunk declaring more bytes than the
	// container holds.
	_, _, err = audio.DecodeWAV(wav[:len(wav)-4])
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidSample)
}

func TestDecodeSampleRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, _, err := audio.DecodeSample(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidSample)
	assert.True(t, errors.Is(err, audio.ErrEmptyAudio))
}

func TestDownmixToMonoAveragesChannels(t *testing.T) {
	t.Parallel()

	frames := []int16{100, 300, -200, -400}

	stereo := make([]byte, len(frames)*audio.BytesPerSample)
	for i, sample := range frames {
		binary.LittleEndian.PutUint16(stereo[i*audio.BytesPerSample:], uint16(sample))
	}

	mono, err := audio.DownmixToMono(stereo, 2)
	require.NoError(t, err)
	require.Len(t, mono, 4)

	assert.Equal(t, int16(200), int16(binary.LittleEndian.Uint16(mono[0:])))
	assert.Equal(t, int16(-300), int16(binary.LittleEndian.Uint16(mono[2:])))
}

func TestResampleHalvesSampleCount(t *testing.T) {
	t.Parallel()

	pcm := sinePCM(t, 1.0, 48000, 440)

	out, err := audio.Resample(pcm, 48000, 24000)
	require.NoError(t, err)

	assert.InDelta(t, len(pcm)/2, len(out), float64(audio.BytesPerSample*2))
	assert.InEpsilon(t, 1.0, audio.Duration(out, 24000), 0.01)
}

func TestRMSOfSilenceIsZero(t *testing.T) {
	t.Parallel()

	silence := make([]byte, 2048)
	assert.InDelta(t, 0.0, audio.RMS(silence), 0.0001)

	tone := sinePCM(t, 0.1, 24000, 440)
	assert.Greater(t, audio.RMS(tone), 0.1)
}
