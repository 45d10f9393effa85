// Package audio provides the PCM and container handling shared by the
// backends and the dispatcher: WAV encoding and parsing, MP3 reference
// sample decoding, downmixing, and resampling. All PCM buffers in this
// package are signed 16-bit little-endian samples.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/book-expert/voice-agent/internal/core"
)

const (
	// BytesPerSample is the width of one 16-bit PCM sample.
	BytesPerSample = 2

	wavHeaderSize  = 44
	riffChunkSize  = 36
	fmtChunkSize   = 16
	pcmFormatTag   = 1
	bitsPerSample  = 16
	monoChannels   = 1
	stereoChannels = 2
)

// Static errors.
var (
	ErrEmptyAudio       = errors.New("audio data is empty")
	ErrShortWAVHeader   = errors.New("wav data shorter than header")
	ErrNotRIFF          = errors.New("not a RIFF/WAVE container")
	ErrNoDataChunk      = errors.New("wav container has no data chunk")
	ErrUnsupportedCodec = errors.New("unsupported wav codec")
	ErrOddSampleCount   = errors.New("pcm byte count is not sample-aligned")
)

// EncodeWAV wraps mono 16-bit PCM samples in a WAV container.
func EncodeWAV(samples []byte, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrEmptyAudio)
	}

	if len(samples)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrOddSampleCount)
	}

	byteRate := sampleRate * monoChannels * BytesPerSample
	blockAlign := monoChannels * BytesPerSample

	out := make([]byte, 0, wavHeaderSize+len(samples))
	out = append(out, []byte("RIFF")...)
	out = binary.LittleEndian.AppendUint32(out, uint32(riffChunkSize+len(samples)))
	out = append(out, []byte("WAVE")...)
	out = append(out, []byte("fmt ")...)
	out = binary.LittleEndian.AppendUint32(out, fmtChunkSize)
	out = binary.LittleEndian.AppendUint16(out, pcmFormatTag)
	out = binary.LittleEndian.AppendUint16(out, monoChannels)
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(byteRate))
	out = binary.LittleEndian.AppendUint16(out, uint16(blockAlign))
	out = binary.LittleEndian.AppendUint16(out, bitsPerSample)
	out = append(out, []byte("data")...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(samples)))
	out = append(out, samples...)

	return out, nil
}

// DecodeWAV parses a WAV container holding 16-bit PCM and returns the raw
// samples downmixed to mono plus the sample rate. Only the PCM codec is
// supported; anything else yields ErrUnsupportedCodec.
func DecodeWAV(data []byte) ([]byte, int, error) {
	if len(data) < wavHeaderSize {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrInvalidSample, ErrShortWAVHeader)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrInvalidSample, ErrNotRIFF)
	}

	var (
		sampleRate int
		channels   int
		samples    []byte
		haveFmt    bool
	)

	// Walk the chunk list; fmt must precede data.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if body+chunkLen > len(data) {
			return nil, 0, fmt.Errorf(
				"%w: chunk '%s' overruns container by %d bytes",
				core.ErrInvalidSample, chunkID, body+chunkLen-len(data))
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < fmtChunkSize {
				return nil, 0, fmt.Errorf("%w: truncated fmt chunk", core.ErrInvalidSample)
			}

			formatTag := binary.LittleEndian.Uint16(data[body : body+2])
			if formatTag != pcmFormatTag {
				return nil, 0, fmt.Errorf("%w: %w: format tag %d", core.ErrInvalidSample, ErrUnsupportedCodec, formatTag)
			}

			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != bitsPerSample {
				return nil, 0, fmt.Errorf("%w: %w: %d bits per sample", core.ErrInvalidSample, ErrUnsupportedCodec, bits)
			}

			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			samples = data[body : body+chunkLen]
		}

		// Chunks are word-aligned.
		offset = body + chunkLen + chunkLen%2
	}

	if !haveFmt || samples == nil {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrInvalidSample, ErrNoDataChunk)
	}

	mono, err := DownmixToMono(samples, channels)
	if err != nil {
		return nil, 0, err
	}

	return mono, sampleRate, nil
}

// Duration returns the playback length in seconds of mono 16-bit PCM.
func Duration(samples []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}

	return float64(len(samples)/BytesPerSample) / float64(sampleRate)
}
