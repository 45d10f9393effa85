package audio

import (
	"bytes"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/book-expert/voice-agent/internal/core"
)

// DecodeSample decodes a reference audio sample for voice cloning. WAV and
// MP3 containers are recognized by sniffing the leading bytes; the result is
// mono 16-bit PCM plus its sample rate.
func DecodeSample(data []byte) ([]byte, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrInvalidSample, ErrEmptyAudio)
	}

	if len(data) >= 4 && string(data[0:4]) == "RIFF" {
		return DecodeWAV(data)
	}

	return decodeMP3(data)
}

// decodeMP3 decodes an MP3 stream to mono PCM. go-mp3 always emits 16-bit
// stereo regardless of the source channel layout.
func decodeMP3(data []byte) ([]byte, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to decode mp3: %w", core.ErrInvalidSample, err)
	}

	stereo, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: failed to read mp3 frames: %w", core.ErrInvalidSample, err)
	}

	mono, err := DownmixToMono(stereo, stereoChannels)
	if err != nil {
		return nil, 0, err
	}

	return mono, decoder.SampleRate(), nil
}
