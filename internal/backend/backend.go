// Package backend holds the adapters that wrap concrete TTS engines behind
// the core.Backend interface. Two engines are supported: kokoro, invoked as
// an external binary, and zonos, reached over HTTP. The orchestrator never
// sees engine-specific detail; it only handles opaque voice descriptors
// tagged with the backend that produced them.
package backend

import (
	"fmt"

	"github.com/book-expert/voice-agent/internal/audio"
	"github.com/book-expert/voice-agent/internal/core"
)

const (
	// MinSampleSeconds is the shortest reference sample a voice can be
	// derived from.
	MinSampleSeconds = 0.5

	// minSampleRMS rejects samples that are effectively silence.
	minSampleRMS = 0.001
)

// prepareSample decodes a reference sample, enforces the minimum duration
// and non-silence constraints, and resamples it to targetRate mono PCM.
func prepareSample(sample []byte, targetRate int) ([]byte, error) {
	pcm, rate, err := audio.DecodeSample(sample)
	if err != nil {
		return nil, err
	}

	seconds := audio.Duration(pcm, rate)
	if seconds < MinSampleSeconds {
		return nil, fmt.Errorf(
			"%w: sample is %.2fs, need at least %.2fs",
			core.ErrInvalidSample, seconds, MinSampleSeconds)
	}

	if audio.RMS(pcm) < minSampleRMS {
		return nil, fmt.Errorf("%w: sample is silent", core.ErrInvalidSample)
	}

	resampled, err := audio.Resample(pcm, rate, targetRate)
	if err != nil {
		return nil, err
	}

	return resampled, nil
}
