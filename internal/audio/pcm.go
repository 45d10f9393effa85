package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/book-expert/voice-agent/internal/core"
)

// DownmixToMono averages interleaved 16-bit PCM channels into a single
// channel. Mono input is returned unchanged.
func DownmixToMono(samples []byte, channels int) ([]byte, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", core.ErrInvalidSample, channels)
	}

	if channels == monoChannels {
		return samples, nil
	}

	frameBytes := channels * BytesPerSample
	frames := len(samples) / frameBytes
	mono := make([]byte, frames*BytesPerSample)

	for frame := range frames {
		sum := 0
		for ch := range channels {
			offset := frame*frameBytes + ch*BytesPerSample
			sum += int(int16(binary.LittleEndian.Uint16(samples[offset : offset+2])))
		}

		binary.LittleEndian.PutUint16(mono[frame*BytesPerSample:], uint16(int16(sum/channels)))
	}

	return mono, nil
}

// Resample converts mono 16-bit PCM between sample rates using linear
// interpolation. Matching rates return the input unchanged.
func Resample(samples []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: sample rates %d -> %d", core.ErrInvalidSample, fromRate, toRate)
	}

	if fromRate == toRate {
		return samples, nil
	}

	srcCount := len(samples) / BytesPerSample
	if srcCount < 2 {
		return nil, fmt.Errorf("%w: too few samples to resample", core.ErrInvalidSample)
	}

	ratio := float64(fromRate) / float64(toRate)
	dstCount := int(float64(srcCount) / ratio)
	out := make([]byte, dstCount*BytesPerSample)

	for i := range dstCount {
		position := float64(i) * ratio

		left := int(position)
		if left >= srcCount-1 {
			left = srcCount - 2
		}

		frac := position - float64(left)
		a := float64(int16(binary.LittleEndian.Uint16(samples[left*BytesPerSample:])))
		b := float64(int16(binary.LittleEndian.Uint16(samples[(left+1)*BytesPerSample:])))
		value := a + (b-a)*frac

		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(math.Round(value))))
	}

	return out, nil
}

// RMS returns the root-mean-square amplitude of mono 16-bit PCM, normalized
// to [0, 1]. Silence detection on reference samples uses this.
func RMS(samples []byte) float64 {
	count := len(samples) / BytesPerSample
	if count == 0 {
		return 0
	}

	var sum float64

	for i := range count {
		v := float64(int16(binary.LittleEndian.Uint16(samples[i*BytesPerSample:]))) / math.MaxInt16
		sum += v * v
	}

	return math.Sqrt(sum / float64(count))
}
