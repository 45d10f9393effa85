package core

import "time"

// BackendName identifies a concrete TTS engine.
type BackendName string

// Known backends.
const (
	BackendKokoro BackendName = "kokoro"
	BackendZonos  BackendName = "zonos"
)

// DescriptorKindPreset marks a descriptor that names a built-in engine
// voice. All other kinds are private to the backend that produced them.
const DescriptorKindPreset = "preset"

// VoiceDescriptor is an opaque, backend-specific representation of a voice.
// Descriptors are never interpreted outside the backend that produced them;
// Kind and Data only have meaning to that backend. Preset descriptors carry
// the preset name and no data.
type VoiceDescriptor struct {
	Backend BackendName `json:"backend"`
	Kind    string      `json:"kind"`
	Preset  string      `json:"preset,omitempty"`
	Data    []byte      `json:"data,omitempty"`
}

// IsPreset reports whether the descriptor refers to a built-in preset voice.
func (d VoiceDescriptor) IsPreset() bool {
	return d.Preset != ""
}

// VoiceRecord is the persisted association between a voice id and its
// descriptor. At most one record per backend has IsDefault set.
type VoiceRecord struct {
	VoiceID    string          `json:"voice_id"`
	Backend    BackendName     `json:"backend"`
	Descriptor VoiceDescriptor `json:"descriptor"`
	CreatedAt  time.Time       `json:"created_at"`
	IsDefault  bool            `json:"is_default"`
}

// SynthesisParams carries the tunable synthesis settings passed through to a
// backend alongside the text and the resolved descriptor.
type SynthesisParams struct {
	Speed    float64
	Language string
}

// AudioResult is the product of one synthesis call. Samples are signed
// 16-bit little-endian mono PCM. Results are produced fresh per request and
// never cached.
type AudioResult struct {
	Samples    []byte
	SampleRate int
	Duration   float64
}

// VoiceCatalog is the answer to a list_voices operation: the backend's
// static preset names plus the cloned voice ids held by the store.
type VoiceCatalog struct {
	Preset []string `json:"preset"`
	Cloned []string `json:"cloned"`
}
