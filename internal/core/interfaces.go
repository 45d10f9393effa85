// Package core defines the domain types, interfaces, and error taxonomy
// shared by the voice agent's orchestration components.
package core

import "context"

// Backend is the uniform interface over a concrete TTS engine. Adapters must
// not retain references to input buffers beyond the call, and descriptors
// they return must be self-contained and serializable.
type Backend interface {
	// Name returns the backend's identity tag.
	Name() BackendName

	// Presets returns the static catalog of built-in voice names. May be empty.
	Presets() []string

	// DefaultPreset returns the preset used when no voice is requested and no
	// stored default exists. The second return is false when the backend has
	// no such fallback.
	DefaultPreset() (string, bool)

	// Synthesize renders text with the given voice into PCM audio. Fails with
	// ErrBackend on inference failure and ErrResource when the engine cannot
	// be reached or loaded.
	Synthesize(ctx context.Context, text string, voice VoiceDescriptor, params SynthesisParams) (AudioResult, error)

	// DeriveVoice builds a voice descriptor from a reference audio sample.
	// Fails with ErrInvalidSample when the sample is empty, too short, or
	// unreadable, and ErrBackend on internal extraction failure.
	DeriveVoice(ctx context.Context, sample []byte) (VoiceDescriptor, error)
}

// VoiceStore is the durable mapping from voice id to VoiceRecord,
// partitioned by backend. It is the only shared mutable resource in the
// system; all mutations are atomic with respect to concurrent reads.
type VoiceStore interface {
	// Put inserts or overwrites a record by voice id. When the record has
	// IsDefault set, any prior default for the same backend is cleared in the
	// same atomic step.
	Put(ctx context.Context, record VoiceRecord) error

	// Get returns the record for a voice id, or ErrNotFound.
	Get(ctx context.Context, backend BackendName, voiceID string) (VoiceRecord, error)

	// GetDefault returns the default record for a backend, or ErrNotFound.
	GetDefault(ctx context.Context, backend BackendName) (VoiceRecord, error)

	// List returns the voice ids for a backend in creation order.
	List(ctx context.Context, backend BackendName) ([]string, error)

	// Delete removes a record. Deleting an absent id is not an error.
	Delete(ctx context.Context, backend BackendName, voiceID string) error
}

// ObjectStore is a key-value blob store used by the worker mode to hand
// large audio payloads around by key instead of inline.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
