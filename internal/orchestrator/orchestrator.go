// Package orchestrator translates validated operations into backend and
// voice-store calls: it resolves voice references, selects the backend, and
// runs the clone and synthesis flows. Control flow is direct function
// composition; there is no hidden sequencing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-agent/internal/core"
	"github.com/book-expert/voice-agent/internal/text"
)

// Default input limits.
const (
	DefaultMinSpeed     = 0.25
	DefaultMaxSpeed     = 4.0
	DefaultMaxTextChars = 10000
)

// Limits bounds the inputs a request may carry.
type Limits struct {
	MinSpeed     float64
	MaxSpeed     float64
	MaxTextChars int
}

// DefaultLimits returns the standard input bounds.
func DefaultLimits() Limits {
	return Limits{
		MinSpeed:     DefaultMinSpeed,
		MaxSpeed:     DefaultMaxSpeed,
		MaxTextChars: DefaultMaxTextChars,
	}
}

// SynthesizeRequest asks for speech from text. Voice may be a preset name, a
// cloned voice id, or empty for the backend default. Backend empty selects
// the configured default backend. Speed zero means 1.0.
type SynthesizeRequest struct {
	Text     string
	Voice    string
	Speed    float64
	Language string
	Backend  string
}

// CloneRequest asks for a durable cloned voice from a reference sample.
type CloneRequest struct {
	Sample      []byte
	VoiceID     string
	Backend     string
	MakeDefault bool
}

// SynthesizeWithCloneRequest composes an ephemeral clone with synthesis.
// Supplying VoiceID asks for the clone to be persisted as well.
type SynthesizeWithCloneRequest struct {
	Text        string
	Sample      []byte
	Speed       float64
	Language    string
	Backend     string
	VoiceID     string
	MakeDefault bool
}

// Orchestrator owns the backend adapters and coordinates them with the
// voice store. Adapters are constructed once at startup and passed in; the
// orchestrator never loads model resources itself.
type Orchestrator struct {
	backends       map[core.BackendName]core.Backend
	store          core.VoiceStore
	normalizer     *text.Normalizer
	limits         Limits
	defaultBackend core.BackendName
	log            *logger.Logger
}

// New creates an orchestrator over the given adapters and store.
func New(
	backends []core.Backend,
	store core.VoiceStore,
	defaultBackend core.BackendName,
	limits Limits,
	log *logger.Logger,
) (*Orchestrator, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no backends configured", core.ErrConfiguration)
	}

	byName := make(map[core.BackendName]core.Backend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}

	if _, ok := byName[defaultBackend]; !ok {
		return nil, fmt.Errorf("%w: default backend '%s' is not registered", core.ErrConfiguration, defaultBackend)
	}

	return &Orchestrator{
		backends:       byName,
		store:          store,
		normalizer:     text.NewNormalizer(),
		limits:         limits,
		defaultBackend: defaultBackend,
		log:            log,
	}, nil
}

// HandleSynthesize resolves the voice reference and renders the text.
func (o *Orchestrator) HandleSynthesize(ctx context.Context, req SynthesizeRequest) (core.AudioResult, error) {
	backend, err := o.resolveBackend(req.Backend)
	if err != nil {
		return core.AudioResult{}, err
	}

	normalized, err := o.validateText(req.Text)
	if err != nil {
		return core.AudioResult{}, err
	}

	speed, err := o.validateSpeed(req.Speed)
	if err != nil {
		return core.AudioResult{}, err
	}

	voice, err := o.resolveVoice(ctx, backend, req.Voice)
	if err != nil {
		return core.AudioResult{}, err
	}

	params := core.SynthesisParams{Speed: speed, Language: req.Language}

	result, err := backend.Synthesize(ctx, normalized, voice, params)
	if err != nil {
		return core.AudioResult{}, fmt.Errorf("synthesis on backend '%s' failed: %w", backend.Name(), err)
	}

	o.log.Info("Synthesized %.2fs of audio on backend '%s'", result.Duration, backend.Name())

	return result, nil
}

// HandleClone derives a voice descriptor from the sample and persists it,
// returning the assigned voice id.
func (o *Orchestrator) HandleClone(ctx context.Context, req CloneRequest) (string, error) {
	backend, err := o.resolveBackend(req.Backend)
	if err != nil {
		return "", err
	}

	descriptor, err := backend.DeriveVoice(ctx, req.Sample)
	if err != nil {
		return "", fmt.Errorf("voice derivation on backend '%s' failed: %w", backend.Name(), err)
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		// Generated ids are unique by construction, so the collision policy
		// for caller-chosen ids (overwrite, per the store contract) never
		// applies to them.
		voiceID = fmt.Sprintf("%s-%s", backend.Name(), uuid.NewString())
	}

	record := core.VoiceRecord{
		VoiceID:    voiceID,
		Backend:    backend.Name(),
		Descriptor: descriptor,
		CreatedAt:  time.Now().UTC(),
		IsDefault:  req.MakeDefault,
	}

	err = o.store.Put(ctx, record)
	if err != nil {
		return "", fmt.Errorf("failed to persist cloned voice '%s': %w", voiceID, err)
	}

	o.log.Info("Cloned voice '%s' on backend '%s' (default: %t)", voiceID, backend.Name(), req.MakeDefault)

	return voiceID, nil
}

// HandleSynthesizeWithClone composes DeriveVoice and Synthesize. The clone
// is ephemeral unless the request names a voice id, in which case the record
// is persisted before synthesis and survives a later synthesis failure.
func (o *Orchestrator) HandleSynthesizeWithClone(
	ctx context.Context,
	req SynthesizeWithCloneRequest,
) (core.AudioResult, string, error) {
	backend, err := o.resolveBackend(req.Backend)
	if err != nil {
		return core.AudioResult{}, "", err
	}

	normalized, err := o.validateText(req.Text)
	if err != nil {
		return core.AudioResult{}, "", err
	}

	speed, err := o.validateSpeed(req.Speed)
	if err != nil {
		return core.AudioResult{}, "", err
	}

	descriptor, err := backend.DeriveVoice(ctx, req.Sample)
	if err != nil {
		return core.AudioResult{}, "", fmt.Errorf("voice derivation on backend '%s' failed: %w", backend.Name(), err)
	}

	voiceID := ""

	if req.VoiceID != "" {
		voiceID = req.VoiceID
		record := core.VoiceRecord{
			VoiceID:    voiceID,
			Backend:    backend.Name(),
			Descriptor: descriptor,
			CreatedAt:  time.Now().UTC(),
			IsDefault:  req.MakeDefault,
		}

		err = o.store.Put(ctx, record)
		if err != nil {
			return core.AudioResult{}, "", fmt.Errorf("failed to persist cloned voice '%s': %w", voiceID, err)
		}
	}

	params := core.SynthesisParams{Speed: speed, Language: req.Language}

	result, err := backend.Synthesize(ctx, normalized, descriptor, params)
	if err != nil {
		return core.AudioResult{}, voiceID, fmt.Errorf("synthesis on backend '%s' failed: %w", backend.Name(), err)
	}

	return result, voiceID, nil
}

// HandleListVoices returns the preset catalog and the stored clone ids for
// one backend.
func (o *Orchestrator) HandleListVoices(ctx context.Context, backendName string) (core.VoiceCatalog, error) {
	backend, err := o.resolveBackend(backendName)
	if err != nil {
		return core.VoiceCatalog{}, err
	}

	cloned, err := o.store.List(ctx, backend.Name())
	if err != nil {
		return core.VoiceCatalog{}, fmt.Errorf("failed to list cloned voices: %w", err)
	}

	return core.VoiceCatalog{
		Preset: backend.Presets(),
		Cloned: cloned,
	}, nil
}

// DefaultBackend returns the backend used when requests name none.
func (o *Orchestrator) DefaultBackend() core.BackendName {
	return o.defaultBackend
}

func (o *Orchestrator) resolveBackend(name string) (core.Backend, error) {
	if name == "" {
		return o.backends[o.defaultBackend], nil
	}

	backend, ok := o.backends[core.BackendName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend '%s'", core.ErrValidation, name)
	}

	return backend, nil
}

// resolveVoice maps a voice reference to a descriptor. An explicit reference
// must match a preset or a stored clone; an empty reference falls back to
// the stored default, then the backend's default preset.
func (o *Orchestrator) resolveVoice(
	ctx context.Context,
	backend core.Backend,
	voiceRef string,
) (core.VoiceDescriptor, error) {
	if voiceRef != "" {
		if slices.Contains(backend.Presets(), voiceRef) {
			return presetDescriptor(backend.Name(), voiceRef), nil
		}

		record, err := o.store.Get(ctx, backend.Name(), voiceRef)
		if err != nil {
			return core.VoiceDescriptor{}, fmt.Errorf("failed to resolve voice '%s': %w", voiceRef, err)
		}

		return record.Descriptor, nil
	}

	record, err := o.store.GetDefault(ctx, backend.Name())
	if err == nil {
		return record.Descriptor, nil
	}

	if !errors.Is(err, core.ErrNotFound) {
		return core.VoiceDescriptor{}, fmt.Errorf("failed to resolve default voice: %w", err)
	}

	preset, ok := backend.DefaultPreset()
	if !ok {
		return core.VoiceDescriptor{}, fmt.Errorf(
			"%w: no voice requested and backend '%s' has no default", core.ErrConfiguration, backend.Name())
	}

	return presetDescriptor(backend.Name(), preset), nil
}

func (o *Orchestrator) validateText(input string) (string, error) {
	normalized := o.normalizer.Normalize(input)
	if normalized == "" {
		return "", fmt.Errorf("%w: text cannot be empty", core.ErrValidation)
	}

	if len(normalized) > o.limits.MaxTextChars {
		return "", fmt.Errorf(
			"%w: text is %d characters, limit is %d",
			core.ErrValidation, len(normalized), o.limits.MaxTextChars)
	}

	return normalized, nil
}

func (o *Orchestrator) validateSpeed(speed float64) (float64, error) {
	if speed == 0 {
		return 1.0, nil
	}

	if speed < o.limits.MinSpeed || speed > o.limits.MaxSpeed {
		return 0, fmt.Errorf(
			"%w: speed %.2f outside [%.2f, %.2f]",
			core.ErrValidation, speed, o.limits.MinSpeed, o.limits.MaxSpeed)
	}

	return speed, nil
}

func presetDescriptor(backend core.BackendName, preset string) core.VoiceDescriptor {
	return core.VoiceDescriptor{
		Backend: backend,
		Kind:    core.DescriptorKindPreset,
		Preset:  preset,
		Data:    nil,
	}
}
