// Package dispatcher is the single entry point shared by the HTTP service,
// the NATS worker, and the one-shot job handler. It validates operation
// envelopes, enforces the execution budget, invokes the orchestrator, and
// maps failures to the stable external error taxonomy.
package dispatcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-agent/internal/audio"
	"github.com/book-expert/voice-agent/internal/core"
	"github.com/book-expert/voice-agent/internal/orchestrator"
)

// Operation names accepted in envelopes.
const (
	OpSynthesize          = "synthesize"
	OpClone               = "clone"
	OpSynthesizeWithClone = "synthesize_with_clone"
	OpListVoices          = "list_voices"
)

// External error codes. These are the contract with callers and never change.
const (
	CodeValidation           = "ValidationError"
	CodeNotFound             = "NotFound"
	CodeConfiguration        = "ConfigurationError"
	CodeInvalidSample        = "InvalidSampleError"
	CodeBackend              = "BackendError"
	CodeResource             = "ResourceError"
	CodeTimeout              = "TimeoutError"
	CodeUnsupportedOperation = "UnsupportedOperationError"
	CodeInternal             = "InternalError"
)

const (
	contentTypeWAV = "audio/wav"

	// DefaultTimeout bounds one job. Serverless deployments must keep this
	// under the platform's own limit.
	DefaultTimeout = 120 * time.Second

	// maxRemoteSampleBytes caps reference audio fetched from a URL.
	maxRemoteSampleBytes = 32 << 20
)

// Envelope is the uniform job wrapper.
type Envelope struct {
	Input Input `json:"input"`
}

// Input carries the operation name and its operation-specific fields.
type Input struct {
	Operation   string  `json:"operation"`
	Text        string  `json:"text,omitempty"`
	Voice       string  `json:"voice,omitempty"`
	VoiceID     string  `json:"voice_id,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	Language    string  `json:"language,omitempty"`
	Backend     string  `json:"backend,omitempty"`
	AudioBase64 string  `json:"audio_base64,omitempty"`
	AudioURL    string  `json:"audio_url,omitempty"`
	AudioKey    string  `json:"audio_key,omitempty"`
	MakeDefault bool    `json:"make_default,omitempty"`
}

// SynthesisResponse is the success payload for synthesis operations. The
// worker mode may offload large audio to the object store, in which case
// AudioKey replaces AudioBase64.
type SynthesisResponse struct {
	AudioBase64 string  `json:"audio_base64,omitempty"`
	AudioKey    string  `json:"audio_key,omitempty"`
	ContentType string  `json:"content_type"`
	Duration    float64 `json:"duration"`
	SampleRate  int     `json:"sample_rate"`
	VoiceID     string  `json:"voice_id,omitempty"`
}

// CloneResponse is the success payload for clone operations.
type CloneResponse struct {
	VoiceID string `json:"voice_id"`
}

// ErrorBody is the stable external error shape.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an ErrorBody for serialization.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Dispatcher owns the orchestrator handle and the per-job execution budget.
// The object store is optional; when present, envelopes may reference sample
// audio by key.
type Dispatcher struct {
	orchestrator *orchestrator.Orchestrator
	objectStore  core.ObjectStore
	httpClient   *http.Client
	timeout      time.Duration
	log          *logger.Logger
}

// New creates a dispatcher. A nil objectStore disables audio_key inputs; a
// zero timeout selects DefaultTimeout.
func New(
	orch *orchestrator.Orchestrator,
	objectStore core.ObjectStore,
	timeout time.Duration,
	log *logger.Logger,
) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Dispatcher{
		orchestrator: orch,
		objectStore:  objectStore,
		httpClient:   &http.Client{Timeout: timeout},
		timeout:      timeout,
		log:          log,
	}
}

// DispatchRaw parses an envelope from raw JSON and returns the serialized
// response. It never returns an error: failures become error responses.
// This is the shape the one-shot job handler and the NATS worker consume.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte) []byte {
	var envelope Envelope

	err := json.Unmarshal(raw, &envelope)
	if err != nil {
		return d.marshalResponse(ErrorResponse{Error: ErrorBody{
			Code:    CodeValidation,
			Message: "envelope is not valid JSON",
		}})
	}

	payload, jobErr := d.Dispatch(ctx, envelope.Input)
	if jobErr != nil {
		return d.marshalResponse(ErrorResponse{Error: *jobErr})
	}

	return d.marshalResponse(payload)
}

// Dispatch runs one job through its full state machine and returns either
// the operation's success payload or the external error body. No retries
// happen here; synthesis is not idempotent and retrying is the caller's
// call.
func (d *Dispatcher) Dispatch(ctx context.Context, input Input) (any, *ErrorBody) {
	jobID := uuid.NewString()
	d.log.Info("Job %s received: operation '%s'", jobID, input.Operation)

	err := d.validate(input)
	if err != nil {
		d.log.Error("Job %s failed validation: %v", jobID, err)

		return nil, d.toErrorBody(err)
	}

	d.log.Info("Job %s validated, executing with %s budget", jobID, d.timeout)

	payload, err := d.executeWithTimeout(ctx, input)
	if err != nil {
		d.log.Error("Job %s failed: %v", jobID, err)

		return nil, d.toErrorBody(err)
	}

	d.log.Info("Job %s succeeded", jobID)

	return payload, nil
}

// validate checks the envelope's shape before any work starts. Value-level
// checks (speed bounds, text length) belong to the orchestrator.
func (d *Dispatcher) validate(input Input) error {
	switch input.Operation {
	case OpSynthesize:
		if input.Text == "" {
			return fmt.Errorf("%w: 'text' is required for %s", core.ErrValidation, OpSynthesize)
		}
	case OpClone:
		err := d.checkSampleSource(input, OpClone)
		if err != nil {
			return err
		}
	case OpSynthesizeWithClone:
		if input.Text == "" {
			return fmt.Errorf("%w: 'text' is required for %s", core.ErrValidation, OpSynthesizeWithClone)
		}

		err := d.checkSampleSource(input, OpSynthesizeWithClone)
		if err != nil {
			return err
		}
	case OpListVoices:
		// No required fields.
	case "":
		return fmt.Errorf("%w: missing operation", core.ErrUnsupportedOperation)
	default:
		return fmt.Errorf("%w: '%s'", core.ErrUnsupportedOperation, input.Operation)
	}

	return nil
}

// executeWithTimeout runs the operation under the job budget. On timeout the
// job is abandoned: the backend call may keep running but its result is
// discarded, since engines are not assumed cancellable.
func (d *Dispatcher) executeWithTimeout(ctx context.Context, input Input) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		payload any
		err     error
	}

	done := make(chan outcome, 1)

	go func() {
		payload, err := d.execute(ctx, input)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case result := <-done:
		return result.payload, result.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: job exceeded %s budget", core.ErrTimeout, d.timeout)
	}
}

func (d *Dispatcher) execute(ctx context.Context, input Input) (any, error) {
	switch input.Operation {
	case OpSynthesize:
		return d.executeSynthesize(ctx, input)
	case OpClone:
		return d.executeClone(ctx, input)
	case OpSynthesizeWithClone:
		return d.executeSynthesizeWithClone(ctx, input)
	case OpListVoices:
		return d.orchestrator.HandleListVoices(ctx, input.Backend)
	default:
		return nil, fmt.Errorf("%w: '%s'", core.ErrUnsupportedOperation, input.Operation)
	}
}

func (d *Dispatcher) executeSynthesize(ctx context.Context, input Input) (any, error) {
	result, err := d.orchestrator.HandleSynthesize(ctx, orchestrator.SynthesizeRequest{
		Text:     input.Text,
		Voice:    input.Voice,
		Speed:    input.Speed,
		Language: input.Language,
		Backend:  input.Backend,
	})
	if err != nil {
		return nil, err
	}

	return d.encodeAudio(result, "")
}

func (d *Dispatcher) executeClone(ctx context.Context, input Input) (any, error) {
	sample, err := d.resolveSample(ctx, input)
	if err != nil {
		return nil, err
	}

	voiceID, err := d.orchestrator.HandleClone(ctx, orchestrator.CloneRequest{
		Sample:      sample,
		VoiceID:     input.VoiceID,
		Backend:     input.Backend,
		MakeDefault: input.MakeDefault,
	})
	if err != nil {
		return nil, err
	}

	return CloneResponse{VoiceID: voiceID}, nil
}

func (d *Dispatcher) executeSynthesizeWithClone(ctx context.Context, input Input) (any, error) {
	sample, err := d.resolveSample(ctx, input)
	if err != nil {
		return nil, err
	}

	result, voiceID, err := d.orchestrator.HandleSynthesizeWithClone(ctx, orchestrator.SynthesizeWithCloneRequest{
		Text:        input.Text,
		Sample:      sample,
		Speed:       input.Speed,
		Language:    input.Language,
		Backend:     input.Backend,
		VoiceID:     input.VoiceID,
		MakeDefault: input.MakeDefault,
	})
	if err != nil {
		return nil, err
	}

	return d.encodeAudio(result, voiceID)
}

// encodeAudio wraps PCM in a WAV container and base64-encodes it for
// transport inside JSON.
func (d *Dispatcher) encodeAudio(result core.AudioResult, voiceID string) (SynthesisResponse, error) {
	wavData, err := audio.EncodeWAV(result.Samples, result.SampleRate)
	if err != nil {
		return SynthesisResponse{}, fmt.Errorf("failed to encode audio result: %w", err)
	}

	return SynthesisResponse{
		AudioBase64: base64.StdEncoding.EncodeToString(wavData),
		AudioKey:    "",
		ContentType: contentTypeWAV,
		Duration:    result.Duration,
		SampleRate:  result.SampleRate,
		VoiceID:     voiceID,
	}, nil
}

// checkSampleSource verifies the envelope names a usable reference sample.
// Object-store keys only work in worker mode, where a store is configured.
func (d *Dispatcher) checkSampleSource(input Input, operation string) error {
	if input.AudioKey != "" && d.objectStore == nil {
		return fmt.Errorf("%w: 'audio_key' is not supported in this mode", core.ErrValidation)
	}

	if input.AudioBase64 == "" && input.AudioURL == "" && input.AudioKey == "" {
		return fmt.Errorf("%w: one of 'audio_base64', 'audio_url', 'audio_key' is required for %s",
			core.ErrValidation, operation)
	}

	return nil
}

// resolveSample loads the reference audio named by the envelope: inline
// base64, a URL to fetch, or an object-store key.
func (d *Dispatcher) resolveSample(ctx context.Context, input Input) ([]byte, error) {
	switch {
	case input.AudioBase64 != "":
		sample, err := base64.StdEncoding.DecodeString(input.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: 'audio_base64' is not valid base64", core.ErrValidation)
		}

		return sample, nil
	case input.AudioURL != "":
		return d.fetchSample(ctx, input.AudioURL)
	case input.AudioKey != "":
		sample, err := d.objectStore.Download(ctx, input.AudioKey)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch sample for key '%s': %w",
				core.ErrValidation, input.AudioKey, err)
		}

		return sample, nil
	default:
		return nil, fmt.Errorf("%w: no sample audio provided", core.ErrValidation)
	}
}

func (d *Dispatcher) fetchSample(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed audio url: %w", core.ErrValidation, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch audio url: %w", core.ErrValidation, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: audio url returned %s", core.ErrValidation, resp.Status)
	}

	sample, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSampleBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio url body: %w", core.ErrValidation, err)
	}

	return sample, nil
}

// toErrorBody maps an internal error chain to the external code and message.
// Engine and infrastructure details stay in the logs; callers get a generic
// message for those classes.
func (d *Dispatcher) toErrorBody(err error) *ErrorBody {
	switch {
	case errors.Is(err, core.ErrValidation):
		return &ErrorBody{Code: CodeValidation, Message: err.Error()}
	case errors.Is(err, core.ErrNotFound):
		return &ErrorBody{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, core.ErrConfiguration):
		return &ErrorBody{Code: CodeConfiguration, Message: err.Error()}
	case errors.Is(err, core.ErrInvalidSample):
		return &ErrorBody{Code: CodeInvalidSample, Message: "the provided audio sample is unusable"}
	case errors.Is(err, core.ErrTimeout):
		return &ErrorBody{Code: CodeTimeout, Message: "the job exceeded its execution budget"}
	case errors.Is(err, core.ErrResource):
		return &ErrorBody{Code: CodeResource, Message: "a synthesis backend is unavailable"}
	case errors.Is(err, core.ErrBackend):
		return &ErrorBody{Code: CodeBackend, Message: "speech generation failed on the backend engine"}
	case errors.Is(err, core.ErrUnsupportedOperation):
		return &ErrorBody{Code: CodeUnsupportedOperation, Message: err.Error()}
	default:
		return &ErrorBody{Code: CodeInternal, Message: "an internal error occurred"}
	}
}

func (d *Dispatcher) marshalResponse(payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		d.log.Error("Failed to marshal response payload: %v", err)

		return []byte(`{"error":{"code":"InternalError","message":"failed to serialize response"}}`)
	}

	return data
}

// HTTPStatus maps an external error code to the HTTP status the service
// mode responds with.
func HTTPStatus(code string) int {
	switch code {
	case CodeValidation, CodeUnsupportedOperation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidSample:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeResource:
		return http.StatusServiceUnavailable
	case CodeConfiguration, CodeBackend:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
