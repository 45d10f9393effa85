package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-agent/internal/audio"
	"github.com/book-expert/voice-agent/internal/core"
)

// Zonos engine API endpoints.
const (
	zonosAPISpeech    = "/v1/generate/speech"
	zonosAPIEmbedding = "/v1/speaker/embedding"
	zonosAPIHealth    = "/health"
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

const (
	// zonosKindEmbedding marks a learned speaker-embedding descriptor.
	zonosKindEmbedding = "speaker-embedding"

	zonosSampleRate     = 44100
	zonosDefaultTimeout = 120 * time.Second
)

// ZonosConfig configures the connection to the zonos model service.
type ZonosConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// zonosSpeechRequest is the JSON payload for speech generation.
type zonosSpeechRequest struct {
	Text             string  `json:"text"`
	SpeakerEmbedding string  `json:"speaker_embedding"`
	Language         string  `json:"language,omitempty"`
	Speed            float64 `json:"speed"`
}

// zonosEmbeddingResponse carries the derived speaker embedding.
type zonosEmbeddingResponse struct {
	Embedding string `json:"embedding"`
}

// zonosErrorResponse is the engine's structured error body.
type zonosErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Zonos adapts the zonos model service to the core.Backend interface. The
// descriptor is a learned speaker embedding: slower to derive than kokoro's
// signal profile, higher fidelity, reusable across sessions. Zonos has no
// preset voices; a default must be cloned before voiceless synthesis works.
type Zonos struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// NewZonos creates the zonos adapter.
func NewZonos(cfg ZonosConfig, log *logger.Logger) *Zonos {
	timeout := zonosDefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	return &Zonos{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		log:        log,
	}
}

// Name returns the backend tag.
func (z *Zonos) Name() core.BackendName {
	return core.BackendZonos
}

// Presets returns an empty catalog; zonos voices only come from cloning.
func (z *Zonos) Presets() []string {
	return []string{}
}

// DefaultPreset reports that zonos has no preset fallback.
func (z *Zonos) DefaultPreset() (string, bool) {
	return "", false
}

// Synthesize posts the text and speaker embedding to the engine and decodes
// the WAV it returns.
func (z *Zonos) Synthesize(
	ctx context.Context,
	text string,
	voice core.VoiceDescriptor,
	params core.SynthesisParams,
) (core.AudioResult, error) {
	if voice.Kind != zonosKindEmbedding {
		return core.AudioResult{}, fmt.Errorf(
			"%w: zonos cannot use descriptor kind '%s'", core.ErrBackend, voice.Kind)
	}

	payload := zonosSpeechRequest{
		Text:             text,
		SpeakerEmbedding: base64.StdEncoding.EncodeToString(voice.Data),
		Language:         params.Language,
		Speed:            params.Speed,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return core.AudioResult{}, fmt.Errorf("%w: failed to marshal speech request: %w", core.ErrBackend, err)
	}

	wavData, err := z.post(ctx, zonosAPISpeech, contentTypeJSON, contentTypeWAV, body)
	if err != nil {
		return core.AudioResult{}, err
	}

	samples, rate, err := audio.DecodeWAV(wavData)
	if err != nil {
		return core.AudioResult{}, fmt.Errorf("%w: engine output unreadable: %w", core.ErrBackend, err)
	}

	return core.AudioResult{
		Samples:    samples,
		SampleRate: rate,
		Duration:   audio.Duration(samples, rate),
	}, nil
}

// DeriveVoice uploads the processed reference sample and stores the speaker
// embedding the engine returns.
func (z *Zonos) DeriveVoice(ctx context.Context, sample []byte) (core.VoiceDescriptor, error) {
	pcm, err := prepareSample(sample, zonosSampleRate)
	if err != nil {
		return core.VoiceDescriptor{}, err
	}

	wavData, err := audio.EncodeWAV(pcm, zonosSampleRate)
	if err != nil {
		return core.VoiceDescriptor{}, fmt.Errorf("%w: failed to encode reference sample: %w", core.ErrBackend, err)
	}

	responseBody, err := z.post(ctx, zonosAPIEmbedding, contentTypeWAV, contentTypeJSON, wavData)
	if err != nil {
		return core.VoiceDescriptor{}, err
	}

	var response zonosEmbeddingResponse

	err = json.Unmarshal(responseBody, &response)
	if err != nil {
		return core.VoiceDescriptor{}, fmt.Errorf("%w: failed to parse embedding response: %w", core.ErrBackend, err)
	}

	embedding, err := base64.StdEncoding.DecodeString(response.Embedding)
	if err != nil {
		return core.VoiceDescriptor{}, fmt.Errorf("%w: malformed embedding in response: %w", core.ErrBackend, err)
	}

	if len(embedding) == 0 {
		return core.VoiceDescriptor{}, fmt.Errorf("%w: engine returned empty embedding", core.ErrBackend)
	}

	return core.VoiceDescriptor{
		Backend: core.BackendZonos,
		Kind:    zonosKindEmbedding,
		Preset:  "",
		Data:    embedding,
	}, nil
}

// HealthCheck verifies the model service is reachable.
func (z *Zonos) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, z.baseURL+zonosAPIHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: zonos service unreachable at %s: %w", core.ErrResource, z.baseURL, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: zonos health check returned %s", core.ErrResource, resp.Status)
	}

	return nil
}

// post sends a request body and returns the response body, mapping transport
// failures to ErrResource and engine rejections to ErrBackend.
func (z *Zonos) post(ctx context.Context, path, contentType, accept string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, z.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", core.ErrBackend, err)
	}

	req.Header.Set(headerContentType, contentType)
	req.Header.Set(headerAccept, accept)

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: zonos service unreachable at %s: %w", core.ErrResource, z.baseURL, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, z.parseErrorResponse(resp, path)
	}

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read engine response: %w", core.ErrBackend, err)
	}

	if len(responseBody) == 0 {
		return nil, fmt.Errorf("%w: engine returned an empty response", core.ErrBackend)
	}

	return responseBody, nil
}

// parseErrorResponse decodes a structured engine error, falling back to the
// raw body. Client-error statuses on the embedding path mean the sample was
// unusable rather than the engine being broken.
func (z *Zonos) parseErrorResponse(resp *http.Response, path string) error {
	kind := core.ErrBackend

	clientError := resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnprocessableEntity
	if clientError && path == zonosAPIEmbedding {
		kind = core.ErrInvalidSample
	}

	var engineErr zonosErrorResponse

	err := json.NewDecoder(resp.Body).Decode(&engineErr)
	if err == nil && engineErr.Detail != "" {
		return fmt.Errorf("%w: zonos engine (%s): %s (code: %s)",
			kind, resp.Status, engineErr.Detail, engineErr.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf("%w: zonos engine returned %s: %s", kind, resp.Status, string(body))
}
