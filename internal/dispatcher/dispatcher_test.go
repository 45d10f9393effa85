// Package dispatcher_test tests envelope handling, the error contract, and
// response encoding.
package dispatcher_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-agent/internal/audio"
	"github.com/book-expert/voice-agent/internal/core"
	"github.com/book-expert/voice-agent/internal/dispatcher"
	"github.com/book-expert/voice-agent/internal/orchestrator"
	"github.com/book-expert/voice-agent/internal/voicestore"
)

// slowableBackend is a scriptable core.Backend whose synthesis can be made
// slow enough to blow a short job budget.
type slowableBackend struct {
	synthesisDelay time.Duration
}

func (s *slowableBackend) Name() core.BackendName { return core.BackendKokoro }

func (s *slowableBackend) Presets() []string { return []string{"af_heart", "af_woh"} }

func (s *slowableBackend) DefaultPreset() (string, bool) { return "af_heart", true }

func (s *slowableBackend) Synthesize(
	_ context.Context,
	_ string,
	_ core.VoiceDescriptor,
	_ core.SynthesisParams,
) (core.AudioResult, error) {
	if s.synthesisDelay > 0 {
		time.Sleep(s.synthesisDelay)
	}

	return core.AudioResult{
		Samples:    make([]byte, 24000*audio.BytesPerSample),
		SampleRate: 24000,
		Duration:   1.0,
	}, nil
}

func (s *slowableBackend) DeriveVoice(_ context.Context, sample []byte) (core.VoiceDescriptor, error) {
	if len(sample) == 0 {
		return core.VoiceDescriptor{}, core.ErrInvalidSample
	}

	return core.VoiceDescriptor{
		Backend: core.BackendKokoro,
		Kind:    "mock-profile",
		Preset:  "",
		Data:    sample,
	}, nil
}

func newTestDispatcher(t *testing.T, backend core.Backend, timeout time.Duration) *dispatcher.Dispatcher {
	t.Helper()

	log, err := logger.New(t.TempDir(), "dispatcher-test.log")
	require.NoError(t, err)

	store, err := voicestore.New(filepath.Join(t.TempDir(), "voices.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	orch, err := orchestrator.New(
		[]core.Backend{backend}, store, core.BackendKokoro, orchestrator.DefaultLimits(), log)
	require.NoError(t, err)

	return dispatcher.New(orch, nil, timeout, log)
}

func dispatchEnvelope(t *testing.T, disp *dispatcher.Dispatcher, envelope string) map[string]any {
	t.Helper()

	raw := disp.DispatchRaw(context.Background(), []byte(envelope))

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(raw, &decoded))

	return decoded
}

func errorCode(t *testing.T, response map[string]any) string {
	t.Helper()

	errField, ok := response["error"].(map[string]any)
	require.True(t, ok, "expected an error response, got: %v", response)

	code, ok := errField["code"].(string)
	require.True(t, ok)

	return code
}

func TestDispatchSynthesizeSucceeds(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp,
		`{"input":{"operation":"synthesize","text":"hello world","speed":1.0}}`)

	require.NotContains(t, response, "error")
	assert.Equal(t, "audio/wav", response["content_type"])
	assert.InEpsilon(t, 1.0, response["duration"], 0.001)
	assert.InEpsilon(t, 24000, response["sample_rate"], 0.001)

	// The audio payload must be decodable base64 wrapping a valid WAV.
	wavData, err := base64.StdEncoding.DecodeString(response["audio_base64"].(string))
	require.NoError(t, err)

	_, rate, err := audio.DecodeWAV(wavData)
	require.NoError(t, err)
	assert.Equal(t, 24000, rate)
}

func TestDispatchEmptyTextIsValidationError(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp, `{"input":{"operation":"synthesize","text":""}}`)
	assert.Equal(t, "ValidationError", errorCode(t, response))
}

func TestDispatchUnknownOperation(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp, `{"input":{"operation":"transmogrify"}}`)
	assert.Equal(t, "UnsupportedOperationError", errorCode(t, response))

	response = dispatchEnvelope(t, disp, `{"input":{}}`)
	assert.Equal(t, "UnsupportedOperationError", errorCode(t, response))
}

func TestDispatchMalformedEnvelope(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp, `{"input": not json`)
	assert.Equal(t, "ValidationError", errorCode(t, response))
}

func TestDispatchListVoicesWithNoClones(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp, `{"input":{"operation":"list_voices"}}`)
	require.NotContains(t, response, "error")

	preset, ok := response["preset"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, preset)

	cloned, ok := response["cloned"].([]any)
	require.True(t, ok, "cloned must be present even when empty")
	assert.Empty(t, cloned)
}

func TestDispatchCloneThenSynthesizeWithClonedVoice(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	sample := base64.StdEncoding.EncodeToString([]byte("reference audio"))
	response := dispatchEnvelope(t, disp,
		`{"input":{"operation":"clone","audio_base64":"`+sample+`","voice_id":"cloned-1","make_default":true}}`)
	require.NotContains(t, response, "error")
	assert.Equal(t, "cloned-1", response["voice_id"])

	listResponse := dispatchEnvelope(t, disp, `{"input":{"operation":"list_voices"}}`)
	assert.Contains(t, listResponse["cloned"], "cloned-1")

	synthResponse := dispatchEnvelope(t, disp,
		`{"input":{"operation":"synthesize","text":"hello","voice":"cloned-1"}}`)
	require.NotContains(t, synthResponse, "error")
	assert.NotEmpty(t, synthResponse["audio_base64"])
}

func TestDispatchCloneWithoutSampleIsValidationError(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp, `{"input":{"operation":"clone"}}`)
	assert.Equal(t, "ValidationError", errorCode(t, response))
}

func TestDispatchCloneWithAudioKeyButNoObjectStore(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp,
		`{"input":{"operation":"clone","audio_key":"samples/narrator.wav"}}`)
	require.Equal(t, "ValidationError", errorCode(t, response))

	errField, ok := response["error"].(map[string]any)
	require.True(t, ok)

	message, ok := errField["message"].(string)
	require.True(t, ok)
	assert.Contains(t, message, "'audio_key' is not supported in this mode")
}

func TestDispatchCloneWithBadBase64IsValidationError(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

	response := dispatchEnvelope(t, disp,
		`{"input":{"operation":"clone","audio_base64":"%%% not base64 %%%"}}`)
	assert.Equal(t, "ValidationError", errorCode(t, response))
}

func TestDispatchSynthesizeWithCloneReturnsVoiceIDOnlyWhenPersisted(t *testing.T) {
	t.Parallel()

	disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)
	sample := base64.StdEncoding.EncodeToString([]byte("reference audio"))

	ephemeral := dispatchEnvelope(t, disp,
		`{"input":{"operation":"synthesize_with_clone","text":"hi","audio_base64":"`+sample+`"}}`)
	require.NotContains(t, ephemeral, "error")
	assert.NotContains(t, ephemeral, "voice_id")

	persisted := dispatchEnvelope(t, disp,
		`{"input":{"operation":"synthesize_with_clone","text":"hi","audio_base64":"`+sample+`","voice_id":"kept"}}`)
	require.NotContains(t, persisted, "error")
	assert.Equal(t, "kept", persisted["voice_id"])
}

func TestDispatchSpeedBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		speed    string
		wantFail bool
	}{
		{name: "below minimum", speed: "0.24", wantFail: true},
		{name: "at minimum", speed: "0.25", wantFail: false},
		{name: "at maximum", speed: "4.0", wantFail: false},
		{name: "above maximum", speed: "4.01", wantFail: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			disp := newTestDispatcher(t, &slowableBackend{synthesisDelay: 0}, 0)

			response := dispatchEnvelope(t, disp,
				`{"input":{"operation":"synthesize","text":"hello","speed":`+testCase.speed+`}}`)

			if testCase.wantFail {
				assert.Equal(t, "ValidationError", errorCode(t, response))
			} else {
				assert.NotContains(t, response, "error")
			}
		})
	}
}

func TestDispatchTimeoutAbandonsJob(t *testing.T) {
	t.Parallel()

	backend := &slowableBackend{synthesisDelay: 500 * time.Millisecond}
	disp := newTestDispatcher(t, backend, 50*time.Millisecond)

	response := dispatchEnvelope(t, disp, `{"input":{"operation":"synthesize","text":"hello"}}`)
	assert.Equal(t, "TimeoutError", errorCode(t, response))
}

func TestHTTPStatusMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 400, dispatcher.HTTPStatus(dispatcher.CodeValidation))
	assert.Equal(t, 400, dispatcher.HTTPStatus(dispatcher.CodeUnsupportedOperation))
	assert.Equal(t, 404, dispatcher.HTTPStatus(dispatcher.CodeNotFound))
	assert.Equal(t, 422, dispatcher.HTTPStatus(dispatcher.CodeInvalidSample))
	assert.Equal(t, 504, dispatcher.HTTPStatus(dispatcher.CodeTimeout))
	assert.Equal(t, 503, dispatcher.HTTPStatus(dispatcher.CodeResource))
	assert.Equal(t, 500, dispatcher.HTTPStatus(dispatcher.CodeBackend))
	assert.Equal(t, 500, dispatcher.HTTPStatus(dispatcher.CodeInternal))
}
