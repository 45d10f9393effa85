// Package config_test tests the configuration structure for the voice agent.
package config_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-agent/internal/config"
)

func TestConfigUnmarshalsFullDocument(t *testing.T) {
	t.Parallel()

	tomlData := `
[service]
listen_address = "0.0.0.0:8088"

[nats]
url = "nats://127.0.0.1:4222"
job_subject = "voice.jobs"
audio_object_store_bucket = "VOICE_AUDIO"
inline_audio_limit_bytes = 1048576

[backends]
default = "kokoro"

[backends.kokoro]
binary_path = "/usr/local/bin/kokoro"
model_path = "models/kokoro-v1.0.onnx"
presets = ["af_heart", "af_woh", "am_standard"]
default_preset = "af_heart"
timeout_seconds = 60

[backends.zonos]
base_url = "http://127.0.0.1:8500"
timeout_seconds = 120

[store]
database_path = "/var/lib/voice-agent/voices.db"

[limits]
min_speed = 0.25
max_speed = 4.0
max_text_chars = 10000
job_timeout_seconds = 120

[paths]
base_logs_dir = "/var/log/voice-agent"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8088", cfg.Service.ListenAddress)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "voice.jobs", cfg.NATS.JobSubject)
	assert.Equal(t, "VOICE_AUDIO", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, 1048576, cfg.NATS.InlineAudioLimitBytes)
	assert.Equal(t, "kokoro", cfg.Backends.Default)
	assert.Equal(t, "/usr/local/bin/kokoro", cfg.Backends.Kokoro.BinaryPath)
	assert.Equal(t, []string{"af_heart", "af_woh", "am_standard"}, cfg.Backends.Kokoro.Presets)
	assert.Equal(t, "af_heart", cfg.Backends.Kokoro.DefaultPreset)
	assert.Equal(t, 60, cfg.Backends.Kokoro.TimeoutSeconds)
	assert.Equal(t, "http://127.0.0.1:8500", cfg.Backends.Zonos.BaseURL)
	assert.Equal(t, 120, cfg.Backends.Zonos.TimeoutSeconds)
	assert.Equal(t, "/var/lib/voice-agent/voices.db", cfg.Store.DatabasePath)
	assert.InEpsilon(t, 0.25, cfg.Limits.MinSpeed, 0.001)
	assert.InEpsilon(t, 4.0, cfg.Limits.MaxSpeed, 0.001)
	assert.Equal(t, 10000, cfg.Limits.MaxTextChars)
	assert.Equal(t, 120, cfg.Limits.JobTimeoutSeconds)
	assert.Equal(t, "/var/log/voice-agent", cfg.Paths.BaseLogsDir)
}

func TestConfigZeroValuesForMissingSections(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(`[service]
listen_address = ":8088"
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, ":8088", cfg.Service.ListenAddress)
	assert.Empty(t, cfg.NATS.URL)
	assert.Empty(t, cfg.Backends.Kokoro.Presets)
	assert.Zero(t, cfg.Limits.MaxTextChars)
}
