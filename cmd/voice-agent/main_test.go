package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-agent/internal/config"
	"github.com/book-expert/voice-agent/internal/orchestrator"
)

func TestResolveText(t *testing.T) {
	t.Parallel()

	textFile := filepath.Join(t.TempDir(), "speech.txt")
	require.NoError(t, os.WriteFile(textFile, []byte("from a file"), 0o600))

	text, err := resolveText("inline text", "")
	require.NoError(t, err)
	assert.Equal(t, "inline text", text)

	text, err = resolveText("", textFile)
	require.NoError(t, err)
	assert.Equal(t, "from a file", text)

	_, err = resolveText("", "")
	require.ErrorIs(t, err, ErrTextMissing)

	_, err = resolveText("inline text", textFile)
	require.ErrorIs(t, err, ErrTextConflict)
}

func TestReadEnvelope(t *testing.T) {
	t.Parallel()

	envelope := `{"input":{"operation":"list_voices"}}`

	raw, err := readEnvelope(strings.NewReader(envelope), "")
	require.NoError(t, err)
	assert.JSONEq(t, envelope, string(raw))

	envelopePath := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(envelopePath, []byte(envelope), 0o600))

	raw, err = readEnvelope(strings.NewReader(""), envelopePath)
	require.NoError(t, err)
	assert.JSONEq(t, envelope, string(raw))

	_, err = readEnvelope(strings.NewReader(""), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLimitsFromConfigOverrides(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	assert.Equal(t, orchestrator.DefaultLimits(), limitsFromConfig(&cfg))

	cfg.Limits.MaxSpeed = 2.0
	cfg.Limits.MaxTextChars = 500

	limits := limitsFromConfig(&cfg)
	assert.InEpsilon(t, orchestrator.DefaultLimits().MinSpeed, limits.MinSpeed, 0.001)
	assert.InEpsilon(t, 2.0, limits.MaxSpeed, 0.001)
	assert.Equal(t, 500, limits.MaxTextChars)
}
