package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-agent/internal/audio"
	"github.com/book-expert/voice-agent/internal/core"
)

const (
	// kokoroKindSample marks a signal-level descriptor holding the processed
	// reference sample itself.
	kokoroKindSample = "reference-sample"

	kokoroSampleRate = 24000
)

// ErrKokoroBinaryMissing indicates the engine binary could not be found.
var ErrKokoroBinaryMissing = errors.New("kokoro engine binary not found")

// KokoroConfig configures the kokoro engine invocation. A zero
// TimeoutSeconds leaves the engine run bounded only by the caller's context.
type KokoroConfig struct {
	BinaryPath     string
	ModelPath      string
	Presets        []string
	Default        string
	TimeoutSeconds int
}

// CommandRunner executes an engine command and returns its combined output.
// It exists so tests can substitute the real binary.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes the named command and returns its combined output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- name and args are built from validated configuration
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("command '%s' failed: %w", name, err)
	}

	return output, nil
}

// Kokoro adapts the kokoro engine binary to the core.Backend interface.
// Voice cloning is signal-level: the descriptor is the processed reference
// sample itself, resampled to the engine's native rate. Fast to derive,
// lower fidelity than a learned embedding.
type Kokoro struct {
	config KokoroConfig
	runner CommandRunner
	log    *logger.Logger
}

// NewKokoro creates the kokoro adapter. The default preset list matches the
// engine's built-in voices.
func NewKokoro(cfg KokoroConfig, runner CommandRunner, log *logger.Logger) *Kokoro {
	if len(cfg.Presets) == 0 {
		cfg.Presets = []string{"af_heart", "af_woh", "am_standard"}
	}

	if cfg.Default == "" {
		cfg.Default = cfg.Presets[0]
	}

	return &Kokoro{
		config: cfg,
		runner: runner,
		log:    log,
	}
}

// Name returns the backend tag.
func (k *Kokoro) Name() core.BackendName {
	return core.BackendKokoro
}

// Presets returns the engine's built-in voice catalog.
func (k *Kokoro) Presets() []string {
	return slices.Clone(k.config.Presets)
}

// DefaultPreset returns the preset used when nothing else is requested.
func (k *Kokoro) DefaultPreset() (string, bool) {
	return k.config.Default, true
}

// Synthesize renders text by invoking the engine binary and reading back the
// WAV file it writes.
func (k *Kokoro) Synthesize(
	ctx context.Context,
	text string,
	voice core.VoiceDescriptor,
	params core.SynthesisParams,
) (core.AudioResult, error) {
	workDir, err := os.MkdirTemp("", "kokoro-*")
	if err != nil {
		return core.AudioResult{}, fmt.Errorf("%w: failed to create work directory: %w", core.ErrResource, err)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			k.log.Warn("Failed to remove kokoro work directory '%s': %v", workDir, removeErr)
		}
	}()

	outputPath := filepath.Join(workDir, "output.wav")

	args, err := k.buildArgs(workDir, outputPath, text, voice, params)
	if err != nil {
		return core.AudioResult{}, err
	}

	runCtx := ctx

	if k.config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, time.Duration(k.config.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	output, err := k.runner.Run(runCtx, k.config.BinaryPath, args...)
	if err != nil {
		if k.config.TimeoutSeconds > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return core.AudioResult{}, fmt.Errorf(
				"%w: engine run exceeded %d seconds", core.ErrTimeout, k.config.TimeoutSeconds)
		}

		return core.AudioResult{}, k.classifyRunError(err, output)
	}

	wavData, err := os.ReadFile(outputPath)
	if err != nil {
		return core.AudioResult{}, fmt.Errorf("%w: engine produced no output: %w", core.ErrBackend, err)
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

// DeriveVoice builds a signal-level descriptor: the reference sample decoded,
// downmixed, and resampled to the engine's native rate, stored as WAV.
func (k *Kokoro) DeriveVoice(_ context.Context, sample []byte) (core.VoiceDescriptor, error) {
	pcm, err := prepareSample(sample, kokoroSampleRate)
	if err != nil {
		return core.VoiceDescriptor{}, err
	}

	wavData, err := audio.EncodeWAV(pcm, kokoroSampleRate)
	if err != nil {
		return core.VoiceDescriptor{}, fmt.Errorf("%w: failed to encode reference sample: %w", core.ErrBackend, err)
	}

	return core.VoiceDescriptor{
		Backend: core.BackendKokoro,
		Kind:    kokoroKindSample,
		Preset:  "",
		Data:    wavData,
	}, nil
}

func (k *Kokoro) buildArgs(
	workDir, outputPath, text string,
	voice core.VoiceDescriptor,
	params core.SynthesisParams,
) ([]string, error) {
	args := []string{
		"--model", k.config.ModelPath,
		"--text", text,
		"--speed", strconv.FormatFloat(params.Speed, 'f', 2, 64),
		"--output", outputPath,
	}

	if params.Language != "" {
		args = append(args, "--lang", params.Language)
	}

	switch voice.Kind {
	case core.DescriptorKindPreset:
		args = append(args, "--voice", voice.Preset)
	case kokoroKindSample:
		refPath := filepath.Join(workDir, "reference.wav")

		err := os.WriteFile(refPath, voice.Data, 0o600)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to write reference sample: %w", core.ErrResource, err)
		}

		args = append(args, "--ref", refPath)
	default:
		return nil, fmt.Errorf("%w: kokoro cannot use descriptor kind '%s'", core.ErrBackend, voice.Kind)
	}

	return args, nil
}

// classifyRunError separates "engine is unavailable" from "engine rejected
// the job". A missing binary is a deployment problem, not an input problem.
func (k *Kokoro) classifyRunError(err error, output []byte) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w: %s", core.ErrResource, ErrKokoroBinaryMissing, k.config.BinaryPath)
	}

	// Keep the engine's own output in the wrapped chain for logs; the
	// dispatcher exposes only the generic message externally.
	preview := output
	if len(preview) > 512 {
		preview = preview[:512]
	}

	return fmt.Errorf("%w: kokoro engine failed: %w - output: %s", core.ErrBackend, err, string(preview))
}
