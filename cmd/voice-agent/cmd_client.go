package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/book-expert/voice-agent/internal/dispatcher"
)

const outputFileMode = 0o600

var (
	// ErrTextMissing indicates that neither --text nor --file was given.
	ErrTextMissing = errors.New("either --text or --file must be provided")
	// ErrTextConflict indicates that both --text and --file were given.
	ErrTextConflict = errors.New("cannot specify both --text and --file")

	errUnexpectedPayload = errors.New("unexpected payload type")
)

// synthesizeFlags holds the flag values for the synthesize command.
type synthesizeFlags struct {
	text      string
	textFile  string
	backendID string
	voice     string
	cloneFrom string
	voiceID   string
	speed     float64
	language  string
	output    string
}

func newSynthesizeCommand() *cobra.Command {
	var flags synthesizeFlags

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Render speech to a WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSynthesize(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.text, "text", "", "Text to speak")
	cmd.Flags().StringVar(&flags.textFile, "file", "", "Read the text from this file")
	cmd.Flags().StringVar(&flags.backendID, "backend", "", "Backend to use (kokoro or zonos)")
	cmd.Flags().StringVar(&flags.voice, "voice", "", "Preset name or cloned voice id")
	cmd.Flags().StringVar(&flags.cloneFrom, "clone-from", "", "Clone this reference sample and speak with it")
	cmd.Flags().StringVar(&flags.voiceID, "voice-id", "", "Persist the clone under this id (with --clone-from)")
	cmd.Flags().Float64Var(&flags.speed, "speed", 0, "Speaking speed multiplier")
	cmd.Flags().StringVar(&flags.language, "language", "", "Language hint")
	cmd.Flags().StringVar(&flags.output, "output", "out.wav", "Output file path (.wav)")

	return cmd
}

func runSynthesize(cmd *cobra.Command, flags synthesizeFlags) error {
	text, err := resolveText(flags.text, flags.textFile)
	if err != nil {
		return err
	}

	input := dispatcher.Input{
		Operation:   dispatcher.OpSynthesize,
		Text:        text,
		Voice:       flags.voice,
		VoiceID:     flags.voiceID,
		Speed:       flags.speed,
		Language:    flags.language,
		Backend:     flags.backendID,
		AudioBase64: "",
		AudioURL:    "",
		AudioKey:    "",
		MakeDefault: false,
	}

	if flags.cloneFrom != "" {
		sample, readErr := os.ReadFile(flags.cloneFrom)
		if readErr != nil {
			return fmt.Errorf("failed to read reference sample '%s': %w", flags.cloneFrom, readErr)
		}

		input.Operation = dispatcher.OpSynthesizeWithClone
		input.AudioBase64 = base64.StdEncoding.EncodeToString(sample)
	}

	payload, jobErr := dispatchLocal(cmd, input)
	if jobErr != nil {
		return jobErr
	}

	response, ok := payload.(dispatcher.SynthesisResponse)
	if !ok {
		return fmt.Errorf("%w: %T", errUnexpectedPayload, payload)
	}

	wavData, err := base64.StdEncoding.DecodeString(response.AudioBase64)
	if err != nil {
		return fmt.Errorf("failed to decode rendered audio: %w", err)
	}

	err = os.WriteFile(flags.output, wavData, outputFileMode)
	if err != nil {
		return fmt.Errorf("failed to write output file '%s': %w", flags.output, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%.2fs at %d Hz)\n",
		flags.output, response.Duration, response.SampleRate)

	if response.VoiceID != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Voice id: %s\n", response.VoiceID)
	}

	return nil
}

func newCloneCommand() *cobra.Command {
	var samplePath, voiceID, backendID string

	var makeDefault bool

	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Create a cloned voice from a reference sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sample, err := os.ReadFile(samplePath)
			if err != nil {
				return fmt.Errorf("failed to read reference sample '%s': %w", samplePath, err)
			}

			payload, jobErr := dispatchLocal(cmd, dispatcher.Input{
				Operation:   dispatcher.OpClone,
				Text:        "",
				Voice:       "",
				VoiceID:     voiceID,
				Speed:       0,
				Language:    "",
				Backend:     backendID,
				AudioBase64: base64.StdEncoding.EncodeToString(sample),
				AudioURL:    "",
				AudioKey:    "",
				MakeDefault: makeDefault,
			})
			if jobErr != nil {
				return jobErr
			}

			response, ok := payload.(dispatcher.CloneResponse)
			if !ok {
				return fmt.Errorf("%w: %T", errUnexpectedPayload, payload)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Cloned voice id: %s\n", response.VoiceID)

			return nil
		},
	}

	cmd.Flags().StringVar(&samplePath, "sample", "", "Path to the reference audio sample")
	cmd.Flags().StringVar(&voiceID, "voice-id", "", "Store the voice under this id")
	cmd.Flags().StringVar(&backendID, "backend", "", "Backend to clone with (kokoro or zonos)")
	cmd.Flags().BoolVar(&makeDefault, "make-default", false, "Make this the backend's default voice")

	_ = cmd.MarkFlagRequired("sample")

	return cmd
}

func newVoicesCommand() *cobra.Command {
	var backendID string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List preset and cloned voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, jobErr := dispatchLocal(cmd, dispatcher.Input{
				Operation:   dispatcher.OpListVoices,
				Text:        "",
				Voice:       "",
				VoiceID:     "",
				Speed:       0,
				Language:    "",
				Backend:     backendID,
				AudioBase64: "",
				AudioURL:    "",
				AudioKey:    "",
				MakeDefault: false,
			})
			if jobErr != nil {
				return jobErr
			}

			encoded, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode voice catalog: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

			return nil
		},
	}

	cmd.Flags().StringVar(&backendID, "backend", "", "Backend to list (kokoro or zonos)")

	return cmd
}

// dispatchLocal bootstraps the pipeline and runs one operation in-process.
func dispatchLocal(cmd *cobra.Command, input dispatcher.Input) (any, error) {
	cfg, log, err := setup()
	if err != nil {
		return nil, err
	}

	application, err := newApp(cfg, log, nil)
	if err != nil {
		return nil, err
	}
	defer application.Close()

	payload, jobErr := application.dispatcher.Dispatch(cmd.Context(), input)
	if jobErr != nil {
		return nil, fmt.Errorf("%s: %s", jobErr.Code, jobErr.Message)
	}

	return payload, nil
}

func resolveText(text, textFile string) (string, error) {
	switch {
	case text != "" && textFile != "":
		return "", ErrTextConflict
	case text != "":
		return text, nil
	case textFile != "":
		content, err := os.ReadFile(textFile)
		if err != nil {
			return "", fmt.Errorf("failed to read text file '%s': %w", textFile, err)
		}

		return string(content), nil
	default:
		return "", ErrTextMissing
	}
}
