package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newJobCommand() *cobra.Command {
	var envelopePath string

	cmd := &cobra.Command{
		Use:   "job",
		Short: "Process a single operation envelope and print the response",
		Long: "job reads a JSON envelope of the form {\"input\":{\"operation\":...}}\n" +
			"from --envelope or stdin, runs it, and writes the JSON response to\n" +
			"stdout. The exit code is zero even for failed jobs; failures are\n" +
			"reported in the response body.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJob(cmd, envelopePath)
		},
	}

	cmd.Flags().StringVar(&envelopePath, "envelope", "", "Path to the envelope JSON file (default stdin)")

	return cmd
}

func runJob(cmd *cobra.Command, envelopePath string) error {
	raw, err := readEnvelope(cmd.InOrStdin(), envelopePath)
	if err != nil {
		return err
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}

	application, err := newApp(cfg, log, nil)
	if err != nil {
		return err
	}
	defer application.Close()

	response := application.dispatcher.DispatchRaw(cmd.Context(), raw)

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(response))
	if err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}

	return nil
}

func readEnvelope(stdin io.Reader, envelopePath string) ([]byte, error) {
	if envelopePath == "" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read envelope from stdin: %w", err)
		}

		return raw, nil
	}

	raw, err := os.ReadFile(envelopePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read envelope file '%s': %w", envelopePath, err)
	}

	return raw, nil
}
