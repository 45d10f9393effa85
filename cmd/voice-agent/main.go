// main package for the voice-agent.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Environment files are optional; the configurator falls back to its
	// own discovery when none is present.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "voice-agent",
		Short: "Text-to-speech and voice-cloning service",
		Long: "voice-agent renders speech with the kokoro and zonos backends,\n" +
			"manages cloned voices, and serves jobs over HTTP, NATS, or one-shot\n" +
			"envelopes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newWorkerCommand(),
		newJobCommand(),
		newSynthesizeCommand(),
		newCloneCommand(),
		newVoicesCommand(),
	)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voice-agent: %v\n", err)
		os.Exit(1)
	}
}
