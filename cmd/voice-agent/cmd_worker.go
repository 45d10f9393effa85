package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/book-expert/voice-agent/internal/core"
	"github.com/book-expert/voice-agent/internal/objectstore"
	"github.com/book-expert/voice-agent/internal/worker"
)

const defaultJobSubject = "voice.jobs"

// ErrNATSURLMissing indicates worker mode was requested without a NATS URL.
var ErrNATSURLMissing = errors.New("worker mode requires nats.url in the configuration")

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run as a NATS request/reply worker",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	if cfg.NATS.URL == "" {
		return ErrNATSURLMissing
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	var store core.ObjectStore

	if cfg.NATS.AudioObjectStoreBucket != "" {
		jetstreamContext, jsErr := natsConnection.JetStream()
		if jsErr != nil {
			return fmt.Errorf("failed to get JetStream context: %w", jsErr)
		}

		store, err = objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
		if err != nil {
			return fmt.Errorf("failed to open object store: %w", err)
		}
	}

	application, err := newApp(cfg, log, store)
	if err != nil {
		return err
	}
	defer application.Close()

	subject := cfg.NATS.JobSubject
	if subject == "" {
		subject = defaultJobSubject
	}

	workerInstance := worker.New(
		natsConnection,
		subject,
		application.dispatcher,
		store,
		cfg.NATS.InlineAudioLimitBytes,
		application.log,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application.checkBackends(ctx)
	application.log.System("Voice agent worker listening on subject %s", subject)

	runErr := workerInstance.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped with error: %w", runErr)
	}

	return nil
}
