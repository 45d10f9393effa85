package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/book-expert/voice-agent/internal/service"
)

const defaultListenAddress = ":8088"

func newServeCommand() *cobra.Command {
	var listenAddress string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the always-on HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(listenAddress)
		},
	}

	cmd.Flags().StringVar(&listenAddress, "listen", "", "Listen address (overrides configuration)")

	return cmd
}

func runServe(listenAddress string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	application, err := newApp(cfg, log, nil)
	if err != nil {
		return err
	}
	defer application.Close()

	addr := listenAddress
	if addr == "" {
		addr = application.cfg.Service.ListenAddress
	}

	if addr == "" {
		addr = defaultListenAddress
	}

	application.checkBackends(context.Background())

	server := service.New(application.dispatcher, addr, application.log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)

	go func() {
		errChan <- server.ListenAndServe()
	}()

	application.log.System("Voice agent serving HTTP on %s", addr)

	select {
	case sig := <-stop:
		application.log.System("Received %s, shutting down", sig)

		return server.Shutdown()
	case err = <-errChan:
		return err
	}
}
