package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loom/internal/stub"
)

func newStubCmd(flags *rootFlags) *cobra.Command {
	var (
		addr     string
		scenario string
	)
	cmd := &cobra.Command{
		Use:   "serve-stub",
		Short: "Serve a scripted stub backend for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, err := loadConfig(flags)
			if err != nil {
				return err
			}
			var script stub.Scenario
			if scenario != "" {
				script, err = stub.LoadScenario(scenario)
				if err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return stub.NewServer(script, logger).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:2024", "listen address")
	cmd.Flags().StringVar(&scenario, "scenario", "", "path to a scenario YAML file")
	return cmd
}
