package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatbridge/internal/config"
)

func newCheckConfigCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.Sources{File: g.configFile, EnvFile: g.envFile})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "server:   %s\n", cfg.ServerAddress)
			fmt.Fprintf(out, "reconnect: every %s, at most %s apart", cfg.ReconnectInterval, cfg.MaxReconnectDelay)
			if cfg.MaxReconnectTries > 0 {
				fmt.Fprintf(out, ", %d tries", cfg.MaxReconnectTries)
			}
			fmt.Fprintln(out)
			if cfg.MetricsAddress != "" {
				fmt.Fprintf(out, "metrics:  %s\n", cfg.MetricsAddress)
			}
			fmt.Fprintln(out, "config OK")
			return nil
		},
	}
}
