package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/roamsync/config"
	coremetrics "github.com/kilianp07/roamsync/core/metrics"
	"github.com/kilianp07/roamsync/core/roaming"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration related commands",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the configuration file",
	RunE:  runConfigCheck,
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	known := make(map[string]bool)
	for _, t := range roaming.PusherTypes() {
		known[t] = true
	}
	out := cmd.OutOrStdout()
	for _, p := range cfg.Providers {
		if !known[p.Pusher.Type] {
			return fmt.Errorf("provider %s: unknown pusher type %q", p.ID, p.Pusher.Type)
		}
		fmt.Fprintf(out, "provider %s: pusher=%s service=%s status=%s\n",
			p.ID, p.Pusher.Type, p.Roaming.ServiceCheckInterval, p.Roaming.StatusCheckInterval)
	}
	sinks := make(map[string]bool)
	for _, t := range coremetrics.MetricsSinkTypes() {
		sinks[t] = true
	}
	for _, sc := range cfg.Metrics.Sinks {
		if !sinks[sc.Type] {
			return fmt.Errorf("metrics: unknown sink type %q", sc.Type)
		}
	}
	fmt.Fprintf(out, "%s: ok\n", cfgPath)
	return nil
}
