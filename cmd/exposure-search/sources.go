package main

import (
	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and probe their health",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	a.monitor.ProbeAll(cmd.Context())
	infos, err := a.service.ListSources(cmd.Context())
	if err != nil {
		return err
	}
	details, err := a.service.SourceHealth(cmd.Context(), "")
	if err != nil {
		return err
	}
	renderSources(cmd.OutOrStdout(), infos, details)
	return nil
}
