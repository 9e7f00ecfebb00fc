package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "exposure-search",
	Short: "Aggregated breach-exposure search",
	Long: `exposure-search fans a query out to the internal credential index and
every configured external breach API, then merges, deduplicates and ranks
the answers.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file (env EXPOSURE_SEARCH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
