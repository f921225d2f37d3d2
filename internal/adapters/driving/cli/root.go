// Package cli provides the perch command-line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/perch-labs/perch/internal/adapters/driven/config/file"
	"github.com/perch-labs/perch/internal/logger"
)

// version is set by Execute before the command tree runs.
var version = "dev"

var (
	configPath  string
	verboseFlag bool

	// settings is loaded once in the persistent pre-run and read by
	// every subcommand.
	settings *file.Settings
)

var rootCmd = &cobra.Command{
	Use:   "perch",
	Short: "Perch bridges a chat workspace to a RAG assistant backend",
	Long: `Perch answers questions in a chat workspace by querying a
retrieval-augmented assistant backend, and keeps the backend's document
index in sync with the configured documentation sources.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		logger.SetVerbose(verboseFlag)

		path := configPath
		if path == "" {
			var err error
			if path, err = file.DefaultPath(); err != nil {
				return err
			}
		}

		var err error
		settings, err = file.Load(path)
		if err != nil {
			return err
		}
		if settings.Server.Verbose {
			logger.SetVerbose(true)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the settings file (default ~/.perch/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the command tree.
func Execute(v string) error {
	version = v
	return rootCmd.Execute()
}
