// Package cli implements the ghstats command-line interface: a sync command
// that runs one incremental ingestion pass, and a stats command reporting on
// what has been persisted.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/just-nibble/gh-stats/pkg/config"
)

// RootCommand builds the ghstats command tree.
func RootCommand() *cobra.Command {
	var (
		configPath string
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "ghstats",
		Short:         "Sync GitHub organisation metadata into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default config.toml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(syncCommand(&configPath))
	root.AddCommand(statsCommand(&configPath))

	return root
}

// loadConfig reads the configuration for a subcommand run.
func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
