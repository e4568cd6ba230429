package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/just-nibble/gh-stats/internal/data"
	"github.com/just-nibble/gh-stats/internal/service"
	"github.com/just-nibble/gh-stats/pkg/github"
)

// syncCommand creates the sync subcommand.
func syncCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [org...]",
		Short: "Run one incremental sync pass",
		Long: `Fetch organisations, teams, users, repositories and commits from the
GitHub API and reconcile them into the database. Organisation logins come
from the config file unless given as arguments. The run is incremental:
already-ingested commits are not re-fetched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			orgs := cfg.Orgs
			if len(args) > 0 {
				orgs = args
			}
			if len(orgs) == 0 {
				return fmt.Errorf("no organisations configured; pass logins as arguments or set orgs in the config file")
			}

			db, err := data.Open(cfg.Database.DSN())
			if err != nil {
				return err
			}

			client := github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Login, cfg.GitHub.Token)
			syncer := service.NewSyncer(data.NewStore(db), client)

			log.Info().Strs("orgs", orgs).Msg("starting sync")
			if err := syncer.Run(cmd.Context(), orgs); err != nil {
				return err
			}
			log.Info().Msg("sync complete")
			return nil
		},
	}
}
