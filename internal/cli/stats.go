package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/just-nibble/gh-stats/internal/data"
)

// statsCommand creates the stats subcommand.
func statsCommand(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report top commit authors from the synced data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			db, err := data.Open(cfg.Database.DSN())
			if err != nil {
				return err
			}

			stats, err := data.NewStore(db).TopAuthors(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AUTHOR\tCOMMITS\tADDITIONS\tDELETIONS")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Name, s.CommitCount, s.Additions, s.Deletions)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of authors to show")
	return cmd
}
