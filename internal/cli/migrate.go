package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/costwatch/internal/repository/postgres"
	"github.com/pratik-mahalle/costwatch/migrations"
)

func newMigrateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the cost store",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := postgres.New(o.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.RunMigrations(cmd.Context(), db, migrations.GetFS())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(w, "Schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(w, "Applied %s\n", name)
			}
			return nil
		},
	}
}
