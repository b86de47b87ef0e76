package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/okhabit/okhabit/internal/database"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command with up and status subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(newMigrateUpCmd(), newMigrateStatusCmd())
	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(db *database.DB) error {
				applied, err := database.Migrate(cmd.Context(), db)
				for _, v := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "Applied %03d\n", v)
				}
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				}
				return nil
			})
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which migrations have been applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(db *database.DB) error {
				migrations, applied, err := database.MigrationStatus(cmd.Context(), db)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
				for _, m := range migrations {
					status := "pending"
					if applied[m.Version] {
						status = "applied"
					}
					fmt.Fprintf(w, "%03d\t%s\t%s\n", m.Version, m.Name, status)
				}
				return w.Flush()
			})
		},
	}
}
