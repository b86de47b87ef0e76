package main

import (
	"fmt"
	"os"

	"github.com/okhabit/okhabit/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "okhabit-configure",
		Short:        "Configuration tool for the OKHabit API",
		Long:         "CLI tool for OIDC providers, CORS and rate limit settings, schema migrations and routine checks",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		commands.NewOIDCCmd(),
		commands.NewListCmd(),
		commands.NewTestCmd(),
		commands.NewCorsCmd(),
		commands.NewRatelimitCmd(),
		commands.NewMigrateCmd(),
		commands.NewRoutineCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
