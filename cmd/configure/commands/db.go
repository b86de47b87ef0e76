package commands

import (
	"fmt"

	"github.com/okhabit/okhabit/internal/config"
	"github.com/okhabit/okhabit/internal/database"
	"github.com/spf13/cobra"
)

// withDatabase opens the database named by DATABASE_URL for the duration of fn.
func withDatabase(cmd *cobra.Command, fn func(db *database.DB) error) error {
	url, err := config.LoadDatabaseURL()
	if err != nil {
		return err
	}
	db, err := database.New(url)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close database: %v\n", err)
		}
	}()
	return fn(db)
}
