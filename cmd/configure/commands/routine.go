package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/routine"
	"github.com/spf13/cobra"
)

// NewRoutineCmd creates the routine command for checking recurrence descriptors offline.
func NewRoutineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routine",
		Short: "Inspect routine descriptors",
	}
	cmd.AddCommand(newRoutineCheckCmd())
	return cmd
}

func newRoutineCheckCmd() *cobra.Command {
	var from, createdAt string
	var days int

	cmd := &cobra.Command{
		Use:     "check <routine>",
		Short:   "Validate a routine and list its due dates",
		Example: "  okhabit-configure routine check weekly:1,3,5 --from 2024-03-04 --days 14",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := routine.Parse(args[0])
			if err != nil {
				return err
			}
			if days < 1 || days > 366 {
				return errors.New("--days must be between 1 and 366")
			}

			start := models.Today(time.Now(), time.UTC)
			if from != "" {
				if start, err = models.ParseDate(from); err != nil {
					return errors.New("--from must be YYYY-MM-DD")
				}
			}
			var anchor *time.Time
			if createdAt != "" {
				d, err := models.ParseDate(createdAt)
				if err != nil {
					return errors.New("--created-at must be YYYY-MM-DD")
				}
				t := d.Time()
				anchor = &t
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Routine: %s (%s)\n", rt.String(), rt.Describe())
			if rt.IsAvoid() {
				fmt.Fprintln(out, "Avoid activity: due every day, completion counts against it")
			}
			due := 0
			for i := range days {
				d := start.AddDays(i)
				if rt.DueOn(anchor, d.Time()) {
					fmt.Fprintf(out, "  %s %s\n", d, d.Time().Weekday().String()[:3])
					due++
				}
			}
			fmt.Fprintf(out, "%d of %d days due\n", due, days)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First date to check (YYYY-MM-DD, default today UTC)")
	cmd.Flags().IntVar(&days, "days", 14, "Number of days to check")
	cmd.Flags().StringVar(&createdAt, "created-at", "", "Anchor date for custom routines (YYYY-MM-DD)")
	return cmd
}
