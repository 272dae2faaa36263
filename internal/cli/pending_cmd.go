package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"peakfit/workout-catalog/internal/domain"
)

func NewPendingCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "moderate workouts waiting for approval",
	}
	cmd.AddCommand(
		newPendingListCmd(deps),
		newPendingApproveCmd(deps),
		newPendingRejectCmd(deps),
	)
	return cmd
}

func newPendingListCmd(deps *Deps) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list queued workouts in submission order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, err := deps.Catalog.Pending().List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), pending)
			}
			return renderWorkouts(cmd.OutOrStdout(), pending)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newPendingApproveCmd(deps *Deps) *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "file a queued workout in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.WorkoutPatch
			if cmd.Flags().Changed("day") {
				patch.Day = &day
			}
			w, err := deps.Catalog.Pending().Approve(cmd.Context(), args[0], patch)
			if err != nil {
				return describeValidation(err)
			}
			return writeJSON(cmd.OutOrStdout(), w)
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "file the workout under this day instead")
	return cmd
}

func newPendingRejectCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "drop a queued workout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Catalog.Pending().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "pending workout %s rejected\n", args[0])
			return err
		},
	}
}
