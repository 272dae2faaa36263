package cli

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"peakfit/workout-catalog/internal/domain"
)

func NewListCmd(deps *Deps) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list every workout in path order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := deps.repo()
			if err != nil {
				return err
			}
			workouts, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), workouts)
			}
			return renderWorkouts(cmd.OutOrStdout(), workouts)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func renderWorkouts(w io.Writer, workouts []domain.Workout) error {
	table := tablewriter.NewTable(w)
	table.Header("ID", "Goal", "Limitations", "Level", "Day", "Title", "Duration", "Drift")

	for _, wo := range workouts {
		path := wo.Discriminators()
		drift := ""
		if wo.Location != nil {
			path = wo.Location.Path
			if wo.Location.Drift {
				drift = "yes"
			}
		}
		if err := table.Append(
			wo.ID, path.Goal, path.Limitations, path.Level, path.Day,
			wo.Title, strconv.Itoa(wo.Duration), drift,
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
