package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func NewDeleteAllCmd(deps *Deps) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "remove every workout in scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete the catalog without --yes")
			}
			repo, err := deps.repo()
			if err != nil {
				return err
			}
			if err := repo.DeleteAll(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "catalog deleted")
			return err
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func NewReconcileCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "remove duplicate copies left by interrupted moves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := deps.repo()
			if err != nil {
				return err
			}
			report, err := repo.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
}
