package cli

import (
	"github.com/spf13/cobra"
)

func NewGetCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "print one workout as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := deps.repo()
			if err != nil {
				return err
			}
			w, err := repo.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), w)
		},
	}
}
