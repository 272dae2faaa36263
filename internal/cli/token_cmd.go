package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"peakfit/workout-catalog/internal/domain"
)

func NewTokenCmd(deps *Deps) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:         "token",
		Short:       "mint a bearer token for --owner signed with jwt.secret",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationStore: "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			signed, err := deps.Auth.IssueToken(domain.Caller{UserID: deps.Owner, Role: domain.Role(role)})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
			return err
		},
	}

	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "role claim: user or admin")
	return cmd
}
