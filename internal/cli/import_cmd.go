package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"peakfit/workout-catalog/internal/domain"
	"peakfit/workout-catalog/internal/logging"
)

func NewImportCmd(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "bulk insert workouts from a YAML or JSON array (- for stdin)",
		Long: "Reads a list of workouts and inserts them in one write. " +
			"Nothing is written unless every record is valid. --owner becomes createdBy.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if deps.Owner == "" {
				return errors.New("import requires --owner")
			}

			var (
				raw []byte
				err error
			)
			if args[0] == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			records, err := decodeWorkouts(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			repo, err := deps.repo()
			if err != nil {
				return err
			}
			created, err := repo.BulkInsert(cmd.Context(), deps.Owner, records)
			if err != nil {
				return describeValidation(err)
			}

			logger := logging.FromContext(cmd.Context())
			logger.Info().Int("count", len(created)).Str("file", args[0]).Msg("imported workouts")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d workouts\n", len(created))
			return err
		},
	}
}

// decodeWorkouts parses a YAML sequence (JSON arrays are valid YAML) using
// the same field names as the HTTP API.
func decodeWorkouts(raw []byte) ([]domain.Workout, error) {
	var items []map[string]any
	if err := yaml.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("expected a list of workouts: %w", err)
	}

	records := make([]domain.Workout, 0, len(items))
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &records,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, err
	}
	return records, nil
}

// describeValidation spells out every field error, since cobra prints only
// the error string.
func describeValidation(err error) error {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) < 2 {
		return err
	}
	msg := verr.Error()
	for _, fe := range verr.Errors {
		msg += fmt.Sprintf("\n  %s: %s", fe.Field, fe.Message)
	}
	return fmt.Errorf("%s: %w", msg, domain.ErrValidation)
}
