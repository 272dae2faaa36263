// Package cli implements catalogctl, the operator command line for the
// workout catalog.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"peakfit/workout-catalog/internal/bootstrap"
	"peakfit/workout-catalog/internal/config"
	"peakfit/workout-catalog/internal/logging"
	"peakfit/workout-catalog/internal/repository"
	"peakfit/workout-catalog/internal/service"
)

// annotationStore set to "none" on a command skips opening the store.
const annotationStore = "store"

// Deps carries flag values and the resources commands run against.
type Deps struct {
	ConfigPath string
	LogLevel   string
	Owner      string

	Logger zerolog.Logger
	// Catalog and Auth are built from config unless already set.
	Catalog repository.WorkoutCatalog
	Auth    service.AuthService

	app *bootstrap.App
}

// repo returns the repository for the --owner flag.
func (d *Deps) repo() (repository.WorkoutRepository, error) {
	return d.Catalog.ForOwner(d.Owner)
}

func (d *Deps) close(ctx context.Context) error {
	if d.app == nil {
		return nil
	}
	err := d.app.Close(ctx)
	d.app = nil
	return err
}

func NewRootCmd(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = &Deps{}
	}

	cmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "inspect and maintain the workout catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			needsStore := cmd.Annotations[annotationStore] != "none"
			if needsStore && deps.Catalog != nil || !needsStore && deps.Auth != nil {
				return nil
			}

			var (
				cfg config.Config
				err error
			)
			if deps.ConfigPath != "" {
				cfg, err = config.LoadFile(deps.ConfigPath)
			} else {
				cfg, err = config.LoadConfig(".")
			}
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = deps.LogLevel
			}
			deps.Logger = logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
			cmd.SetContext(logging.WithLogger(cmd.Context(), deps.Logger))
			if deps.Auth == nil {
				deps.Auth = service.NewAuthService(cfg.JWT.Secret, cfg.JWT.Expiration)
			}
			if !needsStore {
				return nil
			}

			app, err := bootstrap.Open(cmd.Context(), cfg, deps.Logger)
			if err != nil {
				return err
			}
			deps.app = app
			deps.Catalog = app.Catalog
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", "", "path to config file (default ./config.yaml)")
	cmd.PersistentFlags().StringVar(&deps.LogLevel, "log-level", "info", "minimum log level")
	cmd.PersistentFlags().StringVar(&deps.Owner, "owner", "", "user id to act as (required in owner scope and for import)")

	cmd.AddCommand(
		NewListCmd(deps),
		NewGetCmd(deps),
		NewImportCmd(deps),
		NewDeleteAllCmd(deps),
		NewReconcileCmd(deps),
		NewPendingCmd(deps),
		NewTokenCmd(deps),
	)
	return cmd
}

// Run executes catalogctl with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer, deps *Deps) (int, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if deps == nil {
		deps = &Deps{}
	}
	cmd := NewRootCmd(deps)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if cerr := deps.close(context.Background()); err == nil {
		err = cerr
	}
	if err != nil {
		if errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			return 130, err
		}
		return 1, err
	}
	return 0, nil
}
