package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/learner-progress/internal/app"
	"github.com/JakeFAU/learner-progress/internal/config"
)

func newMigrateCmd(rt *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the progress table and its indexes",
		Long: `Applies the idempotent progress schema to the configured Postgres
database. Only meaningful when storage.driver is postgres.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.Storage.Driver != config.DriverPostgres {
				return fmt.Errorf("migrate requires storage.driver=%s, got %q", config.DriverPostgres, rt.cfg.Storage.Driver)
			}
			pg, err := app.OpenPostgres(cmd.Context(), rt.cfg.DB)
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			rt.logger.Info("progress schema applied", zap.String("table", rt.cfg.DB.Table))
			return nil
		},
	}
}
