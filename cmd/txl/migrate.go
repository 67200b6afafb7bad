package txl

import (
	"os"
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/zefrenchwan/txl.git/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create database schemas and the admin user",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	current, logger, errSettings := loadSettings()
	if errSettings != nil {
		return errSettings
	}

	defer logger.Sync()
	sugar := logger.Sugar().Named("migrate")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	dao, errDao := storage.NewDao(ctx, current.DatabaseURL)
	if errDao != nil {
		return errDao
	}

	defer dao.Close()
	if err := dao.Migrate(ctx); err != nil {
		return err
	}

	sugar.Infow("schema migrated", "operation", "migrate")
	if current.AdminPassword == "" {
		sugar.Warnw("no admin password, admin user unchanged", "operation", "migrate")
		return nil
	}

	// no creator: bootstrap user
	if err := dao.UpsertUser(ctx, "", current.AdminLogin, current.AdminPassword); err != nil {
		return errors.Wrapf(err, "cannot create user %s", current.AdminLogin)
	}

	sugar.Infow("admin user set", "operation", "migrate", "user", current.AdminLogin)
	return nil
}
