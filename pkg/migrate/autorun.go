package migrate

import (
	"context"
	"fmt"

	"github.com/openfoodnetwork/ofn-backend/pkg/config"
	"github.com/openfoodnetwork/ofn-backend/pkg/db"
	"github.com/openfoodnetwork/ofn-backend/pkg/db/models"
	"github.com/openfoodnetwork/ofn-backend/pkg/logger"
)

// AutoRun brings the schema up to date at process start. It only acts in dev
// with OFN_AUTO_MIGRATE set, so shared environments keep migrating through
// cmd/migrate. SQLite is built from the models because the goose files are
// Postgres SQL.
func AutoRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	}

	if cfg.DB.Driver == config.DriverSQLite {
		if err := client.DB().WithContext(ctx).AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("sqlite auto-migrate: %w", err)
		}
		if logg != nil {
			logg.Info(ctx, "sqlite schema migrated from models")
		}
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return err
	}
	if logg != nil {
		logg.Info(ctx, "embedded goose migrations applied")
	}
	return nil
}
