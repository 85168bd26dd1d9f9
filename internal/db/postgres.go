package db

import (
  "fmt"
  "gorm.io/driver/postgres"
  "gorm.io/gorm"
  "github.com/orionsky/obsdb-backend/internal/types"
  "github.com/orionsky/obsdb-backend/internal/utils"
  "github.com/orionsky/obsdb-backend/internal/logger"
)

type PostgresService struct {
  db *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  log.Info("Loading environment variables...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "obsdb", log)
  log.Debug("Environment variables loaded")

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  log.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
  }

  if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
    log.Error("Failed to enable uuid-ossp extension", "error", err)
    return nil, fmt.Errorf("Failed to enable uuid-ossp extension: %w", err)
  }
  log.Info("uuid-ossp extension enabled")

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.Program{},
    &types.Group{},
    &types.Observation{},
    &types.Target{},
    &types.AsterismTarget{},
    &types.GmosLongSlit{},
    &types.Obscalc{},
    &types.BlindOffset{},
    &types.Sequence{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }
  s.log.Info("Configuring constraints for postgres tables...")
  for name, stmt := range constraintStatements {
    if err := s.db.Exec(stmt).Error; err != nil {
      return fmt.Errorf("Failed to apply %s: %w", name, err)
    }
  }
  return nil
}

// Constraints GORM cannot express: cascading deletes into the calc entries,
// the retry-field check constraints, and the partial index the queue scan
// uses. Statements are written to be re-runnable.
var constraintStatements = map[string]string{
  "fk_obscalc_observation": `
    DO $$ BEGIN
      ALTER TABLE "t_obscalc"
      ADD CONSTRAINT "fk_obscalc_observation"
      FOREIGN KEY ("observation_id")
      REFERENCES "t_observation"("id")
      ON DELETE CASCADE;
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "fk_blind_offset_observation": `
    DO $$ BEGIN
      ALTER TABLE "t_blind_offset"
      ADD CONSTRAINT "fk_blind_offset_observation"
      FOREIGN KEY ("observation_id")
      REFERENCES "t_observation"("id")
      ON DELETE CASCADE;
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "fk_group_parent": `
    DO $$ BEGIN
      ALTER TABLE "t_group"
      ADD CONSTRAINT "fk_group_parent"
      FOREIGN KEY ("parent_id")
      REFERENCES "t_group"("id");
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "fk_observation_group": `
    DO $$ BEGIN
      ALTER TABLE "t_observation"
      ADD CONSTRAINT "fk_observation_group"
      FOREIGN KEY ("group_id")
      REFERENCES "t_group"("id");
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "chk_obscalc_retry_at": `
    DO $$ BEGIN
      ALTER TABLE "t_obscalc"
      ADD CONSTRAINT "chk_obscalc_retry_at"
      CHECK (("retry_at" IS NOT NULL) = ("state" = 'retry'));
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "chk_obscalc_failure_count": `
    DO $$ BEGIN
      ALTER TABLE "t_obscalc"
      ADD CONSTRAINT "chk_obscalc_failure_count"
      CHECK ("failure_count" >= 0 AND ("state" IN ('retry', 'calculating') OR "failure_count" = 0));
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "chk_blind_offset_retry_at": `
    DO $$ BEGIN
      ALTER TABLE "t_blind_offset"
      ADD CONSTRAINT "chk_blind_offset_retry_at"
      CHECK (("retry_at" IS NOT NULL) = ("state" = 'retry'));
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "chk_blind_offset_failure_count": `
    DO $$ BEGIN
      ALTER TABLE "t_blind_offset"
      ADD CONSTRAINT "chk_blind_offset_failure_count"
      CHECK ("failure_count" >= 0 AND ("state" IN ('retry', 'calculating') OR "failure_count" = 0));
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;
  `,
  "idx_obscalc_pending": `
    CREATE INDEX IF NOT EXISTS "idx_obscalc_pending"
    ON "t_obscalc" ("last_invalidation")
    WHERE "state" IN ('pending', 'retry');
  `,
  "idx_blind_offset_pending": `
    CREATE INDEX IF NOT EXISTS "idx_blind_offset_pending"
    ON "t_blind_offset" ("last_invalidation")
    WHERE "state" IN ('pending', 'retry');
  `,
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
