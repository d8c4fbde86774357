package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"nokoroa/internal/config"

	"gorm.io/gorm"
)

// SchemaMode selects how the discovery schema is brought up to date.
type SchemaMode string

const (
	// SchemaModeHybrid runs SQL migrations everywhere and AutoMigrate outside
	// production-like environments.
	SchemaModeHybrid SchemaMode = "hybrid"
	SchemaModeSQL    SchemaMode = "sql"
	SchemaModeAuto   SchemaMode = "auto"
)

// SchemaPlan is what ApplySchema will do for a given config.
type SchemaPlan struct {
	Mode SchemaMode
	Env  string
	SQL  bool
	Auto bool
}

// SchemaStatus adds the migration log state to a plan.
type SchemaStatus struct {
	SchemaPlan
	Applied []int
	Pending []Migration
}

var prodLikeEnvs = []string{"production", "prod", "staging", "stage"}

// PlanSchema resolves DB_SCHEMA_MODE against APP_ENV. AutoMigrate is refused
// in production-like environments unless destructive changes are allowed.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	plan := SchemaPlan{Mode: SchemaMode(cfg.DBSchemaMode), Env: cfg.Env}
	if plan.Mode == "" {
		plan.Mode = SchemaModeHybrid
	}
	prodLike := slices.Contains(prodLikeEnvs, cfg.Env)

	switch plan.Mode {
	case SchemaModeSQL:
		plan.SQL = true
	case SchemaModeHybrid:
		plan.SQL, plan.Auto = true, !prodLike
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("DB_SCHEMA_MODE=auto in %q needs DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.Auto = true
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.Mode)
	}
	return plan, nil
}

// ApplySchema runs the SQL migrations and AutoMigrate as the plan says.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}

	if plan.SQL {
		m, err := NewEmbeddedMigrator(db)
		if err != nil {
			return err
		}
		ran, err := m.Up(ctx)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "sql migrations done", slog.Int("applied", len(ran)))
	}

	if plan.Auto {
		if plan.Mode == SchemaModeAuto && cfg.DBAutoMigrateAllowDestructive {
			slog.WarnContext(ctx, "automigrate with destructive changes allowed", slog.String("env", cfg.Env))
		}
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("automigrate: %w", err)
		}
	}
	return nil
}

// InspectSchema reports the plan for cfg and, when SQL migrations are part of
// it, which versions are applied and which are pending.
func InspectSchema(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{SchemaPlan: plan}
	if !plan.SQL {
		return status, nil
	}

	m, err := NewEmbeddedMigrator(db)
	if err != nil {
		return nil, err
	}
	if status.Applied, err = m.Applied(ctx); err != nil {
		return nil, err
	}
	if status.Pending, err = m.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
