package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
)

// MigrationLog is the row written for every applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime;index"`
}

func (MigrationLog) TableName() string { return "migration_logs" }

// Migrator applies and reverts a fixed, ordered set of migrations and keeps
// migration_logs in step with them.
type Migrator struct {
	db    *gorm.DB
	steps []Migration
}

// NewMigrator returns a Migrator over steps, which must be sorted by version.
func NewMigrator(db *gorm.DB, steps []Migration) *Migrator {
	return &Migrator{db: db, steps: steps}
}

// NewEmbeddedMigrator returns a Migrator over the compiled-in migrations.
func NewEmbeddedMigrator(db *gorm.DB) (*Migrator, error) {
	steps, err := Migrations()
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return NewMigrator(db, steps), nil
}

func (m *Migrator) ensureLog(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&MigrationLog{}); err != nil {
		return fmt.Errorf("prepare migration_logs: %w", err)
	}
	return nil
}

// Applied lists recorded versions, oldest first. A missing log table means
// nothing has been applied.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	if !m.db.WithContext(ctx).Migrator().HasTable(&MigrationLog{}) {
		return []int{}, nil
	}
	var versions []int
	err := m.db.WithContext(ctx).Model(&MigrationLog{}).Order("version").Pluck("version", &versions).Error
	if err != nil {
		return nil, fmt.Errorf("read migration_logs: %w", err)
	}
	return versions, nil
}

// Pending returns the steps not yet recorded. It fails when the log holds a
// version this binary does not know, since that database is ahead of the code.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkKnownVersions(applied, m.steps); err != nil {
		return nil, err
	}
	var pending []Migration
	for _, step := range m.steps {
		if !slices.Contains(applied, step.Version) {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

// Up applies every pending step in order and returns the ones it ran. Each
// step and its log row commit together.
func (m *Migrator) Up(ctx context.Context) ([]Migration, error) {
	if err := m.ensureLog(ctx); err != nil {
		return nil, err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	for i, step := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(step.UpScript).Error; err != nil {
				return err
			}
			return tx.Create(&MigrationLog{Version: step.Version, Name: step.Name}).Error
		})
		if err != nil {
			return pending[:i], fmt.Errorf("apply %s: %w", step, err)
		}
		slog.InfoContext(ctx, "migration applied", slog.String("migration", step.String()))
	}
	return pending, nil
}

// Down reverts one applied step by version.
func (m *Migrator) Down(ctx context.Context, version int) error {
	idx := slices.IndexFunc(m.steps, func(s Migration) bool { return s.Version == version })
	if idx < 0 {
		return fmt.Errorf("unknown migration %06d", version)
	}
	step := m.steps[idx]

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %s is not applied", step)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(step.DownScript).Error; err != nil {
			return err
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
	if err != nil {
		return fmt.Errorf("revert %s: %w", step, err)
	}
	slog.InfoContext(ctx, "migration reverted", slog.String("migration", step.String()))
	return nil
}

func checkKnownVersions(applied []int, steps []Migration) error {
	var unknown []string
	for _, v := range applied {
		if !slices.ContainsFunc(steps, func(s Migration) bool { return s.Version == v }) {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return fmt.Errorf("migration_logs has versions missing from this build: %s", strings.Join(unknown, ", "))
}
