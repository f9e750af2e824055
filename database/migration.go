package database

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"virtual_sensors/config"
	"virtual_sensors/logger"
	"virtual_sensors/models"

	"gorm.io/gorm"
)

// Migration records one applied SQL file
type Migration struct {
	ID          uint   `gorm:"primaryKey"`
	Version     string `gorm:"unique;not null"`
	Name        string `gorm:"not null"`
	Applied     bool   `gorm:"default:false"`
	AppliedAt   *time.Time
	Description string
}

// MigrationFile is a SQL file found in the migrations directory
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	FilePath    string
	Applied     bool
}

// MigrationRunner creates the schema of the model tables and applies
// versioned SQL files on top of it.
type MigrationRunner struct {
	db             *gorm.DB
	migrationTable string
	migrationDir   string
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *gorm.DB, cfg *config.Config) *MigrationRunner {
	return &MigrationRunner{
		db:             db,
		migrationTable: cfg.Migration.MigrationTable,
		migrationDir:   cfg.Migration.Dir,
	}
}

func (mr *MigrationRunner) table() *gorm.DB {
	return mr.db.Table(mr.migrationTable)
}

// InitializeMigrationTable creates the bookkeeping table if it doesn't exist
func (mr *MigrationRunner) InitializeMigrationTable() error {
	return mr.table().AutoMigrate(&Migration{})
}

// AutoMigrate creates or updates the virtual sensor and aggregate tables.
func (mr *MigrationRunner) AutoMigrate() error {
	if err := mr.db.AutoMigrate(models.GetAllModels()...); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

// GetMigrationFiles lists SQL files named YYYYMMDD_HHMMSS_description.sql, oldest first.
func (mr *MigrationRunner) GetMigrationFiles() ([]MigrationFile, error) {
	var files []MigrationFile

	if _, err := os.Stat(mr.migrationDir); os.IsNotExist(err) {
		return files, nil
	}

	err := filepath.WalkDir(mr.migrationDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".sql") {
			return nil
		}

		parts := strings.SplitN(d.Name(), "_", 3)
		if len(parts) < 3 {
			return fmt.Errorf("invalid migration filename format: %s (expected: YYYYMMDD_HHMMSS_description.sql)", d.Name())
		}
		description := strings.TrimSuffix(parts[2], ".sql")
		files = append(files, MigrationFile{
			Version:     parts[0] + "_" + parts[1],
			Name:        strings.ReplaceAll(description, "_", " "),
			Description: description,
			FilePath:    path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	slices.SortFunc(files, func(a, b MigrationFile) int {
		return strings.Compare(a.Version, b.Version)
	})
	return files, nil
}

func (mr *MigrationRunner) appliedVersions() (map[string]bool, error) {
	if err := mr.InitializeMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	var applied []Migration
	if err := mr.table().Where("applied = ?", true).Order("version ASC").Find(&applied).Error; err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	versions := make(map[string]bool, len(applied))
	for _, m := range applied {
		versions[m.Version] = true
	}
	return versions, nil
}

// GetMigrationStatus returns every migration file marked with whether it was applied
func (mr *MigrationRunner) GetMigrationStatus() ([]MigrationFile, error) {
	files, err := mr.GetMigrationFiles()
	if err != nil {
		return nil, err
	}
	applied, err := mr.appliedVersions()
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].Applied = applied[files[i].Version]
	}
	return files, nil
}

// GetPendingMigrations returns migrations that haven't been applied yet
func (mr *MigrationRunner) GetPendingMigrations() ([]MigrationFile, error) {
	files, err := mr.GetMigrationStatus()
	if err != nil {
		return nil, err
	}
	var pending []MigrationFile
	for _, f := range files {
		if !f.Applied {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// RunMigrations auto-migrates the models, then executes all pending SQL files
func (mr *MigrationRunner) RunMigrations() error {
	if err := mr.AutoMigrate(); err != nil {
		return err
	}

	pending, err := mr.GetPendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}
	if len(pending) == 0 {
		logger.Println("No pending migrations to run")
		return nil
	}

	logger.Printf("Running %d pending migration(s)...\n", len(pending))
	for _, m := range pending {
		if err := mr.runSingleMigration(m); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.Version, err)
		}
	}
	logger.Println("All migrations completed successfully")
	return nil
}

func (mr *MigrationRunner) runSingleMigration(file MigrationFile) error {
	logger.Printf("Running migration: %s - %s\n", file.Version, file.Name)

	content, err := os.ReadFile(file.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	return mr.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(string(content)).Error; err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}

		now := time.Now()
		record := Migration{
			Version:     file.Version,
			Name:        file.Name,
			Applied:     true,
			AppliedAt:   &now,
			Description: file.Description,
		}
		if err := tx.Table(mr.migrationTable).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}

// CreateMigration writes an empty, timestamped migration file and returns its path
func (mr *MigrationRunner) CreateMigration(name string) (string, error) {
	if err := os.MkdirAll(mr.migrationDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	now := time.Now()
	cleanName := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	filePath := filepath.Join(mr.migrationDir, fmt.Sprintf("%s_%s.sql", now.Format("20060102_150405"), cleanName))

	template := fmt.Sprintf(`-- Migration: %s
-- Created: %s

-- Tables managed by auto-migration: virtual_sensors_formulas, readings_daily_aggregates
-- Example:
-- CREATE INDEX idx_aggregates_sensor_day ON readings_daily_aggregates (sensor_id, day);
`, name, now.Format(time.DateTime))

	if err := os.WriteFile(filePath, []byte(template), 0644); err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	return filePath, nil
}
