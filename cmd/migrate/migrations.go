package main

import (
	"gorm.io/gorm"

	"github.com/pvarki/takbackend/internal/models"
)

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	// gen_random_uuid() defaults need pgcrypto on older servers.
	if err := enableUUIDExtension(db); err != nil {
		return err
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return err
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addSequenceBoundsCheck,
		addInstanceOwnerIndex,
	}

	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}

	return nil
}

func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addSequenceBoundsCheck backs the allocator with a constraint so that no
// write path can push a sequence past its bound.
func addSequenceBoundsCheck(db *gorm.DB) error {
	return db.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_clientsequences_bounds') THEN
				ALTER TABLE clientsequences
				ADD CONSTRAINT chk_clientsequences_bounds
				CHECK (max_clients >= 1 AND next_client_no >= 1 AND next_client_no <= max_clients + 1);
			END IF;
		END $$
	`).Error
}

// addInstanceOwnerIndex speeds up the owner listing, which skips deleted rows.
func addInstanceOwnerIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_takinstances_owner_live
		ON takinstances(owner_id, created_at DESC)
		WHERE deleted_at IS NULL
	`).Error
}
