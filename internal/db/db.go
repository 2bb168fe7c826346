package db

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lojf/attendance/internal/models"
)

var conn *gorm.DB

// Init opens the store, migrates it and keeps the handle for Conn.
func Init(driver, dsn string, log *slog.Logger) error {
	gdb, err := Open(driver, dsn)
	if err != nil {
		return err
	}
	if err := Migrate(gdb, log); err != nil {
		return err
	}
	conn = gdb
	return nil
}

// Open connects without migrating. Unique-index violations are translated to
// gorm.ErrDuplicatedKey so services can detect lost races portably.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
	switch driver {
	case "sqlite", "":
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return gdb, nil
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

// Migrate creates tables, merges duplicate registrations left by stores that
// never had the constraint, then adds the indexes GORM does not derive from tags.
func Migrate(gdb *gorm.DB, log *slog.Logger) error {
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	merged, err := MergeDuplicateRegistrations(gdb)
	if err != nil {
		return fmt.Errorf("merge duplicate registrations: %w", err)
	}
	if merged > 0 {
		log.Warn("merged duplicate registrations", "removed", merged)
	}

	for _, stmt := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_reg_event_person ON registrations(event_id, person_id)",
		"CREATE INDEX IF NOT EXISTS idx_reg_event_registered ON registrations(event_id, registered_at)",
		"CREATE INDEX IF NOT EXISTS idx_childcare_person_event ON child_care_entries(person_id, event_id)",
	} {
		if err := gdb.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	log.Info("database ready", "dialect", gdb.Dialector.Name())
	return nil
}

// MergeDuplicateRegistrations keeps the oldest registration per (event, person)
// and deletes the rest. Returns how many rows were removed.
func MergeDuplicateRegistrations(gdb *gorm.DB) (int64, error) {
	var removed int64
	err := gdb.Transaction(func(tx *gorm.DB) error {
		type dup struct {
			EventID  string
			PersonID string
		}
		var dups []dup
		if err := tx.Model(&models.Registration{}).
			Select("event_id, person_id").
			Group("event_id, person_id").
			Having("COUNT(*) > 1").
			Scan(&dups).Error; err != nil {
			return err
		}
		for _, d := range dups {
			var regs []models.Registration
			if err := tx.Where("event_id = ? AND person_id = ?", d.EventID, d.PersonID).
				Order("registered_at asc, created_at asc").
				Find(&regs).Error; err != nil {
				return err
			}
			ids := make([]string, 0, len(regs)-1)
			for _, r := range regs[1:] {
				ids = append(ids, r.ID)
			}
			res := tx.Where("id IN ?", ids).Delete(&models.Registration{})
			if res.Error != nil {
				return res.Error
			}
			removed += res.RowsAffected
		}
		return nil
	})
	return removed, err
}

func Conn() *gorm.DB {
	return conn
}
