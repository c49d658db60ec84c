package db

import (
	"fmt"

	"github.com/carebridge/memorycore/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open opens the sqlite database at path with the connection options every
// store in this module relies on: shared cache so both stores can point at
// one file, WAL journaling, and enforced foreign keys.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_foreign_keys=on", path)),
		&gorm.Config{},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database at %s", path)
	}
	return db, nil
}

// Close releases the underlying connection.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrapf(err, "failed to get database connection")
	}
	return errors.Wrapf(sqlDB.Close(), "failed to close database connection")
}
