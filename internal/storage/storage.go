package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bunchhieng/saveit/internal/config"
	"github.com/bunchhieng/saveit/internal/model"
	"github.com/bunchhieng/saveit/internal/store"
)

// Storage is a durable home for the three persisted collections: links,
// the tag registry and the reminder settings.
type Storage interface {
	store.LinkRepository
	store.TagRepository

	// LoadReminder returns the stored reminder settings, or the defaults when none were saved.
	LoadReminder(ctx context.Context) (model.ReminderSettings, error)

	// SaveReminder replaces the reminder settings.
	SaveReminder(ctx context.Context, settings model.ReminderSettings) error

	// Close releases the underlying database.
	Close() error
}

// Open creates the storage backend named by driver at path.
func Open(driver, path string, logger logrus.FieldLogger) (Storage, error) {
	switch driver {
	case config.DriverSQLite, "":
		return NewSQLiteStorage(path)
	case config.DriverBadger:
		return NewBadgerStorage(path, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
