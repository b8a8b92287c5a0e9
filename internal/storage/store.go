// Package storage holds the record stores that persist the character
// collection. Every store reads and writes the collection as a whole.
package storage

import (
	"context"
	"fmt"

	"github.com/lni/dragonboat/v4/logger"

	"heroes/internal/model"
)

var plog = logger.GetLogger("storage")

// RecordStore owns the persisted representation of the collection.
//
// LoadAll returns the complete collection or a *model.StorageError when the
// backing data is missing, unreadable or malformed. SaveAll replaces the
// complete collection and reports write failures as *model.StorageError.
// Implementations do not serialize callers; that is the engine's job.
type RecordStore interface {
	LoadAll(ctx context.Context) (model.Collection, error)
	SaveAll(ctx context.Context, c model.Collection) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Options configures Open.
type Options struct {
	Driver string
	Path   string
	// CreateIfMissing seeds an empty collection when the backing file does not exist.
	CreateIfMissing bool
}

// Open creates the record store selected by opts.Driver.
func Open(opts Options) (RecordStore, error) {
	switch opts.Driver {
	case DriverJSON, "":
		s := NewJSONFileStore(opts.Path)
		if opts.CreateIfMissing {
			if err := s.Init(); err != nil {
				return nil, err
			}
		}
		return s, nil
	case DriverSQLite:
		return OpenSQLiteStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q (expected %s or %s)", opts.Driver, DriverJSON, DriverSQLite)
	}
}
