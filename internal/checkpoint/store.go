// Package checkpoint persists the geocoding dataset between runs so an
// interrupted pipeline resumes where it stopped. Every Save replaces the
// previous snapshot as a whole; a reader never observes a partial write.
package checkpoint

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/license-map/internal/model"
)

// ErrNotFound is returned by Load when no checkpoint has been written yet.
var ErrNotFound = eris.New("checkpoint: not found")

// Store is a durable snapshot of the dataset.
type Store interface {
	Load(ctx context.Context) (*model.Dataset, error)
	Save(ctx context.Context, ds *model.Dataset) error
	Close() error
}

// Open picks a store from the path extension: .db, .sqlite and .sqlite3
// open a SQLite file, anything else a JSON file.
func Open(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, eris.New("checkpoint: empty path")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLite(path)
	default:
		return NewJSONFile(path), nil
	}
}

// Merge carries coordinates and geocode state from a previous checkpoint
// into a freshly loaded dataset, matching records by licence number. State is
// only carried when the address is unchanged, so a moved establishment is
// geocoded again. Records whose source already supplied a coordinate keep
// it. Merge returns the number of records that inherited state.
func Merge(fresh, previous *model.Dataset) int {
	if fresh == nil || previous == nil {
		return 0
	}

	prev := make(map[string]*model.Record, len(previous.Records))
	for _, r := range previous.Records {
		if _, dup := prev[r.LicenseNumber]; !dup {
			prev[r.LicenseNumber] = r
		}
	}

	carried := 0
	for _, r := range fresh.Records {
		if r.HasCoordinate() {
			continue
		}
		old, ok := prev[r.LicenseNumber]
		if !ok || old.AddressKey() != r.AddressKey() {
			continue
		}
		c := old.Clone()
		r.Coordinate = c.Coordinate
		r.Geocode = c.Geocode
		carried++
	}
	return carried
}
