package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/license-map/internal/model"
)

// SQLite stores the dataset in a single-file SQLite database. Each Save
// replaces all rows inside one transaction. Coordinates are kept both as
// plain lat/lon columns and as an EWKB point (SRID 4326) for GIS tooling.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLite{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dataset_meta (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	run_id     TEXT,
	source     TEXT,
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS records (
	position           INTEGER PRIMARY KEY,
	license_number     TEXT NOT NULL,
	name               TEXT NOT NULL DEFAULT '',
	street             TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	license_type       TEXT NOT NULL DEFAULT '',
	capacity           INTEGER,
	expiry_date        TEXT,
	area_location      TEXT NOT NULL DEFAULT '',
	lat                REAL,
	lon                REAL,
	geom               BLOB,
	geocode_status     TEXT NOT NULL,
	attempts           INTEGER NOT NULL DEFAULT 0,
	last_error         TEXT NOT NULL DEFAULT '',
	provider           TEXT NOT NULL DEFAULT '',
	quality            TEXT NOT NULL DEFAULT '',
	geocode_updated_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_records_license ON records(license_number);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(geocode_status);
`

func (s *SQLite) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load reads the last saved dataset. ErrNotFound means nothing was saved yet.
func (s *SQLite) Load(ctx context.Context) (*model.Dataset, error) {
	var (
		ds                  model.Dataset
		runID, src, updated sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, source, updated_at FROM dataset_meta WHERE id = 1`,
	).Scan(&runID, &src, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: load")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load meta")
	}
	ds.Meta.RunID = runID.String
	ds.Meta.Source = src.String
	if ds.Meta.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT license_number, name, street, city, license_type, capacity,
		       expiry_date, area_location, geom, geocode_status, attempts,
		       last_error, provider, quality, geocode_updated_at
		FROM records ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query records")
	}
	defer rows.Close() //nolint:errcheck

	ds.Records = make([]*model.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		ds.Records = append(ds.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate records")
	}
	return &ds, nil
}

func scanRecord(rows *sql.Rows) (*model.Record, error) {
	var (
		r                  model.Record
		capacity           sql.NullInt64
		expiry, geoUpdated sql.NullString
		status             string
		point              []byte
	)
	if err := rows.Scan(
		&r.LicenseNumber, &r.Name, &r.Street, &r.City, &r.LicenseType, &capacity,
		&expiry, &r.AreaLocation, &point, &status, &r.Geocode.Attempts,
		&r.Geocode.LastError, &r.Geocode.Provider, &r.Geocode.Quality, &geoUpdated,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	r.Geocode.Status = model.GeocodeStatus(status)
	if capacity.Valid {
		c := int(capacity.Int64)
		r.Capacity = &c
	}
	if expiry.Valid {
		t, err := parseTime(expiry)
		if err != nil {
			return nil, err
		}
		r.ExpiryDate = &t
	}
	var err error
	if r.Geocode.UpdatedAt, err = parseTime(geoUpdated); err != nil {
		return nil, err
	}
	if len(point) > 0 {
		c, err := decodePoint(point)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: record %s", r.LicenseNumber)
		}
		r.Coordinate = &c
	}
	return &r, nil
}

// Save replaces the stored dataset with ds in a single transaction.
func (s *SQLite) Save(ctx context.Context, ds *model.Dataset) error {
	if ds == nil {
		return eris.New("sqlite: nil dataset")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return eris.Wrap(err, "sqlite: clear records")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (
			position, license_number, name, street, city, license_type, capacity,
			expiry_date, area_location, lat, lon, geom, geocode_status, attempts,
			last_error, provider, quality, geocode_updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range ds.Records {
		var (
			capacity sql.NullInt64
			lat, lon sql.NullFloat64
			point    []byte
		)
		if r.Capacity != nil {
			capacity = sql.NullInt64{Int64: int64(*r.Capacity), Valid: true}
		}
		if r.Coordinate != nil {
			lat = sql.NullFloat64{Float64: r.Coordinate.Lat, Valid: true}
			lon = sql.NullFloat64{Float64: r.Coordinate.Lon, Valid: true}
			if point, err = encodePoint(*r.Coordinate); err != nil {
				return eris.Wrapf(err, "sqlite: record %s", r.LicenseNumber)
			}
		}
		var expiry sql.NullString
		if r.ExpiryDate != nil {
			expiry = formatTime(*r.ExpiryDate)
		}

		if _, err := stmt.ExecContext(ctx,
			i, r.LicenseNumber, r.Name, r.Street, r.City, r.LicenseType, capacity,
			expiry, r.AreaLocation, lat, lon, point, string(r.Geocode.Status), r.Geocode.Attempts,
			r.Geocode.LastError, r.Geocode.Provider, r.Geocode.Quality, formatTime(r.Geocode.UpdatedAt),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s", r.LicenseNumber)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dataset_meta (id, run_id, source, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET run_id = excluded.run_id, source = excluded.source, updated_at = excluded.updated_at`,
		ds.Meta.RunID, ds.Meta.Source, formatTime(ds.Meta.UpdatedAt),
	); err != nil {
		return eris.Wrap(err, "sqlite: upsert meta")
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// encodePoint renders c as an EWKB point, x = lon and y = lat.
func encodePoint(c model.Coordinate) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{c.Lon, c.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "encode point")
	}
	return data, nil
}

func decodePoint(data []byte) (model.Coordinate, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return model.Coordinate{}, eris.Wrap(err, "decode point")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return model.Coordinate{}, eris.Errorf("decode point: unexpected geometry %T", g)
	}
	return model.Coordinate{Lat: pt.Y(), Lon: pt.X()}, nil
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s.String)
	}
	return t, nil
}
