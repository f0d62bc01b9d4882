package model

import "time"

// ReferenceSource describes where a query reference point came from.
type ReferenceSource string

const (
	ReferenceDevice   ReferenceSource = "device"
	ReferenceManual   ReferenceSource = "manual"
	ReferenceFallback ReferenceSource = "fallback"
)

// FallbackReference is used when the caller supplies no location (Gastown, Vancouver).
var FallbackReference = ReferencePoint{Lat: 49.2768, Lon: -123.1236, Source: ReferenceFallback}

// ReferencePoint is the origin for proximity queries.
type ReferencePoint struct {
	Lat    float64         `json:"lat"`
	Lon    float64         `json:"lon"`
	Source ReferenceSource `json:"source,omitempty"`
}

// Coordinate returns the reference as a Coordinate.
func (p ReferencePoint) Coordinate() Coordinate {
	return Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// ProximityResult pairs a record with its distance from a reference point.
type ProximityResult struct {
	Record     Record  `json:"record"`
	DistanceKm float64 `json:"distance_km"`
}

// DatasetMeta describes the provenance of a dataset snapshot.
type DatasetMeta struct {
	RunID     string    `json:"run_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Dataset is the ordered set of records the pipeline operates on. Order is
// significant: it is the order records are geocoded in.
type Dataset struct {
	Meta    DatasetMeta `json:"meta"`
	Records []*Record   `json:"records"`
}

// Find returns the record with the given licence number, or nil.
func (d *Dataset) Find(license string) *Record {
	for _, r := range d.Records {
		if r.LicenseNumber == license {
			return r
		}
	}
	return nil
}

// DatasetStats counts records by geocode outcome.
type DatasetStats struct {
	Total          int `json:"total"`
	WithCoordinate int `json:"with_coordinate"`
	Pending        int `json:"pending"`
	NoMatch        int `json:"no_match"`
	InvalidAddress int `json:"invalid_address"`
	Failed         int `json:"failed"`
}

// Stats summarizes the geocode state of the dataset.
func (d *Dataset) Stats() DatasetStats {
	s := DatasetStats{Total: len(d.Records)}
	for _, r := range d.Records {
		if r.HasCoordinate() {
			s.WithCoordinate++
			continue
		}
		switch r.Geocode.Status {
		case GeocodeStatusNoMatch:
			s.NoMatch++
		case GeocodeStatusInvalidAddress:
			s.InvalidAddress++
		case GeocodeStatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}
