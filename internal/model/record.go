package model

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// GeocodeStatus tracks where a record stands in the geocoding lifecycle.
type GeocodeStatus string

const (
	GeocodeStatusPending        GeocodeStatus = "pending"
	GeocodeStatusResolved       GeocodeStatus = "resolved"
	GeocodeStatusNoMatch        GeocodeStatus = "no_match"
	GeocodeStatusInvalidAddress GeocodeStatus = "invalid_address"
	GeocodeStatusFailed         GeocodeStatus = "failed" // transient, retried on the next run
)

// DefaultAddressSuffix is appended to street + city to form a full postal address.
const DefaultAddressSuffix = "BC, Canada"

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeocodeState records the outcome of the most recent geocoding attempt.
type GeocodeState struct {
	Status    GeocodeStatus `json:"status"`
	Attempts  int           `json:"attempts"`
	LastError string        `json:"last_error,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	Quality   string        `json:"quality,omitempty"`
	UpdatedAt time.Time     `json:"updated_at,omitzero"`
}

// Record is a single licensed establishment.
type Record struct {
	LicenseNumber string       `json:"license_number"`
	Name          string       `json:"name"`
	Street        string       `json:"street"`
	City          string       `json:"city"`
	LicenseType   string       `json:"license_type,omitempty"`
	Capacity      *int         `json:"capacity,omitempty"`
	ExpiryDate    *time.Time   `json:"expiry_date,omitempty"`
	AreaLocation  string       `json:"area_location,omitempty"`
	Coordinate    *Coordinate  `json:"coordinate,omitempty"`
	Geocode       GeocodeState `json:"geocode"`
}

// HasCoordinate reports whether the record carries a resolved coordinate.
func (r *Record) HasCoordinate() bool {
	return r != nil && r.Coordinate != nil
}

// SetCoordinate stores both coordinate fields at once and marks the record resolved.
func (r *Record) SetCoordinate(c Coordinate, provider, quality string, at time.Time) {
	cc := c
	r.Coordinate = &cc
	r.Geocode.Status = GeocodeStatusResolved
	r.Geocode.Provider = provider
	r.Geocode.Quality = quality
	r.Geocode.LastError = ""
	r.Geocode.UpdatedAt = at
}

// ClearCoordinate removes the coordinate and records why it is absent.
func (r *Record) ClearCoordinate(status GeocodeStatus, provider, lastErr string, at time.Time) {
	r.Coordinate = nil
	r.Geocode.Status = status
	r.Geocode.Provider = provider
	r.Geocode.Quality = ""
	r.Geocode.LastError = lastErr
	r.Geocode.UpdatedAt = at
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	out := *r
	if r.Capacity != nil {
		c := *r.Capacity
		out.Capacity = &c
	}
	if r.ExpiryDate != nil {
		e := *r.ExpiryDate
		out.ExpiryDate = &e
	}
	if r.Coordinate != nil {
		c := *r.Coordinate
		out.Coordinate = &c
	}
	return out
}

// AddressKey identifies the postal address a coordinate was resolved for.
func (r *Record) AddressKey() string {
	return strings.ToLower(BuildRequest(r, ""))
}

// BuildRequest derives the geocoding query for a record: street, city and a
// fixed region/country suffix. The result is empty when neither street nor
// city carry any text.
func BuildRequest(r *Record, suffix string) string {
	street := cleanPart(r.Street)
	city := cleanPart(r.City)
	if street == "" && city == "" {
		return ""
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{street, city, cleanPart(suffix)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// cleanPart NFC-normalizes s, collapses internal whitespace and trims stray commas.
func cleanPart(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, ", ")
}
