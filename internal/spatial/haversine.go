// Package spatial computes great-circle distances and answers proximity
// queries over geocoded records.
package spatial

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/license-map/internal/model"
)

// EarthRadiusKm is the mean Earth radius used for all distances.
const EarthRadiusKm = 6371.0

var (
	// ErrInvalidReferencePoint is returned for a reference outside valid lat/lon ranges.
	ErrInvalidReferencePoint = eris.New("spatial: invalid reference point")
	// ErrInvalidRadius is returned for a negative or NaN radius.
	ErrInvalidRadius = eris.New("spatial: invalid radius")
)

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b model.Coordinate) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLon := toRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// Rounding can push h a hair outside [0, 1] for identical or antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ValidateReference checks that ref is a finite point within lat [-90, 90]
// and lon [-180, 180].
func ValidateReference(ref model.ReferencePoint) error {
	if !validLatLon(ref.Lat, ref.Lon) {
		return eris.Wrapf(ErrInvalidReferencePoint, "lat=%v lon=%v", ref.Lat, ref.Lon)
	}
	return nil
}

func validateRadius(radiusKm float64) error {
	if math.IsNaN(radiusKm) || radiusKm < 0 {
		return eris.Wrapf(ErrInvalidRadius, "radius_km=%v", radiusKm)
	}
	return nil
}

func validLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }
