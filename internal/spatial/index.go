package spatial

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/license-map/internal/model"
)

// boundsPad widens search boxes slightly so float rounding never drops a
// point that the exact distance check would keep.
const boundsPad = 1e-6

// Index answers repeated radius queries over a fixed set of records. A
// bounding box around the query circle discards far records before the
// exact haversine check, so results are identical to Filter.
type Index struct {
	records []*model.Record
	coords  []geom.Coord // lon, lat per record; nil for records without a coordinate
	extent  *geom.Bounds
}

// NewIndex builds an Index over records. Records are copied, so later
// changes to the input do not affect the index.
func NewIndex(records []*model.Record) *Index {
	ix := &Index{
		records: make([]*model.Record, 0, len(records)),
		coords:  make([]geom.Coord, 0, len(records)),
	}
	for _, r := range records {
		if !r.HasCoordinate() {
			continue
		}
		c := r.Clone()
		ix.records = append(ix.records, &c)

		pt := geom.Coord{c.Coordinate.Lon, c.Coordinate.Lat}
		ix.coords = append(ix.coords, pt)
		if ix.extent == nil {
			ix.extent = geom.NewBounds(geom.XY).Set(pt[0], pt[1], pt[0], pt[1])
		} else {
			ix.extent.Extend(geom.NewPointFlat(geom.XY, pt))
		}
	}
	return ix
}

// Len returns the number of indexed (coordinate-bearing) records.
func (ix *Index) Len() int { return len(ix.records) }

// Extent returns the bounding box of all indexed points (x = lon, y = lat),
// or nil when the index is empty.
func (ix *Index) Extent() *geom.Bounds {
	if ix.extent == nil {
		return nil
	}
	return ix.extent.Clone()
}

// Within returns indexed records within radiusKm of ref, closest first.
func (ix *Index) Within(ref model.ReferencePoint, radiusKm float64) ([]model.ProximityResult, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	if err := validateRadius(radiusKm); err != nil {
		return nil, err
	}
	if ix.extent == nil {
		return []model.ProximityResult{}, nil
	}

	box, ok := searchBounds(ref, radiusKm)
	if !ok {
		return collect(ix.records, ref.Coordinate(), radiusKm, true), nil
	}
	if !ix.extent.Overlaps(geom.XY, box) {
		return []model.ProximityResult{}, nil
	}

	candidates := make([]*model.Record, 0)
	for i, pt := range ix.coords {
		if box.OverlapsPoint(geom.XY, pt) {
			candidates = append(candidates, ix.records[i])
		}
	}
	return collect(candidates, ref.Coordinate(), radiusKm, true), nil
}

// searchBounds returns a lon/lat box containing every point within radiusKm
// of ref. ok is false when the circle reaches a pole or crosses the
// antimeridian; callers then scan everything.
func searchBounds(ref model.ReferencePoint, radiusKm float64) (*geom.Bounds, bool) {
	angular := radiusKm / EarthRadiusKm
	if math.IsInf(angular, 0) || angular >= math.Pi/2 {
		return nil, false
	}

	dLat := toDegrees(angular) + boundsPad
	minLat, maxLat := ref.Lat-dLat, ref.Lat+dLat
	if minLat <= -90 || maxLat >= 90 {
		return nil, false
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(ref.Lat))
	if ratio >= 1 {
		return nil, false
	}
	dLon := toDegrees(math.Asin(ratio)) + boundsPad
	minLon, maxLon := ref.Lon-dLon, ref.Lon+dLon
	if minLon < -180 || maxLon > 180 {
		return nil, false
	}

	return geom.NewBounds(geom.XY).Set(minLon, minLat, maxLon, maxLat), true
}
