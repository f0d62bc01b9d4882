package spatial

import (
	"sort"

	"github.com/sells-group/license-map/internal/model"
)

// Filter returns every coordinate-bearing record within radiusKm of ref
// (boundary inclusive), closest first. Records without a coordinate are
// skipped. Ties keep input order. The input is not modified; each result
// holds a copy of its record.
func Filter(records []*model.Record, ref model.ReferencePoint, radiusKm float64) ([]model.ProximityResult, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	if err := validateRadius(radiusKm); err != nil {
		return nil, err
	}
	return collect(records, ref.Coordinate(), radiusKm, true), nil
}

// Annotate pairs every coordinate-bearing record with its distance from ref,
// closest first, without a radius cut-off.
func Annotate(records []*model.Record, ref model.ReferencePoint) ([]model.ProximityResult, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	return collect(records, ref.Coordinate(), 0, false), nil
}

// Nearest returns the n records closest to ref. n <= 0 yields no results.
func Nearest(records []*model.Record, ref model.ReferencePoint, n int) ([]model.ProximityResult, error) {
	all, err := Annotate(records, ref)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []model.ProximityResult{}, nil
	}
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// collect measures each candidate against origin and sorts the matches.
// When bounded is false every candidate matches.
func collect(records []*model.Record, origin model.Coordinate, radiusKm float64, bounded bool) []model.ProximityResult {
	out := make([]model.ProximityResult, 0)
	for _, r := range records {
		if !r.HasCoordinate() {
			continue
		}
		d := Haversine(origin, *r.Coordinate)
		if bounded && d > radiusKm {
			continue
		}
		out = append(out, model.ProximityResult{Record: r.Clone(), DistanceKm: d})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}
