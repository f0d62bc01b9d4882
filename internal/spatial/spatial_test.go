package spatial

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/license-map/internal/model"
)

var (
	gastown    = model.ReferencePoint{Lat: 49.2768, Lon: -123.1236, Source: model.ReferenceFallback}
	waterfront = model.Coordinate{Lat: 49.2827, Lon: -123.1207}
)

func rec(license string, c *model.Coordinate) *model.Record {
	r := &model.Record{LicenseNumber: license, Name: "Bar " + license}
	if c != nil {
		r.SetCoordinate(*c, "test", "rooftop", r.Geocode.UpdatedAt)
	}
	return r
}

func coord(lat, lon float64) *model.Coordinate {
	return &model.Coordinate{Lat: lat, Lon: lon}
}

func TestHaversine_Zero(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(waterfront, waterfront))
	assert.Equal(t, 0.0, Haversine(model.Coordinate{}, model.Coordinate{}))
}

func TestHaversine_Symmetry(t *testing.T) {
	points := []model.Coordinate{
		waterfront,
		gastown.Coordinate(),
		{Lat: 49.2057, Lon: -122.9110},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 0, Lon: 179.9},
		{Lat: 0, Lon: -179.9},
		{Lat: 90, Lon: 0},
		{Lat: -90, Lon: 0},
	}
	for _, a := range points {
		for _, b := range points {
			assert.Equal(t, Haversine(a, b), Haversine(b, a), "%v %v", a, b)
			assert.GreaterOrEqual(t, Haversine(a, b), 0.0)
		}
	}
}

func TestHaversine_KnownDistances(t *testing.T) {
	assert.InDelta(t, 0.689, Haversine(gastown.Coordinate(), waterfront), 0.001)
	// Across the antimeridian the short way round.
	assert.InDelta(t, 22.239, Haversine(model.Coordinate{Lon: 179.9}, model.Coordinate{Lon: -179.9}), 0.001)
	// Pole to pole is half the circumference.
	assert.InDelta(t, math.Pi*EarthRadiusKm, Haversine(model.Coordinate{Lat: 90}, model.Coordinate{Lat: -90}), 1e-6)
}

func TestValidateReference(t *testing.T) {
	assert.NoError(t, ValidateReference(gastown))
	assert.NoError(t, ValidateReference(model.ReferencePoint{Lat: 90, Lon: 180}))
	assert.NoError(t, ValidateReference(model.ReferencePoint{Lat: -90, Lon: -180}))

	bad := []model.ReferencePoint{
		{Lat: 90.0001, Lon: 0},
		{Lat: 0, Lon: -180.5},
		{Lat: math.NaN(), Lon: 0},
		{Lat: 0, Lon: math.Inf(1)},
	}
	for _, ref := range bad {
		err := ValidateReference(ref)
		assert.True(t, errors.Is(err, ErrInvalidReferencePoint), "%v", ref)
	}
}

func TestFilter_SamePointIncludedAtZeroRadius(t *testing.T) {
	ref := model.ReferencePoint{Lat: 49.2827, Lon: -123.1207}
	got, err := Filter([]*model.Record{rec("A", &waterfront)}, ref, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].DistanceKm)
}

func TestFilter_Gastown(t *testing.T) {
	records := []*model.Record{rec("A", &waterfront)}

	got, err := Filter(records, gastown, 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Filter(records, gastown, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Record.LicenseNumber)
	assert.InDelta(t, 0.689, got[0].DistanceKm, 0.001)
}

func TestFilter_RadiusBoundaryInclusive(t *testing.T) {
	records := []*model.Record{rec("A", &waterfront)}
	d := Haversine(gastown.Coordinate(), waterfront)

	got, err := Filter(records, gastown, d)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = Filter(records, gastown, math.Nextafter(d, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFilter_CorrectnessAndOrdering(t *testing.T) {
	records := []*model.Record{
		rec("far", coord(49.2057, -122.9110)),  // ~17.3 km
		rec("none", nil),                       // no coordinate
		rec("mid", coord(49.2488, -123.1164)),  // ~3.2 km
		rec("near", coord(49.2827, -123.1207)), // ~0.7 km
		rec("kits", coord(49.2634, -123.1384)), // ~1.8 km
		rec("near-dup", coord(49.2827, -123.1207)),
	}
	const radius = 5.0

	got, err := Filter(records, gastown, radius)
	require.NoError(t, err)

	var ids []string
	for _, r := range got {
		ids = append(ids, r.Record.LicenseNumber)
		assert.LessOrEqual(t, r.DistanceKm, radius)
	}
	// Equal distances keep input order.
	assert.Equal(t, []string{"near", "near-dup", "kits", "mid"}, ids)

	included := map[string]bool{}
	for _, id := range ids {
		included[id] = true
	}
	for _, r := range records {
		if r.HasCoordinate() && !included[r.LicenseNumber] {
			assert.Greater(t, Haversine(gastown.Coordinate(), *r.Coordinate), radius)
		}
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	records := []*model.Record{rec("B", coord(49.2634, -123.1384)), rec("A", &waterfront)}

	got, err := Filter(records, gastown, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "B", records[0].LicenseNumber)
	got[0].Record.Coordinate.Lat = 0
	got[0].Record.Name = "changed"
	assert.Equal(t, 49.2827, records[1].Coordinate.Lat)
	assert.Equal(t, "Bar A", records[1].Name)
}

func TestFilter_InvalidInputs(t *testing.T) {
	records := []*model.Record{rec("A", &waterfront)}

	_, err := Filter(records, model.ReferencePoint{Lat: 100, Lon: 0}, 5)
	assert.True(t, errors.Is(err, ErrInvalidReferencePoint))

	_, err = Filter(records, gastown, -1)
	assert.True(t, errors.Is(err, ErrInvalidRadius))

	_, err = Filter(records, gastown, math.NaN())
	assert.True(t, errors.Is(err, ErrInvalidRadius))
}

func TestFilter_EmptyInput(t *testing.T) {
	got, err := Filter(nil, gastown, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAnnotateAndNearest(t *testing.T) {
	records := []*model.Record{
		rec("far", coord(49.2057, -122.9110)),
		rec("none", nil),
		rec("near", &waterfront),
		rec("kits", coord(49.2634, -123.1384)),
	}

	all, err := Annotate(records, gastown)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "near", all[0].Record.LicenseNumber)
	assert.Equal(t, "far", all[2].Record.LicenseNumber)

	top, err := Nearest(records, gastown, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "kits", top[1].Record.LicenseNumber)

	top, err = Nearest(records, gastown, 10)
	require.NoError(t, err)
	assert.Len(t, top, 3)

	top, err = Nearest(records, gastown, 0)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, err = Annotate(records, model.ReferencePoint{Lat: math.NaN()})
	assert.True(t, errors.Is(err, ErrInvalidReferencePoint))
}
