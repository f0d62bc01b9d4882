package spatial

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/license-map/internal/model"
)

func TestIndex_Empty(t *testing.T) {
	ix := NewIndex([]*model.Record{rec("none", nil)})
	assert.Zero(t, ix.Len())
	assert.Nil(t, ix.Extent())

	got, err := ix.Within(gastown, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndex_Extent(t *testing.T) {
	ix := NewIndex([]*model.Record{
		rec("a", coord(49.2057, -122.9110)),
		rec("b", coord(49.2827, -123.1207)),
	})
	require.Equal(t, 2, ix.Len())

	ext := ix.Extent()
	require.NotNil(t, ext)
	assert.Equal(t, -123.1207, ext.Min(0))
	assert.Equal(t, 49.2057, ext.Min(1))
	assert.Equal(t, -122.9110, ext.Max(0))
	assert.Equal(t, 49.2827, ext.Max(1))
}

func TestIndex_OutsideExtent(t *testing.T) {
	ix := NewIndex([]*model.Record{rec("a", &waterfront)})
	got, err := ix.Within(model.ReferencePoint{Lat: 45.5, Lon: -73.56}, 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIndex_MatchesFilter(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var records []*model.Record
	for i := range 500 {
		var c *model.Coordinate
		if i%7 != 0 {
			c = coord(49.0+rng.Float64()*0.5, -123.3+rng.Float64()*0.8)
		}
		records = append(records, rec(string(rune('A'+i%26))+string(rune('0'+i%10)), c))
	}
	ix := NewIndex(records)

	refs := []model.ReferencePoint{
		gastown,
		{Lat: 49.25, Lon: -123.0},
		{Lat: 49.49, Lon: -122.51},
	}
	for _, ref := range refs {
		for _, radius := range []float64{0, 0.5, 2, 5, 25, 200} {
			want, err := Filter(records, ref, radius)
			require.NoError(t, err)
			got, err := ix.Within(ref, radius)
			require.NoError(t, err)
			assert.Equal(t, want, got, "ref=%v radius=%v", ref, radius)
		}
	}
}

func TestIndex_PolesAndAntimeridianFallBackToScan(t *testing.T) {
	records := []*model.Record{
		rec("east", coord(0, 179.95)),
		rec("west", coord(0, -179.95)),
		rec("north", coord(89.99, 10)),
		rec("north-far-side", coord(89.99, -170)),
	}
	ix := NewIndex(records)

	got, err := ix.Within(model.ReferencePoint{Lat: 0, Lon: 179.95}, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "east", got[0].Record.LicenseNumber)
	assert.Equal(t, "west", got[1].Record.LicenseNumber)

	got, err = ix.Within(model.ReferencePoint{Lat: 89.99, Lon: 10}, 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIndex_InvalidInputs(t *testing.T) {
	ix := NewIndex([]*model.Record{rec("a", &waterfront)})

	_, err := ix.Within(model.ReferencePoint{Lat: -91}, 1)
	assert.ErrorIs(t, err, ErrInvalidReferencePoint)

	_, err = ix.Within(gastown, -0.1)
	assert.ErrorIs(t, err, ErrInvalidRadius)
}

func TestIndex_CopiesRecords(t *testing.T) {
	r := rec("a", &waterfront)
	ix := NewIndex([]*model.Record{r})
	r.Coordinate.Lat = 0

	got, err := ix.Within(gastown, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 49.2827, got[0].Record.Coordinate.Lat)
}
