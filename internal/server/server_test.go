package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/license-map/internal/model"
)

func rec(license string, lat, lon float64) *model.Record {
	r := &model.Record{LicenseNumber: license, Name: "Venue " + license, Street: "1 Main St", City: "Vancouver"}
	r.SetCoordinate(model.Coordinate{Lat: lat, Lon: lon}, "nominatim", "house", time.Time{})
	return r
}

func testDataset() *model.Dataset {
	pending := &model.Record{LicenseNumber: "4", Name: "Pending", Street: "9 Nowhere Rd", City: "Vancouver",
		Geocode: model.GeocodeState{Status: model.GeocodeStatusPending}}
	return &model.Dataset{
		Meta: model.DatasetMeta{RunID: "run-1", Source: "test.xlsx"},
		Records: []*model.Record{
			rec("1", 48.4284, -123.3656), // Victoria, ~96 km
			rec("2", 49.2634, -123.1385), // ~1.84 km
			rec("3", 49.2827, -123.1207), // ~0.69 km
			pending,
		},
	}
}

func newTestServer(t *testing.T, load LoadFunc) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(context.Background(), Options{
		Load:            load,
		DefaultRadiusKm: 5,
		Now:             func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func staticLoad(ds *model.Dataset) LoadFunc {
	return func(context.Context) (*model.Dataset, error) { return ds, nil }
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 4, body["records"])
}

func TestNearby_FallbackReference(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	var body nearbyResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/nearby", &body))
	assert.Equal(t, model.FallbackReference, body.Reference)
	assert.InDelta(t, 5.0, body.RadiusKm, 1e-9)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "3", body.Results[0].Record.LicenseNumber)
	assert.InDelta(t, 0.689, body.Results[0].DistanceKm, 0.001)
	assert.Equal(t, "2", body.Results[1].Record.LicenseNumber)
}

func TestNearby_ExplicitReferenceAndLimit(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	var body nearbyResponse
	code := getJSON(t, ts.URL+"/v1/nearby?lat=49.2768&lon=-123.1236&radius_km=200&limit=2", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.ReferenceManual, body.Reference.Source)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "3", body.Results[0].Record.LicenseNumber)
	assert.Equal(t, "2", body.Results[1].Record.LicenseNumber)
}

func TestNearby_EmptyResultIsArray(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	resp, err := http.Get(ts.URL + "/v1/nearby?radius_km=0.1")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, "[]", string(raw["results"]))
}

func TestNearby_BadRequests(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	for _, q := range []string{
		"lat=91&lon=0",
		"lat=0&lon=181",
		"lat=NaN&lon=0",
		"lat=49",
		"lon=-123",
		"lat=abc&lon=0",
		"lat=0&lon=abc",
		"radius_km=-1",
		"radius_km=NaN",
		"radius_km=Inf",
		"radius_km=far",
		"limit=-1",
		"limit=x",
	} {
		t.Run(q, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/nearby?"+q, &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRecords(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	var all recordsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/records", &all))
	assert.Nil(t, all.Reference)
	require.Equal(t, 4, all.Count)
	assert.Equal(t, "1", all.Records[0].LicenseNumber, "input order preserved")
	assert.False(t, all.Records[3].HasCoordinate())

	var annotated recordsResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/records?lat=49.2768&lon=-123.1236", &annotated))
	require.NotNil(t, annotated.Reference)
	require.Equal(t, 3, annotated.Count)
	assert.Equal(t, "3", annotated.Results[0].Record.LicenseNumber)
	assert.Equal(t, "1", annotated.Results[2].Record.LicenseNumber)
	assert.InDelta(t, 95.98, annotated.Results[2].DistanceKm, 0.01)

	var bad map[string]string
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/v1/records?lat=100&lon=0", &bad))
}

func TestRecordByLicense(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	var r model.Record
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/records/2", &r))
	assert.Equal(t, "Venue 2", r.Name)
	require.NotNil(t, r.Coordinate)

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/v1/records/999", &missing))
	assert.Contains(t, missing["error"], "999")
}

func TestStatus(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	var st statusResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/status", &st))
	assert.Equal(t, "run-1", st.Meta.RunID)
	assert.Equal(t, 4, st.Stats.Total)
	assert.Equal(t, 3, st.Stats.WithCoordinate)
	assert.Equal(t, 1, st.Stats.Pending)
	assert.Equal(t, 3, st.Indexed)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), st.LoadedAt)
}

func TestReload(t *testing.T) {
	var calls atomic.Int32
	var fail atomic.Bool
	load := func(context.Context) (*model.Dataset, error) {
		if fail.Load() {
			return nil, errors.New("disk gone")
		}
		n := calls.Add(1)
		ds := testDataset()
		if n > 1 {
			ds.Records = ds.Records[:1]
		}
		return ds, nil
	}
	_, ts := newTestServer(t, load)

	resp, err := http.Post(ts.URL+"/v1/reload", "application/json", nil)
	require.NoError(t, err)
	var st statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, st.Stats.Total)

	fail.Store(true)
	resp, err = http.Post(ts.URL+"/v1/reload", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// The previous snapshot is still served.
	var body map[string]any
	getJSON(t, ts.URL+"/health", &body)
	assert.EqualValues(t, 1, body["records"])
}

func TestReload_MethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	resp, err := http.Get(ts.URL + "/v1/reload")
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, staticLoad(testDataset()))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://map.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{Load: func(context.Context) (*model.Dataset, error) {
		return nil, errors.New("boom")
	}})
	assert.Error(t, err)
}

func TestNew_NilDataset(t *testing.T) {
	_, ts := newTestServer(t, func(context.Context) (*model.Dataset, error) { return nil, nil })

	var body nearbyResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/v1/nearby", &body))
	assert.Equal(t, 0, body.Count)
}
