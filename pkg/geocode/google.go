package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// Google geocodes through the Google Geocoding API.
type Google struct {
	httpProvider
	region string
}

// NewGoogle creates a Google client biased to Canadian results. An API key
// is required; without one every call reports a transient failure so records
// stay pending until the key is configured.
func NewGoogle(opts ...Option) *Google {
	return &Google{
		httpProvider: newHTTPProvider("google", googleGeocodeURL, opts),
		region:       "ca",
	}
}

// Name implements Client.
func (g *Google) Name() string { return g.name }

// Resolve implements Client.
func (g *Google) Resolve(ctx context.Context, address string) Result {
	address = strings.TrimSpace(address)
	if address == "" {
		return invalidAddress(g.name)
	}
	if g.apiKey == "" {
		return transient(g.name, eris.New("geocode: google api key not configured"), 0)
	}

	params := url.Values{
		"address": {address},
		"key":     {g.apiKey},
	}
	if g.region != "" {
		params.Set("region", g.region)
	}

	body, err := g.get(ctx, g.baseURL+"?"+params.Encode())
	if err != nil {
		return g.failure(err, false)
	}

	var resp googleGeocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return transient(g.name, eris.Wrap(err, "geocode: google parse response"), 0)
	}

	switch resp.Status {
	case "OK":
		if len(resp.Results) == 0 {
			return noMatch(g.name)
		}
	case "ZERO_RESULTS":
		return noMatch(g.name)
	default:
		// OVER_QUERY_LIMIT, REQUEST_DENIED, INVALID_REQUEST, UNKNOWN_ERROR: the
		// address itself was not judged, so keep it retriable.
		return transient(g.name, eris.Errorf("geocode: google status %s: %s", resp.Status, resp.ErrorMessage), 0)
	}

	best := resp.Results[0]
	return resolved(g.name,
		best.Geometry.Location.Lat,
		best.Geometry.Location.Lng,
		googleLocationTypeToQuality(best.Geometry.LocationType),
		best.FormattedAddress,
	)
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
