package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const nominatimURL = "https://nominatim.openstreetmap.org"

// nominatimPlace is one element of the Nominatim /search JSON response.
type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

// Nominatim geocodes through OpenStreetMap's Nominatim search API. Its usage
// policy requires an identifying User-Agent and at most one request per second.
type Nominatim struct {
	httpProvider
	countryCodes string
}

// NewNominatim creates a Nominatim client biased to Canadian results.
func NewNominatim(opts ...Option) *Nominatim {
	return &Nominatim{
		httpProvider: newHTTPProvider("nominatim", nominatimURL, opts),
		countryCodes: "ca",
	}
}

// Name implements Client.
func (n *Nominatim) Name() string { return n.name }

// Resolve implements Client.
func (n *Nominatim) Resolve(ctx context.Context, address string) Result {
	address = strings.TrimSpace(address)
	if address == "" {
		return invalidAddress(n.name)
	}

	params := url.Values{
		"q":      {address},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	if n.countryCodes != "" {
		params.Set("countrycodes", n.countryCodes)
	}

	body, err := n.get(ctx, n.baseURL+"/search?"+params.Encode())
	if err != nil {
		return n.failure(err, true)
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return transient(n.name, eris.Wrap(err, "geocode: nominatim parse response"), 0)
	}
	if len(places) == 0 {
		return noMatch(n.name)
	}

	best := places[0]
	lat, latErr := strconv.ParseFloat(best.Lat, 64)
	lon, lonErr := strconv.ParseFloat(best.Lon, 64)
	if latErr != nil || lonErr != nil {
		return transient(n.name, eris.Errorf("geocode: nominatim invalid coordinate %q,%q", best.Lat, best.Lon), 0)
	}

	return resolved(n.name, lat, lon, nominatimQuality(best), best.DisplayName)
}

// nominatimQuality maps the OSM class/type of the match to our quality taxonomy.
func nominatimQuality(p nominatimPlace) string {
	switch {
	case p.Class == "building" || p.Type == "house" || p.Class == "amenity" || p.Class == "shop":
		return "rooftop"
	case p.Class == "highway":
		return "range"
	case p.Class == "place" || p.Class == "boundary":
		return "centroid"
	default:
		return "approximate"
	}
}
