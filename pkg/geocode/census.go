package geocode

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark  = "Public_AR_Current"
)

// censusOneLineResponse is the JSON response from the Census single-address API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"` // longitude
				Y float64 `json:"y"` // latitude
			} `json:"coordinates"`
			MatchedAddress string `json:"matchedAddress"`
		} `json:"addressMatches"`
	} `json:"result"`
	Errors []string `json:"errors"`
}

// Census geocodes through the US Census Bureau one-line address API. It only
// covers US addresses and is useful for cross-border establishments.
type Census struct {
	httpProvider
}

// NewCensus creates a Census client.
func NewCensus(opts ...Option) *Census {
	return &Census{httpProvider: newHTTPProvider("census", censusOneLineURL, opts)}
}

// Name implements Client.
func (c *Census) Name() string { return c.name }

// Resolve implements Client.
func (c *Census) Resolve(ctx context.Context, address string) Result {
	address = strings.TrimSpace(address)
	if address == "" {
		return invalidAddress(c.name)
	}

	params := url.Values{
		"address":   {address},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}

	body, err := c.get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return c.failure(err, true)
	}

	var resp censusOneLineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return transient(c.name, eris.Wrap(err, "geocode: census parse response"), 0)
	}
	if len(resp.Errors) > 0 {
		return transient(c.name, eris.Errorf("geocode: census errors: %s", strings.Join(resp.Errors, "; ")), 0)
	}
	if len(resp.Result.AddressMatches) == 0 {
		return noMatch(c.name)
	}

	match := resp.Result.AddressMatches[0]
	// Census one-line matches are interpolated along the street segment.
	return resolved(c.name, match.Coordinates.Y, match.Coordinates.X, "range", match.MatchedAddress)
}
