package geocode

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Providers lists the provider names New accepts.
var Providers = []string{"nominatim", "google", "census"}

// New builds a provider client by name.
func New(provider string, opts ...Option) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "nominatim":
		return NewNominatim(opts...), nil
	case "google":
		return NewGoogle(opts...), nil
	case "census":
		return NewCensus(opts...), nil
	default:
		return nil, eris.Errorf("geocode: unknown provider %q", provider)
	}
}

// Fallback is an explicit policy that consults a secondary provider when the
// primary does not resolve an address. Each underlying client still makes a
// single request per call. Invalid addresses are never sent to the secondary.
//
// Name reports the primary's name, so callers rate-limit the first request
// against the primary; AcquireSecondary, when set, gates the second request.
type Fallback struct {
	Primary          Client
	Secondary        Client
	AcquireSecondary func(ctx context.Context) error
}

// NewFallback creates a Fallback policy.
func NewFallback(primary, secondary Client, acquireSecondary func(ctx context.Context) error) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary, AcquireSecondary: acquireSecondary}
}

// Name implements Client.
func (f *Fallback) Name() string { return f.Primary.Name() }

// Resolve implements Client. The combined outcome is resolved if either
// provider resolved, transient if either failed transiently (so the record is
// retried later), and no-match only when both answered definitively.
func (f *Fallback) Resolve(ctx context.Context, address string) Result {
	first := f.Primary.Resolve(ctx, address)
	if first.Status == StatusResolved || first.Status == StatusInvalidAddress {
		return first
	}

	if f.AcquireSecondary != nil {
		if err := f.AcquireSecondary(ctx); err != nil {
			return first
		}
	}

	second := f.Secondary.Resolve(ctx, address)
	switch {
	case second.Status == StatusResolved:
		return second
	case first.Status == StatusTransient:
		return first
	case second.Status == StatusTransient:
		return second
	default:
		return first
	}
}
