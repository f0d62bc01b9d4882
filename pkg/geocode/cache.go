package geocode

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/license-map/internal/model"
)

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// Cache remembers definitive outcomes by address so records that share an
// address cost one provider request. Resolved results and non-matches are
// kept; transient failures and invalid addresses never are. It is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Result
	hits    int
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Result)}
}

// Get returns the cached outcome for address.
func (c *Cache) Get(address string) (Result, bool) {
	if c == nil || address == "" {
		return Result{}, false
	}
	key := cacheKey(address)

	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	c.hits++
	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.String("status", r.Status.String()))
	return r, true
}

// Put stores a definitive outcome for address. Other outcomes are ignored.
func (c *Cache) Put(address string, r Result) {
	if c == nil || address == "" {
		return
	}
	if r.Status != StatusResolved && r.Status != StatusNoMatch {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(address)] = r
}

// Seed stores the coordinate a record already carries under its address.
// Records without a coordinate are skipped.
func (c *Cache) Seed(address string, r *model.Record) {
	if r == nil || !r.HasCoordinate() {
		return
	}
	c.Put(address, Result{
		Status:     StatusResolved,
		Coordinate: *r.Coordinate,
		Provider:   r.Geocode.Provider,
		Quality:    r.Geocode.Quality,
	})
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Hits returns how many lookups were answered from the cache.
func (c *Cache) Hits() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}
