// Package geo resolves IPs to coarse locations. Lookups are best-effort: any failure is
// reported as "not found" and callers carry on without the data.
package geo

import (
	"fmt"
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oschwald/geoip2-golang"
)

// Location is the enrichment attached to security events.
type Location struct {
	CountryCode string `json:"country_code"`
	Region      string `json:"region"`
	City        string `json:"city"`
}

// Locator looks up an IP.
type Locator interface {
	Lookup(ip string) (Location, bool)
}

// NopLocator never finds anything. It is used when no database is configured.
type NopLocator struct{}

// Lookup implements Locator.
func (NopLocator) Lookup(string) (Location, bool) { return Location{}, false }

// MaxMindLocator reads a GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	reader *geoip2.Reader
}

// OpenMaxMind opens the database at path.
func OpenMaxMind(path string) (*MaxMindLocator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindLocator{reader: r}, nil
}

// Lookup implements Locator.
func (m *MaxMindLocator) Lookup(ip string) (Location, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, false
	}
	rec, err := m.reader.City(parsed)
	if err != nil || rec.Country.IsoCode == "" {
		return Location{}, false
	}
	loc := Location{CountryCode: rec.Country.IsoCode, City: rec.City.Names["en"]}
	if len(rec.Subdivisions) > 0 {
		loc.Region = rec.Subdivisions[0].Names["en"]
	}
	return loc, true
}

// Close releases the database.
func (m *MaxMindLocator) Close() error {
	return m.reader.Close()
}

type cached struct {
	loc   Location
	found bool
}

// CachedLocator memoises another Locator in a fixed-size LRU, misses included.
type CachedLocator struct {
	next  Locator
	cache *lru.Cache[string, cached]
}

// NewCachedLocator wraps next with an LRU of size entries.
func NewCachedLocator(next Locator, size int) (*CachedLocator, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, cached](size)
	if err != nil {
		return nil, err
	}
	return &CachedLocator{next: next, cache: c}, nil
}

// Lookup implements Locator.
func (c *CachedLocator) Lookup(ip string) (Location, bool) {
	if ip == "" {
		return Location{}, false
	}
	if v, ok := c.cache.Get(ip); ok {
		return v.loc, v.found
	}
	loc, found := c.next.Lookup(ip)
	c.cache.Add(ip, cached{loc: loc, found: found})
	return loc, found
}

// New builds the locator described by a database path and cache size. An empty path, or a
// database that fails to open, yields a NopLocator plus the open error for logging.
func New(dbPath string, cacheSize int) (Locator, error) {
	if dbPath == "" {
		return NopLocator{}, nil
	}
	mm, err := OpenMaxMind(dbPath)
	if err != nil {
		return NopLocator{}, err
	}
	c, err := NewCachedLocator(mm, cacheSize)
	if err != nil {
		return mm, nil
	}
	return c, nil
}
