package stops

import (
	"context"
	"log"
)

// Metadata is the static description of a stop as persisted in the
// state file. Lat and Lon stay nil until the stop has been resolved;
// nil is the unresolved marker and is distinct from a 0.0 coordinate.
type Metadata struct {
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// Resolved reports whether coordinates have been filled in.
func (m *Metadata) Resolved() bool {
	return m != nil && m.Lat != nil && m.Lon != nil
}

// Point is a fully resolved stop location.
type Point struct {
	Name string
	Lat  float64
	Lon  float64
}

// Resolver defines the interface for external stop metadata lookup.
type Resolver interface {
	ResolveStop(ctx context.Context, stopID string) (Point, error)
}

// Cache memoizes stop metadata, filling gaps through a Resolver. Stops
// enter as stubs the first time they are seen and keep their stub until
// a resolution succeeds; a failed lookup is logged and retried on a
// later call. Entries are never removed.
type Cache struct {
	stops    map[string]*Metadata
	resolver Resolver
}

// NewCache wraps an existing stop metadata map, typically the one
// loaded from the state file. Mutations are made through that map so
// the caller sees them when persisting.
func NewCache(stops map[string]*Metadata, resolver Resolver) *Cache {
	if stops == nil {
		stops = make(map[string]*Metadata)
	}
	return &Cache{stops: stops, resolver: resolver}
}

// EnsureResolved makes sure metadata exists for the stop, creating a
// stub named after hintName (or the stop id) when absent and attempting
// one resolution when coordinates are still missing. Resolution
// failures are swallowed; the stub stays in place for the next attempt.
func (c *Cache) EnsureResolved(ctx context.Context, stopID, hintName string) {
	m := c.stops[stopID]
	if m.Resolved() {
		return
	}
	if m == nil {
		name := hintName
		if name == "" {
			name = stopID
		}
		m = &Metadata{Name: name}
		c.stops[stopID] = m
	}

	pt, err := c.resolver.ResolveStop(ctx, stopID)
	if err != nil {
		log.Printf("Stops: resolving %s failed, will retry: %v", stopID, err)
		return
	}
	m.Lat = &pt.Lat
	m.Lon = &pt.Lon
	if pt.Name != "" {
		m.Name = pt.Name
	}
}
