// Package geocode resolves place names to coordinates through a
// Nominatim-compatible search API, remembering every answer, including
// "not found", in a pluggable Store.
package geocode

import (
	"context"
	"strings"
)

// Entry is a cached lookup result. Found=false is an explicit negative:
// the place was looked up and could not be resolved.
type Entry struct {
	Found bool    `json:"found"`
	Lat   float64 `json:"lat,omitempty"`
	Lon   float64 `json:"lon,omitempty"`
}

// Negative is the cached "not found" marker.
var Negative = Entry{}

// Key builds the cache key "parish|canton|province", each part trimmed and
// lower-cased.
func Key(place, canton, province string) string {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return norm(place) + "|" + norm(canton) + "|" + norm(province)
}

// Query builds the free-text search query, omitting empty parts.
func Query(place, canton, province, country string) string {
	var parts []string
	for _, p := range []string{place, canton, province, country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Store persists lookup results. Get reports found=false for a missing key;
// a stored negative is returned as (Negative, true, nil).
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// Lister is implemented by stores that can enumerate their contents.
type Lister interface {
	Entries(ctx context.Context) (map[string]Entry, error)
}

// BulkPutter is implemented by stores with a faster multi-entry write.
type BulkPutter interface {
	PutMany(ctx context.Context, entries map[string]Entry) error
}

// Copy writes every entry of src into dst and returns how many were copied.
func Copy(ctx context.Context, dst Store, src Lister) (int, error) {
	entries, err := src.Entries(ctx)
	if err != nil {
		return 0, err
	}
	if bp, ok := dst.(BulkPutter); ok {
		if err := bp.PutMany(ctx, entries); err != nil {
			return 0, err
		}
		return len(entries), nil
	}
	n := 0
	for k, e := range entries {
		if err := dst.Put(ctx, k, e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Stats summarizes a store's contents.
type Stats struct {
	Entries   int `json:"entries"`
	Positives int `json:"positives"`
	Negatives int `json:"negatives"`
}

// Summarize counts positive and negative entries.
func Summarize(entries map[string]Entry) Stats {
	s := Stats{Entries: len(entries)}
	for _, e := range entries {
		if e.Found {
			s.Positives++
		} else {
			s.Negatives++
		}
	}
	return s
}
