// Package geocode provides a simple, deterministic, concurrency-safe
// reverse-geocoding lookup: coordinates in, human-readable place label out.
// It is intentionally small and replaceable — the rest of the system only
// sees the Resolver interface, so a real geocoding service can be swapped
// in without touching callers. Labels are informational only and never
// participate in distance math or liveness decisions.
//
// The built-in implementation is an immutable in-memory gazetteer:
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options for construction (cutoff distance, entry cap)
//   - Read-only after construction (safe for concurrent use)
//   - Deterministic resolution (nearest place; ties broken by name)
package geocode

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tbourn/go-nearby-backend/internal/geo"
)

// Resolver maps a coordinate to a display label. The second return value is
// false when no label is known for the area.
type Resolver interface {
	Reverse(c geo.Coordinate) (string, bool)
}

// Place is a single named location in the gazetteer.
type Place struct {
	Name  string
	Coord geo.Coordinate
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	cutoffKm   float64
	maxEntries int
}

func defaultConfig() config {
	return config{
		cutoffKm:   3.0,
		maxEntries: 0,
	}
}

// WithCutoffKm sets the maximum distance at which a place still labels a
// coordinate. Non-positive values keep the default.
func WithCutoffKm(km float64) Option {
	return func(c *config) {
		if km > 0 {
			c.cutoffKm = km
		}
	}
}

// WithMaxEntries caps the number of gazetteer entries kept (0 = unlimited).
func WithMaxEntries(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxEntries = n
		}
	}
}

// ----------------------------------------------------------------------------
// Gazetteer

// Gazetteer is an immutable nearest-place resolver. Construct with New or
// NewFromFile; the zero value resolves nothing.
type Gazetteer struct {
	places   []Place
	cutoffKm float64
}

// New builds a Gazetteer from the given places. Entries with invalid
// coordinates or empty names are dropped. The retained slice is sorted by
// name so construction order does not affect resolution.
func New(places []Place, opts ...Option) *Gazetteer {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	kept := make([]Place, 0, len(places))
	for _, p := range places {
		name := strings.TrimSpace(p.Name)
		if name == "" || p.Coord.Validate() != nil {
			continue
		}
		kept = append(kept, Place{Name: name, Coord: p.Coord})
		if cfg.maxEntries > 0 && len(kept) >= cfg.maxEntries {
			break
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })

	return &Gazetteer{places: kept, cutoffKm: cfg.cutoffKm}
}

// NewFromFile loads a gazetteer from a plain-text file with one place per
// line: "name, lat, lng". Blank lines and lines starting with '#' are
// skipped; malformed lines are dropped silently.
func NewFromFile(path string, opts ...Option) (*Gazetteer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var places []Place
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			continue
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		places = append(places, Place{
			Name:  strings.TrimSpace(parts[0]),
			Coord: geo.Coordinate{Lat: lat, Lng: lng},
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return New(places, opts...), nil
}

// Reverse returns the name of the nearest place within the cutoff distance.
// Equidistant places resolve to the lexicographically smallest name, so the
// result is stable across runs.
func (g *Gazetteer) Reverse(c geo.Coordinate) (string, bool) {
	if g == nil || len(g.places) == 0 || c.Validate() != nil {
		return "", false
	}

	best := ""
	bestD := g.cutoffKm
	for _, p := range g.places {
		d, err := geo.DistanceKm(c, p.Coord)
		if err != nil {
			continue
		}
		// Strict less-than keeps the first (lexicographically smallest)
		// name on exact ties because places are sorted by name.
		if d < bestD || (best == "" && d == bestD) {
			best = p.Name
			bestD = d
		}
	}
	return best, best != ""
}

// Len returns the number of entries retained.
func (g *Gazetteer) Len() int {
	if g == nil {
		return 0
	}
	return len(g.places)
}

// NopResolver resolves nothing. Useful default wiring when no gazetteer
// data file is configured.
type NopResolver struct{}

// Reverse implements Resolver.
func (NopResolver) Reverse(geo.Coordinate) (string, bool) { return "", false }
