// Package ingest parses source drawings into the geometry store
// representation. Two source formats are supported: a vector CAD exchange
// format (DXF) and a simplified polygon-exchange JSON format. Both normalize
// into the same Room/Opening set, so downstream stages are format-agnostic.
package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"planline/internal/domain"
	"planline/internal/geom"
)

// Drawing is the normalized output of any parser.
type Drawing struct {
	Rooms    []domain.Room
	Openings []domain.Opening
	Hub      *geom.Point
	Skipped  int
	Notes    []string
}

// Parser parses one source format into a Drawing.
type Parser interface {
	// Parse parses raw drawing bytes.
	Parse(name string, content []byte) (*Drawing, error)

	// CanParse reports whether this parser handles the file extension.
	CanParse(ext string) bool

	// Format returns the format tag for this parser.
	Format() string
}

// Registry manages drawing parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// DefaultRegistry is the global parser registry with default parsers.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a registry with the default parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	r.Register(NewDXFParser())
	r.Register(NewPlanJSONParser())
	return r
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Format()] = p
}

// ByExtension returns the parser for a filename, or nil.
func (r *Registry) ByExtension(name string) Parser {
	ext := strings.ToLower(filepath.Ext(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.parsers {
		if p.CanParse(ext) {
			return p
		}
	}
	return nil
}

// Parse parses a drawing with the appropriate parser and validates that at
// least one usable room came out: the pipeline cannot proceed without rooms.
func (r *Registry) Parse(name string, content []byte) (*Drawing, error) {
	p := r.ByExtension(name)
	if p == nil {
		return nil, domain.GeometryErrorf("no parser for file type %q", filepath.Ext(name))
	}
	d, err := p.Parse(name, content)
	if err != nil {
		return nil, err
	}
	if len(d.Rooms) == 0 {
		return nil, domain.GeometryErrorf("no valid rooms in %s (%d degenerate shapes skipped)", name, d.Skipped)
	}
	return d, nil
}

// Parse parses a drawing using the default registry.
func Parse(name string, content []byte) (*Drawing, error) {
	return DefaultRegistry.Parse(name, content)
}

// addRoom validates and appends a polygon as a room, counting degenerate
// shapes instead of failing on them.
func (d *Drawing) addRoom(pg geom.Polygon, roomType, label string) {
	pg = dropClosingVertex(pg)
	if !pg.Valid() {
		d.Skipped++
		d.Notes = append(d.Notes, fmt.Sprintf("skipped degenerate polygon (%d vertices)", len(pg)))
		return
	}
	id := label
	if id == "" {
		id = fmt.Sprintf("room_%03d", len(d.Rooms))
	}
	if roomType == "" {
		roomType = domain.RoomUnknown
	}
	d.Rooms = append(d.Rooms, domain.Room{
		ID:      id,
		Type:    roomType,
		Polygon: pg,
		Area:    pg.Area(),
	})
}

// dropClosingVertex removes an explicit closing vertex; Polygon treats the
// closing edge as implicit.
func dropClosingVertex(pg geom.Polygon) geom.Polygon {
	if len(pg) >= 2 && pg[0] == pg[len(pg)-1] {
		return pg[:len(pg)-1]
	}
	return pg
}

// roomTypeFromName maps a layer or label token to a known room type.
func roomTypeFromName(name string) string {
	switch strings.ToLower(name) {
	case domain.RoomOffice:
		return domain.RoomOffice
	case domain.RoomLiving:
		return domain.RoomLiving
	case domain.RoomBedroom:
		return domain.RoomBedroom
	case domain.RoomKitchen:
		return domain.RoomKitchen
	case domain.RoomCorridor, "hall", "hallway":
		return domain.RoomCorridor
	case domain.RoomUtility, "storage", "closet":
		return domain.RoomUtility
	default:
		return domain.RoomUnknown
	}
}
