package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"planline/internal/domain"
	"planline/internal/geom"
)

// DXFParser reads ASCII DXF drawings. Closed polylines on ROOM layers become
// room polygons (the layer suffix drives the semantic type); LINE entities on
// WALL layers are chained into closed loops as a fallback when no room layer
// exists; DOOR/BEARING/PARTITION layers become openings.
type DXFParser struct{}

func NewDXFParser() *DXFParser { return &DXFParser{} }

func (p *DXFParser) Format() string { return "dxf" }

func (p *DXFParser) CanParse(ext string) bool {
	return ext == ".dxf"
}

// dxfEntity is one parsed ENTITIES-section record.
type dxfEntity struct {
	kind   string
	layer  string
	points []geom.Point
	closed bool
	// LINE endpoints arrive on distinct codes (10/20 start, 11/21 end)
	end    geom.Point
	hasEnd bool
}

func (p *DXFParser) Parse(name string, content []byte) (*Drawing, error) {
	entities, err := parseDXFEntities(content)
	if err != nil {
		return nil, domain.GeometryErrorf("parse %s: %v", name, err)
	}

	d := &Drawing{}
	var wallLines []geom.Segment
	var roomLoops []geom.Polygon
	var roomTypes []string

	for _, e := range entities {
		layer := strings.ToUpper(e.layer)
		switch {
		case strings.HasPrefix(layer, "ROOM"):
			if e.kind == "LINE" {
				if s, ok := e.segment(); ok {
					wallLines = append(wallLines, s)
				}
				continue
			}
			pts := e.vertices()
			if e.closed || (len(pts) >= 3 && pts[0] == pts[len(pts)-1]) {
				roomLoops = append(roomLoops, pts)
				roomTypes = append(roomTypes, layerRoomType(layer))
			} else if len(pts) >= 3 {
				// open loop on a room layer is degenerate input
				d.Skipped++
				d.Notes = append(d.Notes, fmt.Sprintf("open polyline on layer %s skipped", e.layer))
			}
		case strings.HasPrefix(layer, "DOOR") || layer == "OPENING":
			if s, ok := e.segment(); ok {
				d.Openings = append(d.Openings, domain.Opening{
					ID:   fmt.Sprintf("door_%03d", len(d.Openings)),
					Kind: domain.OpeningDoor,
					At:   s,
				})
			}
		case strings.HasPrefix(layer, "BEARING") || layer == "WALL_BEARING":
			if s, ok := e.segment(); ok {
				d.Openings = append(d.Openings, domain.Opening{
					ID:   fmt.Sprintf("bearing_%03d", len(d.Openings)),
					Kind: domain.OpeningBearingWall,
					At:   s,
				})
			}
		case strings.HasPrefix(layer, "PARTITION"):
			if s, ok := e.segment(); ok {
				d.Openings = append(d.Openings, domain.Opening{
					ID:   fmt.Sprintf("partition_%03d", len(d.Openings)),
					Kind: domain.OpeningPartition,
					At:   s,
				})
			}
		case strings.HasPrefix(layer, "WALL"):
			if s, ok := e.segment(); ok {
				wallLines = append(wallLines, s)
			}
		case layer == "HUB" || layer == "PANEL":
			if len(e.points) > 0 {
				h := e.points[0]
				d.Hub = &h
			}
		}
	}

	// no explicit room outlines: chain wall lines into closed loops
	if len(roomLoops) == 0 && len(wallLines) > 0 {
		for _, loop := range chainLoops(wallLines, 1e-6) {
			roomLoops = append(roomLoops, loop)
			roomTypes = append(roomTypes, domain.RoomUnknown)
		}
		if len(roomLoops) > 0 {
			d.Notes = append(d.Notes, "rooms reconstructed from wall lines")
		}
	}

	for i, loop := range roomLoops {
		d.addRoom(loop, roomTypes[i], "")
	}
	return d, nil
}

// vertices returns a polyline's point list, including the LINE end point.
func (e *dxfEntity) vertices() geom.Polygon {
	pts := geom.Polygon(e.points)
	if e.hasEnd {
		pts = append(pts, e.end)
	}
	return pts
}

// segment reduces an entity to a single segment (first to last point); used
// for openings and wall lines.
func (e *dxfEntity) segment() (geom.Segment, bool) {
	pts := e.vertices()
	if len(pts) < 2 {
		return geom.Segment{}, false
	}
	return geom.Segment{A: pts[0], B: pts[len(pts)-1]}, true
}

// parseDXFEntities walks the group code/value pairs of an ASCII DXF stream
// and collects LINE and LWPOLYLINE entities. Unknown entity types are
// ignored.
func parseDXFEntities(content []byte) ([]dxfEntity, error) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var out []dxfEntity
	var cur *dxfEntity
	var curX float64
	var haveX bool
	flush := func() {
		if cur != nil && (cur.kind == "LINE" || cur.kind == "LWPOLYLINE" || cur.kind == "POINT") {
			out = append(out, *cur)
		}
		cur = nil
		haveX = false
	}

	for sc.Scan() {
		codeLine := strings.TrimSpace(sc.Text())
		if !sc.Scan() {
			break
		}
		value := strings.TrimSpace(sc.Text())
		code, err := strconv.Atoi(codeLine)
		if err != nil {
			return nil, fmt.Errorf("bad group code %q", codeLine)
		}

		switch code {
		case 0:
			flush()
			cur = &dxfEntity{kind: value}
		case 8:
			if cur != nil {
				cur.layer = value
			}
		case 10:
			if cur != nil {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("bad coordinate %q", value)
				}
				curX = v
				haveX = true
			}
		case 20:
			if cur != nil && haveX {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("bad coordinate %q", value)
				}
				cur.points = append(cur.points, geom.Point{X: curX, Y: v})
				haveX = false
			}
		case 11:
			if cur != nil {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("bad coordinate %q", value)
				}
				cur.end.X = v
			}
		case 21:
			if cur != nil {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("bad coordinate %q", value)
				}
				cur.end.Y = v
				cur.hasEnd = true
			}
		case 70:
			if cur != nil && cur.kind == "LWPOLYLINE" {
				flags, _ := strconv.Atoi(value)
				cur.closed = flags&1 != 0
			}
		}
	}
	flush()
	return out, sc.Err()
}

// layerRoomType extracts the semantic type from a ROOM layer name,
// e.g. ROOM_KITCHEN -> kitchen.
func layerRoomType(layer string) string {
	if i := strings.IndexByte(layer, '_'); i >= 0 {
		return roomTypeFromName(layer[i+1:])
	}
	return domain.RoomUnknown
}

// chainLoops joins wall segments end-to-end into closed loops. Endpoints are
// matched within tol; open chains and unclosed leftovers are discarded.
func chainLoops(segs []geom.Segment, tol float64) []geom.Polygon {
	used := make([]bool, len(segs))
	var loops []geom.Polygon

	near := func(a, b geom.Point) bool { return a.Dist(b) <= tol }

	for i := range segs {
		if used[i] {
			continue
		}
		used[i] = true
		loop := geom.Polygon{segs[i].A, segs[i].B}
		closed := false

		for !closed {
			tail := loop[len(loop)-1]
			found := false
			for j := range segs {
				if used[j] {
					continue
				}
				var next geom.Point
				switch {
				case near(segs[j].A, tail):
					next = segs[j].B
				case near(segs[j].B, tail):
					next = segs[j].A
				default:
					continue
				}
				used[j] = true
				if near(next, loop[0]) {
					closed = true
				} else {
					loop = append(loop, next)
				}
				found = true
				break
			}
			if !found {
				break
			}
		}
		if closed && len(loop) >= 3 {
			loops = append(loops, loop)
		}
	}
	return loops
}
