package ingest

import (
	"encoding/json"
	"strings"
	"testing"

	"planline/internal/domain"
)

const planTwoRooms = `{
  "rooms": [
    {"id": "living", "type": "living", "polygon": [{"x":0,"y":0},{"x":10,"y":0},{"x":10,"y":8},{"x":0,"y":8}]},
    {"id": "kitchen", "type": "kitchen", "polygon": [{"x":10,"y":0},{"x":16,"y":0},{"x":16,"y":8},{"x":10,"y":8}]},
    {"id": "sliver", "polygon": [{"x":0,"y":0},{"x":1,"y":1}]}
  ],
  "openings": [
    {"kind": "door", "at": {"a":{"x":10,"y":3},"b":{"x":10,"y":4}}}
  ],
  "hub": {"x": 0.5, "y": 0.5}
}`

func TestPlanJSONParse(t *testing.T) {
	d, err := Parse("plan.json", []byte(planTwoRooms))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Rooms) != 2 {
		t.Fatalf("rooms = %d, want 2", len(d.Rooms))
	}
	if d.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1 (the 2-vertex sliver)", d.Skipped)
	}
	if d.Rooms[0].Type != domain.RoomLiving {
		t.Fatalf("room type = %s, want living", d.Rooms[0].Type)
	}
	if d.Rooms[0].Area != 80 {
		t.Fatalf("area = %v, want 80", d.Rooms[0].Area)
	}
	if len(d.Openings) != 1 || d.Openings[0].Kind != domain.OpeningDoor {
		t.Fatalf("openings = %+v", d.Openings)
	}
	if d.Hub == nil || d.Hub.X != 0.5 {
		t.Fatalf("hub = %+v", d.Hub)
	}
}

func TestPositionlessOpeningSkipped(t *testing.T) {
	plan := `{
	  "rooms": [
	    {"id": "living", "type": "living", "polygon": [{"x":0,"y":0},{"x":10,"y":0},{"x":10,"y":8},{"x":0,"y":8}]}
	  ],
	  "openings": [
	    {"id": "ghost", "kind": "door"},
	    {"id": "door_1", "kind": "door", "at": {"a":{"x":10,"y":3},"b":{"x":10,"y":4}}}
	  ]
	}`
	d, err := Parse("plan.json", []byte(plan))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Openings) != 1 || d.Openings[0].ID != "door_1" {
		t.Fatalf("openings = %+v, want door_1 only", d.Openings)
	}
	found := false
	for _, n := range d.Notes {
		if strings.Contains(n, "without a position") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing skip note, notes = %v", d.Notes)
	}
}

func TestParseIdempotent(t *testing.T) {
	a, err := Parse("plan.json", []byte(planTwoRooms))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("plan.json", []byte(planTwoRooms))
	if err != nil {
		t.Fatal(err)
	}
	aj, _ := json.Marshal(a.Rooms)
	bj, _ := json.Marshal(b.Rooms)
	if string(aj) != string(bj) {
		t.Fatal("reingesting the same source must yield identical room sets")
	}
}

func TestSelfIntersectingRoomDropped(t *testing.T) {
	src := `{"rooms":[
	  {"id":"ok","polygon":[{"x":0,"y":0},{"x":5,"y":0},{"x":5,"y":5},{"x":0,"y":5}]},
	  {"id":"bowtie","polygon":[{"x":0,"y":0},{"x":10,"y":10},{"x":10,"y":0},{"x":0,"y":10}]}
	]}`
	d, err := Parse("plan.json", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Rooms) != 1 || d.Rooms[0].ID != "ok" {
		t.Fatalf("rooms = %+v, want only the valid one", d.Rooms)
	}
	if d.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", d.Skipped)
	}
}

func TestZeroValidRoomsIsGeometryError(t *testing.T) {
	_, err := Parse("plan.json", []byte(`{"rooms":[{"id":"bad","polygon":[{"x":0,"y":0},{"x":1,"y":1}]}]}`))
	if err == nil {
		t.Fatal("expected geometry error")
	}
	if domain.ErrKind(err) != domain.KindGeometry {
		t.Fatalf("kind = %s, want geometry_error", domain.ErrKind(err))
	}
}

func TestUnknownExtension(t *testing.T) {
	_, err := Parse("plan.png", []byte("x"))
	if err == nil || domain.ErrKind(err) != domain.KindGeometry {
		t.Fatalf("expected geometry error, got %v", err)
	}
}

// dxfFixture builds a minimal ASCII DXF with one closed room polyline, one
// door line and one bearing wall line.
func dxfFixture() string {
	var b strings.Builder
	w := func(code, value string) {
		b.WriteString(code + "\n" + value + "\n")
	}
	w("0", "SECTION")
	w("2", "ENTITIES")

	w("0", "LWPOLYLINE")
	w("8", "ROOM_KITCHEN")
	w("70", "1")
	w("10", "0")
	w("20", "0")
	w("10", "6")
	w("20", "0")
	w("10", "6")
	w("20", "4")
	w("10", "0")
	w("20", "4")

	w("0", "LINE")
	w("8", "DOORS")
	w("10", "6")
	w("20", "1")
	w("11", "6")
	w("21", "2")

	w("0", "LINE")
	w("8", "BEARING")
	w("10", "3")
	w("20", "0")
	w("11", "3")
	w("21", "4")

	w("0", "ENDSEC")
	w("0", "EOF")
	return b.String()
}

func TestDXFParse(t *testing.T) {
	d, err := Parse("plan.dxf", []byte(dxfFixture()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(d.Rooms))
	}
	if d.Rooms[0].Type != domain.RoomKitchen {
		t.Fatalf("room type = %s, want kitchen (from layer suffix)", d.Rooms[0].Type)
	}
	if d.Rooms[0].Area != 24 {
		t.Fatalf("area = %v, want 24", d.Rooms[0].Area)
	}
	if len(d.Openings) != 2 {
		t.Fatalf("openings = %d, want 2", len(d.Openings))
	}
	kinds := map[string]bool{}
	for _, o := range d.Openings {
		kinds[o.Kind] = true
	}
	if !kinds[domain.OpeningDoor] || !kinds[domain.OpeningBearingWall] {
		t.Fatalf("opening kinds = %v", kinds)
	}
}

func TestDXFWallLoopFallback(t *testing.T) {
	var b strings.Builder
	w := func(code, value string) { b.WriteString(code + "\n" + value + "\n") }
	// square drawn as four LINE entities on the WALLS layer
	coords := [][4]string{
		{"0", "0", "8", "0"},
		{"8", "0", "8", "8"},
		{"8", "8", "0", "8"},
		{"0", "8", "0", "0"},
	}
	for _, c := range coords {
		w("0", "LINE")
		w("8", "WALLS")
		w("10", c[0])
		w("20", c[1])
		w("11", c[2])
		w("21", c[3])
	}
	d, err := Parse("walls.dxf", []byte(b.String()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(d.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1 reconstructed from wall lines", len(d.Rooms))
	}
	if d.Rooms[0].Area != 64 {
		t.Fatalf("area = %v, want 64", d.Rooms[0].Area)
	}
}
