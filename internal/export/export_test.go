package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"planline/internal/domain"
	"planline/internal/geom"
	"planline/internal/ingest"
	"planline/internal/store"
)

func testState() store.State {
	room := domain.Room{
		ID:   "room_001",
		Type: domain.RoomLiving,
		Polygon: geom.Polygon{
			{X: 0, Y: 0}, {X: 8, Y: 0}, {X: 8, Y: 5}, {X: 0, Y: 5},
		},
	}
	room.Area = room.Polygon.Area()
	hub := geom.Point{X: 0.5, Y: 0.5}
	return store.State{
		ProjectID: "p1",
		Source:    "plan.json",
		Rooms:     []domain.Room{room},
		Devices: []domain.Device{
			{ID: "d1", Type: domain.DeviceSocket, RoomID: "room_001", Pos: geom.Point{X: 4, Y: 2.5}},
		},
		Hub: &hub,
		Routes: &domain.RouteResult{
			Routes: []domain.Route{{
				DeviceID:   "d1",
				DeviceType: domain.DeviceSocket,
				Points:     []geom.Point{{X: 0.5, Y: 0.5}, {X: 0, Y: 0}, {X: 4, Y: 2.5}},
				Length:     5.4,
			}},
			BOM: map[string]float64{domain.CablePower: 5.4},
		},
	}
}

func TestNormalize(t *testing.T) {
	for _, in := range []string{"dxf", "DXF", ".svg", " pdf ", "JSON"} {
		if _, err := Normalize(in); err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
	}
	_, err := Normalize("tiff")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindUnsupportedFormat {
		t.Fatalf("error kind = %v, want %s", err, domain.KindUnsupportedFormat)
	}
}

func TestExportAllFormats(t *testing.T) {
	dir := t.TempDir()
	sum, err := Export(testState(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Errors) != 0 {
		t.Fatalf("unexpected format errors: %v", sum.Errors)
	}
	if len(sum.Artifacts) != len(Formats()) {
		t.Fatalf("artifacts = %d, want %d", len(sum.Artifacts), len(Formats()))
	}
	for _, a := range sum.Artifacts {
		fi, err := os.Stat(a.Ref)
		if err != nil {
			t.Fatalf("artifact %s missing: %v", a.Format, err)
		}
		if fi.Size() == 0 || a.Bytes == 0 {
			t.Fatalf("artifact %s is empty", a.Format)
		}
		if filepath.Ext(a.Ref) != "."+a.Format {
			t.Fatalf("artifact %s written as %s", a.Format, a.Ref)
		}
	}
}

func TestExportPartialFailure(t *testing.T) {
	dir := t.TempDir()
	sum, err := Export(testState(), dir, []string{"dxf", "tiff"})
	if err != nil {
		t.Fatalf("one good format should keep the export alive: %v", err)
	}
	if len(sum.Artifacts) != 1 || sum.Artifacts[0].Format != FormatDXF {
		t.Fatalf("artifacts = %+v, want dxf only", sum.Artifacts)
	}
	if sum.Errors["tiff"] == "" {
		t.Fatalf("missing error for tiff: %v", sum.Errors)
	}
}

func TestExportAllFormatsFail(t *testing.T) {
	_, err := Export(testState(), t.TempDir(), []string{"tiff", "bmp"})
	if err == nil {
		t.Fatal("expected error when every format fails")
	}
}

func TestPrepareWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	p := Prepare(testState(), dir, nil)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("prepare must not touch the filesystem: %v", err)
	}
	sum, err := p.Write()
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Artifacts) != len(Formats()) {
		t.Fatalf("artifacts = %d, want %d", len(sum.Artifacts), len(Formats()))
	}
}

func TestDXFRoundTrip(t *testing.T) {
	st := testState()
	data, err := Render(st, FormatDXF)
	if err != nil {
		t.Fatal(err)
	}
	d, err := ingest.Parse("plan.dxf", data)
	if err != nil {
		t.Fatalf("exported drawing did not parse back: %v", err)
	}
	if len(d.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(d.Rooms))
	}
	if got, want := d.Rooms[0].Area, st.Rooms[0].Area; got != want {
		t.Fatalf("round-tripped area = %v, want %v", got, want)
	}
}

func TestJSONResultComplete(t *testing.T) {
	data, err := Render(testState(), FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	var doc resultDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ProjectID != "p1" || len(doc.Rooms) != 1 || len(doc.Devices) != 1 {
		t.Fatalf("incomplete result document: %+v", doc)
	}
	if doc.Routes == nil || doc.Routes.BOM[domain.CablePower] != 5.4 {
		t.Fatalf("routes missing from result document: %+v", doc.Routes)
	}
}

func TestSVGContainsRoomsAndDevices(t *testing.T) {
	data, err := Render(testState(), FormatSVG)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<svg", "polygon", "circle", "room_001"} {
		if !bytes.Contains(data, []byte(want)) {
			t.Fatalf("svg output missing %q", want)
		}
	}
}
