package place

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/geom"
	"planline/internal/lighting"
	"planline/internal/store"
)

func rect(x, y, w, h float64) geom.Polygon {
	return geom.Polygon{
		{X: x, Y: y},
		{X: x + w, Y: y},
		{X: x + w, Y: y + h},
		{X: x, Y: y + h},
	}
}

func testState() store.State {
	rooms := []domain.Room{
		{ID: "r_big", Type: domain.RoomLiving, Polygon: rect(0, 0, 10, 8)},
		{ID: "r_small", Type: domain.RoomBedroom, Polygon: rect(10, 0, 5, 4)},
		{ID: "r_hall", Type: domain.RoomCorridor, Polygon: rect(0, 8, 15, 2)},
	}
	for i := range rooms {
		rooms[i].Area = rooms[i].Polygon.Area()
	}
	return store.State{ProjectID: "p1", Rooms: rooms}
}

func TestPlaceSingleDeviceAtCentroid(t *testing.T) {
	st := testState()
	cfg := config.Default()
	res, err := Place(st, cfg, Options{PerRoom: map[string]map[string]int{
		"r_big": {domain.DeviceSocket: 1},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Devices) != 1 {
		t.Fatalf("devices = %d, want 1", len(res.Devices))
	}
	want := st.Rooms[0].Polygon.Centroid()
	if got := res.Devices[0].Pos; got.Dist(want) > 1e-9 {
		t.Fatalf("position = %v, want centroid %v", got, want)
	}
}

func TestPlaceDeterministic(t *testing.T) {
	st := testState()
	cfg := config.Default()
	opts := Options{Quotas: map[string]int{domain.DeviceSocket: 7, domain.DeviceSwitch: 2}}

	a, err := Place(st, cfg, opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Place(st, cfg, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Devices, b.Devices) {
		t.Fatal("identical inputs produced different device sets")
	}
	for _, d := range a.Devices {
		room := st.Rooms[0]
		for _, r := range st.Rooms {
			if r.ID == d.RoomID {
				room = r
			}
		}
		if !room.Polygon.Contains(d.Pos) {
			t.Fatalf("device %s at %v outside room %s", d.ID, d.Pos, d.RoomID)
		}
	}
}

func TestPlaceQuotaFollowsArea(t *testing.T) {
	st := testState()
	cfg := config.Default()
	res, err := Place(st, cfg, Options{Quotas: map[string]int{domain.DeviceSocket: 5}})
	if err != nil {
		t.Fatal(err)
	}
	byRoom := make(map[string]int)
	for _, d := range res.Devices {
		byRoom[d.RoomID]++
	}
	if byRoom["r_big"]+byRoom["r_small"] != 5 {
		t.Fatalf("placed %d sockets, want 5", byRoom["r_big"]+byRoom["r_small"])
	}
	if byRoom["r_big"] <= byRoom["r_small"] {
		t.Fatalf("larger room got %d, smaller got %d", byRoom["r_big"], byRoom["r_small"])
	}
	if byRoom["r_hall"] != 0 {
		t.Fatalf("corridor got %d devices, want 0", byRoom["r_hall"])
	}
}

func TestPlaceCorridorOptIn(t *testing.T) {
	st := testState()
	cfg := config.Default()

	res, err := Place(st, cfg, Options{PerRoom: map[string]map[string]int{
		"r_hall": {domain.DeviceCamera: 1},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Devices) != 1 || res.Devices[0].RoomID != "r_hall" {
		t.Fatalf("mandated corridor device missing: %+v", res.Devices)
	}

	res, err = Place(st, cfg, Options{
		Quotas:          map[string]int{domain.DeviceSocket: 6},
		IncludeAllRooms: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	hall := 0
	for _, d := range res.Devices {
		if d.RoomID == "r_hall" {
			hall++
		}
	}
	if hall == 0 {
		t.Fatal("IncludeAllRooms set but corridor got no devices")
	}
}

func TestPlaceAutoFixtures(t *testing.T) {
	st := testState()
	cfg := config.Default()
	res, err := Place(st, cfg, Options{AutoFixtures: true, Lighting: lighting.Params{}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Lighting.TotalFixtures == 0 {
		t.Fatal("automatic sizing produced no lighting result")
	}
	fixtures := 0
	for _, d := range res.Devices {
		if d.Type == domain.DeviceFixture {
			fixtures++
		}
	}
	if fixtures != res.Lighting.TotalFixtures {
		t.Fatalf("placed %d fixtures, lighting sized %d", fixtures, res.Lighting.TotalFixtures)
	}
}

func TestPlaceMandatedDegenerateRoomFails(t *testing.T) {
	st := testState()
	st.Rooms = append(st.Rooms, domain.Room{
		ID:   "r_flat",
		Type: domain.RoomUtility,
		Polygon: geom.Polygon{
			{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 0},
		},
	})
	cfg := config.Default()
	_, err := Place(st, cfg, Options{PerRoom: map[string]map[string]int{
		"r_flat": {domain.DeviceSensor: 1},
	}})
	if err == nil {
		t.Fatal("expected placement error for degenerate mandated room")
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindPlacement {
		t.Fatalf("error kind = %v, want %s", err, domain.KindPlacement)
	}
}

func TestPlaceSwitchCoverageWarning(t *testing.T) {
	st := testState()
	cfg := config.Default()
	res, err := Place(st, cfg, Options{Quotas: map[string]int{domain.DeviceSwitch: 1}})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "no switch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a missing-switch warning, got %v", res.Warnings)
	}
}

func TestPlaceStableIDs(t *testing.T) {
	st := testState()
	cfg := config.Default()
	res, err := Place(st, cfg, Options{Quotas: map[string]int{domain.DeviceSocket: 3}})
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]bool)
	for _, d := range res.Devices {
		if seen[d.ID] {
			t.Fatalf("duplicate device id %s", d.ID)
		}
		seen[d.ID] = true
	}
}
