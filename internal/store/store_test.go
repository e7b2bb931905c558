package store

import (
	"testing"

	"planline/internal/domain"
	"planline/internal/geom"
)

func room(id string) domain.Room {
	pg := geom.Polygon{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 5}}
	return domain.Room{ID: id, Type: domain.RoomUnknown, Polygon: pg, Area: pg.Area()}
}

func TestReplaceGeometryDropsDerivedState(t *testing.T) {
	s := New()
	s.ReplaceGeometry("p1", "plan.dxf", []domain.Room{room("r1")}, nil)
	if ok := s.SetDevices("p1", []domain.Device{{ID: "d1", Type: domain.DeviceSocket, RoomID: "r1"}}, nil); !ok {
		t.Fatal("set devices failed")
	}
	if ok := s.SetRoutes("p1", &domain.RouteResult{}); !ok {
		t.Fatal("set routes failed")
	}

	s.ReplaceGeometry("p1", "plan.dxf", []domain.Room{room("r1"), room("r2")}, nil)
	st, ok := s.Snapshot("p1")
	if !ok {
		t.Fatal("snapshot missing")
	}
	if len(st.Rooms) != 2 {
		t.Fatalf("rooms = %d, want 2", len(st.Rooms))
	}
	if len(st.Devices) != 0 || st.Routes != nil {
		t.Fatal("reingest must drop devices and routes")
	}
}

func TestSetDevicesDropsRoutes(t *testing.T) {
	s := New()
	s.ReplaceGeometry("p1", "", []domain.Room{room("r1")}, nil)
	s.SetRoutes("p1", &domain.RouteResult{})
	s.SetDevices("p1", nil, nil)
	st, _ := s.Snapshot("p1")
	if st.Routes != nil {
		t.Fatal("new device set must invalidate routes")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	s.ReplaceGeometry("p1", "", []domain.Room{room("r1")}, nil)
	st, _ := s.Snapshot("p1")
	st.Rooms[0].ID = "mutated"
	again, _ := s.Snapshot("p1")
	if again.Rooms[0].ID != "r1" {
		t.Fatal("snapshot mutation leaked into store")
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.ReplaceGeometry("p1", "", []domain.Room{room("r1")}, nil)
	s.Delete("p1")
	if _, ok := s.Snapshot("p1"); ok {
		t.Fatal("deleted project still has state")
	}
	if len(s.Projects()) != 0 {
		t.Fatalf("projects = %v, want none", s.Projects())
	}
}

func TestUnknownProject(t *testing.T) {
	s := New()
	if _, ok := s.Snapshot("nope"); ok {
		t.Fatal("unknown project should report missing")
	}
	if s.SetDevices("nope", nil, nil) {
		t.Fatal("SetDevices on unknown project should fail")
	}
}
