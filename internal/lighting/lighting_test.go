package lighting

import (
	"errors"
	"testing"

	"planline/internal/domain"
	"planline/internal/geom"
)

func rect(id string, w, h float64) domain.Room {
	pg := geom.Polygon{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	return domain.Room{ID: id, Type: domain.RoomUnknown, Polygon: pg, Area: pg.Area()}
}

func TestFixtureCountRegression(t *testing.T) {
	// 40 m2 at 300 lx: ceil(12000 / (110*0.8*0.6)) = ceil(227.27) = 228
	n, err := FixtureCount(40, 300, 110, 0.8, 0.6)
	if err != nil {
		t.Fatalf("FixtureCount: %v", err)
	}
	if n != 228 {
		t.Fatalf("fixtures = %d, want 228", n)
	}
}

func TestFixtureCountExactBoundary(t *testing.T) {
	// required/perFixture lands exactly on an integer: no extra fixture.
	// 52.8 lumens per fixture; 528 required -> exactly 10.
	n, err := FixtureCount(1.76, 300, 110, 0.8, 0.6)
	if err != nil {
		t.Fatalf("FixtureCount: %v", err)
	}
	if n != 10 {
		t.Fatalf("fixtures = %d, want 10", n)
	}
}

func TestFixtureCountRejectsDegenerateInputs(t *testing.T) {
	cases := []struct {
		name                        string
		area, lux, eff, maint, util float64
	}{
		{"zero area", 0, 300, 110, 0.8, 0.6},
		{"negative area", -5, 300, 110, 0.8, 0.6},
		{"zero lux", 10, 0, 110, 0.8, 0.6},
		{"zero efficacy", 10, 300, 0, 0.8, 0.6},
		{"zero maintenance", 10, 300, 110, 0, 0.6},
		{"zero utilization", 10, 300, 110, 0.8, 0},
	}
	for _, c := range cases {
		_, err := FixtureCount(c.area, c.lux, c.eff, c.maint, c.util)
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		var de *domain.Error
		if !errors.As(err, &de) || de.Kind != domain.KindInvalidParameter {
			t.Errorf("%s: kind = %v, want invalid_parameter", c.name, domain.ErrKind(err))
		}
	}
}

func TestDesignDistributesExplicitTotal(t *testing.T) {
	rooms := []domain.Room{rect("big", 10, 10), rect("small", 5, 5), rect("tiny", 2, 2)}
	res, err := Design(rooms, Params{TotalFixtures: 10}, false)
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if res.TotalFixtures != 10 {
		t.Fatalf("total fixtures = %d, want exactly 10", res.TotalFixtures)
	}
	byID := map[string]int{}
	for _, r := range res.Rooms {
		byID[r.RoomID] = r.Fixtures
	}
	if byID["big"] <= byID["small"] {
		t.Fatalf("larger room should get more fixtures: big=%d small=%d", byID["big"], byID["small"])
	}
}

func TestDesignPerRoomOverrideWins(t *testing.T) {
	rooms := []domain.Room{rect("r1", 4, 10)}
	res, err := Design(rooms, Params{PerRoomTargetLux: map[string]float64{"r1": 100}}, false)
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if res.Rooms[0].TargetLux != 100 {
		t.Fatalf("target = %v, want override 100", res.Rooms[0].TargetLux)
	}
}

func TestDesignRoomTypeNorm(t *testing.T) {
	r := rect("kitchen-1", 3, 4)
	r.Type = domain.RoomKitchen
	res, err := Design([]domain.Room{r}, Params{}, false)
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if res.Rooms[0].TargetLux != 200 {
		t.Fatalf("target = %v, want kitchen norm 200", res.Rooms[0].TargetLux)
	}
}

func TestDesignExplicitTargetBeatsNorm(t *testing.T) {
	r := rect("kitchen-1", 3, 4)
	r.Type = domain.RoomKitchen
	res, err := Design([]domain.Room{r}, Params{TargetLux: 400}, true)
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	if res.Rooms[0].TargetLux != 400 {
		t.Fatalf("target = %v, want explicit 400", res.Rooms[0].TargetLux)
	}
}

func TestDesignAchievedMeetsTarget(t *testing.T) {
	rooms := []domain.Room{rect("r1", 8, 5)}
	res, err := Design(rooms, Params{TargetLux: 300}, true)
	if err != nil {
		t.Fatalf("Design: %v", err)
	}
	rl := res.Rooms[0]
	if rl.AchievedLux < rl.TargetLux {
		t.Fatalf("achieved %v below target %v despite ceil rounding", rl.AchievedLux, rl.TargetLux)
	}
}
