// Package place assigns devices to rooms. Placement is deterministic: the
// first device in a room sits at the centroid, the rest on a grid inscribed
// in the polygon's bounding box, filtered to interior points. Identical
// geometry and options always produce an identical device set.
package place

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/geom"
	"planline/internal/lighting"
	"planline/internal/store"
)

// Options are the placement preferences validated at the job boundary.
type Options struct {
	// Quotas maps a device type to a project-wide total, distributed across
	// rooms proportionally to area.
	Quotas map[string]int `json:"quotas,omitempty"`

	// PerRoom maps room id -> device type -> mandated count. A mandated
	// device that cannot be placed is a placement error, not a warning.
	PerRoom map[string]map[string]int `json:"per_room,omitempty"`

	// AutoFixtures sizes fixture counts from the lumen method instead of a
	// quota.
	AutoFixtures bool `json:"auto_fixtures,omitempty"`

	// Lighting carries the lumen-method tunables when AutoFixtures is set.
	Lighting lighting.Params `json:"lighting,omitempty"`

	// ExplicitTargetLux marks Lighting.TargetLux as caller-supplied.
	ExplicitTargetLux bool `json:"explicit_target_lux,omitempty"`

	// IncludeAllRooms places devices in corridor/utility rooms too.
	IncludeAllRooms bool `json:"include_all_rooms,omitempty"`
}

// Result is the placer output.
type Result struct {
	Devices  []domain.Device
	Lighting domain.LightingResult
	Warnings []string
}

// Place computes the device set for a project snapshot.
func Place(st store.State, cfg *config.Config, opts Options) (Result, error) {
	var res Result

	eligible := make([]domain.Room, 0, len(st.Rooms))
	for _, r := range st.Rooms {
		if !opts.IncludeAllRooms && cfg.SkipRoomType(r.Type) && opts.PerRoom[r.ID] == nil {
			continue
		}
		eligible = append(eligible, r)
	}

	// room id -> type -> count
	counts := make(map[string]map[string]int)
	add := func(roomID, devType string, n int) {
		if n <= 0 {
			return
		}
		if counts[roomID] == nil {
			counts[roomID] = make(map[string]int)
		}
		counts[roomID][devType] += n
	}

	if opts.AutoFixtures {
		lr, err := lighting.Design(eligible, opts.Lighting, opts.ExplicitTargetLux)
		if err != nil {
			return res, err
		}
		res.Lighting = lr
		for _, rl := range lr.Rooms {
			add(rl.RoomID, domain.DeviceFixture, rl.Fixtures)
		}
	}

	for devType, total := range opts.Quotas {
		if devType == domain.DeviceFixture && opts.AutoFixtures {
			res.Warnings = append(res.Warnings, "fixture quota ignored: automatic sizing requested")
			continue
		}
		for roomID, n := range lighting.DistributeByArea(eligible, total) {
			add(roomID, devType, n)
		}
	}

	// per-room mandates override the distributed counts for that room/type
	for roomID, byType := range opts.PerRoom {
		for devType, n := range byType {
			if counts[roomID] == nil {
				counts[roomID] = make(map[string]int)
			}
			counts[roomID][devType] = n
		}
	}

	roomsByID := make(map[string]domain.Room, len(st.Rooms))
	for _, r := range st.Rooms {
		roomsByID[r.ID] = r
	}

	// deterministic iteration order
	roomIDs := make([]string, 0, len(counts))
	for id := range counts {
		roomIDs = append(roomIDs, id)
	}
	sort.Strings(roomIDs)

	for _, roomID := range roomIDs {
		room, ok := roomsByID[roomID]
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("room %s not in geometry store, skipped", roomID))
			continue
		}
		types := make([]string, 0, len(counts[roomID]))
		for t := range counts[roomID] {
			types = append(types, t)
		}
		sort.Strings(types)

		for _, devType := range types {
			want := counts[roomID][devType]
			pts := positions(room.Polygon, want)
			if len(pts) == 0 && want > 0 {
				if opts.PerRoom[roomID][devType] > 0 {
					return Result{}, domain.PlacementErrorf("room %s has no usable interior point for mandated %s", roomID, devType)
				}
				res.Warnings = append(res.Warnings, fmt.Sprintf("room %s: no usable interior point, %d %s dropped", roomID, want, devType))
				continue
			}
			if len(pts) < want {
				res.Warnings = append(res.Warnings, fmt.Sprintf("room %s: placed %d of %d %s", roomID, len(pts), want, devType))
			}
			for i, p := range pts {
				res.Devices = append(res.Devices, domain.Device{
					ID:     deviceID(st.ProjectID, roomID, devType, i),
					Type:   devType,
					RoomID: roomID,
					Pos:    p,
				})
			}
		}
	}

	if opts.Quotas[domain.DeviceSwitch] > 0 || hasPerRoomType(opts.PerRoom, domain.DeviceSwitch) {
		covered := make(map[string]bool)
		for _, d := range res.Devices {
			if d.Type == domain.DeviceSwitch {
				covered[d.RoomID] = true
			}
		}
		for _, r := range eligible {
			if !covered[r.ID] {
				res.Warnings = append(res.Warnings, fmt.Sprintf("room %s has no switch", r.ID))
			}
		}
	}

	res.Warnings = append(res.Warnings, ruleWarnings(st, cfg, res.Devices)...)
	return res, nil
}

func hasPerRoomType(perRoom map[string]map[string]int, devType string) bool {
	for _, byType := range perRoom {
		if byType[devType] > 0 {
			return true
		}
	}
	return false
}

// deviceID derives a stable id from the placement coordinates, so reruns
// over identical inputs produce identical device sets.
func deviceID(projectID, roomID, devType string, idx int) string {
	seed := fmt.Sprintf("%s|%s|%s|%d", projectID, roomID, devType, idx)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// positions returns up to want interior points: the centroid first, then a
// ceil(sqrt(want))-sided grid inscribed in the bounding box, filtered by the
// point-in-polygon test.
func positions(pg geom.Polygon, want int) []geom.Point {
	if want <= 0 {
		return nil
	}
	var out []geom.Point
	c := pg.Centroid()
	if pg.Contains(c) {
		out = append(out, c)
	}
	if len(out) >= want {
		return out[:want]
	}

	min, max := pg.Bounds()
	w := max.X - min.X
	h := max.Y - min.Y
	if w <= 0 || h <= 0 {
		return out
	}
	side := int(math.Ceil(math.Sqrt(float64(want))))
	// grow the grid until enough interior points exist or it stops helping
	for ; side <= 4*want+4; side++ {
		grid := gridInside(pg, min, w, h, side)
		pts := append(append([]geom.Point(nil), out...), grid...)
		if len(pts) >= want {
			return pts[:want]
		}
		if side > int(math.Ceil(math.Sqrt(float64(want))))+6 {
			return pts
		}
	}
	return out
}

func gridInside(pg geom.Polygon, min geom.Point, w, h float64, side int) []geom.Point {
	dx := w / float64(side+1)
	dy := h / float64(side+1)
	var pts []geom.Point
	for iy := 1; iy <= side; iy++ {
		for ix := 1; ix <= side; ix++ {
			p := geom.Point{X: min.X + float64(ix)*dx, Y: min.Y + float64(iy)*dy}
			if pg.Contains(p) {
				pts = append(pts, p)
			}
		}
	}
	return pts
}

// ruleWarnings runs the design-rule checks: devices too close to a corner or
// a door. Advisory only.
func ruleWarnings(st store.State, cfg *config.Config, devices []domain.Device) []string {
	var warnings []string
	roomsByID := make(map[string]domain.Room, len(st.Rooms))
	for _, r := range st.Rooms {
		roomsByID[r.ID] = r
	}

	var doors []geom.Segment
	for _, o := range st.Openings {
		if o.Kind == domain.OpeningDoor {
			doors = append(doors, o.At)
		}
	}

	for _, d := range devices {
		room, ok := roomsByID[d.RoomID]
		if !ok {
			continue
		}
		for _, v := range room.Polygon {
			if v.Dist(d.Pos) < cfg.Placement.MinCornerOffset {
				warnings = append(warnings, fmt.Sprintf("%s in room %s is %.2f from a corner", d.Type, d.RoomID, v.Dist(d.Pos)))
				break
			}
		}
		for _, door := range doors {
			if door.DistToPoint(d.Pos) < cfg.Placement.MinDoorOffset {
				warnings = append(warnings, fmt.Sprintf("%s in room %s is too close to a door", d.Type, d.RoomID))
				break
			}
		}
	}
	return warnings
}
