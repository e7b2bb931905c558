// Package lighting implements the lumen method: converting a target
// illuminance and a room area into a required fixture count.
package lighting

import (
	"math"
	"sort"
	"strings"

	"planline/internal/domain"
)

// Params are the lumen-method tunables. Zero values mean "use the default";
// the defaults are a documented contract applied by WithDefaults, not a
// hidden fallback inside the formula.
type Params struct {
	TargetLux         float64            `json:"target_lux,omitempty"`
	EfficacyLmPerW    float64            `json:"efficacy_lm_per_w,omitempty"`
	MaintenanceFactor float64            `json:"maintenance_factor,omitempty"`
	UtilizationFactor float64            `json:"utilization_factor,omitempty"`
	PerRoomTargetLux  map[string]float64 `json:"per_room_target_lux,omitempty"`
	TotalFixtures     int                `json:"total_fixtures,omitempty"`
}

// Defaults per the design contract.
const (
	DefaultTargetLux         = 300.0
	DefaultEfficacyLmPerW    = 110.0
	DefaultMaintenanceFactor = 0.8
	DefaultUtilizationFactor = 0.6
)

// Illuminance norms by room type, used when neither a per-room override nor a
// global target applies.
var targetLuxByRoomType = map[string]float64{
	domain.RoomLiving:  150,
	domain.RoomBedroom: 100,
	domain.RoomKitchen: 200,
	domain.RoomOffice:  300,
}

const fallbackLux = 150.0

// WithDefaults fills unset tunables.
func (p Params) WithDefaults() Params {
	if p.TargetLux == 0 {
		p.TargetLux = DefaultTargetLux
	}
	if p.EfficacyLmPerW == 0 {
		p.EfficacyLmPerW = DefaultEfficacyLmPerW
	}
	if p.MaintenanceFactor == 0 {
		p.MaintenanceFactor = DefaultMaintenanceFactor
	}
	if p.UtilizationFactor == 0 {
		p.UtilizationFactor = DefaultUtilizationFactor
	}
	return p
}

// Validate rejects degenerate tunables instead of clamping them; a silent
// clamp would mask bad upstream geometry or input.
func (p Params) Validate() error {
	if p.TargetLux <= 0 {
		return domain.InvalidParameterf("target_lux must be positive, got %v", p.TargetLux)
	}
	if p.EfficacyLmPerW <= 0 {
		return domain.InvalidParameterf("efficacy_lm_per_w must be positive, got %v", p.EfficacyLmPerW)
	}
	if p.MaintenanceFactor <= 0 {
		return domain.InvalidParameterf("maintenance_factor must be positive, got %v", p.MaintenanceFactor)
	}
	if p.UtilizationFactor <= 0 {
		return domain.InvalidParameterf("utilization_factor must be positive, got %v", p.UtilizationFactor)
	}
	if p.TotalFixtures < 0 {
		return domain.InvalidParameterf("total_fixtures must be non-negative, got %d", p.TotalFixtures)
	}
	return nil
}

// FixtureCount applies the lumen method to one room:
//
//	required_lumens = target_lux * area
//	fixtures        = ceil(required_lumens / (efficacy * MF * UF))
func FixtureCount(area, targetLux, efficacy, maintenance, utilization float64) (int, error) {
	if area <= 0 {
		return 0, domain.InvalidParameterf("room area must be positive, got %v", area)
	}
	if targetLux <= 0 || efficacy <= 0 || maintenance <= 0 || utilization <= 0 {
		return 0, domain.InvalidParameterf("lighting factors must be positive (lux=%v efficacy=%v mf=%v uf=%v)",
			targetLux, efficacy, maintenance, utilization)
	}
	required := targetLux * area
	perFixture := efficacy * maintenance * utilization
	return int(math.Ceil(required / perFixture)), nil
}

// targetFor resolves the illuminance target for a room: per-room override by
// id or type first, then the request-level target, then the room-type norm.
func targetFor(room domain.Room, p Params, explicitTarget bool) float64 {
	if len(p.PerRoomTargetLux) > 0 {
		if v, ok := p.PerRoomTargetLux[room.ID]; ok {
			return v
		}
		for k, v := range p.PerRoomTargetLux {
			if strings.EqualFold(k, room.Type) {
				return v
			}
		}
	}
	if explicitTarget {
		return p.TargetLux
	}
	if v, ok := targetLuxByRoomType[room.Type]; ok {
		return v
	}
	if p.TargetLux > 0 {
		return p.TargetLux
	}
	return fallbackLux
}

// Design runs the lumen method over every room. When p.TotalFixtures is set
// the count is distributed proportionally to room area; otherwise each room
// is sized independently via FixtureCount.
//
// explicitTarget marks p.TargetLux as caller-supplied, which makes it win
// over the per-room-type norms.
func Design(rooms []domain.Room, p Params, explicitTarget bool) (domain.LightingResult, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return domain.LightingResult{}, err
	}

	var distributed map[string]int
	if p.TotalFixtures > 0 {
		distributed = DistributeByArea(rooms, p.TotalFixtures)
	}

	res := domain.LightingResult{Rooms: make([]domain.RoomLighting, 0, len(rooms))}
	for _, room := range rooms {
		target := targetFor(room, p, explicitTarget)
		totalLumens := target * room.Area / (p.MaintenanceFactor * p.UtilizationFactor)

		var fixtures int
		if distributed != nil {
			fixtures = distributed[room.ID]
		} else {
			n, err := FixtureCount(room.Area, target, p.EfficacyLmPerW, p.MaintenanceFactor, p.UtilizationFactor)
			if err != nil {
				return domain.LightingResult{}, err
			}
			fixtures = n
		}

		rl := domain.RoomLighting{
			RoomID:      room.ID,
			Area:        room.Area,
			TargetLux:   target,
			Fixtures:    fixtures,
			TotalLumens: totalLumens,
		}
		if fixtures > 0 {
			rl.LumensPerFixture = totalLumens / float64(fixtures)
			rl.PowerWPerFixture = rl.LumensPerFixture / p.EfficacyLmPerW
			rl.AchievedLux = float64(fixtures) * p.EfficacyLmPerW * p.MaintenanceFactor * p.UtilizationFactor / room.Area
		}
		res.Rooms = append(res.Rooms, rl)
		res.TotalFixtures += fixtures
	}
	return res, nil
}

// DistributeByArea splits total across rooms proportionally to area, then
// repairs rounding drift so the counts sum exactly to total, adjusting the
// largest rooms first. The placer uses the same split for device quotas.
func DistributeByArea(rooms []domain.Room, total int) map[string]int {
	out := make(map[string]int, len(rooms))
	if total <= 0 || len(rooms) == 0 {
		return out
	}
	var totalArea float64
	for _, r := range rooms {
		totalArea += r.Area
	}
	if totalArea <= 0 {
		return out
	}

	sum := 0
	for _, r := range rooms {
		n := int(math.Round(r.Area / totalArea * float64(total)))
		out[r.ID] = n
		sum += n
	}

	byArea := append([]domain.Room(nil), rooms...)
	sort.Slice(byArea, func(i, j int) bool { return byArea[i].Area > byArea[j].Area })

	diff := total - sum
	step := 1
	if diff < 0 {
		step = -1
	}
	for i := 0; diff != 0 && len(byArea) > 0; i++ {
		id := byArea[i%len(byArea)].ID
		if out[id]+step >= 0 {
			out[id] += step
			diff -= step
		}
	}
	return out
}
