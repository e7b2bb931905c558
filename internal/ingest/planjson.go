package ingest

import (
	"encoding/json"
	"fmt"

	"planline/internal/domain"
	"planline/internal/geom"
)

// PlanJSONParser reads the simplified polygon-exchange format: rooms (and
// optionally openings and a hub) carried directly as JSON.
type PlanJSONParser struct{}

func NewPlanJSONParser() *PlanJSONParser { return &PlanJSONParser{} }

func (p *PlanJSONParser) Format() string { return "plan-json" }

func (p *PlanJSONParser) CanParse(ext string) bool {
	return ext == ".json"
}

type planJSON struct {
	Rooms []struct {
		ID      string       `json:"id"`
		Type    string       `json:"type"`
		Polygon geom.Polygon `json:"polygon"`
	} `json:"rooms"`
	Openings []struct {
		ID   string       `json:"id"`
		Kind string       `json:"kind"`
		At   geom.Segment `json:"at"`
		// point-like openings may carry a single position instead
		Pos *geom.Point `json:"pos,omitempty"`
	} `json:"openings"`
	Hub *geom.Point `json:"hub,omitempty"`
}

func (p *PlanJSONParser) Parse(name string, content []byte) (*Drawing, error) {
	var plan planJSON
	if err := json.Unmarshal(content, &plan); err != nil {
		return nil, domain.GeometryErrorf("parse %s: %v", name, err)
	}

	d := &Drawing{Hub: plan.Hub}
	for _, r := range plan.Rooms {
		roomType := r.Type
		if roomType == "" && r.ID != "" {
			roomType = roomTypeFromName(r.ID)
		}
		d.addRoom(r.Polygon, roomType, r.ID)
	}
	for i, o := range plan.Openings {
		kind := normalizeOpeningKind(o.Kind)
		if kind == "" {
			d.Notes = append(d.Notes, "skipped opening with unknown kind "+o.Kind)
			continue
		}
		at := o.At
		if o.Pos != nil {
			at = geom.Segment{A: *o.Pos, B: *o.Pos}
		}
		// no "at" and no "pos" would leave a phantom opening at the origin
		if at == (geom.Segment{}) && o.Pos == nil {
			d.Notes = append(d.Notes, "skipped opening without a position")
			continue
		}
		id := o.ID
		if id == "" {
			id = fmt.Sprintf("%s_%03d", kind, i)
		}
		d.Openings = append(d.Openings, domain.Opening{ID: id, Kind: kind, At: at})
	}
	return d, nil
}

func normalizeOpeningKind(kind string) string {
	switch kind {
	case domain.OpeningDoor, "opening":
		return domain.OpeningDoor
	case domain.OpeningBearingWall, "bearing", "bearing_wall":
		return domain.OpeningBearingWall
	case domain.OpeningPartition:
		return domain.OpeningPartition
	default:
		return ""
	}
}
