package engine

import (
	"regexp"
	"strconv"
	"strings"

	"planline/internal/domain"
	"planline/internal/export"
	"planline/internal/lighting"
)

// Preferences are the caller-supplied pipeline parameters. They are validated
// once when the job is accepted; stages never re-validate.
type Preferences struct {
	// Quotas maps device type to a project-wide count.
	Quotas map[string]int `json:"quotas,omitempty"`

	// PerRoom mandates counts for specific rooms, overriding the quota split.
	PerRoom map[string]map[string]int `json:"per_room,omitempty"`

	// AutoFixtures sizes fixtures from the lumen method.
	AutoFixtures bool `json:"auto_fixtures,omitempty"`

	// Lighting tunables. TargetLux > 0 counts as an explicit target.
	Lighting lighting.Params `json:"lighting,omitempty"`

	// IncludeAllRooms places devices in corridor and utility rooms too.
	IncludeAllRooms bool `json:"include_all_rooms,omitempty"`

	// Formats selects export outputs; empty means all.
	Formats []string `json:"formats,omitempty"`

	// Text is a free-form preferences note, parsed for lighting hints.
	Text string `json:"text,omitempty"`
}

var knownDeviceTypes = map[string]bool{
	domain.DeviceFixture:     true,
	domain.DeviceSwitch:      true,
	domain.DeviceSocket:      true,
	domain.DeviceCamera:      true,
	domain.DeviceAccessPoint: true,
	domain.DeviceSensor:      true,
}

// Validate rejects malformed preferences before any stage runs.
func (p Preferences) Validate() error {
	for t, n := range p.Quotas {
		if !knownDeviceTypes[t] {
			return domain.InvalidParameterf("unknown device type %q", t)
		}
		if n < 0 {
			return domain.InvalidParameterf("quota for %s must be non-negative, got %d", t, n)
		}
	}
	for roomID, byType := range p.PerRoom {
		for t, n := range byType {
			if !knownDeviceTypes[t] {
				return domain.InvalidParameterf("unknown device type %q for room %s", t, roomID)
			}
			if n < 0 {
				return domain.InvalidParameterf("count for %s in room %s must be non-negative, got %d", t, roomID, n)
			}
		}
	}
	for room, lux := range p.Lighting.PerRoomTargetLux {
		if lux <= 0 {
			return domain.InvalidParameterf("target lux for %s must be positive, got %v", room, lux)
		}
	}
	if err := p.Lighting.WithDefaults().Validate(); err != nil {
		return err
	}
	for _, f := range p.Formats {
		if _, err := export.Normalize(f); err != nil {
			return err
		}
	}
	return nil
}

// Free-text lighting hints, e.g. "kitchen: 500 lux", "target 350 lx",
// "fixtures: 12", "efficacy 90".
var (
	roomLuxRe  = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_]*)\s*[:=]?\s*(\d+(?:\.\d+)?)\s*(?:lux|lx)\b`)
	totalLuxRe = regexp.MustCompile(`(?i)\b(?:target|lux|lx)\s*[:=]?\s*(\d+(?:\.\d+)?)\b`)
	fixturesRe = regexp.MustCompile(`(?i)\bfixtures?\s*[:=]?\s*(\d+)\b`)
	efficacyRe = regexp.MustCompile(`(?i)\befficacy\s*[:=]?\s*(\d+(?:\.\d+)?)\b`)
)

// ParseText folds free-text hints into the preferences. Explicit fields win:
// a hint never overwrites a value the caller set directly.
func (p Preferences) ParseText() Preferences {
	text := p.Text
	if strings.TrimSpace(text) == "" {
		return p
	}

	for _, m := range roomLuxRe.FindAllStringSubmatch(text, -1) {
		key := strings.ToLower(m[1])
		if key == "target" || key == "lux" || key == "lx" {
			continue
		}
		lux, err := strconv.ParseFloat(m[2], 64)
		if err != nil || lux <= 0 {
			continue
		}
		if p.Lighting.PerRoomTargetLux == nil {
			p.Lighting.PerRoomTargetLux = make(map[string]float64)
		}
		if _, set := p.Lighting.PerRoomTargetLux[key]; !set {
			p.Lighting.PerRoomTargetLux[key] = lux
		}
	}
	// room hints consume their text so the global pattern cannot re-match them
	remaining := roomLuxRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := roomLuxRe.FindStringSubmatch(m)
		switch strings.ToLower(sub[1]) {
		case "target", "lux", "lx":
			return m
		}
		return " "
	})

	if p.Lighting.TargetLux == 0 {
		if m := totalLuxRe.FindStringSubmatch(remaining); m != nil {
			if lux, err := strconv.ParseFloat(m[1], 64); err == nil && lux > 0 {
				p.Lighting.TargetLux = lux
			}
		}
	}
	if p.Lighting.TotalFixtures == 0 {
		if m := fixturesRe.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				p.Lighting.TotalFixtures = n
				p.AutoFixtures = true
			}
		}
	}
	if p.Lighting.EfficacyLmPerW == 0 {
		if m := efficacyRe.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				p.Lighting.EfficacyLmPerW = v
			}
		}
	}
	return p
}
