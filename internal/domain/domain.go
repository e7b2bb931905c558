// Package domain holds the value types shared by the pipeline stages and the
// host-facing surfaces (CLI, HTTP API, job records).
package domain

import (
	"encoding/json"

	"planline/internal/geom"
)

type Project struct {
	ID        string `json:"id"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

// Room semantic types. Ingest defaults to RoomUnknown when the source drawing
// carries no classification.
const (
	RoomUnknown  = "unknown"
	RoomOffice   = "office"
	RoomLiving   = "living"
	RoomBedroom  = "bedroom"
	RoomKitchen  = "kitchen"
	RoomCorridor = "corridor"
	RoomUtility  = "utility"
)

type Room struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Polygon geom.Polygon `json:"polygon"`
	Area    float64      `json:"area"`
}

// Opening kinds. Partitions carry no routing penalty.
const (
	OpeningDoor        = "door"
	OpeningBearingWall = "load_bearing_wall"
	OpeningPartition   = "partition"
)

// Opening is a door or wall penetration, used only as a routing-cost
// modifier. Point-like openings are segments of zero length.
type Opening struct {
	ID   string       `json:"id"`
	Kind string       `json:"kind" enum:"door,load_bearing_wall,partition"`
	At   geom.Segment `json:"at"`
}

// Device types the placer knows how to position.
const (
	DeviceFixture     = "fixture"
	DeviceSwitch      = "switch"
	DeviceSocket      = "socket"
	DeviceCamera      = "camera"
	DeviceAccessPoint = "access_point"
	DeviceSensor      = "sensor"
)

type Device struct {
	ID     string     `json:"id"`
	Type   string     `json:"type"`
	RoomID string     `json:"room_id"`
	Pos    geom.Point `json:"pos"`
}

// Cable categories for the bill of materials.
const (
	CableUTP   = "utp_cat5e_m"
	CablePower = "power_m"
)

// CableCategory maps a device type to the cable class its run is counted
// under.
func CableCategory(deviceType string) string {
	switch deviceType {
	case DeviceCamera, DeviceAccessPoint, DeviceSensor:
		return CableUTP
	default:
		return CablePower
	}
}

// Route is the hub-to-device path for one device. An unresolved device has an
// empty Points slice and zero length.
type Route struct {
	DeviceID   string       `json:"device_id"`
	DeviceType string       `json:"device_type"`
	Points     []geom.Point `json:"points,omitempty"`
	Length     float64      `json:"length"`
	Penalty    float64      `json:"penalty"`
	Edges      int          `json:"edges"`
}

// Resolved reports whether a path to the hub was found.
func (r Route) Resolved() bool { return len(r.Points) > 0 }

type RouteResult struct {
	Routes     []Route            `json:"routes"`
	BOM        map[string]float64 `json:"bom"`
	Unresolved int                `json:"unresolved"`
}

// RoomLighting is the lumen-method outcome for one room.
type RoomLighting struct {
	RoomID           string  `json:"room_id"`
	Area             float64 `json:"area"`
	TargetLux        float64 `json:"target_lux"`
	Fixtures         int     `json:"fixtures"`
	TotalLumens      float64 `json:"total_lumens"`
	LumensPerFixture float64 `json:"lumens_per_fixture"`
	PowerWPerFixture float64 `json:"power_w_per_fixture"`
	AchievedLux      float64 `json:"achieved_lux"`
}

type LightingResult struct {
	Rooms         []RoomLighting `json:"rooms"`
	TotalFixtures int            `json:"total_fixtures"`
}

// Pipeline stages in execution order.
const (
	StageIngest = "ingest"
	StagePlace  = "place"
	StageRoute  = "route"
	StageExport = "export"
)

// AllStages lists the stages in the fixed execution order.
func AllStages() []string {
	return []string{StageIngest, StagePlace, StageRoute, StageExport}
}

// Job statuses. Done and error are terminal; a failed job is retried by
// submitting a new one.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// Job is one execution of a stage subset for a project.
type Job struct {
	ID        string                     `json:"id"`
	ProjectID string                     `json:"project_id"`
	Status    string                     `json:"status" enum:"pending,running,done,error"`
	Stages    []string                   `json:"stages"`
	Outputs   map[string]json.RawMessage `json:"outputs,omitempty"`
	ErrorKind string                     `json:"error_kind,omitempty"`
	ErrorText string                     `json:"error_text,omitempty"`
	CreatedAt string                     `json:"created_at" format:"date-time"`
	UpdatedAt string                     `json:"updated_at" format:"date-time"`
}

// Terminal reports whether the job reached a final status.
func (j Job) Terminal() bool {
	return j.Status == JobDone || j.Status == JobError
}

// Event is one job event log entry.
type Event struct {
	ID        int64           `json:"id"`
	TS        string          `json:"ts" format:"date-time"`
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id"`
	JobID     string          `json:"job_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// IngestSummary is the ingest stage output.
type IngestSummary struct {
	ProjectID string   `json:"project_id"`
	Rooms     int      `json:"rooms"`
	Openings  int      `json:"openings"`
	Skipped   int      `json:"skipped"`
	Notes     []string `json:"notes,omitempty"`
}

// PlaceSummary is the place stage output.
type PlaceSummary struct {
	ProjectID string         `json:"project_id"`
	Devices   int            `json:"devices"`
	ByType    map[string]int `json:"by_type"`
	Lighting  LightingResult `json:"lighting"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// RouteSummary is the route stage output.
type RouteSummary struct {
	ProjectID  string             `json:"project_id"`
	Routes     int                `json:"routes"`
	Unresolved int                `json:"unresolved"`
	TotalLen   float64            `json:"total_length"`
	BOM        map[string]float64 `json:"bom"`
}

// ExportArtifact references one produced deliverable.
type ExportArtifact struct {
	Format string `json:"format"`
	Ref    string `json:"ref"`
	Bytes  int    `json:"bytes"`
}

// ExportSummary is the export stage output. Errors are keyed by the rejected
// format; formats that succeeded are listed regardless.
type ExportSummary struct {
	ProjectID string            `json:"project_id"`
	Artifacts []ExportArtifact  `json:"artifacts"`
	Errors    map[string]string `json:"errors,omitempty"`
}
