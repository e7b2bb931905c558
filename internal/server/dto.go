package server

import (
	"encoding/json"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/geom"
	"planline/internal/store"
)

// Request payloads

type IngestRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type PlaceRequest struct {
	Prefs engine.Preferences `json:"prefs,omitempty"`
}

type ExportRequest struct {
	Formats []string `json:"formats,omitempty"`
}

type RunRequest struct {
	Stages   []string           `json:"stages,omitempty"`
	Filename string             `json:"filename,omitempty"`
	Content  string             `json:"content,omitempty"`
	Prefs    engine.Preferences `json:"prefs,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID        string `json:"id"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

type JobResponse struct {
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

type StateResponse struct {
	ProjectID string                 `json:"project_id"`
	Source    string                 `json:"source,omitempty"`
	Rooms     []domain.Room          `json:"rooms"`
	Openings  []domain.Opening       `json:"openings,omitempty"`
	Devices   []domain.Device        `json:"devices,omitempty"`
	Routes    *domain.RouteResult    `json:"routes,omitempty"`
	Lighting  *domain.LightingResult `json:"lighting,omitempty"`
	Hub       *geom.Point            `json:"hub,omitempty"`
}

type jobList struct {
	Items []JobResponse `json:"items"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{ID: p.ID, Source: p.Source, CreatedAt: p.CreatedAt}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func jobResponse(j domain.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		ProjectID: j.ProjectID,
		Status:    j.Status,
		Stages:    j.Stages,
		Outputs:   j.Outputs,
		ErrorKind: j.ErrorKind,
		ErrorText: j.ErrorText,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

func mapJobs(items []domain.Job) []JobResponse {
	res := make([]JobResponse, 0, len(items))
	for _, j := range items {
		res = append(res, jobResponse(j))
	}
	return res
}

func stateResponse(st store.State) StateResponse {
	return StateResponse{
		ProjectID: st.ProjectID,
		Source:    st.Source,
		Rooms:     st.Rooms,
		Openings:  st.Openings,
		Devices:   st.Devices,
		Routes:    st.Routes,
		Lighting:  st.Lighting,
		Hub:       st.Hub,
	}
}
