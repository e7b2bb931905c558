package export

import (
	"encoding/json"

	"planline/internal/domain"
	"planline/internal/geom"
	"planline/internal/store"
)

// resultDoc is the machine-readable artifact: everything downstream tooling
// needs to reconstruct the design without re-running the pipeline.
type resultDoc struct {
	ProjectID string                 `json:"project_id"`
	Source    string                 `json:"source,omitempty"`
	Rooms     []domain.Room          `json:"rooms"`
	Openings  []domain.Opening       `json:"openings,omitempty"`
	Devices   []domain.Device        `json:"devices,omitempty"`
	Hub       *geom.Point            `json:"hub,omitempty"`
	Routes    *domain.RouteResult    `json:"routes,omitempty"`
	Lighting  *domain.LightingResult `json:"lighting,omitempty"`
}

func renderJSON(st store.State) ([]byte, error) {
	doc := resultDoc{
		ProjectID: st.ProjectID,
		Source:    st.Source,
		Rooms:     st.Rooms,
		Openings:  st.Openings,
		Devices:   st.Devices,
		Hub:       st.Hub,
		Routes:    st.Routes,
		Lighting:  st.Lighting,
	}
	return json.MarshalIndent(doc, "", "  ")
}
