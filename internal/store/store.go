// Package store keeps the in-memory geometry state for each project: rooms
// and openings from ingest, plus the device set, routes and lighting results
// produced by later stages. Reingesting a project replaces its whole state
// atomically; readers always see either the old or the new store, never a mix.
package store

import (
	"sync"

	"planline/internal/domain"
	"planline/internal/geom"
)

// State is one project's pipeline state. Snapshot returns a copy, so stages
// can read it without holding the store lock.
type State struct {
	ProjectID string
	Source    string
	Rooms     []domain.Room
	Openings  []domain.Opening
	Devices   []domain.Device
	Routes    *domain.RouteResult
	Lighting  *domain.LightingResult
	Hub       *geom.Point
}

// HasGeometry reports whether ingest has populated the project.
func (s *State) HasGeometry() bool { return len(s.Rooms) > 0 }

// Store holds per-project state behind a single RWMutex. Stage computations
// work on snapshots, so the lock is held only for reads and swaps.
type Store struct {
	mu       sync.RWMutex
	projects map[string]*State
}

func New() *Store {
	return &Store{projects: make(map[string]*State)}
}

// ReplaceGeometry swaps in a freshly ingested geometry set. Devices, routes
// and lighting from earlier runs are discarded: they referenced rooms that no
// longer exist.
func (s *Store) ReplaceGeometry(projectID, source string, rooms []domain.Room, openings []domain.Opening) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[projectID] = &State{
		ProjectID: projectID,
		Source:    source,
		Rooms:     rooms,
		Openings:  openings,
	}
}

// SetDevices replaces the project's device set. Routes are dropped: they were
// computed against the previous set.
func (s *Store) SetDevices(projectID string, devices []domain.Device, lighting *domain.LightingResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.projects[projectID]
	if !ok {
		return false
	}
	st.Devices = devices
	st.Lighting = lighting
	st.Routes = nil
	return true
}

// SetRoutes records the routing result for the project.
func (s *Store) SetRoutes(projectID string, routes *domain.RouteResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.projects[projectID]
	if !ok {
		return false
	}
	st.Routes = routes
	return true
}

// SetHub declares the distribution point for the project.
func (s *Store) SetHub(projectID string, hub geom.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.projects[projectID]
	if !ok {
		return false
	}
	h := hub
	st.Hub = &h
	return true
}

// Restore loads a previously persisted state wholesale, replacing whatever is
// in memory for that project. Used to rehydrate from the database on startup.
func (s *Store) Restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := st
	s.projects[st.ProjectID] = &cp
}

// Snapshot returns a copy of the project state, or false when the project has
// never been ingested.
func (s *Store) Snapshot(projectID string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.projects[projectID]
	if !ok {
		return State{}, false
	}
	out := State{
		ProjectID: st.ProjectID,
		Source:    st.Source,
		Rooms:     append([]domain.Room(nil), st.Rooms...),
		Openings:  append([]domain.Opening(nil), st.Openings...),
		Devices:   append([]domain.Device(nil), st.Devices...),
	}
	if st.Routes != nil {
		r := *st.Routes
		out.Routes = &r
	}
	if st.Lighting != nil {
		l := *st.Lighting
		out.Lighting = &l
	}
	if st.Hub != nil {
		h := *st.Hub
		out.Hub = &h
	}
	return out, true
}

// Projects lists the known project ids.
func (s *Store) Projects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.projects))
	for id := range s.projects {
		out = append(out, id)
	}
	return out
}

// Delete removes a project's state.
func (s *Store) Delete(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, projectID)
}
