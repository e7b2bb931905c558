// Package engine drives the design pipeline. Every run is recorded as a job:
// pending on acceptance, running while stages execute, then done or error.
// Stage failures land in the job record (error kind and text), not in the
// returned error; the caller inspects the job like any other result.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/export"
	"planline/internal/ingest"
	"planline/internal/place"
	"planline/internal/repo"
	"planline/internal/route"
	"planline/internal/store"
)

// ErrBusy is returned when a project already has a running job. Jobs for one
// project are serialized; concurrent runs would race on the geometry store.
var ErrBusy = errors.New("project has a running job")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Store  *store.Store
	Config *config.Config
	Events events.Writer
	Now    func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

func New(db *sql.DB, st *store.Store, cfg *config.Config) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Store:  st,
		Config: cfg,
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Rehydrate loads the persisted geometry snapshots into the in-memory store.
// Called once on startup; a project with no snapshot simply stays cold until
// its next ingest.
func (e *Engine) Rehydrate(ctx context.Context) error {
	projects, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		payload, err := e.Repo.LoadGeometry(ctx, p.ID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load geometry for %s: %w", p.ID, err)
		}
		var st store.State
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Errorf("decode geometry for %s: %w", p.ID, err)
		}
		st.ProjectID = p.ID
		e.Store.Restore(st)
	}
	return nil
}

// RunOptions parameterize one pipeline run.
type RunOptions struct {
	ProjectID string
	Stages    []string
	Filename  string
	Content   []byte
	Prefs     Preferences
}

// Run executes the requested stages in pipeline order and returns the job
// record. The returned error covers acceptance problems (bad stage list, busy
// project, storage failure) and a failed terminal status write; stage
// failures are recorded on the job.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (domain.Job, error) {
	if opts.ProjectID == "" {
		return domain.Job{}, domain.InvalidParameterf("project id required")
	}
	stages, err := normalizeStages(opts.Stages)
	if err != nil {
		return domain.Job{}, err
	}
	prefs := opts.Prefs.ParseText()
	if err := prefs.Validate(); err != nil {
		return domain.Job{}, err
	}
	if err := e.acquire(opts.ProjectID); err != nil {
		return domain.Job{}, err
	}
	defer e.release(opts.ProjectID)

	if err := e.Repo.UpsertProject(ctx, domain.Project{ID: opts.ProjectID, Source: opts.Filename}); err != nil {
		return domain.Job{}, fmt.Errorf("upsert project: %w", err)
	}

	now := e.now().UTC().Format(time.RFC3339)
	job := domain.Job{
		ID:        uuid.New().String(),
		ProjectID: opts.ProjectID,
		Status:    domain.JobPending,
		Stages:    stages,
		Outputs:   make(map[string]json.RawMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}
	params, err := json.Marshal(prefs)
	if err != nil {
		return domain.Job{}, err
	}
	if err := e.Repo.InsertJob(ctx, job, params); err != nil {
		return domain.Job{}, fmt.Errorf("insert job: %w", err)
	}
	e.event(ctx, "job.pending", job, nil)

	job.Status = domain.JobRunning
	e.touch(ctx, &job)
	e.event(ctx, "job.running", job, nil)

	for _, stage := range stages {
		out, err := e.runStage(ctx, stage, opts, prefs)
		if err != nil {
			job.Status = domain.JobError
			job.ErrorKind = domain.ErrKind(err)
			job.ErrorText = err.Error()
			ferr := e.finalize(ctx, &job)
			e.event(ctx, "job.error", job, events.Payload{"stage": stage, "kind": job.ErrorKind})
			return job, ferr
		}
		job.Outputs[stage] = out
		e.touch(ctx, &job)
		e.event(ctx, "stage.done", job, events.Payload{"stage": stage})
	}

	job.Status = domain.JobDone
	ferr := e.finalize(ctx, &job)
	e.event(ctx, "job.done", job, nil)
	return job, ferr
}

// GetJob fetches one job record.
func (e *Engine) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return e.Repo.GetJob(ctx, id)
}

// ListJobs lists job records, newest first, optionally scoped to a project.
func (e *Engine) ListJobs(ctx context.Context, projectID string, limit int) ([]domain.Job, error) {
	return e.Repo.ListJobs(ctx, projectID, limit)
}

// ProjectState returns the current in-memory pipeline state.
func (e *Engine) ProjectState(projectID string) (store.State, bool) {
	return e.Store.Snapshot(projectID)
}

// DeleteProject drops a project: the database rows (the schema cascades to
// jobs and the geometry snapshot) and the in-memory state. Rejected with
// ErrBusy while a job is running for the project.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) error {
	if err := e.acquire(projectID); err != nil {
		return err
	}
	defer e.release(projectID)
	if err := e.Repo.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	e.Store.Delete(projectID)
	return nil
}

func (e *Engine) acquire(projectID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running == nil {
		e.running = make(map[string]bool)
	}
	if e.running[projectID] {
		return fmt.Errorf("project %s: %w", projectID, ErrBusy)
	}
	e.running[projectID] = true
	return nil
}

func (e *Engine) release(projectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, projectID)
}

func (e *Engine) touch(ctx context.Context, job *domain.Job) {
	job.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	// mid-run persistence is best-effort; the terminal write goes through
	// finalize and is checked
	_ = e.Repo.UpdateJob(ctx, *job)
}

// finalize writes the terminal status. Losing this write would leave the
// stored row running forever while the caller sees a finished job, so the
// error surfaces to the caller.
func (e *Engine) finalize(ctx context.Context, job *domain.Job) error {
	job.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateJob(ctx, *job); err != nil {
		return fmt.Errorf("record job %s terminal status: %w", job.ID, err)
	}
	return nil
}

func (e *Engine) event(ctx context.Context, evtType string, job domain.Job, payload events.Payload) {
	// the event log is advisory; a failed append never fails the run
	_ = e.Events.Append(ctx, evtType, job.ProjectID, job.ID, payload)
}

// JobEvents returns the job's event log in insertion order.
func (e *Engine) JobEvents(ctx context.Context, jobID string, limit int) ([]domain.Event, error) {
	return e.Repo.ListEvents(ctx, jobID, limit)
}

// normalizeStages validates the requested subset and returns it in pipeline
// order. An empty request means the full pipeline.
func normalizeStages(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return domain.AllStages(), nil
	}
	want := make(map[string]bool, len(requested))
	for _, s := range requested {
		found := false
		for _, known := range domain.AllStages() {
			if s == known {
				found = true
			}
		}
		if !found {
			return nil, domain.InvalidParameterf("unknown stage %q", s)
		}
		want[s] = true
	}
	var ordered []string
	for _, s := range domain.AllStages() {
		if want[s] {
			ordered = append(ordered, s)
		}
	}
	return ordered, nil
}

// runStage executes one stage under the configured timeout. The stage
// goroutine only computes, against a snapshot; store and database writes live
// in the commit closure, which runs on the winning select arm. A stage that
// loses the timeout race is abandoned wholesale: its commit never runs, so a
// straggler cannot overwrite state a later job has produced.
func (e *Engine) runStage(ctx context.Context, stage string, opts RunOptions, prefs Preferences) (json.RawMessage, error) {
	timeout := e.Config.StageTimeout()
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out    any
		commit func(context.Context) error
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		out, commit, err := e.execStage(stage, opts, prefs)
		ch <- result{out, commit, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.commit != nil {
			if err := r.commit(ctx); err != nil {
				return nil, err
			}
		}
		b, err := json.Marshal(r.out)
		if err != nil {
			return nil, domain.StageError(stage, err)
		}
		return b, nil
	case <-sctx.Done():
		if ctx.Err() != nil {
			return nil, domain.StageError(stage, ctx.Err())
		}
		return nil, domain.TimeoutErrorf("stage %s exceeded %s", stage, timeout)
	}
}

func (e *Engine) execStage(stage string, opts RunOptions, prefs Preferences) (any, func(context.Context) error, error) {
	switch stage {
	case domain.StageIngest:
		return e.ingest(opts)
	case domain.StagePlace:
		return e.place(opts.ProjectID, prefs)
	case domain.StageRoute:
		return e.route(opts.ProjectID)
	case domain.StageExport:
		return e.export(opts.ProjectID, prefs.Formats)
	default:
		return nil, nil, domain.InvalidParameterf("unknown stage %q", stage)
	}
}

func (e *Engine) ingest(opts RunOptions) (domain.IngestSummary, func(context.Context) error, error) {
	if len(opts.Content) == 0 {
		return domain.IngestSummary{}, nil, domain.InvalidParameterf("ingest needs a drawing file")
	}
	d, err := ingest.Parse(opts.Filename, opts.Content)
	if err != nil {
		return domain.IngestSummary{}, nil, err
	}
	commit := func(ctx context.Context) error {
		e.Store.ReplaceGeometry(opts.ProjectID, opts.Filename, d.Rooms, d.Openings)
		if d.Hub != nil {
			e.Store.SetHub(opts.ProjectID, *d.Hub)
		}
		return e.persistState(ctx, opts.ProjectID)
	}
	return domain.IngestSummary{
		ProjectID: opts.ProjectID,
		Rooms:     len(d.Rooms),
		Openings:  len(d.Openings),
		Skipped:   d.Skipped,
		Notes:     d.Notes,
	}, commit, nil
}

func (e *Engine) place(projectID string, prefs Preferences) (domain.PlaceSummary, func(context.Context) error, error) {
	st, ok := e.Store.Snapshot(projectID)
	if !ok || !st.HasGeometry() {
		return domain.PlaceSummary{}, nil, domain.StageError(domain.StagePlace, fmt.Errorf("project %s has no geometry, run ingest first", projectID))
	}
	res, err := place.Place(st, e.Config, place.Options{
		Quotas:            prefs.Quotas,
		PerRoom:           prefs.PerRoom,
		AutoFixtures:      prefs.AutoFixtures,
		Lighting:          prefs.Lighting,
		ExplicitTargetLux: prefs.Lighting.TargetLux > 0,
		IncludeAllRooms:   prefs.IncludeAllRooms,
	})
	if err != nil {
		return domain.PlaceSummary{}, nil, err
	}
	var lr *domain.LightingResult
	if len(res.Lighting.Rooms) > 0 {
		lr = &res.Lighting
	}
	commit := func(ctx context.Context) error {
		e.Store.SetDevices(projectID, res.Devices, lr)
		return e.persistState(ctx, projectID)
	}

	byType := make(map[string]int)
	for _, d := range res.Devices {
		byType[d.Type]++
	}
	return domain.PlaceSummary{
		ProjectID: projectID,
		Devices:   len(res.Devices),
		ByType:    byType,
		Lighting:  res.Lighting,
		Warnings:  res.Warnings,
	}, commit, nil
}

func (e *Engine) route(projectID string) (domain.RouteSummary, func(context.Context) error, error) {
	st, ok := e.Store.Snapshot(projectID)
	if !ok || !st.HasGeometry() {
		return domain.RouteSummary{}, nil, domain.StageError(domain.StageRoute, fmt.Errorf("project %s has no geometry, run ingest first", projectID))
	}
	if len(st.Devices) == 0 {
		return domain.RouteSummary{}, nil, domain.StageError(domain.StageRoute, fmt.Errorf("project %s has no devices, run place first", projectID))
	}
	res := route.Solve(st, e.Config)
	route.SortRoutes(res.Routes)
	commit := func(ctx context.Context) error {
		e.Store.SetRoutes(projectID, &res)
		if st.Hub == nil {
			e.Store.SetHub(projectID, route.Hub(st))
		}
		return e.persistState(ctx, projectID)
	}

	var total float64
	for _, r := range res.Routes {
		total += r.Length
	}
	return domain.RouteSummary{
		ProjectID:  projectID,
		Routes:     len(res.Routes),
		Unresolved: res.Unresolved,
		TotalLen:   total,
		BOM:        res.BOM,
	}, commit, nil
}

func (e *Engine) export(projectID string, formats []string) (*domain.ExportSummary, func(context.Context) error, error) {
	st, ok := e.Store.Snapshot(projectID)
	if !ok || !st.HasGeometry() {
		return nil, nil, domain.StageError(domain.StageExport, fmt.Errorf("project %s has no geometry, run ingest first", projectID))
	}
	prep := export.Prepare(st, e.Config.Export.Dir, formats)
	sum := &domain.ExportSummary{}
	commit := func(context.Context) error {
		s, err := prep.Write()
		*sum = s
		return err
	}
	return sum, commit, nil
}

// persistState snapshots the project's in-memory state into the database so a
// restart can pick up where the pipeline left off.
func (e *Engine) persistState(ctx context.Context, projectID string) error {
	st, ok := e.Store.Snapshot(projectID)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := e.Repo.SaveGeometry(ctx, projectID, st.Source, payload); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Projects lists known projects from the database, merged with any in-memory
// state not yet persisted.
func (e *Engine) Projects(ctx context.Context) ([]domain.Project, error) {
	projects, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(projects))
	for _, p := range projects {
		seen[p.ID] = true
	}
	for _, id := range e.Store.Projects() {
		if !seen[id] {
			projects = append(projects, domain.Project{ID: id})
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}
