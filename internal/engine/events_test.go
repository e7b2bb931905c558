package engine_test

import (
	"encoding/json"
	"testing"

	"planline/internal/engine"
)

func TestJobEventLog(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.Engine.Run(env.Ctx, runOpts(engine.Preferences{}))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	evts, err := env.Engine.JobEvents(env.Ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("job events: %v", err)
	}
	// pending, running, four stage completions, done
	if len(evts) != 7 {
		t.Fatalf("expected 7 events, got %d", len(evts))
	}
	if evts[0].Type != "job.pending" || evts[len(evts)-1].Type != "job.done" {
		t.Fatalf("unexpected boundary events: %s .. %s", evts[0].Type, evts[len(evts)-1].Type)
	}
	stages := 0
	for _, e := range evts {
		if e.JobID != job.ID {
			t.Fatalf("event %d has job id %s", e.ID, e.JobID)
		}
		if e.Type == "stage.done" {
			stages++
		}
	}
	if stages != 4 {
		t.Fatalf("expected 4 stage.done events, got %d", stages)
	}
}

func TestJobEventLogRecordsFailure(t *testing.T) {
	env := newTestEnv(t)
	opts := runOpts(engine.Preferences{})
	opts.Content = []byte(`{"rooms": []}`)
	job, err := env.Engine.Run(env.Ctx, opts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	evts, err := env.Engine.JobEvents(env.Ctx, job.ID, 0)
	if err != nil {
		t.Fatalf("job events: %v", err)
	}
	last := evts[len(evts)-1]
	if last.Type != "job.error" {
		t.Fatalf("last event = %s, want job.error", last.Type)
	}
	var payload struct {
		Stage string `json:"stage"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(last.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Stage != "ingest" || payload.Kind == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
