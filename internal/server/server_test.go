package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/migrate"
	"planline/internal/store"
)

const planFixture = `{
  "rooms": [
    {"id": "living", "type": "living", "polygon": [{"x":0,"y":0},{"x":10,"y":0},{"x":10,"y":8},{"x":0,"y":8}]},
    {"id": "kitchen", "type": "kitchen", "polygon": [{"x":10,"y":0},{"x":16,"y":0},{"x":16,"y":8},{"x":10,"y":8}]}
  ],
  "openings": [
    {"id": "door_1", "kind": "door", "at": {"a":{"x":10,"y":3},"b":{"x":10,"y":4}}}
  ],
  "hub": {"x": 0.5, "y": 0.5}
}`

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Export.Dir = filepath.Join(workspace, "out")
	e := engine.New(conn, store.New(), cfg)
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeJob(t *testing.T, data []byte) JobResponse {
	t.Helper()
	var j JobResponse
	if err := json.Unmarshal(data, &j); err != nil {
		t.Fatalf("unmarshal job: %v (%s)", err, string(data))
	}
	return j
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestStageEndpoints(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	base := srv.URL + "/v0/projects/proj-1"

	res, data := doJSON(t, client, http.MethodPost, base+"/ingest", IngestRequest{
		Filename: "plan.json",
		Content:  planFixture,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ingest status %d: %s", res.StatusCode, string(data))
	}
	job := decodeJob(t, data)
	if job.Status != domain.JobDone {
		t.Fatalf("ingest job status = %s (%s)", job.Status, job.ErrorText)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/place", map[string]any{
		"prefs": map[string]any{"quotas": map[string]int{domain.DeviceSocket: 4}},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("place status %d: %s", res.StatusCode, string(data))
	}
	if job = decodeJob(t, data); job.Status != domain.JobDone {
		t.Fatalf("place job status = %s (%s)", job.Status, job.ErrorText)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/route", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("route status %d: %s", res.StatusCode, string(data))
	}
	if job = decodeJob(t, data); job.Status != domain.JobDone {
		t.Fatalf("route job status = %s (%s)", job.Status, job.ErrorText)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/export", ExportRequest{Formats: []string{"json", "svg"}})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status %d: %s", res.StatusCode, string(data))
	}
	if job = decodeJob(t, data); job.Status != domain.JobDone {
		t.Fatalf("export job status = %s (%s)", job.Status, job.ErrorText)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/jobs/"+job.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get job status %d: %s", res.StatusCode, string(data))
	}
	if got := decodeJob(t, data); got.ID != job.ID || got.Status != domain.JobDone {
		t.Fatalf("fetched job differs: %+v", got)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/jobs?project_id=proj-1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list jobs status %d: %s", res.StatusCode, string(data))
	}
	var list jobList
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 4 {
		t.Fatalf("expected 4 jobs, got %d", len(list.Items))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/state", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("state status %d: %s", res.StatusCode, string(data))
	}
	var state StateResponse
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if len(state.Rooms) != 2 || len(state.Devices) == 0 || state.Routes == nil {
		t.Fatalf("state incomplete: rooms=%d devices=%d", len(state.Rooms), len(state.Devices))
	}
}

func TestRunEndpoint(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/run", RunRequest{
		Filename: "plan.json",
		Content:  planFixture,
		Prefs:    engine.Preferences{AutoFixtures: true},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %s", res.StatusCode, string(data))
	}
	job := decodeJob(t, data)
	if job.Status != domain.JobDone {
		t.Fatalf("run job status = %s (%s: %s)", job.Status, job.ErrorKind, job.ErrorText)
	}
	for _, stage := range domain.AllStages() {
		if len(job.Outputs[stage]) == 0 {
			t.Fatalf("missing output for stage %s", stage)
		}
	}
}

func TestStageFailureRidesOnJob(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/proj-1/run", RunRequest{
		Filename: "plan.json",
		Content:  `{"rooms": []}`,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %s", res.StatusCode, string(data))
	}
	job := decodeJob(t, data)
	if job.Status != domain.JobError {
		t.Fatalf("expected error job, got %s", job.Status)
	}
	if job.ErrorKind != domain.KindGeometry {
		t.Fatalf("error kind = %s, want %s", job.ErrorKind, domain.KindGeometry)
	}
}

func TestBadRequestEnvelope(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/ingest", IngestRequest{Filename: "plan.json"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v (%s)", err, string(data))
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("code = %s, want bad_request", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/proj-1/run", RunRequest{
		Stages:   []string{"paint"},
		Filename: "plan.json",
		Content:  planFixture,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown stage, got %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != domain.KindInvalidParameter {
		t.Fatalf("code = %s, want %s", envelope.Error.Code, domain.KindInvalidParameter)
	}
}

func TestDeleteProjectEndpoint(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	base := srv.URL + "/v0/projects/proj-1"

	res, data := doJSON(t, client, http.MethodPost, base+"/ingest", IngestRequest{
		Filename: "plan.json",
		Content:  planFixture,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ingest status %d: %s", res.StatusCode, string(data))
	}
	job := decodeJob(t, data)

	res, data = doJSON(t, client, http.MethodDelete, base, nil)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, base, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("project after delete: status %d, want 404", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, base+"/state", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("state after delete: status %d, want 404", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/jobs/"+job.ID, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("job after delete: status %d, want 404", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodDelete, base, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete: status %d, want 404", res.StatusCode)
	}
}

func TestJobNotFound(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/jobs/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestProjectStateNotFound(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/cold/state", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}
