// Package planlinesdk is a minimal client for the Planline HTTP API.
package planlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a Planline API server.
type Client struct {
	BaseURL    string
	ProjectID  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   30 * time.Second,
	}
}

// Job represents the API job model.
type Job struct {
	ID        string                     `json:"id"`
	ProjectID string                     `json:"project_id"`
	Status    string                     `json:"status"`
	Stages    []string                   `json:"stages"`
	Outputs   map[string]json.RawMessage `json:"outputs,omitempty"`
	ErrorKind string                     `json:"error_kind,omitempty"`
	ErrorText string                     `json:"error_text,omitempty"`
	CreatedAt string                     `json:"created_at"`
	UpdatedAt string                     `json:"updated_at"`
}

// Failed reports whether the run ended with a stage failure.
func (j Job) Failed() bool { return j.Status == "error" }

// Project represents the API project model.
type Project struct {
	ID        string `json:"id"`
	Source    string `json:"source,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Event represents a job event log entry.
type Event struct {
	ID      int64           `json:"id"`
	TS      string          `json:"ts"`
	Type    string          `json:"type"`
	JobID   string          `json:"job_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Preferences mirror the pipeline parameters accepted by place and run.
type Preferences struct {
	Quotas          map[string]int            `json:"quotas,omitempty"`
	PerRoom         map[string]map[string]int `json:"per_room,omitempty"`
	AutoFixtures    bool                      `json:"auto_fixtures,omitempty"`
	IncludeAllRooms bool                      `json:"include_all_rooms,omitempty"`
	Formats         []string                  `json:"formats,omitempty"`
	Text            string                    `json:"text,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Ingest uploads a drawing and runs the ingest stage.
func (c *Client) Ingest(ctx context.Context, filename string, content []byte) (Job, error) {
	body := map[string]any{
		"filename": filename,
		"content":  string(content),
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, c.projectPath("ingest"), body, &resp)
	return resp, err
}

// Place runs the placement stage.
func (c *Client) Place(ctx context.Context, prefs Preferences) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, c.projectPath("place"), map[string]any{"prefs": prefs}, &resp)
	return resp, err
}

// Route runs the routing stage.
func (c *Client) Route(ctx context.Context) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, c.projectPath("route"), nil, &resp)
	return resp, err
}

// Export runs the export stage. Empty formats means all.
func (c *Client) Export(ctx context.Context, formats []string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, c.projectPath("export"), map[string]any{"formats": formats}, &resp)
	return resp, err
}

// Run executes the requested stages in pipeline order; empty means all.
func (c *Client) Run(ctx context.Context, stages []string, filename string, content []byte, prefs Preferences) (Job, error) {
	body := map[string]any{
		"stages": stages,
		"prefs":  prefs,
	}
	if filename != "" {
		body["filename"] = filename
		body["content"] = string(content)
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, c.projectPath("run"), body, &resp)
	return resp, err
}

// GetJob fetches a job record.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, "v0/jobs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Jobs lists the project's jobs, newest first.
func (c *Client) Jobs(ctx context.Context, limit int) ([]Job, error) {
	endpoint := fmt.Sprintf("v0/jobs?project_id=%s", url.QueryEscape(c.ProjectID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s&limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Job `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// JobEvents returns a job's event log.
func (c *Client) JobEvents(ctx context.Context, id string, limit int) ([]Event, error) {
	endpoint := "v0/jobs/" + url.PathEscape(id) + "/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Projects lists known projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "v0/projects", nil, &resp)
	return resp, err
}

// State fetches the project's pipeline state as raw JSON.
func (c *Client) State(ctx context.Context) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodGet, c.projectPath("state"), nil, &resp)
	return resp, err
}

// Delete removes the project together with its job history.
func (c *Client) Delete(ctx context.Context) error {
	endpoint := fmt.Sprintf("v0/projects/%s", url.PathEscape(c.ProjectID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
