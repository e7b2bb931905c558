// Package repo is the SQLite persistence layer: projects, job records and
// geometry snapshots. Job records are written once per status change and kept
// until their project is deleted, so the job history doubles as the audit
// trail.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"planline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) UpsertProject(ctx context.Context, p domain.Project) error {
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,source,created_at) VALUES (?,?,?)
		ON CONFLICT(id) DO UPDATE SET source=excluded.source`,
		p.ID, nullable(p.Source), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var source sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,source,created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &source, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if source.Valid {
		p.Source = source.String
	}
	return p, err
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(source,''),created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Source, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertJob(ctx context.Context, j domain.Job, params json.RawMessage) error {
	stages, err := json.Marshal(j.Stages)
	if err != nil {
		return err
	}
	outputs, err := marshalOutputs(j.Outputs)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO jobs(id,project_id,status,stages,params,outputs,error_kind,error_text,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.ProjectID, j.Status, string(stages), nullableRaw(params), outputs,
		nullable(j.ErrorKind), nullable(j.ErrorText), j.CreatedAt, j.UpdatedAt)
	return err
}

// UpdateJob persists a status change with its outputs and error fields.
func (r Repo) UpdateJob(ctx context.Context, j domain.Job) error {
	outputs, err := marshalOutputs(j.Outputs)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE jobs SET status=?,outputs=?,error_kind=?,error_text=?,updated_at=? WHERE id=?`,
		j.Status, outputs, nullable(j.ErrorKind), nullable(j.ErrorText), j.UpdatedAt, j.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,project_id,status,stages,outputs,error_kind,error_text,created_at,updated_at FROM jobs WHERE id=?`, id)
	return scanJob(row)
}

func (r Repo) ListJobs(ctx context.Context, projectID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,project_id,status,stages,outputs,error_kind,error_text,created_at,updated_at FROM jobs`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ListEvents returns the job's event log in insertion order.
func (r Repo) ListEvents(ctx context.Context, jobID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,project_id,COALESCE(job_id,''),payload FROM events WHERE job_id=? ORDER BY id LIMIT ?`, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.JobID, &payload); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		res = append(res, e)
	}
	return res, rows.Err()
}

// DeleteProject removes the project row; the schema cascades the delete to
// its jobs and geometry snapshot. Event rows carry no foreign key and are
// removed explicitly.
func (r Repo) DeleteProject(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE project_id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveGeometry atomically replaces the project's geometry snapshot.
func (r Repo) SaveGeometry(ctx context.Context, projectID, source string, payload []byte) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO geometry(project_id,source,payload,updated_at) VALUES (?,?,?,?)
		ON CONFLICT(project_id) DO UPDATE SET source=excluded.source,payload=excluded.payload,updated_at=excluded.updated_at`,
		projectID, nullable(source), string(payload), now); err != nil {
		return fmt.Errorf("save geometry: %w", err)
	}
	return tx.Commit()
}

func (r Repo) LoadGeometry(ctx context.Context, projectID string) ([]byte, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload FROM geometry WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

type jobScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (domain.Job, error) {
	j, err := scanJobFrom(row)
	if err == sql.ErrNoRows {
		return j, ErrNotFound
	}
	return j, err
}

func scanJobRows(rows *sql.Rows) (domain.Job, error) {
	return scanJobFrom(rows)
}

func scanJobFrom(s jobScanner) (domain.Job, error) {
	var j domain.Job
	var stages string
	var outputs, errKind, errText sql.NullString
	if err := s.Scan(&j.ID, &j.ProjectID, &j.Status, &stages, &outputs, &errKind, &errText, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return j, err
	}
	if err := json.Unmarshal([]byte(stages), &j.Stages); err != nil {
		return j, fmt.Errorf("job %s stages: %w", j.ID, err)
	}
	if outputs.Valid && outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &j.Outputs); err != nil {
			return j, fmt.Errorf("job %s outputs: %w", j.ID, err)
		}
	}
	if errKind.Valid {
		j.ErrorKind = errKind.String
	}
	if errText.Valid {
		j.ErrorText = errText.String
	}
	return j, nil
}

func marshalOutputs(out map[string]json.RawMessage) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableRaw(v json.RawMessage) any {
	if len(v) == 0 {
		return nil
	}
	return string(v)
}
