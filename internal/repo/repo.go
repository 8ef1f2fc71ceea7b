package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskdeck/internal/domain"
)

// Repo is the SQLite-backed store for tasks, users, organizations,
// audit entries and API keys.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,COALESCE(description,''),status,category,position,org_id,owner_id,created_at,updated_at`

func scanTask(scan func(...any) error) (domain.Task, error) {
	var t domain.Task
	err := scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Category, &t.Position, &t.OrgID, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(id,title,description,status,category,position,org_id,owner_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Status, t.Category, t.Position, t.OrgID, t.OwnerID, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row.Scan)
}

// GetTasksByIDs returns the tasks whose ids appear in the set, in no
// particular order. Missing ids are simply absent from the result.
func (r Repo) GetTasksByIDs(ctx context.Context, ids []string) ([]domain.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTasksOrdered returns an organization's tasks ordered by status
// rank (todo < in-progress < done) then position. A non-empty ownerID
// restricts the result to that owner's tasks.
func (r Repo) ListTasksOrdered(ctx context.Context, orgID, ownerID string) ([]domain.Task, error) {
	clauses := []string{"org_id=?"}
	args := []any{orgID}
	if ownerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, ownerID)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + strings.Join(clauses, " AND ") + `
ORDER BY CASE status WHEN 'todo' THEN 0 WHEN 'in-progress' THEN 1 ELSE 2 END ASC, position ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) SaveTask(ctx context.Context, t domain.Task) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, category=?, position=?, org_id=?, owner_id=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Category, t.Position, t.OrgID, t.OwnerID, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTasks persists a reorder batch in one transaction.
func (r Repo) SaveTasks(ctx context.Context, ts []domain.Task) error {
	if len(ts) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, t := range ts {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, position=?, updated_at=? WHERE id=?`,
			t.Status, t.Position, t.UpdatedAt, t.ID); err != nil {
			return fmt.Errorf("save task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MaxPosition returns the largest position in the (org, status)
// bucket, -1 when the bucket is empty.
func (r Repo) MaxPosition(ctx context.Context, orgID, status string) (int, error) {
	var max int
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(position),-1) FROM tasks WHERE org_id=? AND status=?`, orgID, status).Scan(&max)
	return max, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}
