package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

const userColumns = `id,email,password_hash,role,org_id,created_at`

func scanUser(scan func(...any) error) (domain.User, error) {
	var u domain.User
	var orgID sql.NullString
	err := scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &orgID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if orgID.Valid {
		u.OrgID = &orgID.String
	}
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,email,password_hash,role,org_id,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.Role, nullableStringPtr(u.OrgID), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	return scanUser(row.Scan)
}

func (r Repo) ListUsers(ctx context.Context, orgID string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if orgID != "" {
		query += ` WHERE org_id=?`
		args = append(args, orgID)
	}
	query += ` ORDER BY email ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) InsertOrganization(ctx context.Context, o domain.Organization) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO organizations(id,name,parent_id,created_at) VALUES (?,?,?,?)`,
		o.ID, o.Name, nullableStringPtr(o.ParentID), o.CreatedAt)
	return err
}

func (r Repo) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	var o domain.Organization
	var parentID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,parent_id,created_at FROM organizations WHERE id=?`, id).
		Scan(&o.ID, &o.Name, &parentID, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if parentID.Valid {
		o.ParentID = &parentID.String
	}
	return o, err
}

func (r Repo) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,parent_id,created_at FROM organizations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		var o domain.Organization
		var parentID sql.NullString
		if err := rows.Scan(&o.ID, &o.Name, &parentID, &o.CreatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			o.ParentID = &parentID.String
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
