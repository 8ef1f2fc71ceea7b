package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"taskdeck/internal/domain"
)

// AppendAudit inserts one immutable trail entry. Details are stored as
// a JSON blob.
func (r Repo) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	var details any
	if len(e.Details) > 0 {
		data, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		details = string(data)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO audit_log(action,decision,user_id,org_id,resource_type,resource_id,reason,details_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		e.Action, e.Decision, nullableStringPtr(e.UserID), nullableStringPtr(e.OrgID),
		nullableStringPtr(e.ResourceType), nullableStringPtr(e.ResourceID), nullableStringPtr(e.Reason),
		details, e.CreatedAt)
	return err
}

// ListAuditByOrg returns an organization's entries, newest first.
func (r Repo) ListAuditByOrg(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,action,decision,user_id,org_id,resource_type,resource_id,reason,details_json,created_at
FROM audit_log WHERE org_id=? ORDER BY id DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var userID, entryOrg, resourceType, resourceID, reason, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.Decision, &userID, &entryOrg, &resourceType, &resourceID, &reason, &details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if userID.Valid {
			e.UserID = &userID.String
		}
		if entryOrg.Valid {
			e.OrgID = &entryOrg.String
		}
		if resourceType.Valid {
			e.ResourceType = &resourceType.String
		}
		if resourceID.Valid {
			e.ResourceID = &resourceID.String
		}
		if reason.Valid {
			e.Reason = &reason.String
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
