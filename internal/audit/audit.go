// Package audit records access decisions and mutations to an
// append-only trail. Writes are best-effort: a failed append is logged
// and dropped so it can never abort the operation that triggered it.
package audit

import (
	"context"
	"log"
	"time"

	"taskdeck/internal/domain"
)

// DefaultListLimit bounds ListForOrganization when no limit is given.
const DefaultListLimit = 100

// Store is the persistence boundary for the trail.
type Store interface {
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
	ListAuditByOrg(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error)
}

// Entry describes one decision or mutation to record.
type Entry struct {
	Action       string
	Decision     string
	UserID       string
	OrgID        string
	ResourceType string
	ResourceID   string
	Reason       string
	Details      map[string]any
}

type Recorder struct {
	Store  Store
	Logger *log.Logger
	Now    func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{Store: store, Now: time.Now}
}

func (r *Recorder) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r *Recorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Record appends one entry. Failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	entry := domain.AuditEntry{
		Action:       e.Action,
		Decision:     e.Decision,
		UserID:       optional(e.UserID),
		OrgID:        optional(e.OrgID),
		ResourceType: optional(e.ResourceType),
		ResourceID:   optional(e.ResourceID),
		Reason:       optional(e.Reason),
		Details:      e.Details,
		CreatedAt:    r.now().UTC().Format(time.RFC3339),
	}
	if err := r.Store.AppendAudit(ctx, entry); err != nil {
		r.logger().Printf("audit: failed to persist %s entry for action %s: %v", e.Decision, e.Action, err)
	}
}

// ListForOrganization returns entries for one organization, newest
// first, bounded by limit.
func (r *Recorder) ListForOrganization(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return r.Store.ListAuditByOrg(ctx, orgID, limit)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
