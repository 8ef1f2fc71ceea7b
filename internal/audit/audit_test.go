package audit

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"taskdeck/internal/domain"
)

type fakeStore struct {
	entries   []domain.AuditEntry
	appendErr error
	lastLimit int
}

func (s *fakeStore) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) ListAuditByOrg(ctx context.Context, orgID string, limit int) ([]domain.AuditEntry, error) {
	s.lastLimit = limit
	return s.entries, nil
}

func TestRecordFillsOptionalFields(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store)
	r.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	r.Record(context.Background(), Entry{
		Action:   "TASK_CREATE",
		Decision: domain.DecisionAllow,
		UserID:   "u1",
		OrgID:    "org-1",
		Details:  map[string]any{"title": "T"},
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.UserID == nil || *e.UserID != "u1" {
		t.Fatalf("expected user id, got %v", e.UserID)
	}
	if e.Reason != nil || e.ResourceID != nil {
		t.Fatalf("empty strings must map to nil, got %+v", e)
	}
	if e.CreatedAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %s", e.CreatedAt)
	}
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	var buf bytes.Buffer
	store := &fakeStore{appendErr: errors.New("disk full")}
	r := NewRecorder(store)
	r.Logger = log.New(&buf, "", 0)

	r.Record(context.Background(), Entry{Action: "TASK_DELETE", Decision: domain.DecisionDeny})

	if buf.Len() == 0 {
		t.Fatal("expected the failure to be logged")
	}
	if len(store.entries) != 0 {
		t.Fatal("nothing should have been stored")
	}
}

func TestListDefaultsLimit(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store)

	if _, err := r.ListForOrganization(context.Background(), "org-1", 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.lastLimit != DefaultListLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultListLimit, store.lastLimit)
	}
	if _, err := r.ListForOrganization(context.Background(), "org-1", 5); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.lastLimit != 5 {
		t.Fatalf("expected explicit limit 5, got %d", store.lastLimit)
	}
}
