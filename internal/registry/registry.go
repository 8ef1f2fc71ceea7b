// Package registry orchestrates task create/read/update/delete/reorder
// on top of the authorization engine, the position sequencer and the
// audit trail.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"taskdeck/internal/audit"
	"taskdeck/internal/authz"
	"taskdeck/internal/domain"
	"taskdeck/internal/repo"
	"taskdeck/internal/roles"
)

// DefaultCategory is assigned when no usable category is supplied.
const DefaultCategory = "General"

// TaskStore is the persistence boundary for tasks. Lookups signal
// missing rows with repo.ErrNotFound; MaxPosition returns -1 for an
// empty bucket.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (domain.Task, error)
	GetTasksByIDs(ctx context.Context, ids []string) ([]domain.Task, error)
	ListTasksOrdered(ctx context.Context, orgID, ownerID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	SaveTask(ctx context.Context, t domain.Task) error
	SaveTasks(ctx context.Context, ts []domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	MaxPosition(ctx context.Context, orgID, status string) (int, error)
}

type Registry struct {
	Tasks TaskStore
	Authz authz.Engine
	Seq   Sequencer
	Audit *audit.Recorder
	Now   func() time.Time
}

func New(tasks TaskStore, users authz.UserStore, rec *audit.Recorder) Registry {
	return Registry{
		Tasks: tasks,
		Authz: authz.Engine{Users: users, Audit: rec},
		Seq:   Sequencer{Tasks: tasks},
		Audit: rec,
		Now:   time.Now,
	}
}

func (r Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// CreateOptions are parameters for creating a task. Zero values fall
// back to defaults: status todo, category General, owner = principal.
type CreateOptions struct {
	Title       string
	Description string
	Status      string
	Category    string
	OwnerID     string
}

func (r Registry) Create(ctx context.Context, p domain.Principal, opts CreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if _, err := r.Authz.EnsureOrganization(p); err != nil {
		return domain.Task{}, err
	}
	if err := r.Authz.RequireRole(p, authz.ActionTaskCreate); err != nil {
		return domain.Task{}, err
	}
	ownerID := opts.OwnerID
	if ownerID == "" {
		ownerID = p.ID
	}
	owner, err := r.Authz.ResolveOwner(ctx, p, ownerID)
	if err != nil {
		return domain.Task{}, err
	}
	status := opts.Status
	if status == "" {
		status = domain.StatusTodo
	}
	if !domain.ValidStatus(status) {
		return domain.Task{}, fmt.Errorf("invalid status %s", status)
	}
	// ResolveOwner guarantees the owner shares the principal's org, so
	// keying the task to the owner's org preserves the ownership
	// invariant.
	orgID := *owner.OrgID
	position, err := r.Seq.NextPosition(ctx, orgID, status)
	if err != nil {
		return domain.Task{}, err
	}
	now := r.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:          uuid.New().String(),
		Title:       opts.Title,
		Description: opts.Description,
		Status:      status,
		Category:    normalizeCategory(opts.Category),
		Position:    position,
		OrgID:       orgID,
		OwnerID:     owner.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.Tasks.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	r.Audit.Record(ctx, audit.Entry{
		Action:       authz.ActionTaskCreate,
		Decision:     domain.DecisionAllow,
		UserID:       p.ID,
		OrgID:        orgID,
		ResourceType: "task",
		ResourceID:   t.ID,
		Details:      map[string]any{"title": t.Title},
	})
	return t, nil
}

// List returns the principal's organization tasks ordered by status
// rank then position. Viewers only see tasks they own.
func (r Registry) List(ctx context.Context, p domain.Principal) ([]domain.Task, error) {
	orgID, err := r.Authz.EnsureOrganization(p)
	if err != nil {
		return nil, err
	}
	ownerFilter := ""
	if p.Role == domain.RoleViewer {
		ownerFilter = p.ID
	}
	return r.Tasks.ListTasksOrdered(ctx, orgID, ownerFilter)
}

// UpdatePatch carries the fields an update may change; nil fields are
// left untouched.
type UpdatePatch struct {
	Title       *string
	Description *string
	Category    *string
	Status      *string
	Position    *int
	OwnerID     *string
}

func (r Registry) Update(ctx context.Context, p domain.Principal, id string, patch UpdatePatch) (domain.Task, error) {
	t, err := r.getTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if err := r.Authz.EnsureTaskAccess(ctx, p, t, authz.ActionTaskUpdate); err != nil {
		return domain.Task{}, err
	}

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Category != nil {
		t.Category = normalizeCategory(*patch.Category)
	}

	if patch.Status != nil && *patch.Status != t.Status {
		if !domain.ValidStatus(*patch.Status) {
			return domain.Task{}, fmt.Errorf("invalid status %s", *patch.Status)
		}
		t.Status = *patch.Status
		if patch.Position == nil {
			pos, err := r.Seq.NextPosition(ctx, t.OrgID, t.Status)
			if err != nil {
				return domain.Task{}, err
			}
			t.Position = pos
		}
	}

	// An explicit position always wins over the auto-assigned tail.
	if patch.Position != nil {
		t.Position = *patch.Position
	}

	if patch.OwnerID != nil && *patch.OwnerID != t.OwnerID {
		newOwner, err := r.Authz.ResolveOwner(ctx, p, *patch.OwnerID)
		if err != nil {
			return domain.Task{}, err
		}
		t.OwnerID = newOwner.ID
		t.OrgID = *newOwner.OrgID
		// Owner moves re-home the task, so the bucket tail wins over
		// any position chosen above.
		pos, err := r.Seq.NextPosition(ctx, t.OrgID, t.Status)
		if err != nil {
			return domain.Task{}, err
		}
		t.Position = pos
	}

	t.UpdatedAt = r.now().UTC().Format(time.RFC3339)
	if err := r.Tasks.SaveTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	r.Audit.Record(ctx, audit.Entry{
		Action:       authz.ActionTaskUpdate,
		Decision:     domain.DecisionAllow,
		UserID:       p.ID,
		OrgID:        t.OrgID,
		ResourceType: "task",
		ResourceID:   t.ID,
		Details:      map[string]any{"status": t.Status},
	})
	return t, nil
}

func (r Registry) Remove(ctx context.Context, p domain.Principal, id string) error {
	t, err := r.getTask(ctx, id)
	if err != nil {
		return err
	}
	if err := r.Authz.EnsureTaskAccess(ctx, p, t, authz.ActionTaskDelete); err != nil {
		return err
	}
	if err := r.Tasks.DeleteTask(ctx, id); err != nil {
		return err
	}
	r.Audit.Record(ctx, audit.Entry{
		Action:       authz.ActionTaskDelete,
		Decision:     domain.DecisionAllow,
		UserID:       p.ID,
		OrgID:        t.OrgID,
		ResourceType: "task",
		ResourceID:   id,
		Details:      map[string]any{"title": t.Title},
	})
	return nil
}

// Reorder moves every named task into the target status bucket with
// its list index as position, persisted as one batch. Validation is
// strictly two-pass: all ids must exist and all tasks must be in the
// principal's organization before any assignment happens.
func (r Registry) Reorder(ctx context.Context, p domain.Principal, status string, orderedIDs []string) error {
	orgID, err := r.Authz.EnsureOrganization(p)
	if err != nil {
		return err
	}
	if err := r.Authz.RequireRole(p, authz.ActionTaskReorder); err != nil {
		return err
	}
	if len(orderedIDs) == 0 {
		return nil
	}
	if !domain.ValidStatus(status) {
		return fmt.Errorf("invalid status %s", status)
	}

	tasks, err := r.Tasks.GetTasksByIDs(ctx, orderedIDs)
	if err != nil {
		return err
	}
	byID := make(map[string]*domain.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	for _, id := range orderedIDs {
		if _, ok := byID[id]; !ok {
			return authz.NotFoundError{Resource: "task", ID: id}
		}
	}
	// Org membership is verified for the whole set before any task is
	// touched; a cross-org id aborts with no audit entry and no
	// in-memory mutation.
	for _, id := range orderedIDs {
		if !roles.IsSameOrganization(p, byID[id].OrgID) {
			return authz.ErrCrossOrganizationAccess
		}
	}

	now := r.now().UTC().Format(time.RFC3339)
	r.Seq.Reindex(orderedIDs, byID)
	updates := make([]domain.Task, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		t := byID[id]
		t.Status = status
		t.UpdatedAt = now
		updates = append(updates, *t)
	}
	if err := r.Tasks.SaveTasks(ctx, updates); err != nil {
		return err
	}

	r.Audit.Record(ctx, audit.Entry{
		Action:       authz.ActionTaskReorder,
		Decision:     domain.DecisionAllow,
		UserID:       p.ID,
		OrgID:        orgID,
		ResourceType: "task",
		Details:      map[string]any{"status": status, "order": orderedIDs},
	})
	return nil
}

func (r Registry) getTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := r.Tasks.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, authz.NotFoundError{Resource: "task", ID: id}
		}
		return domain.Task{}, err
	}
	return t, nil
}

// normalizeCategory maps empty or whitespace-only input to the default
// and otherwise trims and upper-cases only the first rune.
func normalizeCategory(category string) string {
	trimmed := strings.TrimSpace(category)
	if trimmed == "" {
		return DefaultCategory
	}
	first, size := utf8.DecodeRuneInString(trimmed)
	return string(unicode.ToUpper(first)) + trimmed[size:]
}
