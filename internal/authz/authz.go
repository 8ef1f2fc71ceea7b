// Package authz composes the role hierarchy, organization scoping and
// resource ownership into per-action access decisions. Every denial
// that concerns a concrete resource is recorded to the audit trail
// before the error is returned.
package authz

import (
	"context"
	"errors"
	"fmt"

	"taskdeck/internal/audit"
	"taskdeck/internal/domain"
	"taskdeck/internal/repo"
	"taskdeck/internal/roles"
)

// Audited action tags.
const (
	ActionTaskRead    = "TASK_READ"
	ActionTaskCreate  = "TASK_CREATE"
	ActionTaskUpdate  = "TASK_UPDATE"
	ActionTaskDelete  = "TASK_DELETE"
	ActionTaskReorder = "TASK_REORDER"
	ActionTaskAssign  = "TASK_ASSIGN"
	ActionAuditRead   = "AUDIT_READ"
)

// Deny reasons recorded on the trail.
const (
	ReasonOrgMismatch = "org-mismatch"
	ReasonOwnership   = "ownership"
)

var (
	ErrNotAssignedToOrganization = errors.New("user is not assigned to an organization")
	ErrCrossOrganizationAccess   = errors.New("cross-organization access denied")
	ErrInsufficientPermissions   = errors.New("insufficient permissions")
)

// NotFoundError reports a missing task or owner by id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// minRole maps each operation to the least role admitted to attempt
// it. Update and delete admit viewers because the ownership half of the
// rule needs the loaded task; EnsureTaskAccess decides those.
var minRole = map[string]string{
	ActionTaskRead:    domain.RoleViewer,
	ActionTaskCreate:  domain.RoleAdmin,
	ActionTaskUpdate:  domain.RoleViewer,
	ActionTaskDelete:  domain.RoleViewer,
	ActionTaskReorder: domain.RoleAdmin,
	ActionTaskAssign:  domain.RoleAdmin,
	ActionAuditRead:   domain.RoleAdmin,
}

// MinRole returns the minimum role required for an action. Unknown
// actions require owner.
func MinRole(action string) string {
	if r, ok := minRole[action]; ok {
		return r
	}
	return domain.RoleOwner
}

// UserStore resolves users at the identity boundary. Lookups signal
// missing rows with repo.ErrNotFound.
type UserStore interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
}

type Engine struct {
	Users UserStore
	Audit *audit.Recorder
}

// RequireRole checks the principal against the action's minimum role.
// Pre-condition check, no audit entry.
func (e Engine) RequireRole(p domain.Principal, action string) error {
	if !roles.HasRoleOrHigher(p.Role, MinRole(action)) {
		return ErrInsufficientPermissions
	}
	return nil
}

// EnsureOrganization returns the principal's organization id, failing
// when it has none. Pre-condition check, no audit entry.
func (e Engine) EnsureOrganization(p domain.Principal) (string, error) {
	if p.OrgID == nil || *p.OrgID == "" {
		return "", ErrNotAssignedToOrganization
	}
	return *p.OrgID, nil
}

// EnsureTaskAccess verifies the principal may act on the task. Both
// deny paths record a DENY entry; the allow path records nothing, the
// caller logs ALLOW once the mutation has completed.
func (e Engine) EnsureTaskAccess(ctx context.Context, p domain.Principal, t domain.Task, action string) error {
	if !roles.IsSameOrganization(p, t.OrgID) {
		e.recordDeny(ctx, p, action, t.OrgID, t.ID, ReasonOrgMismatch)
		return ErrCrossOrganizationAccess
	}
	if !roles.HasRoleOrHigher(p.Role, domain.RoleAdmin) && !roles.IsResourceOwner(p, t.OwnerID) {
		e.recordDeny(ctx, p, action, t.OrgID, t.ID, ReasonOwnership)
		return ErrInsufficientPermissions
	}
	return nil
}

// ResolveOwner looks up the target owner and verifies it shares the
// principal's organization. A cross-organization owner records a
// TASK_ASSIGN deny before failing.
func (e Engine) ResolveOwner(ctx context.Context, p domain.Principal, ownerID string) (domain.User, error) {
	owner, err := e.Users.GetUser(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, NotFoundError{Resource: "owner", ID: ownerID}
		}
		return domain.User{}, err
	}
	ownerOrg := ""
	if owner.OrgID != nil {
		ownerOrg = *owner.OrgID
	}
	if !roles.IsSameOrganization(p, ownerOrg) {
		e.recordDeny(ctx, p, ActionTaskAssign, ownerOrg, ownerID, ReasonOrgMismatch)
		return domain.User{}, ErrCrossOrganizationAccess
	}
	return owner, nil
}

func (e Engine) recordDeny(ctx context.Context, p domain.Principal, action, orgID, resourceID, reason string) {
	e.Audit.Record(ctx, audit.Entry{
		Action:       action,
		Decision:     domain.DecisionDeny,
		UserID:       p.ID,
		OrgID:        orgID,
		ResourceType: "task",
		ResourceID:   resourceID,
		Reason:       reason,
	})
}
