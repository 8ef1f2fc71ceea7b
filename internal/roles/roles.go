// Package roles implements the viewer < admin < owner role hierarchy
// and the scoping predicates used by the authorization engine.
package roles

import "taskdeck/internal/domain"

// Hierarchy lists roles from least to most privileged.
var Hierarchy = []string{domain.RoleViewer, domain.RoleAdmin, domain.RoleOwner}

// Rank maps a role to its position in the hierarchy. Unrecognized
// values rank as viewer, i.e. least privileged rather than an error.
func Rank(role string) int {
	for i, r := range Hierarchy {
		if r == role {
			return i
		}
	}
	return 0
}

// HasRoleOrHigher reports whether current is at least as privileged as
// required. Reflexive for every role.
func HasRoleOrHigher(current, required string) bool {
	return Rank(current) >= Rank(required)
}

// IsSameOrganization reports whether the principal belongs to the given
// organization. False when either side has no organization.
func IsSameOrganization(p domain.Principal, orgID string) bool {
	if p.OrgID == nil || orgID == "" {
		return false
	}
	return *p.OrgID == orgID
}

// IsResourceOwner reports whether the principal owns the resource.
func IsResourceOwner(p domain.Principal, ownerID string) bool {
	if p.ID == "" || ownerID == "" {
		return false
	}
	return p.ID == ownerID
}
