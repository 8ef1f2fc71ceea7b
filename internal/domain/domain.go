package domain

// Role levels, least to most privileged.
const (
	RoleViewer = "viewer"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

// Task statuses in display order.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
)

// Audit decisions.
const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

// Principal is the verified caller identity supplied by the auth
// boundary. OrgID is nil for users not assigned to an organization.
type Principal struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Role  string  `json:"role" enum:"viewer,admin,owner"`
	OrgID *string `json:"org_id,omitempty"`
}

type Organization struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parent_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type User struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	PasswordHash string  `json:"-"`
	Role         string  `json:"role" enum:"viewer,admin,owner"`
	OrgID        *string `json:"org_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

// Principal returns the user's identity as seen by the authorization
// engine.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Role: u.Role, OrgID: u.OrgID}
}

type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"todo,in-progress,done"`
	Category    string `json:"category"`
	Position    int    `json:"position"`
	OrgID       string `json:"org_id"`
	OwnerID     string `json:"owner_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// AuditEntry is immutable once written; the trail is append-only.
type AuditEntry struct {
	ID           int64          `json:"id"`
	Action       string         `json:"action"`
	Decision     string         `json:"decision" enum:"ALLOW,DENY"`
	UserID       *string        `json:"user_id,omitempty"`
	OrgID        *string        `json:"org_id,omitempty"`
	ResourceType *string        `json:"resource_type,omitempty"`
	ResourceID   *string        `json:"resource_id,omitempty"`
	Reason       *string        `json:"reason,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// StatusRank orders statuses for display: todo < in-progress < done.
// Unknown statuses sort last.
func StatusRank(status string) int {
	switch status {
	case StatusTodo:
		return 0
	case StatusInProgress:
		return 1
	case StatusDone:
		return 2
	default:
		return 3
	}
}

// ValidStatus reports whether status is one of the three task statuses.
func ValidStatus(status string) bool {
	return status == StatusTodo || status == StatusInProgress || status == StatusDone
}
