package server

import (
	"taskdeck/internal/domain"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"todo,in-progress,done"`
	Category    *string `json:"category,omitempty"`
	OwnerID     *string `json:"owner_id,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"todo,in-progress,done"`
	Category    *string `json:"category,omitempty"`
	Position    *int    `json:"position,omitempty"`
	OwnerID     *string `json:"owner_id,omitempty"`
}

type ReorderRequest struct {
	Status string   `json:"status" enum:"todo,in-progress,done"`
	Order  []string `json:"order"`
}

// Response payloads

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID    string  `json:"id"`
	Email string  `json:"email" format:"email"`
	Role  string  `json:"role" enum:"viewer,admin,owner"`
	OrgID *string `json:"org_id,omitempty"`
}

type TaskResponse struct {
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

type AuditEntryResponse struct {
	ID           int64          `json:"id"`
	Action       string         `json:"action"`
	Decision     string         `json:"decision" enum:"ALLOW,DENY"`
	UserID       *string        `json:"user_id,omitempty"`
	OrgID        *string        `json:"org_id,omitempty"`
	ResourceType *string        `json:"resource_type,omitempty"`
	ResourceID   *string        `json:"resource_id,omitempty"`
	Reason       *string        `json:"reason,omitempty"`
	Details      map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:    u.ID,
		Email: u.Email,
		Role:  u.Role,
		OrgID: u.OrgID,
	}
}

func principalResponse(p domain.Principal) UserResponse {
	return UserResponse{
		ID:    p.ID,
		Email: p.Email,
		Role:  p.Role,
		OrgID: p.OrgID,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Category:    t.Category,
		Position:    t.Position,
		OrgID:       t.OrgID,
		OwnerID:     t.OwnerID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func auditEntryResponse(e domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:           e.ID,
		Action:       e.Action,
		Decision:     e.Decision,
		UserID:       e.UserID,
		OrgID:        e.OrgID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Reason:       e.Reason,
		Details:      e.Details,
		CreatedAt:    e.CreatedAt,
	}
}

func mapAuditEntries(items []domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, auditEntryResponse(e))
	}
	return out
}
