package model

import "time"

// Tenant is a family. Every other entity is scoped to one.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

type Member struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	IsAdmin     bool      `json:"is_admin"`
	IsActive    bool      `json:"is_active"`
	IsAway      bool      `json:"is_away"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type LedgerEntry struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	MemberID     string    `json:"member_id"`
	OccurrenceID string    `json:"occurrence_id"`
	AmountCents  int64     `json:"amount_cents"`
	CreatedAt    time.Time `json:"created_at"`
}
