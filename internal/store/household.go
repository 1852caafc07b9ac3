package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/chorly/internal/chore"
	"github.com/dukerupert/chorly/internal/model"
)

type TenantStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db, now: time.Now}
}

func scanTenant(sc scanner) (*model.Tenant, error) {
	var (
		t       model.Tenant
		created string
	)
	if err := sc.Scan(&t.ID, &t.Name, &created); err != nil {
		return nil, err
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TenantStore) Create(ctx context.Context, name string) (*model.Tenant, error) {
	t := &model.Tenant{ID: newID(), Name: name, CreatedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES (?, ?, ?)`,
		t.ID, t.Name, formatTime(t.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert tenant: %w", err)
	}
	return t, nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// List returns all tenants, or only onlyID when it is non-empty.
func (s *TenantStore) List(ctx context.Context, onlyID string) ([]model.Tenant, error) {
	query := `SELECT id, name, created_at FROM tenants`
	var args []any
	if onlyID != "" {
		query += ` WHERE id = ?`
		args = append(args, onlyID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

type MemberStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db, now: time.Now}
}

const memberCols = `id, tenant_id, display_name, email, role, is_admin, is_active, is_away, created_at, updated_at`

func scanMember(sc scanner) (*model.Member, error) {
	var (
		m                model.Member
		created, updated string
	)
	err := sc.Scan(&m.ID, &m.TenantID, &m.DisplayName, &m.Email, &m.Role, &m.IsAdmin, &m.IsActive, &m.IsAway, &created, &updated)
	if err != nil {
		return nil, err
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts m, filling in its ID and timestamps.
func (s *MemberStore) Create(ctx context.Context, m *model.Member) error {
	now := s.now().UTC()
	m.ID = newID()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Role == "" {
		m.Role = model.RoleChild
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (`+memberCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TenantID, m.DisplayName, m.Email, m.Role, m.IsAdmin, m.IsActive, m.IsAway, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *MemberStore) GetMember(ctx context.Context, tenantID, id string) (*model.Member, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memberCols+` FROM members WHERE tenant_id = ? AND id = ?`, tenantID, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// FindMembers returns matching members ordered by creation. Callers that
// need a specific order (rotation) must impose it themselves.
func (s *MemberStore) FindMembers(ctx context.Context, tenantID string, f chore.MemberFilter) ([]model.Member, error) {
	query := `SELECT ` + memberCols + ` FROM members WHERE tenant_id = ?`
	args := []any{tenantID}
	if len(f.IDs) > 0 {
		query += ` AND id IN (` + placeholders(len(f.IDs)) + `)`
		args = append(args, stringArgs(f.IDs)...)
	}
	if f.ActiveOnly {
		query += ` AND is_active = 1`
	}
	if f.ExcludeAway {
		query += ` AND is_away = 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) List(ctx context.Context, tenantID string) ([]model.Member, error) {
	return s.FindMembers(ctx, tenantID, chore.MemberFilter{})
}

// SetAvailability updates the active and away flags of a member.
func (s *MemberStore) SetAvailability(ctx context.Context, tenantID, id string, active, away bool) (*model.Member, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE members SET is_active = ?, is_away = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		active, away, formatTime(s.now()), tenantID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update member availability: %w", err)
	}
	return s.GetMember(ctx, tenantID, id)
}
