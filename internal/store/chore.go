package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/chorly/internal/model"
)

type ChoreStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewChoreStore(db *sql.DB) *ChoreStore {
	return &ChoreStore{db: db, now: time.Now}
}

const choreCols = `id, tenant_id, title, schedule_json, assignment_json, last_assigned_member_id,
	has_reward, reward_cents, allow_notes, allow_photo_proof, is_template, deleted_at, created_at, updated_at`

// scanChore decodes a chore row. A stored schedule or assignment that no
// longer validates yields an error wrapping model.ErrInvalidDefinition.
func scanChore(sc scanner) (*model.ChoreDefinition, error) {
	var (
		c                  model.ChoreDefinition
		schedJSON, asgJSON string
		lastAssigned       sql.NullString
		deleted            sql.NullString
		created, updated   string
	)
	err := sc.Scan(&c.ID, &c.TenantID, &c.Title, &schedJSON, &asgJSON, &lastAssigned,
		&c.HasReward, &c.RewardCents, &c.AllowNotes, &c.AllowPhotoProof, &c.IsTemplate, &deleted, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.LastAssignedMemberID = lastAssigned.String
	if c.DeletedAt, err = parseNullTime(deleted); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if c.Schedule, err = model.UnmarshalSchedule([]byte(schedJSON)); err != nil {
		return nil, fmt.Errorf("chore %s: %w", c.ID, err)
	}
	if c.Assignment, err = model.UnmarshalAssignment([]byte(asgJSON)); err != nil {
		return nil, fmt.Errorf("chore %s: %w", c.ID, err)
	}
	return &c, nil
}

func encodeChore(c *model.ChoreDefinition) (sched, asg []byte, err error) {
	if sched, err = model.MarshalSchedule(c.Schedule); err != nil {
		return nil, nil, fmt.Errorf("encode schedule: %w", err)
	}
	if asg, err = json.Marshal(c.Assignment); err != nil {
		return nil, nil, fmt.Errorf("encode assignment: %w", err)
	}
	return sched, asg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateChore inserts c, filling in its ID and timestamps.
func (s *ChoreStore) CreateChore(ctx context.Context, c *model.ChoreDefinition) error {
	sched, asg, err := encodeChore(c)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	c.ID = newID()
	c.CreatedAt, c.UpdatedAt = now, now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chore_definitions (`+choreCols+`) VALUES (`+placeholders(14)+`)`,
		c.ID, c.TenantID, c.Title, string(sched), string(asg), nullString(c.LastAssignedMemberID),
		c.HasReward, c.RewardCents, c.AllowNotes, c.AllowPhotoProof, c.IsTemplate,
		formatNullTime(c.DeletedAt), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert chore: %w", err)
	}
	return nil
}

// GetChore returns the chore including soft-deleted ones; callers check
// DeletedAt.
func (s *ChoreStore) GetChore(ctx context.Context, tenantID, id string) (*model.ChoreDefinition, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+choreCols+` FROM chore_definitions WHERE tenant_id = ? AND id = ?`, tenantID, id)
	c, err := scanChore(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chore: %w", err)
	}
	return c, nil
}

// ListChores returns live chores or templates of a tenant, oldest first.
func (s *ChoreStore) ListChores(ctx context.Context, tenantID string, templates bool) ([]model.ChoreDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+choreCols+` FROM chore_definitions
		 WHERE tenant_id = ? AND is_template = ? AND deleted_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		tenantID, templates,
	)
	if err != nil {
		return nil, fmt.Errorf("list chores: %w", err)
	}
	defer rows.Close()

	var chores []model.ChoreDefinition
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// ListMaterializableIDs returns the ids of live, non-template chores without
// decoding them, so one corrupt definition cannot hide its siblings.
func (s *ChoreStore) ListMaterializableIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chore_definitions
		 WHERE tenant_id = ? AND is_template = 0 AND deleted_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chore ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chore id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateChore stores the editable fields of c. The rotation pointer is left
// alone; it only moves through UpdateRotationPointer.
func (s *ChoreStore) UpdateChore(ctx context.Context, c *model.ChoreDefinition) error {
	sched, asg, err := encodeChore(c)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE chore_definitions
		 SET title = ?, schedule_json = ?, assignment_json = ?, has_reward = ?, reward_cents = ?,
		     allow_notes = ?, allow_photo_proof = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		c.Title, string(sched), string(asg), c.HasReward, c.RewardCents,
		c.AllowNotes, c.AllowPhotoProof, formatTime(now),
		c.TenantID, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update chore: %w", err)
	}
	c.UpdatedAt = now
	return nil
}

func (s *ChoreStore) UpdateRotationPointer(ctx context.Context, tenantID, choreID, memberID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chore_definitions SET last_assigned_member_id = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		nullString(memberID), formatTime(s.now()), tenantID, choreID,
	)
	if err != nil {
		return fmt.Errorf("update rotation pointer: %w", err)
	}
	return nil
}

// DeleteChore soft-deletes a chore and removes its unapproved occurrences
// due at or after `at` in one transaction.
func (s *ChoreStore) DeleteChore(ctx context.Context, tenantID, id string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := formatTime(at)
	if _, err := tx.ExecContext(ctx,
		`UPDATE chore_definitions SET deleted_at = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		ts, ts, tenantID, id,
	); err != nil {
		return fmt.Errorf("soft delete chore: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM occurrences
		 WHERE tenant_id = ? AND chore_id = ? AND due_at >= ? AND status != 'approved'`,
		tenantID, id, ts,
	); err != nil {
		return fmt.Errorf("delete future occurrences: %w", err)
	}
	return tx.Commit()
}
