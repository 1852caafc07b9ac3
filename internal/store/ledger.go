package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/chorly/internal/localtime"
	"github.com/dukerupert/chorly/internal/model"
)

// LedgerStore reads the reward ledger. Entries are only written by
// OccurrenceStore.Approve.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

const ledgerCols = `id, tenant_id, member_id, occurrence_id, amount_cents, created_at`

func scanLedgerEntry(sc scanner) (*model.LedgerEntry, error) {
	var (
		e       model.LedgerEntry
		occID   sql.NullString
		created string
	)
	if err := sc.Scan(&e.ID, &e.TenantID, &e.MemberID, &occID, &e.AmountCents, &created); err != nil {
		return nil, err
	}
	e.OccurrenceID = occID.String
	var err error
	if e.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns a member's ledger entries, newest first.
func (s *LedgerStore) List(ctx context.Context, tenantID, memberID string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ledgerCols+` FROM ledger_entries
		 WHERE tenant_id = ? AND member_id = ?
		 ORDER BY created_at DESC, id ASC`,
		tenantID, memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Balance sums every ledger entry of a member.
func (s *LedgerStore) Balance(ctx context.Context, tenantID, memberID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE tenant_id = ? AND member_id = ?`,
		tenantID, memberID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return total, nil
}

// EarnedBetween sums each member's entries credited inside w.
func (s *LedgerStore) EarnedBetween(ctx context.Context, tenantID string, w localtime.Window) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, SUM(amount_cents) FROM ledger_entries
		 WHERE tenant_id = ? AND created_at >= ? AND created_at <= ?
		 GROUP BY member_id`,
		tenantID, formatTime(w.From), formatTime(w.To),
	)
	if err != nil {
		return nil, fmt.Errorf("sum ledger entries: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]int64)
	for rows.Next() {
		var (
			memberID string
			cents    int64
		)
		if err := rows.Scan(&memberID, &cents); err != nil {
			return nil, fmt.Errorf("scan ledger sum: %w", err)
		}
		earned[memberID] = cents
	}
	return earned, rows.Err()
}
