package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ieventory-backend/internal/platform/apperr"
	"ieventory-backend/internal/platform/db"
)

// InsertTx は呼び出し側のトランザクション内で監査ログを1行追記する。
// 業務側の状態遷移と同一Txに載せるため、失敗は呼び出し元ごと失敗させる。
func InsertTx(ctx context.Context, tx db.DBTX, e *Entry) error {
	const q = `
	INSERT INTO audit_logs (user_id, target_table, target_id, action_type, old_value, new_value, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, q,
		e.UserID, e.TargetTable, e.TargetID, e.ActionType, e.OldValue, e.NewValue, createdAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	e.AuditID = id
	e.CreatedAt = createdAt
	return nil
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) List(ctx context.Context, f Filter, p Page) ([]Entry, int64, error) {
	where, args := buildWhere(f)

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}

	q := fmt.Sprintf(`
	SELECT audit_id, user_id, target_table, target_id, action_type, old_value, new_value, created_at
	FROM audit_logs %s ORDER BY audit_id %s LIMIT ? OFFSET ?`, where, order)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.AuditID, &e.UserID, &e.TargetTable, &e.TargetID, &e.ActionType, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cntWhere, cntArgs := buildWhere(f)
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs `+cntWhere, cntArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) GetByID(ctx context.Context, auditID int64) (*Entry, error) {
	const q = `
	SELECT audit_id, user_id, target_table, target_id, action_type, old_value, new_value, created_at
	FROM audit_logs WHERE audit_id = ?`
	var e Entry
	err := s.db.QueryRowContext(ctx, q, auditID).Scan(
		&e.AuditID, &e.UserID, &e.TargetTable, &e.TargetID, &e.ActionType, &e.OldValue, &e.NewValue, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound("audit log not found")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// PurgeOlderThan は保持期限を過ぎた行を一括削除する。通常運用で
// 監査ログを消すのはこの経路だけ。
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM audit_logs WHERE created_at < ?`
	res, err := s.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func buildWhere(f Filter) (string, []any) {
	sb := strings.Builder{}
	sb.WriteString(`WHERE 1=1`)
	args := []any{}

	if f.TargetTable != nil {
		sb.WriteString(` AND target_table = ?`)
		args = append(args, *f.TargetTable)
	}
	if f.TargetID != nil {
		sb.WriteString(` AND target_id = ?`)
		args = append(args, *f.TargetID)
	}
	if f.UserID != nil {
		sb.WriteString(` AND user_id = ?`)
		args = append(args, *f.UserID)
	}
	if f.ActionType != nil {
		sb.WriteString(` AND action_type = ?`)
		args = append(args, *f.ActionType)
	}
	if f.From != nil {
		sb.WriteString(` AND created_at >= ?`)
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(` AND created_at < ?`)
		args = append(args, *f.To)
	}
	return sb.String(), args
}
